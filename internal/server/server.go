// Package server orchestrates all components: NATS client, DB, function catalog,
// dispatcher, webhook routes and the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/webhook-dispatcher/internal/config"
	"github.com/morezero/webhook-dispatcher/pkg/appconfig"
	"github.com/morezero/webhook-dispatcher/pkg/bootstrap"
	"github.com/morezero/webhook-dispatcher/pkg/commsutil"
	"github.com/morezero/webhook-dispatcher/pkg/db"
	"github.com/morezero/webhook-dispatcher/pkg/dispatcher"
	"github.com/morezero/webhook-dispatcher/pkg/events"
	"github.com/morezero/webhook-dispatcher/pkg/functions"
	"github.com/morezero/webhook-dispatcher/pkg/observability"
	"github.com/morezero/webhook-dispatcher/pkg/webhooks"
)

const logPrefix = "server:server"

// Server is the webhook-dispatcher orchestrator.
type Server struct {
	cfg      *config.Config
	nc       *comms.Conn
	pool     *pgxpool.Pool
	repo     *db.Repository
	manifest *bootstrap.Manifest
	catalog  *functions.Catalog
	store    *appconfig.StoreResolver
	metrics  *observability.Metrics
	router   *webhooks.Router
	handler  http.Handler

	ownsConn   bool
	routesSub  *comms.Subscription
	httpServer *http.Server
}

// Params configures New.
type Params struct {
	Config *config.Config
	// Catalog receives the remote routes; in-process functions may be defined
	// on it before New is called. Nil creates an empty catalog.
	Catalog *functions.Catalog
	// Conn overrides dialing Config.COMMSURL.
	Conn *comms.Conn
	// Context overrides webhooks.HeaderContext.
	Context webhooks.ContextFunc
}

// SetupLogging installs the process logger described by cfg.
func SetupLogging(cfg *config.Config, w io.Writer) {
	level, err := appconfig.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// New connects the server's dependencies and builds its HTTP handler. Nothing
// is served until Start.
func New(ctx context.Context, p Params) (*Server, error) {
	cfg := p.Config
	if cfg == nil {
		return nil, fmt.Errorf("%s - config is required", logPrefix)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, catalog: p.Catalog, nc: p.Conn}
	if s.catalog == nil {
		s.catalog = functions.NewCatalog()
	}

	// Step 1: Load function manifest
	manifest, err := bootstrap.LoadManifest(manifestPaths(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to load function manifest: %w", logPrefix, err)
	}
	s.manifest = manifest

	// Step 2: Connect to NATS
	if s.nc == nil && cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		s.nc = nc
		s.ownsConn = true
		slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))
	}

	// Step 3: Connect to database
	if cfg.DatabaseURL != "" {
		if err := s.connectDatabase(ctx); err != nil {
			s.close()
			return nil, err
		}
	}

	// Step 4: Application config and function routes
	base := slog.Default()
	fallbackLevel, _ := appconfig.ParseLevel(cfg.LogLevel)
	static := appconfig.NewStaticResolver(base, manifest, fallbackLevel)
	var resolver appconfig.Resolver = static
	if s.repo != nil {
		s.store = appconfig.NewStoreResolver(s.repo, base)
		resolver = appconfig.Chain{s.store, static}
	}
	if err := s.loadRoutes(ctx); err != nil {
		s.close()
		return nil, err
	}

	// Step 5: Dispatcher and webhook routes
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if s.nc != nil {
		publisher = events.NewCommsPublisher(s.nc, &events.CommsPublisherOpts{
			InvokedSubject:       manifest.Events.Invoked,
			RoutesChangedSubject: manifest.Events.RoutesChanged,
		})
	}
	s.metrics = observability.NewMetrics(cfg.MetricsNamespace)

	disp, err := dispatcher.New(dispatcher.Params{
		Registry:       s.catalog,
		Configs:        resolver,
		Annotator:      observability.SpanAnnotator{},
		Events:         publisher,
		Metrics:        s.metrics,
		TruncateLength: cfg.LogTruncateLength,
	})
	if err != nil {
		s.close()
		return nil, err
	}

	routes, _ := cfg.Routes()
	s.router, err = webhooks.NewRouter(webhooks.RouterParams{
		Dispatcher:      disp,
		AppID:           cfg.ApplicationID,
		Prefix:          cfg.WebhookPathPrefix,
		Routes:          routes,
		Context:         p.Context,
		ResponseTimeout: cfg.WebhookResponseTimeout,
		MaxBodyBytes:    cfg.WebhookMaxBodyBytes,
		Metrics:         s.metrics,
	})
	if err != nil {
		s.close()
		return nil, err
	}

	// Step 6: Reload routes when they change
	if s.nc != nil {
		s.routesSub, err = events.SubscribeRoutesChanged(s.nc, manifest.Events.RoutesChanged, s.onRoutesChanged)
		if err != nil {
			s.close()
			return nil, err
		}
	}

	mux := http.NewServeMux()
	s.router.Register(mux)
	mux.HandleFunc("GET /{$}", s.handleHome())
	mux.HandleFunc("GET /health", s.handleHealth())
	mux.HandleFunc("GET /ready", s.handleReady())
	mux.Handle("GET /metrics", s.metrics.Handler())
	s.handler = observability.HTTPMiddleware(mux)
	return s, nil
}

func manifestPaths(cfg *config.Config) []string {
	if cfg.ManifestFile == "" {
		return nil
	}
	return []string{cfg.ManifestFile}
}

func (s *Server) connectDatabase(ctx context.Context) error {
	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool
	s.repo = db.NewRepository(pool)

	if s.cfg.RunMigrations {
		migrations, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	return nil
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Catalog returns the function catalog serving webhook routes.
func (s *Server) Catalog() *functions.Catalog { return s.catalog }

// Start serves HTTP on the configured address in the background.
func (s *Server) Start() {
	addr := s.cfg.Addr()
	s.httpServer = &http.Server{Addr: addr, Handler: s.handler}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, addr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()
}

// Shutdown stops HTTP, unsubscribes and releases connections.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.close()
	return err
}

func (s *Server) close() {
	if s.routesSub != nil {
		s.routesSub.Unsubscribe()
		s.routesSub = nil
	}
	if s.ownsConn {
		commsutil.Drain(s.nc)
	}
	s.nc = nil
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg, os.Stdout)
	slog.Info(fmt.Sprintf("%s - Starting webhook-dispatcher for app %s", logPrefix, cfg.ApplicationID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := observability.Init(ctx, cfg.Tracing()); err != nil {
		return fmt.Errorf("%s - failed to init tracing: %w", logPrefix, err)
	}

	s, err := New(ctx, Params{Config: cfg})
	if err != nil {
		observability.Shutdown(ctx)
		return err
	}
	s.Start()
	slog.Info(fmt.Sprintf("%s - webhook-dispatcher is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := s.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	if err := observability.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - tracer shutdown: %v", logPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}
