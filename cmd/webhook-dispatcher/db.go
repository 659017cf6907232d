package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/morezero/webhook-dispatcher/internal/config"
	"github.com/morezero/webhook-dispatcher/pkg/bootstrap"
	"github.com/morezero/webhook-dispatcher/pkg/commsutil"
	"github.com/morezero/webhook-dispatcher/pkg/db"
	"github.com/morezero/webhook-dispatcher/pkg/events"
)

// defaultTestDatabase is the database ensure-db creates when no name is given.
const defaultTestDatabase = "webhook_dispatcher_test"

// withPool loads config, connects to DATABASE_URL and calls fn.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Run pending database migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
					migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
					if err != nil {
						return fmt.Errorf("load migrations: %w", err)
					}
					if err := db.RunMigrations(ctx, pool, migrations); err != nil {
						return fmt.Errorf("run migrations: %w", err)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
					return db.MigrationStatus(ctx, pool, cfg.MigrationPath, cmd.OutOrStdout())
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration (migrations are forward-only)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
					return db.MigrationDown(ctx, pool, cmd.OutOrStdout())
				})
			},
		},
	)
	return cmd
}

func ensureDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure-db [name]",
		Short: "Create a database on the DATABASE_URL host if missing",
		Long:  "Create a database (default " + defaultTestDatabase + ") on the same host and credentials as DATABASE_URL.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			name := defaultTestDatabase
			if len(args) > 0 && args[0] != "" {
				name = args[0]
			}
			target, err := databaseURLFor(cfg.DatabaseURL, name)
			if err != nil {
				return err
			}
			if err := db.EnsureDatabase(context.Background(), target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database %q is ready.\n", name)
			return nil
		},
	}
}

// databaseURLFor replaces the database name of databaseURL, keeping its query.
func databaseURLFor(databaseURL, name string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("DATABASE_URL must be a postgres:// URL")
	}
	u.Path = "/" + name
	return u.String(), nil
}

func clearCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "clear [app...]",
		Short: "Remove stored applications and their function routes; schema is preserved",
		Long: `Remove stored applications and their function routes. Without arguments every
application is removed; otherwise only the named ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				if len(args) == 0 {
					if err := db.ClearFunctions(ctx, pool); err != nil {
						return fmt.Errorf("clear functions: %w", err)
					}
					return nil
				}
				changed := make(map[string][]string, len(args))
				for _, app := range args {
					removed, err := db.ClearApplication(ctx, pool, app)
					if err != nil {
						return err
					}
					if !removed {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: not found\n", app)
						continue
					}
					changed[app] = []string{}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: cleared\n", app)
				}
				if notify && cfg.COMMSURL != "" {
					publishRoutesChanged(ctx, cfg, manifestEvents(cfg), "clear", changed, cmd.ErrOrStderr())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", true, "Publish a routes-changed event for each cleared application")
	return cmd
}

func dropRouteCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "drop-route <app> <function>",
		Short: "Remove every stored version of one function route",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, name := args[0], args[1]
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				repo := db.NewRepository(pool)
				n, err := repo.DeleteRoute(ctx, app, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s: %d versions removed\n", app, name, n)
				if n == 0 || !notify || cfg.COMMSURL == "" {
					return nil
				}
				routes, err := repo.ListRoutes(ctx, app)
				if err != nil {
					return err
				}
				remaining := make([]string, 0, len(routes))
				for _, r := range routes {
					remaining = append(remaining, r.Name+"@"+r.Version)
				}
				publishRoutesChanged(ctx, cfg, manifestEvents(cfg), "drop-route", map[string][]string{app: remaining}, cmd.ErrOrStderr())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", true, "Publish a routes-changed event so running dispatchers reload")
	return cmd
}

func seedCmd() *cobra.Command {
	var notify bool
	cmd := &cobra.Command{
		Use:   "seed [file...]",
		Short: "Seed applications and function routes from a manifest",
		Long: `Seed applications and function routes from a function manifest. Files must
live under the working directory and are merged in order, later files winning.
Without files the manifest is located like the server does
(FUNCTIONS_MANIFEST_FILE, config/functions.json, functions.json).
Each seeded application's routes are replaced.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
				m, err := loadSeedManifest(cfg, args)
				if err != nil {
					return err
				}
				result, err := db.SeedManifest(ctx, pool, m)
				if err != nil {
					return fmt.Errorf("seed manifest: %w", err)
				}
				for _, app := range m.ApplicationIDs() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d routes\n", app, len(result[app]))
				}
				if notify && cfg.COMMSURL != "" {
					publishRoutesChanged(ctx, cfg, m.Events, "seed", result, cmd.ErrOrStderr())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", true, "Publish a routes-changed event so running dispatchers reload")
	return cmd
}

func loadSeedManifest(cfg *config.Config, args []string) (*bootstrap.Manifest, error) {
	if len(args) == 0 || args[0] == "" {
		paths := []string{}
		if cfg.ManifestFile != "" {
			paths = append(paths, cfg.ManifestFile)
		}
		return bootstrap.LoadManifest(paths...)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}
	var merged *bootstrap.Manifest
	for _, arg := range args {
		path, err := db.ResolveSeedPath(arg, wd)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		m, err := bootstrap.ParseManifest(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
		if merged == nil {
			merged = m
			continue
		}
		merged = bootstrap.MergeManifests(merged, m)
	}
	return merged, nil
}

// manifestEvents returns the event subjects of the configured manifest, or the
// defaults when it cannot be loaded.
func manifestEvents(cfg *config.Config) bootstrap.EventSubjects {
	m, err := bootstrap.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return bootstrap.EventSubjects{}
	}
	return m.Events
}

func publishRoutesChanged(ctx context.Context, cfg *config.Config, subjects bootstrap.EventSubjects, source string, changed map[string][]string, stderr io.Writer) {
	if len(changed) == 0 {
		return
	}
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-"+source)
	if err != nil {
		fmt.Fprintf(stderr, "routes-changed not published: %v\n", err)
		return
	}
	defer commsutil.Drain(nc)

	publisher := events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
		InvokedSubject:       subjects.Invoked,
		RoutesChangedSubject: subjects.RoutesChanged,
	})
	apps := make([]string, 0, len(changed))
	for app := range changed {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	for _, app := range apps {
		err := publisher.PublishRoutesChanged(ctx, &events.RoutesChangedEvent{
			App:       app,
			Functions: changed[app],
			Source:    source,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			fmt.Fprintf(stderr, "routes-changed for %s not published: %v\n", app, err)
		}
	}
}

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes [app]",
		Short: "List stored function routes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
				repo := db.NewRepository(pool)
				apps := args
				if len(apps) == 0 {
					ids, err := repo.ListApplicationIDs(ctx)
					if err != nil {
						return err
					}
					apps = ids
				}
				var all []db.FunctionRoute
				for _, app := range apps {
					routes, err := repo.ListRoutes(ctx, app)
					if err != nil {
						return err
					}
					all = append(all, routes...)
				}
				return printRoutes(cmd.OutOrStdout(), all)
			})
		},
	}
}

func printRoutes(w io.Writer, routes []db.FunctionRoute) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "APP\tFUNCTION\tVERSION\tSTATUS\tSUBJECT\tTIMEOUT")
	for _, r := range routes {
		timeout := "-"
		if r.TimeoutMs > 0 {
			timeout = (time.Duration(r.TimeoutMs) * time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.AppID, r.Name, r.Version, r.Status, r.Subject, timeout)
	}
	return tw.Flush()
}
