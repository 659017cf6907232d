package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/webhook-dispatcher/pkg/bootstrap"
)

const repoLogPrefix = "db:repository"

// Repository provides database access for applications and function routes.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errors.New("db:repository - no database pool")
	}
	return r.pool.Ping(ctx)
}

// =========================================================================
// APPLICATION OPERATIONS
// =========================================================================

// GetApplication finds an application by id. Returns nil, nil when absent.
func (r *Repository) GetApplication(ctx context.Context, id string) (*Application, error) {
	slog.Debug(fmt.Sprintf("%s - GetApplication id=%s", repoLogPrefix, id))

	row := r.pool.QueryRow(ctx,
		`SELECT id, name, log_level, status, revision, created, modified, config
		 FROM applications
		 WHERE id = $1`, id)

	var a Application
	err := row.Scan(&a.ID, &a.Name, &a.LogLevel, &a.Status, &a.Revision, &a.Created, &a.Modified, &a.Config)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s - scan application failed: %w", repoLogPrefix, err)
	}
	return &a, nil
}

// UpsertApplicationParams holds parameters for UpsertApplication.
type UpsertApplicationParams struct {
	ID       string
	Name     *string
	LogLevel string
}

// UpsertApplication creates or updates an application, bumping its revision.
func (r *Repository) UpsertApplication(ctx context.Context, params UpsertApplicationParams) error {
	return upsertApplication(ctx, r.pool, params)
}

// ListApplicationIDs returns every application id, sorted.
func (r *Repository) ListApplicationIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM applications ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s - list applications: %w", repoLogPrefix, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s - scan applications: %w", repoLogPrefix, err)
	}
	return ids, nil
}

// =========================================================================
// FUNCTION ROUTE OPERATIONS
// =========================================================================

// ListRoutes returns the function routes of an application ordered by name and version.
func (r *Repository) ListRoutes(ctx context.Context, appID string) ([]FunctionRoute, error) {
	slog.Debug(fmt.Sprintf("%s - ListRoutes app=%s", repoLogPrefix, appID))

	rows, err := r.pool.Query(ctx,
		`SELECT id, app_id, name, version, subject, status, timeout_ms, validator, description, created, modified
		 FROM function_routes
		 WHERE app_id = $1
		 ORDER BY name, version`, appID)
	if err != nil {
		return nil, fmt.Errorf("%s - query routes: %w", repoLogPrefix, err)
	}
	routes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (FunctionRoute, error) {
		var fr FunctionRoute
		err := row.Scan(&fr.ID, &fr.AppID, &fr.Name, &fr.Version, &fr.Subject, &fr.Status,
			&fr.TimeoutMs, &fr.Validator, &fr.Description, &fr.Created, &fr.Modified)
		return fr, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s - scan routes: %w", repoLogPrefix, err)
	}
	return routes, nil
}

// UpsertRouteParams holds parameters for UpsertRoute.
type UpsertRouteParams struct {
	AppID       string
	Name        string
	Version     string
	Subject     string
	Status      string
	TimeoutMs   int
	Validator   *bootstrap.ValidatorSpec
	Description *string
}

// UpsertRoute creates or updates one version of a function route.
func (r *Repository) UpsertRoute(ctx context.Context, params UpsertRouteParams) error {
	return upsertRoute(ctx, r.pool, params)
}

// DeleteRoute removes every version of a function route. Returns the number of rows removed.
func (r *Repository) DeleteRoute(ctx context.Context, appID, name string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM function_routes WHERE app_id = $1 AND name = $2`, appID, name)
	if err != nil {
		return 0, fmt.Errorf("%s - delete route %s/%s: %w", repoLogPrefix, appID, name, err)
	}
	return tag.RowsAffected(), nil
}

// LoadApplicationManifest converts the stored application and routes of appID
// into the manifest shape used to build the catalog. found is false when the
// application is unknown.
func (r *Repository) LoadApplicationManifest(ctx context.Context, appID string) (app bootstrap.ApplicationManifest, found bool, err error) {
	a, err := r.GetApplication(ctx, appID)
	if err != nil || a == nil {
		return bootstrap.ApplicationManifest{}, false, err
	}
	routes, err := r.ListRoutes(ctx, appID)
	if err != nil {
		return bootstrap.ApplicationManifest{}, false, err
	}
	return RoutesToManifest(a, routes), true, nil
}

// RoutesToManifest builds an ApplicationManifest from stored rows. Every row
// becomes a "name@version" entry so all versions reach the catalog.
func RoutesToManifest(a *Application, routes []FunctionRoute) bootstrap.ApplicationManifest {
	app := bootstrap.ApplicationManifest{
		LogLevel:  a.LogLevel,
		Functions: make(map[string]bootstrap.FunctionManifest, len(routes)),
	}
	if a.Name != nil {
		app.Name = *a.Name
	}
	for _, fr := range routes {
		fn := bootstrap.FunctionManifest{
			Subject:   fr.Subject,
			Version:   fr.Version,
			Status:    fr.Status,
			TimeoutMs: fr.TimeoutMs,
		}
		if fr.Description != nil {
			fn.Description = *fr.Description
		}
		if len(fr.Validator) > 0 {
			var spec bootstrap.ValidatorSpec
			if err := json.Unmarshal(fr.Validator, &spec); err != nil {
				slog.Warn(fmt.Sprintf("%s - ignoring malformed validator of %s/%s: %v", repoLogPrefix, fr.AppID, fr.Name, err))
			} else {
				fn.Validator = &spec
			}
		}
		app.Functions[fr.Name+"@"+fr.Version] = fn
	}
	return app
}

// execer is satisfied by *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func upsertApplication(ctx context.Context, q execer, params UpsertApplicationParams) error {
	logLevel := params.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}
	_, err := q.Exec(ctx,
		`INSERT INTO applications (id, name, log_level, created, modified)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   name = COALESCE(EXCLUDED.name, applications.name),
		   log_level = EXCLUDED.log_level,
		   revision = applications.revision + 1,
		   modified = EXCLUDED.modified`,
		params.ID, params.Name, logLevel, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s - upsert application %s: %w", repoLogPrefix, params.ID, err)
	}
	return nil
}

func upsertRoute(ctx context.Context, q execer, params UpsertRouteParams) error {
	var validator []byte
	if params.Validator != nil {
		b, err := json.Marshal(params.Validator)
		if err != nil {
			return fmt.Errorf("%s - encode validator: %w", repoLogPrefix, err)
		}
		validator = b
	}
	version := params.Version
	if version == "" {
		version = "0.0.0"
	}
	status := params.Status
	if status == "" {
		status = "active"
	}

	_, err := q.Exec(ctx,
		`INSERT INTO function_routes (app_id, name, version, subject, status, timeout_ms, validator, description, created, modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		 ON CONFLICT (app_id, name, version) DO UPDATE SET
		   subject = EXCLUDED.subject,
		   status = EXCLUDED.status,
		   timeout_ms = EXCLUDED.timeout_ms,
		   validator = EXCLUDED.validator,
		   description = COALESCE(EXCLUDED.description, function_routes.description),
		   modified = EXCLUDED.modified`,
		params.AppID, params.Name, version, params.Subject, status, params.TimeoutMs, validator, params.Description, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s - upsert route %s/%s@%s: %w", repoLogPrefix, params.AppID, params.Name, version, err)
	}
	return nil
}
