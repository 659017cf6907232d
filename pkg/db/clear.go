package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearFunctions truncates function_routes and applications. Schema and
// schema_migrations are preserved.
func ClearFunctions(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, `TRUNCATE TABLE function_routes, applications CASCADE`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - all applications and function routes cleared", clearLogPrefix))
	return nil
}

// ClearApplication removes one application; its routes go with it. Returns
// false when the application did not exist.
func ClearApplication(ctx context.Context, pool *pgxpool.Pool, appID string) (bool, error) {
	tag, err := pool.Exec(ctx, `DELETE FROM applications WHERE id = $1`, appID)
	if err != nil {
		return false, fmt.Errorf("%s - delete application %s: %w", clearLogPrefix, appID, err)
	}
	removed := tag.RowsAffected() > 0
	if removed {
		slog.Info(fmt.Sprintf("%s - application %s cleared", clearLogPrefix, appID))
	}
	return removed, nil
}
