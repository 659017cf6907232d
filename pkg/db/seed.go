package db

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/webhook-dispatcher/pkg/bootstrap"
)

const seedLogPrefix = "db:seed"

// SeedResult lists, per application, the function keys written by a seed.
type SeedResult map[string][]string

// ResolveSeedPath returns the absolute path of path. If baseDir is non-empty
// the path must resolve to a location under baseDir.
func ResolveSeedPath(path, baseDir string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%s - resolve path: %w", seedLogPrefix, err)
	}
	if baseDir == "" {
		return absPath, nil
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("%s - resolve base dir: %w", seedLogPrefix, err)
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s - %s is outside %s", seedLogPrefix, path, baseDir)
	}
	return absPath, nil
}

// SeedManifest writes every application of m and its function routes. Each
// application is replaced in one transaction: routes missing from the
// manifest are removed. Idempotent.
func SeedManifest(ctx context.Context, pool *pgxpool.Pool, m *bootstrap.Manifest) (SeedResult, error) {
	result := make(SeedResult)
	if m == nil || len(m.Applications) == 0 {
		slog.Info(fmt.Sprintf("%s - no applications to seed", seedLogPrefix))
		return result, nil
	}

	for _, appID := range m.ApplicationIDs() {
		app := m.Applications[appID]
		keys := app.FunctionNames()

		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			var name *string
			if app.Name != "" {
				name = &app.Name
			}
			if err := upsertApplication(ctx, tx, UpsertApplicationParams{ID: appID, Name: name, LogLevel: app.LogLevel}); err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `DELETE FROM function_routes WHERE app_id = $1`, appID); err != nil {
				return fmt.Errorf("%s - clear routes of %s: %w", seedLogPrefix, appID, err)
			}

			for _, key := range keys {
				fn := app.Functions[key]
				fnName, version, err := bootstrap.SplitFunctionKey(key, fn)
				if err != nil {
					return err
				}
				var desc *string
				if fn.Description != "" {
					desc = &fn.Description
				}
				err = upsertRoute(ctx, tx, UpsertRouteParams{
					AppID:       appID,
					Name:        fnName,
					Version:     version,
					Subject:     bootstrap.SubjectFor(appID, fnName, version, fn),
					Status:      strings.ToLower(fn.Status),
					TimeoutMs:   fn.TimeoutMs,
					Validator:   fn.Validator,
					Description: desc,
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("%s - seed %s: %w", seedLogPrefix, appID, err)
		}

		result[appID] = keys
		slog.Info(fmt.Sprintf("%s - seeded %s with %d functions", seedLogPrefix, appID, len(keys)))
	}
	return result, nil
}
