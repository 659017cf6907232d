// Package db stores applications and their function routes in Postgres via pgx.
package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - database connection established", logPrefix))
	return pool, nil
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name    TEXT PRIMARY KEY,
	applied TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// AppliedMigrations returns the names recorded in schema_migrations.
func AppliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("%s - create schema_migrations: %w", logPrefix, err)
	}
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - list applied migrations: %w", logPrefix, err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s - scan applied migrations: %w", logPrefix, err)
	}
	applied := make(map[string]bool, len(names))
	for _, n := range names {
		applied[n] = true
	}
	return applied, nil
}

// RunMigrations applies pending migrations in order, each in its own
// transaction together with its schema_migrations record.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	applied, err := AppliedMigrations(ctx, pool)
	if err != nil {
		return err
	}
	pending := Pending(migrations, applied)
	slog.Info(fmt.Sprintf("%s - %d of %d migrations pending", logPrefix, len(pending), len(migrations)))

	for _, m := range pending {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
		slog.Info(fmt.Sprintf("%s - applied %s", logPrefix, m.Name))
	}

	slog.Info(fmt.Sprintf("%s - migrations complete", logPrefix))
	return nil
}

// MigrationStatus writes the applied/pending state of every migration in migrationPath to w.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string, w io.Writer) error {
	files, err := LoadMigrationFiles(migrationPath)
	if err != nil {
		return fmt.Errorf("%s - load migration list: %w", logPrefix, err)
	}
	applied, err := AppliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	for _, m := range files {
		state := "pending"
		if applied[m.Name] {
			state = "applied"
		}
		fmt.Fprintf(w, "%-40s %s\n", m.Name, state)
	}
	pending := len(Pending(files, applied))
	fmt.Fprintf(w, "%d applied, %d pending\n", len(files)-pending, pending)
	return nil
}

// MigrationDown reports that rollback is unsupported. Migrations are forward-only.
func MigrationDown(_ context.Context, _ *pgxpool.Pool, w io.Writer) error {
	fmt.Fprintln(w, "Migration down: not supported (migrations are forward-only). Use a database backup to roll back.")
	return nil
}
