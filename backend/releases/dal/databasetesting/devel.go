// Package databasetesting creates and migrates databases for development
// and testing.
package databasetesting

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jpillora/backoff"

	"github.com/stockpile-io/stockpile/backend/releases/dal/internal/sql"
	"github.com/stockpile-io/stockpile/internal/log"
)

// CreateForDevel creates and migrates a new database for development or testing.
//
// If "recreate" is true, the database will be dropped and recreated.
func CreateForDevel(ctx context.Context, dsn string, recreate bool) (*pgxpool.Pool, error) {
	logger := log.FromContext(ctx)
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}

	noDBDSN := config.Copy()
	noDBDSN.Database = ""
	retry := &backoff.Backoff{Min: time.Millisecond * 100, Max: time.Second, Factor: 2}
	var conn *pgx.Conn
	for {
		conn, err = pgx.ConnectConfig(ctx, noDBDSN)
		if err == nil {
			defer conn.Close(ctx)
			break
		}
		if retry.Attempt() >= 10 {
			return nil, fmt.Errorf("database not ready after %d tries: %w", int(retry.Attempt()), err)
		}
		logger.Debugf("Waiting for database to be ready: %v", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-time.After(retry.Duration()):
		}
	}

	if recreate {
		// Terminate any dangling connections.
		_, err = conn.Exec(ctx, `
		SELECT pid, pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = $1 AND pid <> pg_backend_pid()`,
			config.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to terminate connections: %w", err)
		}

		_, err = conn.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %q", config.Database))
		if err != nil {
			return nil, fmt.Errorf("failed to drop database: %w", err)
		}
	}

	// PG doesn't support "IF NOT EXISTS" so instead we just ignore any error.
	_, _ = conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE %q", config.Database))

	if err := sql.Migrate(ctx, dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}
