package database

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const upSuffix = ".up.sql"

// Migrator is the subset of a pool that RunMigrations needs.
type Migrator interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// isConnectionError reports whether err is a transient connection problem
// rather than a SQL error. Only connection errors are retried.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception.
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	for _, p := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"server closed the connection unexpectedly",
		"could not connect",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// migrationLockKey derives the advisory lock key that serializes migrations
// across replicas starting at the same time.
func migrationLockKey(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("schema_migrations:" + name))
	return int64(h.Sum64())
}

// pendingMigrations lists the *.up.sql files at the root of migrations in
// lexical order.
func pendingMigrations(migrations fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), upSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// RunMigrations applies every *.up.sql file from migrations that is not yet
// recorded in schema_migrations. Each file runs in its own transaction under
// a transaction-scoped advisory lock. Connection errors are retried with
// backoff; SQL errors are returned immediately. It returns how many files were
// applied.
func RunMigrations(ctx context.Context, db Migrator, migrations fs.FS, logger *slog.Logger) (int, error) {
	names, err := pendingMigrations(migrations)
	if err != nil {
		return 0, err
	}

	applied := 0
	err = withRetry(ctx, logger, "run migrations", isConnectionError, func() error {
		if _, err := db.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`); err != nil {
			return fmt.Errorf("create schema_migrations table: %w", err)
		}

		for _, name := range names {
			ok, err := applyMigration(ctx, db, migrations, name)
			if err != nil {
				return err
			}
			if ok {
				applied++
				logger.InfoContext(ctx, "migration applied", slog.String("version", name))
			}
		}
		return nil
	})
	return applied, err
}

// applyMigration runs one file unless another process already recorded it.
func applyMigration(ctx context.Context, db Migrator, migrations fs.FS, name string) (bool, error) {
	content, err := fs.ReadFile(migrations, name)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx for migration %s: %w", name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey(name)); err != nil {
		return false, fmt.Errorf("lock migration %s: %w", name, err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, string(content)); err != nil {
		return false, fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", name, err)
	}
	committed = true
	return true, nil
}
