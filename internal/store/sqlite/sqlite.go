// Package sqlite implements store.Store on a single SQLite database file.
//
// Every document lives in one table keyed by (collection, id) with its JSON
// body in a TEXT column. Equality queries use json_extract, and the fields the
// services look up by (email, uniqueCode, studentId) get expression indexes.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C toolchain, and
// ":memory:" databases for tests.
//
// TRANSACTIONS:
// Each transaction takes a dedicated connection and starts with
// BEGIN IMMEDIATE, which grabs the write lock up front. Two writers can then
// never both read a snapshot and later collide on upgrade; the loser gets
// SQLITE_BUSY at BEGIN and the whole body is retried.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/brightminds/internal/store"
)

var _ store.Store = (*DB)(nil)

// Config tunes the transaction retry loop.
type Config struct {
	// MaxAttempts bounds how many times a busy transaction is retried.
	MaxAttempts int
	// RetryBackoff is the base delay between attempts; it grows linearly.
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		RetryBackoff: 20 * time.Millisecond,
	}
}

// DB wraps a sql.DB connection pool and implements store.Store.
type DB struct {
	conn   *sql.DB
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/brightminds.db" → file-based database (persistent)
//   - ":memory:"            → in-memory database (tests)
func New(dbPath string, cfg Config, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: ":memory:" databases are per-connection, and SQLite
	// only ever has one writer anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	db := &DB{conn: conn, cfg: cfg, logger: logger, clock: time.Now}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// SetClock replaces the source of server timestamps. Tests only.
func (db *DB) SetClock(clock func() time.Time) {
	db.clock = clock
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the documents table and lookup indexes.
// CREATE ... IF NOT EXISTS keeps it safe to run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (collection, id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	for _, field := range []string{"email", "uniqueCode", "studentId", "teacherId"} {
		_, err := db.conn.Exec(fmt.Sprintf(
			`CREATE INDEX IF NOT EXISTS idx_documents_%s ON documents(collection, json_extract(data, '$.%s'))`,
			field, field,
		))
		if err != nil {
			return fmt.Errorf("creating %s index: %w", field, err)
		}
	}
	return nil
}

// Get reads one document outside any transaction.
func (db *DB) Get(ctx context.Context, ref store.Ref, dst any) error {
	return get(ctx, db.conn, ref, dst)
}

// Query runs an equality query outside any transaction.
func (db *DB) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	return query(ctx, db.conn, q)
}

// RunTransaction runs fn inside BEGIN IMMEDIATE ... COMMIT, retrying when
// the database is busy.
func (db *DB) RunTransaction(ctx context.Context, fn store.TxFunc) error {
	var lastErr error
	for attempt := 1; attempt <= db.cfg.MaxAttempts; attempt++ {
		err := db.runOnce(ctx, fn)
		if err == nil || !isBusy(err) {
			return err
		}
		lastErr = err
		db.logger.Warn("sqlite transaction busy, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * db.cfg.RetryBackoff):
		}
	}
	return fmt.Errorf("sqlite: %w after %d attempts: %w", store.ErrTxConflict, db.cfg.MaxAttempts, lastErr)
}

func (db *DB) runOnce(ctx context.Context, fn store.TxFunc) (err error) {
	conn, err := db.conn.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlite: acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Use a fresh context: the caller's may already be cancelled.
			if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
				db.logger.Error("sqlite rollback failed", slog.String("error", rbErr.Error()))
			}
		}
	}()

	if err := fn(ctx, &Tx{conn: conn, clock: db.clock}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	committed = true
	return nil
}

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED (including
// extended codes such as SQLITE_BUSY_SNAPSHOT).
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}
