// Package store is the durable local replica: entity tables with their sync
// metadata, the sync queue, a small key-value table, and the conflict log,
// all in one SQLite database. The Store is the sole writer to that database;
// every mutation runs inside WithTx so readers never observe a torn write.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/tonimelisma/mediavault/internal/catalog"
)

// Store owns the catalog database.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests

	// cascadeHook, when set, runs after each sub-step of a media delete
	// cascade. A non-nil return aborts the transaction.
	cascadeHook func(step string) error
}

// Tx is a store transaction. All entity, queue, and KV writes go through a
// Tx. Reads issued inside a transaction callback must use the Tx, not the
// Store: the store holds a single connection.
type Tx struct {
	tx    *sql.Tx
	store *Store
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Open opens the SQLite database at dbPath, runs migrations, and returns a
// ready-to-use store. The database uses WAL mode with synchronous=FULL for
// crash-safe durability.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("catalog store opened", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Now returns the store's clock reading in UTC.
func (s *Store) Now() time.Time {
	return s.nowFunc().UTC()
}

// SetClock replaces the store clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.nowFunc = now
}

// WithTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back otherwise; fn's error is returned unchanged.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.WrapDB("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return catalog.WrapDB("commit transaction", err)
	}

	return nil
}

// Now returns the owning store's clock reading.
func (t *Tx) Now() time.Time {
	return t.store.Now()
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

// sqliteCode returns the extended SQLite result code carried by err, or 0.
func sqliteCode(err error) int {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code()
	}

	return 0
}

// Constraint checks accept both extended codes and the primary
// SQLITE_CONSTRAINT code with the matching message.
func isUniqueViolation(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "UNIQUE")
	default:
		return false
	}
}

func isForeignKeyViolation(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(err.Error(), "FOREIGN KEY")
	default:
		return false
	}
}

// requireAffected converts a zero-row UPDATE or DELETE into a NotFoundError.
func requireAffected(res sql.Result, t catalog.EntityType, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return catalog.WrapDB("rows affected", err)
	}

	if n == 0 {
		return catalog.NewNotFound(t, id)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Column helpers: times are stored as Unix nanoseconds, nullable as NULL.
// ---------------------------------------------------------------------------

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}

	t := fromNanos(n.Int64)

	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}

	f := n.Float64

	return &f
}

func boolInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
