// Package store persists the edge node's copy of events, attendees,
// experiences, play records and redemptions in an embedded SQLite database.
//
// Every table carries the same sync shape: local_id (assigned here, never
// rewritten), remote_id (assigned by the cloud), synced and last_synced_at.
// Statements in this package only ever move synced from 0 to 1; new local
// rows are inserted with synced = 0.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Sentinel errors. Callers check with errors.Is.
var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate row")
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the edge-local database. A Store returned by Open runs each call
// in its own implicit transaction; the Store handed to an InTx callback runs
// every call inside that callback's transaction.
type Store struct {
	db      *sql.DB
	q       querier
	inTx    bool
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the SQLite database at dbPath and applies
// pending migrations. The pool is capped at one connection so all writes are
// serialized through a single writer.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
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

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("edge store ready", slog.String("db_path", dbPath))

	return &Store{
		db:      db,
		q:       db,
		logger:  logger,
		nowFunc: time.Now,
	}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.inTx {
		return errors.New("store: Close called inside a transaction")
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: closing database: %w", err)
	}

	return nil
}

// SetNowFunc overrides the clock used for created/updated/synced stamps.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.nowFunc = fn
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.nowFunc()
}

// InTx runs fn inside a single transaction. The Store passed to fn must be
// the only handle used inside fn: the pool holds one connection, so calls
// on the outer Store would block until the transaction ends.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}

	inner := &Store{db: s.db, q: sqlTx, inTx: true, logger: s.logger, nowFunc: s.nowFunc}

	if err := fn(inner); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
		}

		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: committing transaction: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	code := sqliteErr.Code()

	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// Timestamps are stored as Unix nanoseconds.

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: toNanos(*t), Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}

	t := fromNanos(n.Int64)

	return &t
}

// JSON documents (properties, metadata, config blobs) are stored as TEXT.

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}

	return sql.NullString{String: string(raw), Valid: true}
}

func fromNullJSON(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}

	return json.RawMessage(s.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
