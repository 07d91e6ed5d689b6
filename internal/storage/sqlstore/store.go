// Package sqlstore implements storage.Storage on database/sql.
//
// One portable schema serves two backends: an embedded SQLite file
// (modernc.org/sqlite, no cgo) and a Dolt sql-server reached over the MySQL
// protocol. Statements stick to the SQL both accept: `?` placeholders,
// timestamps as fixed-width UTC strings, no upserts, and a WITH RECURSIVE
// reachability query for cycle detection.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/steveyegge/tenet/internal/storage"
)

// Verify Store implements storage.Storage at compile time
var _ storage.Storage = (*Store)(nil)

// Verify tx implements storage.Transaction at compile time
var _ storage.Transaction = (*tx)(nil)

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries the read methods. Outside a transaction q is the pool; inside
// it is the *sql.Tx so reads see uncommitted writes.
type conn struct {
	q     querier
	orgID string
}

// tx adds the write methods on top of a transaction-bound conn.
type tx struct {
	conn
}

// backend distinguishes the two supported servers where they differ.
type backend string

const (
	backendSQLite backend = "sqlite"
	backendDolt   backend = "dolt"
)

// Store is the SQL-backed storage for one organization.
type Store struct {
	conn
	db      *sql.DB
	backend backend
	logger  *slog.Logger

	// afterCommit runs once a transaction committed (Dolt version commits).
	afterCommit func(ctx context.Context)
}

// Option customizes a Store at open time.
type Option func(*Store)

// WithLogger sets the logger used for retries and backend notices.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func newStore(db *sql.DB, b backend, orgID string, opts ...Option) *Store {
	s := &Store{
		conn:    conn{q: db, orgID: orgID},
		db:      db,
		backend: b,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OrgID returns the organization namespace of the store.
func (s *Store) OrgID() string {
	return s.orgID
}

// DB exposes the underlying pool for diagnostics and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTransaction executes fn within a database transaction.
//
// Once the transaction has begun it is not cancellable: the caller's context
// is detached from cancellation so a mutation either commits fully or rolls
// back fully. Transient backend errors retry the whole transaction with
// exponential backoff, so fn must not keep state across attempts.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withRetry(ctx, func() error {
		return s.runOnce(context.WithoutCancel(ctx), fn)
	})
}

func (s *Store) runOnce(ctx context.Context, fn func(tx storage.Transaction) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	if err := fn(&tx{conn: conn{q: sqlTx, orgID: s.orgID}}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	if s.afterCommit != nil {
		s.afterCommit(ctx)
	}
	return nil
}
