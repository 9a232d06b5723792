// Package txn owns transaction lifecycles. All writes to the ledger happen
// inside a scope handed out by the Coordinator; callers never begin, commit,
// or roll back on their own.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DB begins database transactions. *pgxpool.Pool satisfies this, as do the
// pgxmock pools used in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Settler is notified once a transaction's fate is known. The event outbox
// implements this: Flush after commit, Discard plus FlushFailures after
// rollback.
type Settler interface {
	Flush(ctx context.Context, txID string)
	Discard(txID string)
	FlushFailures(ctx context.Context, txID string)
}

// Scope is a handle to one open transaction. It carries a unique ID used to
// key staged events and the underlying pgx transaction used by the ledger.
// A Scope is only valid inside the Run call that produced it.
type Scope struct {
	id string
	tx pgx.Tx
}

// ID returns the scope's unique transaction identifier.
func (s *Scope) ID() string { return s.id }

// Tx returns the underlying database transaction.
func (s *Scope) Tx() pgx.Tx { return s.tx }

// Coordinator runs functions inside database transactions and settles the
// event outbox when the outermost transaction completes.
type Coordinator struct {
	db      DB
	settler Settler
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator. settler may be nil when no outbox is
// attached.
func NewCoordinator(db DB, settler Settler, logger *slog.Logger) *Coordinator {
	return &Coordinator{db: db, settler: settler, logger: logger}
}

// Run executes fn inside a transaction scope.
//
// With a non-nil scope, fn joins the caller's open transaction: no new
// transaction is begun and the outer Run decides commit or rollback. With a
// nil scope, a new transaction is begun and settled here: commit then flush
// staged events when fn succeeds; rollback, discard staged events, and
// publish failure events when fn returns an error. fn's error is always
// returned unchanged.
func (c *Coordinator) Run(ctx context.Context, scope *Scope, fn func(*Scope) error) error {
	if scope != nil {
		return fn(scope)
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	s := &Scope{id: uuid.New().String(), tx: tx}

	if err := fn(s); err != nil {
		c.rollback(ctx, s)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		c.rollback(ctx, s)
		return fmt.Errorf("commit transaction: %w", err)
	}

	if c.settler != nil {
		c.settler.Flush(ctx, s.id)
	}
	return nil
}

func (c *Coordinator) rollback(ctx context.Context, s *Scope) {
	if err := s.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		if c.logger != nil {
			c.logger.ErrorContext(ctx, "transaction rollback failed",
				slog.String("tx_id", s.id),
				slog.String("error", err.Error()),
			)
		}
	}

	if c.settler != nil {
		c.settler.Discard(s.id)
		c.settler.FlushFailures(ctx, s.id)
	}
}
