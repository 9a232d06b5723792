// Package ledger is the persistence boundary for payments and refunds.
// Every call is transaction-scoped: the caller passes the scope it obtained
// from the transaction coordinator, and the store executes against that
// scope's transaction. There is no ambient transaction lookup.
package ledger

import (
	"context"

	"github.com/harborpay/payment-engine/internal/domain"
	"github.com/harborpay/payment-engine/internal/txn"
)

// Field names accepted by FindPayment.
const (
	FieldID             = "id"
	FieldProviderID     = "provider_id"
	FieldAmount         = "amount"
	FieldCurrencyCode   = "currency_code"
	FieldAmountRefunded = "amount_refunded"
	FieldCapturedAt     = "captured_at"
	FieldOrderID        = "order_id"
	FieldSwapID         = "swap_id"
	FieldData           = "data"
	FieldCreatedAt      = "created_at"
	FieldUpdatedAt      = "updated_at"
)

// Store defines transaction-scoped persistence for payments and refunds.
// Calling any method with a nil scope is a caller defect and returns a
// programming error, never a business error.
type Store interface {
	// FindPayment retrieves a payment by ID. When fields are given, only
	// those columns are selected; the ID is always included. Unknown field
	// names are rejected as invalid input. Absent rows return a not-found
	// error.
	FindPayment(ctx context.Context, scope *txn.Scope, id string, fields ...string) (*domain.Payment, error)

	// FindPaymentForUpdate retrieves the full payment row and locks it for
	// the remainder of the scope's transaction. Paths that check a
	// precondition and then write must read through this, so a concurrent
	// writer's committed state is observed before the check runs.
	FindPaymentForUpdate(ctx context.Context, scope *txn.Scope, id string) (*domain.Payment, error)

	// CreatePayment inserts a new payment row.
	CreatePayment(ctx context.Context, scope *txn.Scope, payment *domain.Payment) error

	// SavePayment persists the full payment row, overwriting all mutable
	// columns (last writer wins). Absent rows return a not-found error.
	SavePayment(ctx context.Context, scope *txn.Scope, payment *domain.Payment) error

	// SaveRefund inserts a refund row. Refunds are immutable; there is no
	// update path.
	SaveRefund(ctx context.Context, scope *txn.Scope, refund *domain.Refund) error
}
