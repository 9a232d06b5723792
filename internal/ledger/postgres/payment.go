package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/harborpay/payment-engine/internal/domain"
	"github.com/harborpay/payment-engine/internal/ledger"
	"github.com/harborpay/payment-engine/internal/txn"
	"github.com/harborpay/payment-engine/pkg/database"
	apperrors "github.com/harborpay/payment-engine/pkg/errors"
)

// paymentColumns maps selectable field names to scan targets on a payment.
// Keys double as the whitelist for field-selected reads.
func paymentColumns(p *domain.Payment) map[string]any {
	return map[string]any{
		ledger.FieldID:             &p.ID,
		ledger.FieldProviderID:     &p.ProviderID,
		ledger.FieldAmount:         &p.Amount,
		ledger.FieldCurrencyCode:   &p.CurrencyCode,
		ledger.FieldAmountRefunded: &p.AmountRefunded,
		ledger.FieldCapturedAt:     &p.CapturedAt,
		ledger.FieldOrderID:        &p.OrderID,
		ledger.FieldSwapID:         &p.SwapID,
		ledger.FieldData:           &p.Data,
		ledger.FieldCreatedAt:      &p.CreatedAt,
		ledger.FieldUpdatedAt:      &p.UpdatedAt,
	}
}

// allColumns is the stable column order for full-row reads and writes.
var allColumns = []string{
	ledger.FieldID,
	ledger.FieldProviderID,
	ledger.FieldAmount,
	ledger.FieldCurrencyCode,
	ledger.FieldAmountRefunded,
	ledger.FieldCapturedAt,
	ledger.FieldOrderID,
	ledger.FieldSwapID,
	ledger.FieldData,
	ledger.FieldCreatedAt,
	ledger.FieldUpdatedAt,
}

// Store implements ledger.Store using PostgreSQL. All statements run on the
// transaction carried by the caller's scope.
type Store struct{}

// NewStore creates a PostgreSQL-backed ledger store.
func NewStore() *Store {
	return &Store{}
}

func requireScope(scope *txn.Scope) (pgx.Tx, error) {
	if scope == nil || scope.Tx() == nil {
		return nil, apperrors.Programming("ledger store called outside a transaction scope")
	}
	return scope.Tx(), nil
}

// FindPayment retrieves a payment by ID, optionally selecting only the given
// fields. The ID column is always selected.
func (s *Store) FindPayment(ctx context.Context, scope *txn.Scope, id string, fields ...string) (*domain.Payment, error) {
	tx, err := requireScope(scope)
	if err != nil {
		return nil, err
	}

	cols := allColumns
	if len(fields) > 0 {
		cols, err = selectColumns(fields)
		if err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, strings.Join(cols, ", "))

	return scanPaymentRow(ctx, tx, "FindPayment", query, id, cols)
}

// FindPaymentForUpdate retrieves the full payment row with SELECT ... FOR
// UPDATE, holding the row lock until the scope's transaction settles. Under
// read committed the locking read waits out a concurrent writer and returns
// the row state that writer committed, so preconditions checked against the
// result cannot be stale.
func (s *Store) FindPaymentForUpdate(ctx context.Context, scope *txn.Scope, id string) (*domain.Payment, error) {
	tx, err := requireScope(scope)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1 FOR UPDATE`, strings.Join(allColumns, ", "))

	return scanPaymentRow(ctx, tx, "FindPaymentForUpdate", query, id, allColumns)
}

func scanPaymentRow(ctx context.Context, tx pgx.Tx, operation, query, id string, cols []string) (*domain.Payment, error) {
	var p domain.Payment
	targets := paymentColumns(&p)
	scanDest := make([]any, len(cols))
	for i, col := range cols {
		scanDest[i] = targets[col]
	}

	ctx, end := database.TraceQuery(ctx, operation, query)
	err := tx.QueryRow(ctx, query, id).Scan(scanDest...)
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment", id)
		}
		return nil, fmt.Errorf("find payment: %w", err)
	}

	return &p, nil
}

// selectColumns validates the requested fields and returns them with the ID
// column prepended when missing.
func selectColumns(fields []string) ([]string, error) {
	valid := make(map[string]struct{}, len(allColumns))
	for _, c := range allColumns {
		valid[c] = struct{}{}
	}

	cols := make([]string, 0, len(fields)+1)
	hasID := false
	for _, f := range fields {
		if _, ok := valid[f]; !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown payment field %q", f))
		}
		if f == ledger.FieldID {
			hasID = true
		}
		cols = append(cols, f)
	}
	if !hasID {
		cols = append([]string{ledger.FieldID}, cols...)
	}
	return cols, nil
}

// CreatePayment inserts a new payment row.
func (s *Store) CreatePayment(ctx context.Context, scope *txn.Scope, p *domain.Payment) error {
	tx, err := requireScope(scope)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (id, provider_id, amount, currency_code, amount_refunded, captured_at, order_id, swap_id, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	ctx, end := database.TraceQuery(ctx, "CreatePayment", query)
	_, err = tx.Exec(ctx, query,
		p.ID,
		p.ProviderID,
		p.Amount,
		p.CurrencyCode,
		p.AmountRefunded,
		p.CapturedAt,
		p.OrderID,
		p.SwapID,
		p.Data,
		p.CreatedAt,
		p.UpdatedAt,
	)
	end(err)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

// SavePayment overwrites all mutable columns of an existing payment row.
func (s *Store) SavePayment(ctx context.Context, scope *txn.Scope, p *domain.Payment) error {
	tx, err := requireScope(scope)
	if err != nil {
		return err
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE payments
		SET provider_id = $1, amount = $2, currency_code = $3, amount_refunded = $4,
		    captured_at = $5, order_id = $6, swap_id = $7, data = $8, updated_at = $9
		WHERE id = $10`

	ctx, end := database.TraceQuery(ctx, "SavePayment", query)
	ct, err := tx.Exec(ctx, query,
		p.ProviderID,
		p.Amount,
		p.CurrencyCode,
		p.AmountRefunded,
		p.CapturedAt,
		p.OrderID,
		p.SwapID,
		p.Data,
		p.UpdatedAt,
		p.ID,
	)
	end(err)
	if err != nil {
		return fmt.Errorf("save payment: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("payment", p.ID)
	}

	return nil
}

// SaveRefund inserts a refund row.
func (s *Store) SaveRefund(ctx context.Context, scope *txn.Scope, r *domain.Refund) error {
	tx, err := requireScope(scope)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO refunds (id, payment_id, amount, reason, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	ctx, end := database.TraceQuery(ctx, "SaveRefund", query)
	_, err = tx.Exec(ctx, query,
		r.ID,
		r.PaymentID,
		r.Amount,
		r.Reason,
		r.Note,
		r.CreatedAt,
	)
	end(err)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}

	return nil
}
