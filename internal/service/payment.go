package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harborpay/payment-engine/internal/domain"
	"github.com/harborpay/payment-engine/internal/event"
	"github.com/harborpay/payment-engine/internal/gateway"
	"github.com/harborpay/payment-engine/internal/ledger"
	"github.com/harborpay/payment-engine/internal/outbox"
	"github.com/harborpay/payment-engine/internal/txn"
	apperrors "github.com/harborpay/payment-engine/pkg/errors"
)

// PaymentService orchestrates the payment lifecycle: persisted state changes,
// gateway calls, and the domain events describing them all settle together
// through the transaction coordinator. The service holds no per-payment
// state; concurrent calls for different payments are independent.
type PaymentService struct {
	store       ledger.Store
	gateway     gateway.Adapter
	coordinator *txn.Coordinator
	outbox      *outbox.Outbox
	logger      *slog.Logger
}

// NewPaymentService creates a new payment service.
func NewPaymentService(
	store ledger.Store,
	gw gateway.Adapter,
	coordinator *txn.Coordinator,
	ob *outbox.Outbox,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		store:       store,
		gateway:     gw,
		coordinator: coordinator,
		outbox:      ob,
		logger:      logger,
	}
}

// CreatePaymentInput holds the parameters for creating a payment.
type CreatePaymentInput struct {
	ProviderID   string          `json:"provider_id" validate:"required"`
	Amount       int64           `json:"amount" validate:"required,gt=0"`
	CurrencyCode string          `json:"currency_code" validate:"required,len=3"`
	OrderID      string          `json:"order_id,omitempty"`
	SwapID       string          `json:"swap_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// UpdatePaymentInput holds the back-reference fields that may be set after
// creation. Nil pointers leave the stored value untouched.
type UpdatePaymentInput struct {
	OrderID *string `json:"order_id,omitempty"`
	SwapID  *string `json:"swap_id,omitempty"`
}

// RefundPaymentInput holds the parameters for refunding a payment.
type RefundPaymentInput struct {
	Amount int64  `json:"amount" validate:"required,gt=0"`
	Reason string `json:"reason" validate:"required,oneof=discount return swap claim other"`
	Note   string `json:"note,omitempty"`
}

// Create persists a new payment and announces it with a payment.created
// event once the transaction commits.
func (s *PaymentService) Create(ctx context.Context, input *CreatePaymentInput) (*domain.Payment, error) {
	if input.ProviderID == "" {
		return nil, apperrors.InvalidInput("provider_id is required")
	}
	if input.Amount <= 0 {
		return nil, apperrors.InvalidInput("amount must be greater than zero")
	}
	if len(input.CurrencyCode) != 3 {
		return nil, apperrors.InvalidInput("currency_code must be a 3-letter ISO code")
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:             uuid.New().String(),
		ProviderID:     input.ProviderID,
		Amount:         input.Amount,
		CurrencyCode:   strings.ToLower(input.CurrencyCode),
		AmountRefunded: 0,
		OrderID:        input.OrderID,
		SwapID:         input.SwapID,
		Data:           input.Data,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.coordinator.Run(ctx, nil, func(scope *txn.Scope) error {
		if err := s.store.CreatePayment(ctx, scope, payment); err != nil {
			return apperrors.Wrap(err, "create payment")
		}
		s.outbox.Stage(scope.ID(), event.PaymentCreated, payment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment created",
		slog.String("payment_id", payment.ID),
		slog.String("provider_id", payment.ProviderID),
		slog.Int64("amount", payment.Amount),
	)

	return payment, nil
}

// Retrieve returns a payment by ID, optionally narrowing the selected fields.
func (s *PaymentService) Retrieve(ctx context.Context, id string, fields ...string) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.coordinator.Run(ctx, nil, func(scope *txn.Scope) error {
		p, err := s.store.FindPayment(ctx, scope, id, fields...)
		if err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// Update applies the back-reference fields present in input and announces
// the change with a payment.updated event.
func (s *PaymentService) Update(ctx context.Context, id string, input *UpdatePaymentInput) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.coordinator.Run(ctx, nil, func(scope *txn.Scope) error {
		p, err := s.store.FindPaymentForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}

		if input.OrderID != nil {
			p.OrderID = *input.OrderID
		}
		if input.SwapID != nil {
			p.SwapID = *input.SwapID
		}

		if err := s.store.SavePayment(ctx, scope, p); err != nil {
			return apperrors.Wrap(err, "update payment")
		}

		s.outbox.Stage(scope.ID(), event.PaymentUpdated, p)
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment updated",
		slog.String("payment_id", payment.ID),
	)

	return payment, nil
}

// Capture captures the payment's full amount through the gateway. Capturing
// an already-captured payment is an idempotent no-op: the payment is
// returned unchanged, the gateway is not called, and no event is emitted.
// When the gateway reports failure the transaction rolls back, a
// payment.payment_capture_failed event is still delivered, and the caller
// gets an unexpected-state error naming the payment.
func (s *PaymentService) Capture(ctx context.Context, id string) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.coordinator.Run(ctx, nil, func(scope *txn.Scope) error {
		// The locking read serializes concurrent captures: the second one
		// waits on the row and then observes captured_at already set.
		p, err := s.store.FindPaymentForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}

		if p.IsCaptured() {
			payment = p
			return nil
		}

		result, err := s.gateway.CapturePayment(ctx, p)
		if err != nil {
			s.outbox.StageFailure(scope.ID(), event.PaymentCaptureFailed, &event.FailureData{
				Payment: p,
				Reason:  failureReason(err),
			})
			return apperrors.UnexpectedState(
				fmt.Sprintf("failed to capture payment %s", p.ID), err)
		}

		now := time.Now().UTC()
		p.CapturedAt = &now
		if len(result.Data) > 0 {
			p.Data = result.Data
		}

		if err := s.store.SavePayment(ctx, scope, p); err != nil {
			return apperrors.Wrap(err, "save captured payment")
		}

		s.outbox.Stage(scope.ID(), event.PaymentCaptured, p)
		payment = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment captured",
		slog.String("payment_id", payment.ID),
		slog.Int64("amount", payment.Amount),
	)

	return payment, nil
}

// Refund refunds part or all of a captured payment through the gateway.
// An uncaptured payment or an amount above the refundable balance is
// rejected before the gateway sees the request. A gateway failure rolls the
// transaction back, delivers a payment.payment_refund_failed event anyway,
// and returns an unexpected-state error.
func (s *PaymentService) Refund(ctx context.Context, id string, input *RefundPaymentInput) (*domain.Refund, error) {
	if input.Amount <= 0 {
		return nil, apperrors.InvalidInput("amount must be greater than zero")
	}
	if !domain.IsValidRefundReason(input.Reason) {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid refund reason %q", input.Reason))
	}

	var refund *domain.Refund
	err := s.coordinator.Run(ctx, nil, func(scope *txn.Scope) error {
		// Lock the row before checking the refundable balance so concurrent
		// refunds serialize and each check sees the previous refund's state.
		p, err := s.store.FindPaymentForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}

		if !p.IsCaptured() {
			return apperrors.NotAllowed(
				fmt.Sprintf("payment %s is not captured and cannot be refunded", p.ID))
		}
		if input.Amount > p.Refundable() {
			return apperrors.NotAllowed(
				fmt.Sprintf("refund amount exceeds the refundable balance of %d", p.Refundable()))
		}

		result, err := s.gateway.RefundPayment(ctx, p, gateway.RefundInput{
			Amount: input.Amount,
			Reason: input.Reason,
			Note:   input.Note,
		})
		if err != nil {
			s.outbox.StageFailure(scope.ID(), event.RefundFailed, &event.FailureData{
				Payment: p,
				Reason:  failureReason(err),
			})
			return apperrors.UnexpectedState(
				fmt.Sprintf("failed to refund payment %s", p.ID), err)
		}

		r := &domain.Refund{
			ID:        uuid.New().String(),
			PaymentID: p.ID,
			Amount:    input.Amount,
			Reason:    input.Reason,
			Note:      input.Note,
			CreatedAt: time.Now().UTC(),
		}

		if err := s.store.SaveRefund(ctx, scope, r); err != nil {
			return apperrors.Wrap(err, "save refund")
		}

		p.AmountRefunded += input.Amount
		if len(result.Data) > 0 {
			p.Data = result.Data
		}

		if err := s.store.SavePayment(ctx, scope, p); err != nil {
			return apperrors.Wrap(err, "save refunded payment")
		}

		s.outbox.Stage(scope.ID(), event.RefundCreated, r)
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment refunded",
		slog.String("payment_id", refund.PaymentID),
		slog.String("refund_id", refund.ID),
		slog.Int64("amount", refund.Amount),
		slog.String("reason", refund.Reason),
	)

	return refund, nil
}

// failureReason prefers the provider-reported reason over the raw error text.
func failureReason(err error) string {
	var f *gateway.Failure
	if errors.As(err, &f) && f.Reason != "" {
		return f.Reason
	}
	return err.Error()
}
