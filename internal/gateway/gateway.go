// Package gateway abstracts the external payment provider. Adapters perform
// exactly one provider call per operation; retrying a capture or refund is
// never safe, the provider may have already moved money.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harborpay/payment-engine/internal/domain"
)

// CaptureResult is the provider's response to a successful capture. Data is
// the opaque provider payload stored on the payment; it is never interpreted
// here.
type CaptureResult struct {
	Data json.RawMessage
}

// RefundResult is the provider's response to a successful refund.
type RefundResult struct {
	Data json.RawMessage
}

// RefundInput carries the parameters for a provider refund.
type RefundInput struct {
	Amount int64
	Reason string
	Note   string
}

// Adapter defines the payment provider integration.
type Adapter interface {
	// Name returns the provider name (e.g. "mock", "stripe").
	Name() string

	// CapturePayment captures the payment's full authorized amount.
	// A provider-reported decline is returned as *Failure.
	CapturePayment(ctx context.Context, payment *domain.Payment) (*CaptureResult, error)

	// RefundPayment refunds part or all of a captured payment.
	// A provider-reported decline is returned as *Failure.
	RefundPayment(ctx context.Context, payment *domain.Payment, input RefundInput) (*RefundResult, error)
}

// Failure is a provider-reported operation failure (a decline, an invalid
// state on the provider side). It is distinguishable from transport errors
// with errors.As.
type Failure struct {
	Provider string
	Op       string
	Reason   string
	Cause    error
}

func (f *Failure) Error() string {
	if f.Reason != "" {
		return fmt.Sprintf("%s %s failed: %s", f.Provider, f.Op, f.Reason)
	}
	return fmt.Sprintf("%s %s failed", f.Provider, f.Op)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}
