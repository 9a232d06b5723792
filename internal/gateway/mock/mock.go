// Package mock provides a payment gateway adapter that always succeeds.
// It is intended for development and testing.
package mock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/harborpay/payment-engine/internal/domain"
	"github.com/harborpay/payment-engine/internal/gateway"
)

// Adapter is a mock payment gateway.
type Adapter struct{}

// NewAdapter creates a new mock gateway adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "mock"
}

// CapturePayment simulates a capture that always succeeds.
func (a *Adapter) CapturePayment(_ context.Context, _ *domain.Payment) (*gateway.CaptureResult, error) {
	data, _ := json.Marshal(map[string]string{
		"status":     "captured",
		"capture_id": "mock_cap_" + uuid.New().String(),
	})
	return &gateway.CaptureResult{Data: data}, nil
}

// RefundPayment simulates a refund that always succeeds.
func (a *Adapter) RefundPayment(_ context.Context, _ *domain.Payment, input gateway.RefundInput) (*gateway.RefundResult, error) {
	data, _ := json.Marshal(map[string]string{
		"status":    "refunded",
		"refund_id": "mock_ref_" + uuid.New().String(),
		"amount":    fmt.Sprintf("%d", input.Amount),
	})
	return &gateway.RefundResult{Data: data}, nil
}
