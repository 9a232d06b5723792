// Package rest implements the gateway adapter against an HTTP provider API.
// Requests go through a circuit breaker; a single attempt per operation, no
// retries.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/harborpay/payment-engine/internal/domain"
	"github.com/harborpay/payment-engine/internal/gateway"
	"github.com/harborpay/payment-engine/pkg/httpclient"
)

// Config holds the provider API settings.
type Config struct {
	Name    string
	BaseURL string
	APIKey  string
}

// Adapter talks to a payment provider's REST API.
type Adapter struct {
	cfg    Config
	client *httpclient.CircuitBreakerClient
	logger *slog.Logger
}

// NewAdapter creates a REST gateway adapter. The provided client should wrap
// a non-retrying HTTP client.
func NewAdapter(cfg Config, client *httpclient.CircuitBreakerClient, logger *slog.Logger) *Adapter {
	return &Adapter{cfg: cfg, client: client, logger: logger}
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return a.cfg.Name
}

type captureRequest struct {
	PaymentID    string `json:"payment_id"`
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

type refundRequest struct {
	PaymentID    string `json:"payment_id"`
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currency_code"`
	Reason       string `json:"reason"`
	Note         string `json:"note,omitempty"`
}

type errorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CapturePayment captures the payment's full amount via the provider API.
func (a *Adapter) CapturePayment(ctx context.Context, p *domain.Payment) (*gateway.CaptureResult, error) {
	body := captureRequest{PaymentID: p.ID, Amount: p.Amount, CurrencyCode: p.CurrencyCode}

	data, err := a.post(ctx, "/v1/captures", "capture", body)
	if err != nil {
		return nil, err
	}
	return &gateway.CaptureResult{Data: data}, nil
}

// RefundPayment refunds part of a captured payment via the provider API.
func (a *Adapter) RefundPayment(ctx context.Context, p *domain.Payment, input gateway.RefundInput) (*gateway.RefundResult, error) {
	body := refundRequest{
		PaymentID:    p.ID,
		Amount:       input.Amount,
		CurrencyCode: p.CurrencyCode,
		Reason:       input.Reason,
		Note:         input.Note,
	}

	data, err := a.post(ctx, "/v1/refunds", "refund", body)
	if err != nil {
		return nil, err
	}
	return &gateway.RefundResult{Data: data}, nil
}

// post sends one request and maps provider-reported errors to *gateway.Failure.
func (a *Adapter) post(ctx context.Context, path, op string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", a.cfg.Name, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var reply errorReply
		_ = json.Unmarshal(respBody, &reply)

		a.logger.WarnContext(ctx, "provider rejected operation",
			slog.String("provider", a.cfg.Name),
			slog.String("op", op),
			slog.Int("status", resp.StatusCode),
			slog.String("code", reply.Code),
		)

		return nil, &gateway.Failure{
			Provider: a.cfg.Name,
			Op:       op,
			Reason:   reply.Message,
			Cause:    fmt.Errorf("provider returned status %d", resp.StatusCode),
		}
	}

	return respBody, nil
}
