package domain

import (
	"encoding/json"
	"time"
)

// Payment represents a single authorized charge against an external payment
// provider. Amounts are integer minor units (cents) in the payment's currency.
type Payment struct {
	ID             string          `json:"id"`
	ProviderID     string          `json:"provider_id"`
	Amount         int64           `json:"amount"`
	CurrencyCode   string          `json:"currency_code"`
	AmountRefunded int64           `json:"amount_refunded"`
	CapturedAt     *time.Time      `json:"captured_at,omitempty"`
	OrderID        string          `json:"order_id,omitempty"`
	SwapID         string          `json:"swap_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IsCaptured reports whether the payment has been captured.
func (p *Payment) IsCaptured() bool {
	return p.CapturedAt != nil
}

// Refundable returns how much of the payment can still be refunded.
func (p *Payment) Refundable() int64 {
	return p.Amount - p.AmountRefunded
}
