package domain

import (
	"time"
)

// Refund reason constants.
const (
	RefundReasonDiscount = "discount"
	RefundReasonReturn   = "return"
	RefundReasonSwap     = "swap"
	RefundReasonClaim    = "claim"
	RefundReasonOther    = "other"
)

// Refund represents a completed refund against a captured payment.
// Refunds are immutable once written.
type Refund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRefundReasons returns all valid refund reasons.
func ValidRefundReasons() []string {
	return []string{
		RefundReasonDiscount,
		RefundReasonReturn,
		RefundReasonSwap,
		RefundReasonClaim,
		RefundReasonOther,
	}
}

// IsValidRefundReason checks whether the given reason is a valid refund reason.
func IsValidRefundReason(reason string) bool {
	for _, r := range ValidRefundReasons() {
		if r == reason {
			return true
		}
	}
	return false
}
