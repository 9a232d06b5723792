package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harborpay/payment-engine/internal/domain"
	pkgkafka "github.com/harborpay/payment-engine/pkg/kafka"
	"github.com/harborpay/payment-engine/pkg/logger"
)

// Domain event names.
const (
	PaymentCreated       = "payment.created"
	PaymentUpdated       = "payment.updated"
	PaymentCaptured      = "payment.payment_captured"
	PaymentCaptureFailed = "payment.payment_capture_failed"
	RefundCreated        = "payment.payment_refund_created"
	RefundFailed         = "payment.payment_refund_failed"
)

// Aggregate type constant.
const AggregateTypePayment = "payment"

// Source identifier for events originating from this engine.
const SourcePaymentEngine = "payment-engine"

const topicPrefix = "harborpay."

// FailureData is the payload for capture and refund failure events. It
// carries the payment as it stood before the failed operation plus the
// provider-reported reason.
type FailureData struct {
	Payment *domain.Payment `json:"payment"`
	Reason  string          `json:"reason"`
}

// Bus publishes named domain events to Kafka, one topic per event name.
// It satisfies the outbox's Bus interface.
type Bus struct {
	producer *pkgkafka.Producer
	logger   *slog.Logger
}

// NewBus creates a Kafka-backed event bus. producer may be nil, in which
// case Publish is a no-op.
func NewBus(producer *pkgkafka.Producer, logger *slog.Logger) *Bus {
	return &Bus{producer: producer, logger: logger}
}

// Publish wraps the payload in the standard event envelope and sends it to
// the topic derived from the event name. Envelopes are keyed by the payment
// ID so all events for one payment stay ordered on a single partition.
func (b *Bus) Publish(ctx context.Context, eventName string, payload any) error {
	if b.producer == nil {
		return nil
	}

	ev, err := pkgkafka.NewEvent(eventName, aggregateID(payload), AggregateTypePayment, SourcePaymentEngine, payload)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventName, err)
	}

	if corrID := logger.CorrelationIDFromContext(ctx); corrID != "" {
		ev.WithCorrelationID(corrID)
	}

	topic := topicPrefix + eventName
	if err := b.producer.Publish(ctx, topic, ev); err != nil {
		return fmt.Errorf("publish %s event: %w", eventName, err)
	}

	b.logger.DebugContext(ctx, "published domain event",
		slog.String("event", eventName),
		slog.String("aggregate_id", ev.AggregateID),
	)

	return nil
}

func aggregateID(payload any) string {
	switch v := payload.(type) {
	case *domain.Payment:
		return v.ID
	case *domain.Refund:
		return v.PaymentID
	case *FailureData:
		if v.Payment != nil {
			return v.Payment.ID
		}
	}
	return ""
}
