// Package outbox stages domain events alongside an open database transaction
// and releases them to the event bus only once the transaction's fate is
// known. Events staged on the regular path are published in FIFO order after
// commit and dropped on rollback. Events staged on the failure path describe
// an outcome that is true regardless of the transaction (the gateway already
// failed), so they are published after the transaction settles either way.
package outbox

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bus publishes a named domain event. Implementations decide topic mapping
// and envelope format.
type Bus interface {
	Publish(ctx context.Context, eventName string, payload any) error
}

// StagedEvent is an event held back until its transaction settles.
type StagedEvent struct {
	Name    string
	Payload any
}

var (
	eventsStaged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_staged_total",
			Help: "Total number of events staged in the outbox",
		},
		[]string{"path"},
	)

	eventsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_flushed_total",
			Help: "Total number of staged events published after settle",
		},
	)

	eventsDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_events_discarded_total",
			Help: "Total number of staged events dropped on rollback",
		},
	)

	publishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Total number of events that failed to publish after settle",
		},
	)
)

// Outbox buffers events per transaction ID. It is safe for concurrent use
// across transactions; events within one transaction keep staging order.
type Outbox struct {
	mu       sync.Mutex
	staged   map[string][]StagedEvent
	failures map[string][]StagedEvent
	bus      Bus
	logger   *slog.Logger
}

// New creates an Outbox publishing through the given bus. A nil bus disables
// publishing, staged events are silently dropped at flush. This keeps the
// engine usable in environments without a broker, matching how the rest of
// the codebase treats a nil producer.
func New(bus Bus, logger *slog.Logger) *Outbox {
	return &Outbox{
		staged:   make(map[string][]StagedEvent),
		failures: make(map[string][]StagedEvent),
		bus:      bus,
		logger:   logger,
	}
}

// Stage appends an event to the commit-gated buffer for the transaction.
func (o *Outbox) Stage(txID, eventName string, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.staged[txID] = append(o.staged[txID], StagedEvent{Name: eventName, Payload: payload})
	eventsStaged.WithLabelValues("commit").Inc()
}

// StageFailure appends an event to the rollback-surviving buffer for the
// transaction. Use for terminal failure notifications that must reach
// subscribers even though the transaction's writes are undone.
func (o *Outbox) StageFailure(txID, eventName string, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.failures[txID] = append(o.failures[txID], StagedEvent{Name: eventName, Payload: payload})
	eventsStaged.WithLabelValues("failure").Inc()
}

// Flush publishes everything staged for the transaction in FIFO order,
// commit-gated events first, then failure events. Call after commit.
// Publishing is best effort: a bus error is logged and counted, the
// committed transaction is never unwound for it.
func (o *Outbox) Flush(ctx context.Context, txID string) {
	o.mu.Lock()
	events := o.staged[txID]
	events = append(events, o.failures[txID]...)
	delete(o.staged, txID)
	delete(o.failures, txID)
	o.mu.Unlock()

	o.publish(ctx, events)
}

// Discard drops the commit-gated buffer for the transaction. Call after
// rollback. Failure events are untouched; publish them with FlushFailures.
func (o *Outbox) Discard(txID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n := len(o.staged[txID]); n > 0 {
		eventsDiscarded.Add(float64(n))
	}
	delete(o.staged, txID)
}

// FlushFailures publishes the rollback-surviving buffer for the transaction
// in FIFO order. Call after rollback has settled.
func (o *Outbox) FlushFailures(ctx context.Context, txID string) {
	o.mu.Lock()
	events := o.failures[txID]
	delete(o.failures, txID)
	o.mu.Unlock()

	o.publish(ctx, events)
}

func (o *Outbox) publish(ctx context.Context, events []StagedEvent) {
	if o.bus == nil {
		return
	}

	for _, ev := range events {
		if err := o.bus.Publish(ctx, ev.Name, ev.Payload); err != nil {
			publishFailures.Inc()
			if o.logger != nil {
				o.logger.ErrorContext(ctx, "failed to publish staged event",
					slog.String("event", ev.Name),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		eventsFlushed.Inc()
	}
}
