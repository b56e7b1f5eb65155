package audit

import (
	"context"
	"log/slog"
	"time"

	"ballotgate/internal/platform/metrics"
)

// Store is the durable outbox behind the publisher and the relay.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListPending(ctx context.Context, limit int) ([]Event, error)
	MarkRelayed(ctx context.Context, ids []int64, at time.Time) error
}

// Publisher appends mirror events to the outbox. An append failure is
// logged and counted, never propagated. The dropped-events counter is the
// operator's warning channel.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Publisher)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func NewPublisher(store Store, logger *slog.Logger, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit queues one event for the mirror.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := p.store.Append(ctx, event); err != nil {
		p.logger.WarnContext(ctx, "audit mirror event dropped",
			"action", event.Action,
			"identity_id", event.IdentityID,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.AuditEventsDropped.Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.AuditEventsQueued.Inc()
	}
}
