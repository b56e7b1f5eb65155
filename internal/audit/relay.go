package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"ballotgate/internal/platform/config"
	"ballotgate/internal/platform/metrics"
)

const relayBatchSize = 100

// producer is the slice of kgo.Client the relay uses; a fake stands in for
// it in tests.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Relay drains the outbox into the external ledger topic. It retries
// forever: pending rows stay pending until a produce succeeds.
type Relay struct {
	store    Store
	client   producer
	topic    string
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewRelay connects to the brokers and makes sure the mirror topic exists.
func NewRelay(cfg config.KafkaConfig, store Store, logger *slog.Logger, m *metrics.Metrics) (*Relay, func(), error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect audit mirror brokers: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, cfg.Topic)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("ensure audit mirror topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, nil, fmt.Errorf("ensure audit mirror topic: %w", resp.Err)
	}

	relay := &Relay{
		store:    store,
		client:   client,
		topic:    cfg.Topic,
		interval: 5 * time.Second,
		logger:   logger,
		metrics:  m,
	}
	return relay, client.Close, nil
}

// Run drains the outbox until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				// Leave the rows pending; next tick retries.
				r.logger.WarnContext(ctx, "audit mirror relay cycle failed", "error", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context) error {
	events, err := r.store.ListPending(ctx, relayBatchSize)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(map[string]any{
			"identity_id":  event.IdentityID.String(),
			"action":       event.Action,
			"payload_hash": event.PayloadHash,
			"occurred_at":  event.OccurredAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", event.ID, err)
		}
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(event.IdentityID.String()),
			Value: payload,
		})
	}

	if err := r.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}

	ids := make([]int64, len(events))
	for i, event := range events {
		ids[i] = event.ID
	}
	if err := r.store.MarkRelayed(ctx, ids, time.Now()); err != nil {
		// Produced but not marked; the next cycle re-sends. The mirror is
		// non-authoritative, so duplicates are acceptable there.
		return fmt.Errorf("mark relayed: %w", err)
	}

	if r.metrics != nil {
		r.metrics.AuditEventsRelayed.Add(float64(len(events)))
	}
	return nil
}
