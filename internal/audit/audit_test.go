package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "ballotgate/pkg/domain"
)

func TestPublisher_Emit(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)

	t.Run("queues the event with a timestamp", func(t *testing.T) {
		store := NewMemory()
		publisher := NewPublisher(store, log)

		publisher.Emit(ctx, Event{
			IdentityID:  id.NewIdentityID(),
			Action:      ActionFaceVerified,
			PayloadHash: "abc123",
		})

		events := store.All()
		require.Len(t, events, 1)
		assert.Equal(t, ActionFaceVerified, events[0].Action)
		assert.False(t, events[0].OccurredAt.IsZero())
		assert.Nil(t, events[0].RelayedAt)
	})

	t.Run("append failure is swallowed", func(t *testing.T) {
		publisher := NewPublisher(failingOutbox{}, log)

		// Must not panic or propagate; the primary flow goes on.
		publisher.Emit(ctx, Event{Action: ActionFaceEnrolled})
	})
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.DiscardHandler)

	queue := func(store *MemoryStore, n int) {
		for range n {
			require.NoError(t, store.Append(ctx, Event{
				IdentityID:  id.NewIdentityID(),
				Action:      ActionFaceVerified,
				PayloadHash: "hash",
				OccurredAt:  time.Now(),
			}))
		}
	}

	t.Run("produces pending events and marks them relayed", func(t *testing.T) {
		store := NewMemory()
		queue(store, 3)
		fake := &fakeProducer{}
		relay := &Relay{store: store, client: fake, topic: "audit", logger: log}

		require.NoError(t, relay.drain(ctx))
		assert.Len(t, fake.records, 3)

		var payload map[string]string
		require.NoError(t, json.Unmarshal(fake.records[0].Value, &payload))
		assert.Equal(t, ActionFaceVerified, payload["action"])
		assert.Equal(t, "hash", payload["payload_hash"])

		pending, err := store.ListPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("empty outbox produces nothing", func(t *testing.T) {
		fake := &fakeProducer{}
		relay := &Relay{store: NewMemory(), client: fake, topic: "audit", logger: log}

		require.NoError(t, relay.drain(ctx))
		assert.Empty(t, fake.records)
	})

	t.Run("produce failure leaves events pending for the next cycle", func(t *testing.T) {
		store := NewMemory()
		queue(store, 2)
		fake := &fakeProducer{err: errors.New("brokers unreachable")}
		relay := &Relay{store: store, client: fake, topic: "audit", logger: log}

		require.Error(t, relay.drain(ctx))

		pending, err := store.ListPending(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
	})
}

type fakeProducer struct {
	records []*kgo.Record
	err     error
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	var results kgo.ProduceResults
	for _, r := range rs {
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	if f.err == nil {
		f.records = append(f.records, rs...)
	}
	return results
}

type failingOutbox struct{}

func (failingOutbox) Append(context.Context, Event) error {
	return errors.New("outbox unavailable")
}

func (failingOutbox) ListPending(context.Context, int) ([]Event, error) {
	return nil, errors.New("outbox unavailable")
}

func (failingOutbox) MarkRelayed(context.Context, []int64, time.Time) error {
	return errors.New("outbox unavailable")
}
