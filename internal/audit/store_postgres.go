package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	id "ballotgate/pkg/domain"
)

// PostgresStore is the durable outbox. Rows stay until the relay marks them
// relayed, so a mirror outage loses nothing.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_outbox (identity_id, action, payload_hash, occurred_at)
		VALUES ($1, $2, $3, $4)
	`, event.IdentityID.String(), event.Action, event.PayloadHash, event.OccurredAt)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, identity_id, action, payload_hash, occurred_at
		FROM audit_outbox
		WHERE relayed_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event Event
			rawID string
		)
		if err := rows.Scan(&event.ID, &rawID, &event.Action, &event.PayloadHash, &event.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		identityID, err := id.ParseIdentityID(rawID)
		if err != nil {
			return nil, fmt.Errorf("scan audit identity id: %w", err)
		}
		event.IdentityID = identityID
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRelayed(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit_outbox SET relayed_at = $2 WHERE id = ANY($1)
	`, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("mark audit events relayed: %w", err)
	}
	return nil
}
