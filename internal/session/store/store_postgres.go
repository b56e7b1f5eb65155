package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ballotgate/internal/session/models"
	"ballotgate/pkg/platform/sentinel"
)

// singletonKey is the well-known identifier of the one live configuration.
// The primary key on it makes "at most one instance" a storage guarantee
// instead of a convention.
const singletonKey = "live"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context) (*models.Config, error) {
	var config models.Config
	err := s.db.QueryRowContext(ctx, `
		SELECT start_time, end_time, voting_enabled, results_declared, updated_at
		FROM voting_session
		WHERE id = $1
	`, singletonKey).Scan(
		&config.StartTime, &config.EndTime,
		&config.VotingEnabled, &config.ResultsDeclared, &config.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get session config: %w", err)
	}
	return &config, nil
}

// Upsert writes the singleton row. Concurrent admin updates race and the
// later write wins whole.
func (s *PostgresStore) Upsert(ctx context.Context, config *models.Config) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO voting_session (id, start_time, end_time, voting_enabled, results_declared, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			voting_enabled = EXCLUDED.voting_enabled,
			results_declared = EXCLUDED.results_declared,
			updated_at = EXCLUDED.updated_at
	`, singletonKey, config.StartTime, config.EndTime,
		config.VotingEnabled, config.ResultsDeclared, config.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session config: %w", err)
	}
	return nil
}
