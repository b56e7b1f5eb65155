// Package postgres opens the database and owns the schema. The stores are
// pure I/O; the invariants that must survive concurrent writers live here
// as constraints: unique party, unique contact and national-id hashes, at
// most one admin row, and one vote row per voter across the whole ledger.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

func Open(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		age INT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		mobile TEXT NOT NULL UNIQUE,
		address TEXT NOT NULL DEFAULT '',
		national_id_hash TEXT NOT NULL UNIQUE,
		national_id_last4 TEXT NOT NULL,
		credential_digest TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'voter',
		verified BOOLEAN NOT NULL DEFAULT FALSE,
		otp_code TEXT,
		otp_expires_at TIMESTAMPTZ,
		has_voted BOOLEAN NOT NULL DEFAULT FALSE,
		applicant BOOLEAN NOT NULL DEFAULT FALSE,
		application_status TEXT NOT NULL DEFAULT 'none',
		party TEXT,
		manifesto TEXT,
		applied_at TIMESTAMPTZ,
		decided_at TIMESTAMPTZ,
		face_template DOUBLE PRECISION[],
		face_registered BOOLEAN NOT NULL DEFAULT FALSE,
		last_face_verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// At most one admin row, enforced where the race actually lives.
	`CREATE UNIQUE INDEX IF NOT EXISTS identities_one_admin
		ON identities (role) WHERE role = 'admin'`,
	`CREATE TABLE IF NOT EXISTS candidates (
		id UUID PRIMARY KEY,
		identity_id UUID UNIQUE REFERENCES identities (id),
		name TEXT NOT NULL,
		party TEXT NOT NULL UNIQUE,
		age INT NOT NULL CHECK (age >= 25),
		manifesto TEXT NOT NULL DEFAULT '',
		vote_count BIGINT NOT NULL DEFAULT 0 CHECK (vote_count >= 0),
		seq BIGSERIAL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// One vote per voter across the entire roster: voter_id is the key.
	`CREATE TABLE IF NOT EXISTS votes (
		voter_id UUID PRIMARY KEY REFERENCES identities (id),
		candidate_id UUID NOT NULL REFERENCES candidates (id) ON DELETE CASCADE,
		cast_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS votes_by_candidate ON votes (candidate_id, cast_at)`,
	// The session config is a singleton with a well-known key, not "the
	// first row found".
	`CREATE TABLE IF NOT EXISTS voting_session (
		id TEXT PRIMARY KEY,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		voting_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		results_declared BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_outbox (
		id BIGSERIAL PRIMARY KEY,
		identity_id UUID NOT NULL,
		action TEXT NOT NULL,
		payload_hash TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL,
		relayed_at TIMESTAMPTZ
	)`,
}

// Migrate applies the schema. Statements are idempotent so startup can run
// this unconditionally.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
