package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ballotgate/internal/ballot/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

// PostgresStore persists the roster and the ledger. Party exclusivity and
// one-vote-per-voter are constraint-backed; the store maps violations to
// sentinel errors.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const candidateColumns = `id, identity_id, name, party, age, manifesto, vote_count, seq, created_at`

func (s *PostgresStore) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO candidates (id, identity_id, name, party, age, manifesto, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq`,
		candidate.ID, candidate.IdentityID, candidate.Name, candidate.Party,
		candidate.Age, candidate.Manifesto, candidate.CreatedAt,
	).Scan(&candidate.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create candidate: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates WHERE id = $1`, candidateID)
	return scanCandidate(row)
}

func (s *PostgresStore) PartyTaken(ctx context.Context, party string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM candidates WHERE party = $1)`, party).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check party: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) UpdateCandidate(ctx context.Context, candidate *models.Candidate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates SET name = $2, party = $3, age = $4, manifesto = $5 WHERE id = $1`,
		candidate.ID, candidate.Name, candidate.Party, candidate.Age, candidate.Manifesto)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update candidate: %w", err)
	}
	return requireRow(res, "update candidate")
}

func (s *PostgresStore) DeleteCandidate(ctx context.Context, candidateID id.CandidateID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE id = $1`, candidateID)
	if err != nil {
		return fmt.Errorf("delete candidate: %w", err)
	}
	return requireRow(res, "delete candidate")
}

func (s *PostgresStore) ListCandidates(ctx context.Context) ([]*models.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+candidateColumns+` FROM candidates ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []*models.Candidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, candidate)
	}
	return out, rows.Err()
}

// AppendVote inserts the ledger entry and bumps the candidate's count in
// one transaction. The votes primary key rejects a second entry for the
// same voter.
func (s *PostgresStore) AppendVote(ctx context.Context, vote models.Vote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append vote: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO votes (voter_id, candidate_id, cast_at) VALUES ($1, $2, $3)`,
		vote.VoterID, vote.CandidateID, vote.CastAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("append vote: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE candidates SET vote_count = vote_count + 1 WHERE id = $1`, vote.CandidateID)
	if err != nil {
		return fmt.Errorf("append vote: %w", err)
	}
	if err := requireRow(res, "append vote"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append vote: %w", err)
	}
	return nil
}

func (s *PostgresStore) Tally(ctx context.Context) ([]models.TallyRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, party, vote_count
		FROM candidates
		ORDER BY vote_count DESC, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("tally: %w", err)
	}
	defer rows.Close()

	var out []models.TallyRow
	for rows.Next() {
		var row models.TallyRow
		if err := rows.Scan(&row.CandidateID, &row.Name, &row.Party, &row.VoteCount); err != nil {
			return nil, fmt.Errorf("tally: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (*models.Candidate, error) {
	var (
		candidate  models.Candidate
		identityID sql.NullString
	)
	err := row.Scan(
		&candidate.ID, &identityID, &candidate.Name, &candidate.Party, &candidate.Age,
		&candidate.Manifesto, &candidate.VoteCount, &candidate.Seq, &candidate.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan candidate: %w", err)
	}
	if identityID.Valid {
		parsed, err := id.ParseIdentityID(identityID.String)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		candidate.IdentityID = &parsed
	}
	return &candidate, nil
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
