package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"ballotgate/internal/identity/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

// PostgresStore persists identity records in PostgreSQL. Pure I/O; business
// rules live in the services. Uniqueness of email, mobile, the national-id
// hash, and the single admin row are enforced by constraints so concurrent
// registrations cannot both win.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const identityColumns = `
	id, name, age, email, mobile, address,
	national_id_hash, national_id_last4, credential_digest, role,
	verified, otp_code, otp_expires_at, has_voted,
	applicant, application_status, party, manifesto, applied_at, decided_at,
	face_template, face_registered, last_face_verified_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, identity *models.Identity) error {
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	`
	_, err := s.db.ExecContext(ctx, query,
		identity.ID.String(), identity.Name, identity.Age, identity.Email,
		identity.Mobile, identity.Address,
		identity.NationalIDHash, identity.NationalIDLast4,
		identity.CredentialDigest, identity.Role,
		identity.Verified, nullString(identity.OTPCode), nullTime(identity.OTPExpiresAt),
		identity.HasVoted,
		identity.Applicant, identity.ApplicationStatus,
		nullString(identity.Party), nullString(identity.Manifesto),
		identity.AppliedAt, identity.DecidedAt,
		pq.Array(identity.FaceTemplate), identity.FaceRegistered,
		identity.LastFaceVerifiedAt, identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create identity: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	return s.findBy(ctx, "id = $1", identityID.String())
}

func (s *PostgresStore) FindByNationalIDHash(ctx context.Context, hash string) (*models.Identity, error) {
	return s.findBy(ctx, "national_id_hash = $1", hash)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return s.findBy(ctx, "email = $1", email)
}

func (s *PostgresStore) FindByMobile(ctx context.Context, mobile string) (*models.Identity, error) {
	return s.findBy(ctx, "mobile = $1", mobile)
}

func (s *PostgresStore) AdminExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM identities WHERE role = 'admin')`,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("admin exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SetVerified(ctx context.Context, identityID id.IdentityID) error {
	return s.exec(ctx, `
		UPDATE identities
		SET verified = TRUE, otp_code = NULL, otp_expires_at = NULL
		WHERE id = $1
	`, identityID.String())
}

func (s *PostgresStore) UpdateCredential(ctx context.Context, identityID id.IdentityID, digest string) error {
	return s.exec(ctx, `
		UPDATE identities SET credential_digest = $2 WHERE id = $1
	`, identityID.String(), digest)
}

// MarkVoted is the atomic conditional flip: it sets has_voted only where it
// is currently false and reports whether a row actually changed.
func (s *PostgresStore) MarkVoted(ctx context.Context, identityID id.IdentityID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE identities SET has_voted = TRUE
		WHERE id = $1 AND has_voted = FALSE
	`, identityID.String())
	if err != nil {
		return false, fmt.Errorf("mark voted: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark voted rows affected: %w", err)
	}
	return rows > 0, nil
}

func (s *PostgresStore) UnmarkVoted(ctx context.Context, identityID id.IdentityID) error {
	return s.exec(ctx, `
		UPDATE identities SET has_voted = FALSE WHERE id = $1
	`, identityID.String())
}

func (s *PostgresStore) SetApplication(ctx context.Context, identityID id.IdentityID, party, manifesto string, appliedAt time.Time) error {
	return s.exec(ctx, `
		UPDATE identities
		SET applicant = TRUE, application_status = $2, party = $3,
		    manifesto = $4, applied_at = $5, decided_at = NULL
		WHERE id = $1
	`, identityID.String(), models.ApplicationPending, party, manifesto, appliedAt)
}

func (s *PostgresStore) SetApplicationStatus(ctx context.Context, identityID id.IdentityID, status string, decidedAt time.Time) error {
	return s.exec(ctx, `
		UPDATE identities SET application_status = $2, decided_at = $3
		WHERE id = $1
	`, identityID.String(), status, decidedAt)
}

func (s *PostgresStore) ListApplicants(ctx context.Context) ([]*models.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE applicant = TRUE
		ORDER BY applied_at DESC NULLS LAST
	`)
	if err != nil {
		return nil, fmt.Errorf("list applicants: %w", err)
	}
	defer rows.Close()

	var out []*models.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, identity)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetFaceTemplate(ctx context.Context, identityID id.IdentityID, template []float64) error {
	return s.exec(ctx, `
		UPDATE identities SET face_template = $2, face_registered = TRUE
		WHERE id = $1
	`, identityID.String(), pq.Array(template))
}

func (s *PostgresStore) SetFaceVerifiedAt(ctx context.Context, identityID id.IdentityID, at time.Time) error {
	return s.exec(ctx, `
		UPDATE identities SET last_face_verified_at = $2 WHERE id = $1
	`, identityID.String(), at)
}

func (s *PostgresStore) findBy(ctx context.Context, where string, arg any) (*models.Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE `+where, arg)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return identity, nil
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update identity: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update identity rows affected: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var (
		identity   models.Identity
		rawID      string
		otpCode    sql.NullString
		otpExpires sql.NullTime
		party      sql.NullString
		manifesto  sql.NullString
		template   pq.Float64Array
	)
	err := row.Scan(
		&rawID, &identity.Name, &identity.Age, &identity.Email,
		&identity.Mobile, &identity.Address,
		&identity.NationalIDHash, &identity.NationalIDLast4,
		&identity.CredentialDigest, &identity.Role,
		&identity.Verified, &otpCode, &otpExpires, &identity.HasVoted,
		&identity.Applicant, &identity.ApplicationStatus, &party, &manifesto,
		&identity.AppliedAt, &identity.DecidedAt,
		&template, &identity.FaceRegistered,
		&identity.LastFaceVerifiedAt, &identity.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}

	parsed, err := id.ParseIdentityID(rawID)
	if err != nil {
		return nil, fmt.Errorf("scan identity id: %w", err)
	}
	identity.ID = parsed
	identity.OTPCode = otpCode.String
	if otpExpires.Valid {
		identity.OTPExpiresAt = otpExpires.Time
	}
	identity.Party = party.String
	identity.Manifesto = manifesto.String
	identity.FaceTemplate = []float64(template)
	return &identity, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
