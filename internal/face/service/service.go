// Package service implements biometric face verification. Templates are
// embedding vectors produced client-side; the service stores one template
// per identity and compares candidates by cosine similarity.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"
	"time"

	"ballotgate/internal/audit"
	"ballotgate/internal/identity/models"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/platform/sentinel"
	"ballotgate/pkg/requestcontext"
)

// Match threshold for cosine similarity. Strictly greater than: a score of
// exactly 0.60 is a rejection.
const matchThreshold = 0.6

// Store is the identity persistence face verification needs.
type Store interface {
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	SetFaceTemplate(ctx context.Context, identityID id.IdentityID, template []float64) error
	SetFaceVerifiedAt(ctx context.Context, identityID id.IdentityID, at time.Time) error
}

// Publisher mirrors enrollment and verification events.
type Publisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Status is an identity's current verification standing.
type Status struct {
	Enrolled       bool       `json:"enrolled"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
	Fresh          bool       `json:"fresh"`
}

// VerifyResult reports the outcome of a comparison.
type VerifyResult struct {
	Similarity float64   `json:"similarity"`
	VerifiedAt time.Time `json:"verified_at"`
}

type Service struct {
	store    Store
	audit    Publisher
	freshFor time.Duration
	logger   *slog.Logger
}

func New(store Store, publisher Publisher, freshFor time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		audit:    publisher,
		freshFor: freshFor,
		logger:   logger,
	}
}

// Enroll stores the identity's face template, replacing any previous one.
// Re-enrollment invalidates nothing: the last verification timestamp is a
// property of the identity, not of a particular template.
func (s *Service) Enroll(ctx context.Context, identityID id.IdentityID, template []float64) error {
	if len(template) == 0 {
		return dErrors.New(dErrors.CodeValidation, "face template must not be empty")
	}

	if _, err := s.store.FindByID(ctx, identityID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "face enrollment unavailable")
	}

	if err := s.store.SetFaceTemplate(ctx, identityID, template); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "face enrollment unavailable")
	}

	s.audit.Emit(ctx, audit.Event{
		IdentityID:  identityID,
		Action:      audit.ActionFaceEnrolled,
		PayloadHash: templateHash(template),
		OccurredAt:  requestcontext.Now(ctx),
	})
	return nil
}

// Verify compares a candidate template against the enrolled one and, on a
// match, stamps the identity's last verification time.
func (s *Service) Verify(ctx context.Context, identityID id.IdentityID, candidate []float64) (*VerifyResult, error) {
	if len(candidate) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "face template must not be empty")
	}

	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "face verification unavailable")
	}
	if !identity.FaceRegistered || len(identity.FaceTemplate) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no face template enrolled")
	}

	sim := CosineSimilarity(identity.FaceTemplate, candidate)
	if sim <= matchThreshold {
		s.logger.InfoContext(ctx, "face verification rejected",
			"identity_id", identityID,
			"similarity", sim,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "face does not match")
	}

	now := requestcontext.Now(ctx)
	if err := s.store.SetFaceVerifiedAt(ctx, identityID, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "face verification unavailable")
	}

	s.audit.Emit(ctx, audit.Event{
		IdentityID:  identityID,
		Action:      audit.ActionFaceVerified,
		PayloadHash: templateHash(candidate),
		OccurredAt:  now,
	})
	return &VerifyResult{Similarity: sim, VerifiedAt: now}, nil
}

// Status reports enrollment and freshness for the identity.
func (s *Service) Status(ctx context.Context, identityID id.IdentityID) (*Status, error) {
	identity, err := s.store.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "face status unavailable")
	}

	status := &Status{
		Enrolled:       identity.FaceRegistered,
		LastVerifiedAt: identity.LastFaceVerifiedAt,
	}
	if identity.LastFaceVerifiedAt != nil {
		status.Fresh = s.fresh(*identity.LastFaceVerifiedAt, requestcontext.Now(ctx))
	}
	return status, nil
}

// Fresh reports whether the identity verified its face recently enough for
// a sensitive action.
func (s *Service) Fresh(ctx context.Context, identityID id.IdentityID) (bool, error) {
	status, err := s.Status(ctx, identityID)
	if err != nil {
		return false, err
	}
	return status.Fresh, nil
}

func (s *Service) fresh(verifiedAt, now time.Time) bool {
	return now.Sub(verifiedAt) <= s.freshFor
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0, never an error: a malformed
// candidate is just a non-match.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// templateHash digests a template for the audit mirror. Only the hash ever
// leaves the service: raw biometric vectors stay in the identity store.
func templateHash(template []float64) string {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, v := range template {
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}
