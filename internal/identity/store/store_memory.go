// Package store persists identity records. The in-memory implementation
// backs development mode and the unit suites; PostgresStore is the
// production store. Both enforce the same conditional-update semantics for
// the vote flag so services behave identically against either.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ballotgate/internal/identity/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

type MemoryStore struct {
	mu         sync.RWMutex
	identities map[id.IdentityID]*models.Identity
}

func NewMemory() *MemoryStore {
	return &MemoryStore{identities: make(map[id.IdentityID]*models.Identity)}
}

func (s *MemoryStore) Create(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.identities {
		if existing.Email == identity.Email ||
			existing.Mobile == identity.Mobile ||
			existing.NationalIDHash == identity.NationalIDHash {
			return sentinel.ErrConflict
		}
		if identity.Role == models.RoleAdmin && existing.Role == models.RoleAdmin {
			return sentinel.ErrConflict
		}
	}

	s.identities[identity.ID] = identity.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, identityID id.IdentityID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return identity.Clone(), nil
}

func (s *MemoryStore) FindByNationalIDHash(_ context.Context, hash string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if identity.NationalIDHash == hash {
			return identity.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if identity.Email == email {
			return identity.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByMobile(_ context.Context, mobile string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if identity.Mobile == mobile {
			return identity.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) AdminExists(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if identity.Role == models.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

// SetVerified flips the verification flag and clears the one-time code.
func (s *MemoryStore) SetVerified(_ context.Context, identityID id.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.Verified = true
	identity.OTPCode = ""
	identity.OTPExpiresAt = time.Time{}
	return nil
}

func (s *MemoryStore) UpdateCredential(_ context.Context, identityID id.IdentityID, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.CredentialDigest = digest
	return nil
}

// MarkVoted flips hasVoted to true only if it is currently false and
// reports whether this call performed the flip. This is the single source
// of truth for the at-most-once vote guarantee.
func (s *MemoryStore) MarkVoted(_ context.Context, identityID id.IdentityID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if identity.HasVoted {
		return false, nil
	}
	identity.HasVoted = true
	return true, nil
}

// UnmarkVoted reverts a vote flip whose ledger append failed. Compensation
// only; regular flows never call this.
func (s *MemoryStore) UnmarkVoted(_ context.Context, identityID id.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.HasVoted = false
	return nil
}

// SetApplication records a candidacy application and moves the status to
// pending.
func (s *MemoryStore) SetApplication(_ context.Context, identityID id.IdentityID, party, manifesto string, appliedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.Applicant = true
	identity.ApplicationStatus = models.ApplicationPending
	identity.Party = party
	identity.Manifesto = manifesto
	at := appliedAt
	identity.AppliedAt = &at
	identity.DecidedAt = nil
	return nil
}

// SetApplicationStatus records the decision outcome.
func (s *MemoryStore) SetApplicationStatus(_ context.Context, identityID id.IdentityID, status string, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.ApplicationStatus = status
	at := decidedAt
	identity.DecidedAt = &at
	return nil
}

// ListApplicants returns every identity that has ever applied, most recent
// application first.
func (s *MemoryStore) ListApplicants(_ context.Context) ([]*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Identity
	for _, identity := range s.identities {
		if identity.Applicant {
			out = append(out, identity.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].AppliedAt, out[j].AppliedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out, nil
}

// SetFaceTemplate overwrites any enrolled template.
func (s *MemoryStore) SetFaceTemplate(_ context.Context, identityID id.IdentityID, template []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	identity.FaceTemplate = append([]float64(nil), template...)
	identity.FaceRegistered = true
	return nil
}

func (s *MemoryStore) SetFaceVerifiedAt(_ context.Context, identityID id.IdentityID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, ok := s.identities[identityID]
	if !ok {
		return sentinel.ErrNotFound
	}
	t := at
	identity.LastFaceVerifiedAt = &t
	return nil
}
