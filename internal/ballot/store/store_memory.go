package store

import (
	"context"
	"sort"
	"sync"

	"ballotgate/internal/ballot/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

// MemoryStore is an in-memory roster and ledger for tests and local runs.
type MemoryStore struct {
	mu         sync.RWMutex
	candidates map[id.CandidateID]*models.Candidate
	votes      map[id.IdentityID]models.Vote
	nextSeq    int64
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		candidates: make(map[id.CandidateID]*models.Candidate),
		votes:      make(map[id.IdentityID]models.Vote),
	}
}

// CreateCandidate admits a candidate to the roster. The party slot is
// claimed atomically under the store lock; a taken party is a conflict.
func (s *MemoryStore) CreateCandidate(ctx context.Context, candidate *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.candidates {
		if existing.Party == candidate.Party {
			return sentinel.ErrConflict
		}
		if existing.IdentityID != nil && candidate.IdentityID != nil &&
			*existing.IdentityID == *candidate.IdentityID {
			return sentinel.ErrConflict
		}
	}

	s.nextSeq++
	candidate.Seq = s.nextSeq
	s.candidates[candidate.ID] = candidate.Clone()
	return nil
}

func (s *MemoryStore) FindCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidate, ok := s.candidates[candidateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return candidate.Clone(), nil
}

func (s *MemoryStore) PartyTaken(ctx context.Context, party string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, existing := range s.candidates {
		if existing.Party == party {
			return true, nil
		}
	}
	return false, nil
}

// UpdateCandidate edits a roster entry. Moving onto another candidate's
// party is a conflict.
func (s *MemoryStore) UpdateCandidate(ctx context.Context, candidate *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.candidates[candidate.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for otherID, other := range s.candidates {
		if otherID != candidate.ID && other.Party == candidate.Party {
			return sentinel.ErrConflict
		}
	}

	existing.Name = candidate.Name
	existing.Party = candidate.Party
	existing.Age = candidate.Age
	existing.Manifesto = candidate.Manifesto
	return nil
}

// DeleteCandidate removes a roster entry and its ledger entries.
func (s *MemoryStore) DeleteCandidate(ctx context.Context, candidateID id.CandidateID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[candidateID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.candidates, candidateID)
	for voterID, vote := range s.votes {
		if vote.CandidateID == candidateID {
			delete(s.votes, voterID)
		}
	}
	return nil
}

func (s *MemoryStore) ListCandidates(ctx context.Context) ([]*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Candidate, 0, len(s.candidates))
	for _, candidate := range s.candidates {
		out = append(out, candidate.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// AppendVote records a ledger entry and increments the candidate's count
// in one step. A second vote from the same voter is a conflict.
func (s *MemoryStore) AppendVote(ctx context.Context, vote models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.votes[vote.VoterID]; ok {
		return sentinel.ErrConflict
	}
	candidate, ok := s.candidates[vote.CandidateID]
	if !ok {
		return sentinel.ErrNotFound
	}

	s.votes[vote.VoterID] = vote
	candidate.VoteCount++
	return nil
}

// Tally returns all candidates ordered by vote count descending, roster
// admission order breaking ties.
func (s *MemoryStore) Tally(ctx context.Context) ([]models.TallyRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]*models.Candidate, 0, len(s.candidates))
	for _, candidate := range s.candidates {
		candidates = append(candidates, candidate)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].VoteCount != candidates[j].VoteCount {
			return candidates[i].VoteCount > candidates[j].VoteCount
		}
		return candidates[i].Seq < candidates[j].Seq
	})

	rows := make([]models.TallyRow, 0, len(candidates))
	for _, candidate := range candidates {
		rows = append(rows, models.TallyRow{
			CandidateID: candidate.ID,
			Name:        candidate.Name,
			Party:       candidate.Party,
			VoteCount:   candidate.VoteCount,
		})
	}
	return rows, nil
}
