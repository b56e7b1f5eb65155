//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ballotgate/internal/ballot/models"
	"ballotgate/internal/ballot/store"
	identityModel "ballotgate/internal/identity/models"
	identityStore "ballotgate/internal/identity/store"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
	"ballotgate/pkg/testutil/containers"
)

type BallotPostgresSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	store      *store.PostgresStore
	identities *identityStore.PostgresStore
}

func TestBallotPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(BallotPostgresSuite))
}

func (s *BallotPostgresSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.identities = identityStore.NewPostgres(s.postgres.DB)
}

func (s *BallotPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func (s *BallotPostgresSuite) newIdentity(suffix string) *identityModel.Identity {
	identity := &identityModel.Identity{
		ID:                id.NewIdentityID(),
		Name:              "Voter " + suffix,
		Age:               30,
		Email:             suffix + "@example.com",
		Mobile:            "91000" + suffix,
		NationalIDHash:    "hash-" + suffix,
		NationalIDLast4:   "5678",
		CredentialDigest:  "$2a$10$digest",
		Role:              identityModel.RoleVoter,
		ApplicationStatus: identityModel.ApplicationNone,
		CreatedAt:         time.Now().UTC(),
	}
	s.Require().NoError(s.identities.Create(context.Background(), identity))
	return identity
}

func (s *BallotPostgresSuite) newCandidate(party string) *models.Candidate {
	owner := s.newIdentity("owner-" + party)
	candidate := &models.Candidate{
		ID:         id.NewCandidateID(),
		IdentityID: &owner.ID,
		Name:       "Candidate " + party,
		Party:      party,
		Age:        45,
		CreatedAt:  time.Now().UTC(),
	}
	s.Require().NoError(s.store.CreateCandidate(context.Background(), candidate))
	return candidate
}

// TestCreateCandidate_ConcurrentSameParty verifies the unique constraint on
// party: of many concurrent admissions exactly one wins.
func (s *BallotPostgresSuite) TestCreateCandidate_ConcurrentSameParty() {
	ctx := context.Background()
	const goroutines = 20

	owners := make([]*identityModel.Identity, goroutines)
	for i := range owners {
		owners[i] = s.newIdentity(fmt.Sprintf("race-%02d", i))
	}

	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			err := s.store.CreateCandidate(ctx, &models.Candidate{
				ID:         id.NewCandidateID(),
				IdentityID: &owners[n].ID,
				Name:       "Racer",
				Party:      "contested party",
				Age:        45,
				CreatedAt:  time.Now().UTC(),
			})
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s.EqualValues(1, successes.Load())
	s.EqualValues(goroutines-1, conflicts.Load())
}

func (s *BallotPostgresSuite) TestAppendVote() {
	ctx := context.Background()
	candidate := s.newCandidate("green party")
	voter := s.newIdentity("00001")

	s.Require().NoError(s.store.AppendVote(ctx, models.Vote{
		VoterID:     voter.ID,
		CandidateID: candidate.ID,
		CastAt:      time.Now().UTC(),
	}))

	found, err := s.store.FindCandidate(ctx, candidate.ID)
	s.Require().NoError(err)
	s.EqualValues(1, found.VoteCount)

	// Second ledger entry for the same voter hits the primary key.
	err = s.store.AppendVote(ctx, models.Vote{
		VoterID:     voter.ID,
		CandidateID: candidate.ID,
		CastAt:      time.Now().UTC(),
	})
	s.ErrorIs(err, sentinel.ErrConflict)

	found, err = s.store.FindCandidate(ctx, candidate.ID)
	s.Require().NoError(err)
	s.EqualValues(1, found.VoteCount, "failed append must not change the count")
}

func (s *BallotPostgresSuite) TestTallyOrdering() {
	ctx := context.Background()
	first := s.newCandidate("party one")
	second := s.newCandidate("party two")
	third := s.newCandidate("party three")

	for i, candidateID := range []id.CandidateID{second.ID, second.ID, third.ID} {
		voter := s.newIdentity(fmt.Sprintf("tally-%02d", i))
		s.Require().NoError(s.store.AppendVote(ctx, models.Vote{
			VoterID:     voter.ID,
			CandidateID: candidateID,
			CastAt:      time.Now().UTC(),
		}))
	}

	rows, err := s.store.Tally(ctx)
	s.Require().NoError(err)
	s.Require().Len(rows, 3)
	s.Equal(second.ID, rows[0].CandidateID)
	s.Equal(third.ID, rows[1].CandidateID)
	s.Equal(first.ID, rows[2].CandidateID)
}

func (s *BallotPostgresSuite) TestUpdateAndDelete() {
	ctx := context.Background()
	candidate := s.newCandidate("editable party")
	other := s.newCandidate("occupied party")

	candidate.Party = "occupied party"
	s.ErrorIs(s.store.UpdateCandidate(ctx, candidate), sentinel.ErrConflict)

	candidate.Party = "renamed party"
	candidate.Name = "Renamed"
	s.Require().NoError(s.store.UpdateCandidate(ctx, candidate))

	found, err := s.store.FindCandidate(ctx, candidate.ID)
	s.Require().NoError(err)
	s.Equal("renamed party", found.Party)
	s.Equal("Renamed", found.Name)

	s.Require().NoError(s.store.DeleteCandidate(ctx, other.ID))
	_, err = s.store.FindCandidate(ctx, other.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.DeleteCandidate(ctx, other.ID), sentinel.ErrNotFound)
}

// Admin-entered candidates have no identity behind them; the column is
// null and must come back as a nil pointer.
func (s *BallotPostgresSuite) TestCandidateWithoutIdentity() {
	ctx := context.Background()

	candidate := &models.Candidate{
		ID:        id.NewCandidateID(),
		Name:      "Direct Entry",
		Party:     "direct party",
		Age:       52,
		Manifesto: "roads",
		CreatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.store.CreateCandidate(ctx, candidate))

	found, err := s.store.FindCandidate(ctx, candidate.ID)
	s.Require().NoError(err)
	s.Nil(found.IdentityID)
	s.Equal(52, found.Age)

	// A second identity-free candidate must not trip the identity unique
	// constraint.
	s.Require().NoError(s.store.CreateCandidate(ctx, &models.Candidate{
		ID: id.NewCandidateID(), Name: "Another", Party: "another party",
		Age: 40, CreatedAt: time.Now().UTC(),
	}))
}
