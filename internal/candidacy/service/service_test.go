package service

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	ballotStore "ballotgate/internal/ballot/store"
	"ballotgate/internal/identity/models"
	identityStore "ballotgate/internal/identity/store"
	sessionModel "ballotgate/internal/session/models"
	sessionService "ballotgate/internal/session/service"
	sessionStore "ballotgate/internal/session/store"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
)

type CandidacyServiceSuite struct {
	suite.Suite
	identities *identityStore.MemoryStore
	ballots    *ballotStore.MemoryStore
	sessions   *sessionService.Service
	service    *Service
	now        time.Time
}

func TestCandidacyServiceSuite(t *testing.T) {
	suite.Run(t, new(CandidacyServiceSuite))
}

func (s *CandidacyServiceSuite) SetupTest() {
	log := slog.New(slog.DiscardHandler)
	s.identities = identityStore.NewMemory()
	s.ballots = ballotStore.NewMemory()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var err error
	s.sessions, err = sessionService.New(sessionStore.NewMemory(), log)
	s.Require().NoError(err)

	s.service = New(s.identities, s.ballots, s.sessions, log)
}

func (s *CandidacyServiceSuite) newVoter(email, mobile string) *models.Identity {
	identity := &models.Identity{
		ID:                id.NewIdentityID(),
		Name:              "Ravi Kumar",
		Age:               40,
		Email:             email,
		Mobile:            mobile,
		NationalIDHash:    "hash-" + email,
		NationalIDLast4:   "1234",
		Role:              models.RoleVoter,
		Verified:          true,
		ApplicationStatus: models.ApplicationNone,
		CreatedAt:         s.now,
	}
	s.Require().NoError(s.identities.Create(context.Background(), identity))
	return identity
}

func (s *CandidacyServiceSuite) lockSession() {
	_, err := s.sessions.Update(context.Background(), sessionModel.UpdateRequest{
		StartTime:     s.now.Add(-time.Hour),
		EndTime:       s.now.Add(time.Hour),
		VotingEnabled: true,
	}, s.now)
	s.Require().NoError(err)
}

func (s *CandidacyServiceSuite) TestApply() {
	ctx := context.Background()

	s.Run("requires party and manifesto", func() {
		voter := s.newVoter("a@example.com", "9000000001")
		err := s.service.Apply(ctx, voter.ID, "", "")
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejects underage applicant", func() {
		young := &models.Identity{
			ID: id.NewIdentityID(), Name: "Young", Age: 24,
			Email: "young@example.com", Mobile: "9000000099",
			NationalIDHash: "hash-young", Role: models.RoleVoter,
			ApplicationStatus: models.ApplicationNone,
		}
		s.Require().NoError(s.identities.Create(ctx, young))

		err := s.service.Apply(ctx, young.ID, "Green Party", "A cleaner city")
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "25")
	})

	s.Run("admin cannot apply", func() {
		admin := &models.Identity{
			ID: id.NewIdentityID(), Name: "Admin", Age: 45,
			Email: "admin@example.com", Mobile: "9000000003",
			NationalIDHash: "hash-admin", Role: models.RoleAdmin,
			ApplicationStatus: models.ApplicationNone,
		}
		s.Require().NoError(s.identities.Create(ctx, admin))

		err := s.service.Apply(ctx, admin.ID, "Green Party", "A cleaner city")
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("successful application is pending with normalized party", func() {
		voter := s.newVoter("c@example.com", "9000000004")
		s.Require().NoError(s.service.Apply(ctx, voter.ID, "  Green PARTY ", "A cleaner city"))

		stored, err := s.identities.FindByID(ctx, voter.ID)
		s.Require().NoError(err)
		s.Equal(models.ApplicationPending, stored.ApplicationStatus)
		s.Equal("green party", stored.Party)
		s.NotNil(stored.AppliedAt)
	})

	s.Run("pending applicant cannot apply again", func() {
		voter := s.newVoter("d@example.com", "9000000005")
		s.Require().NoError(s.service.Apply(ctx, voter.ID, "Blue Party", "Better transit"))

		err := s.service.Apply(ctx, voter.ID, "Red Party", "Different pitch")
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("re-applying with a variant of the own party reports the pending application", func() {
		voter := s.newVoter("d2@example.com", "9000000008")
		s.Require().NoError(s.service.Apply(ctx, voter.ID, "BJP", "First pitch"))

		err := s.service.Apply(ctx, voter.ID, " bjp ", "Second pitch")
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.ErrorContains(err, "application already submitted")
	})

	s.Run("voter who already voted cannot apply", func() {
		voter := s.newVoter("e@example.com", "9000000006")
		flipped, err := s.identities.MarkVoted(ctx, voter.ID)
		s.Require().NoError(err)
		s.Require().True(flipped)

		err = s.service.Apply(ctx, voter.ID, "Teal Party", "Something new")
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("locked session blocks applying", func() {
		voter := s.newVoter("f@example.com", "9000000007")
		s.lockSession()

		err := s.service.Apply(ctx, voter.ID, "Orange Party", "A manifesto")
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeSessionLocked))
	})
}

func (s *CandidacyServiceSuite) TestApply_PartyExclusivity() {
	ctx := context.Background()

	first := s.newVoter("first@example.com", "9000000010")
	s.Require().NoError(s.service.Apply(ctx, first.ID, "Green Party", "First pitch"))
	s.Require().NoError(s.service.Approve(ctx, first.ID))

	second := s.newVoter("second@example.com", "9000000011")
	err := s.service.Apply(ctx, second.ID, "green party", "Second pitch")
	s.Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	s.Contains(err.Error(), "party")
}

func (s *CandidacyServiceSuite) TestApproveAndReject() {
	ctx := context.Background()

	s.Run("approve admits the applicant to the roster", func() {
		voter := s.newVoter("g@example.com", "9000000020")
		s.Require().NoError(s.service.Apply(ctx, voter.ID, "Purple Party", "Pitch"))
		s.Require().NoError(s.service.Approve(ctx, voter.ID))

		stored, err := s.identities.FindByID(ctx, voter.ID)
		s.Require().NoError(err)
		s.Equal(models.ApplicationApproved, stored.ApplicationStatus)
		s.NotNil(stored.DecidedAt)

		candidates, err := s.ballots.ListCandidates(ctx)
		s.Require().NoError(err)
		s.Require().Len(candidates, 1)
		s.Equal("purple party", candidates[0].Party)
		s.Require().NotNil(candidates[0].IdentityID)
		s.Equal(voter.ID, *candidates[0].IdentityID)
		s.Equal(voter.Age, candidates[0].Age)
	})

	s.Run("approval is terminal", func() {
		voter := s.newVoter("h@example.com", "9000000021")
		s.Require().NoError(s.service.Apply(ctx, voter.ID, "Silver Party", "Pitch"))
		s.Require().NoError(s.service.Approve(ctx, voter.ID))

		err := s.service.Approve(ctx, voter.ID)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Contains(err.Error(), "already processed")

		err = s.service.Reject(ctx, voter.ID)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejected applicant may apply again", func() {
		voter := s.newVoter("i@example.com", "9000000022")
		s.Require().NoError(s.service.Apply(ctx, voter.ID, "Gold Party", "Pitch one"))
		s.Require().NoError(s.service.Reject(ctx, voter.ID))

		stored, err := s.identities.FindByID(ctx, voter.ID)
		s.Require().NoError(err)
		s.Equal(models.ApplicationRejected, stored.ApplicationStatus)

		s.Require().NoError(s.service.Apply(ctx, voter.ID, "Gold Party", "Pitch two"))
		stored, err = s.identities.FindByID(ctx, voter.ID)
		s.Require().NoError(err)
		s.Equal(models.ApplicationPending, stored.ApplicationStatus)
	})

	s.Run("unknown applicant", func() {
		err := s.service.Approve(ctx, id.NewIdentityID())
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// TestApprove_ConcurrentSameParty exercises the race where two pending
// applications name the same party: exactly one approval wins, the loser
// surfaces a conflict and stays pending.
func (s *CandidacyServiceSuite) TestApprove_ConcurrentSameParty() {
	ctx := context.Background()

	first := s.newVoter("race1@example.com", "9000000030")
	second := s.newVoter("race2@example.com", "9000000031")
	s.Require().NoError(s.service.Apply(ctx, first.ID, "Contested Party", "Pitch"))
	s.Require().NoError(s.service.Apply(ctx, second.ID, "Contested Party", "Pitch"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, applicant := range []id.IdentityID{first.ID, second.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.service.Approve(ctx, applicant)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeConflict))
			lost++
		}
	}
	s.Equal(1, won)
	s.Equal(1, lost)

	candidates, err := s.ballots.ListCandidates(ctx)
	s.Require().NoError(err)
	s.Len(candidates, 1)
}

func (s *CandidacyServiceSuite) TestListApplications() {
	ctx := context.Background()

	first := s.newVoter("list1@example.com", "9000000040")
	second := s.newVoter("list2@example.com", "9000000041")
	s.Require().NoError(s.service.Apply(ctx, first.ID, "Party One", "Pitch"))
	s.Require().NoError(s.service.Apply(ctx, second.ID, "Party Two", "Pitch"))

	views, err := s.service.ListApplications(ctx)
	s.Require().NoError(err)
	s.Len(views, 2)
	for _, view := range views {
		s.Equal(models.ApplicationPending, view.Status)
		s.NotEmpty(view.Party)
	}
}
