package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"ballotgate/internal/audit"
	"ballotgate/internal/identity/models"
	identityStore "ballotgate/internal/identity/store"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/requestcontext"
)

type FaceServiceSuite struct {
	suite.Suite
	store   *identityStore.MemoryStore
	outbox  *audit.MemoryStore
	service *Service
	now     time.Time
	ctx     context.Context
}

func TestFaceServiceSuite(t *testing.T) {
	suite.Run(t, new(FaceServiceSuite))
}

func (s *FaceServiceSuite) SetupTest() {
	log := slog.New(slog.DiscardHandler)
	s.store = identityStore.NewMemory()
	s.outbox = audit.NewMemory()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.service = New(s.store, audit.NewPublisher(s.outbox, log), 5*time.Minute, log)
}

func (s *FaceServiceSuite) newIdentity() *models.Identity {
	identity := &models.Identity{
		ID:                id.NewIdentityID(),
		Name:              "Dev Narayan",
		Age:               29,
		Email:             "dev@example.com",
		Mobile:            "9200000001",
		NationalIDHash:    "hash-dev",
		Role:              models.RoleVoter,
		Verified:          true,
		ApplicationStatus: models.ApplicationNone,
	}
	s.Require().NoError(s.store.Create(s.ctx, identity))
	return identity
}

func (s *FaceServiceSuite) TestEnroll() {
	identity := s.newIdentity()

	s.Run("rejects empty template", func() {
		err := s.service.Enroll(s.ctx, identity.ID, nil)
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("stores the template and mirrors the event", func() {
		s.Require().NoError(s.service.Enroll(s.ctx, identity.ID, []float64{0.1, 0.2, 0.3}))

		stored, err := s.store.FindByID(s.ctx, identity.ID)
		s.Require().NoError(err)
		s.True(stored.FaceRegistered)
		s.Equal([]float64{0.1, 0.2, 0.3}, stored.FaceTemplate)

		events := s.outbox.All()
		s.Require().Len(events, 1)
		s.Equal(audit.ActionFaceEnrolled, events[0].Action)
		s.NotEmpty(events[0].PayloadHash)
	})

	s.Run("re-enrollment replaces the template", func() {
		s.Require().NoError(s.service.Enroll(s.ctx, identity.ID, []float64{0.9, 0.8, 0.7}))

		stored, err := s.store.FindByID(s.ctx, identity.ID)
		s.Require().NoError(err)
		s.Equal([]float64{0.9, 0.8, 0.7}, stored.FaceTemplate)
	})

	s.Run("unknown identity", func() {
		err := s.service.Enroll(s.ctx, id.NewIdentityID(), []float64{0.1})
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *FaceServiceSuite) TestVerify() {
	identity := s.newIdentity()

	s.Run("verification without enrollment", func() {
		_, err := s.service.Verify(s.ctx, identity.ID, []float64{1, 0, 0})
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "no face template")
	})

	s.Require().NoError(s.service.Enroll(s.ctx, identity.ID, []float64{1, 0, 0}))

	s.Run("identical template verifies and stamps the identity", func() {
		res, err := s.service.Verify(s.ctx, identity.ID, []float64{1, 0, 0})
		s.Require().NoError(err)
		s.InDelta(1.0, res.Similarity, 1e-9)
		s.Equal(s.now, res.VerifiedAt)

		stored, err := s.store.FindByID(s.ctx, identity.ID)
		s.Require().NoError(err)
		s.Require().NotNil(stored.LastFaceVerifiedAt)
		s.Equal(s.now, *stored.LastFaceVerifiedAt)
	})

	s.Run("orthogonal template does not match", func() {
		_, err := s.service.Verify(s.ctx, identity.ID, []float64{0, 1, 0})
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("similarity exactly at the threshold is a rejection", func() {
		// dot=3, norms 1 and 5: similarity is exactly 3/5.
		_, err := s.service.Verify(s.ctx, identity.ID, []float64{3, 4, 0})
		s.Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("match above the threshold passes", func() {
		_, err := s.service.Verify(s.ctx, identity.ID, []float64{0.9, 0.1, 0})
		s.NoError(err)
	})
}

func (s *FaceServiceSuite) TestStatusAndFreshness() {
	identity := s.newIdentity()

	s.Run("unenrolled status", func() {
		status, err := s.service.Status(s.ctx, identity.ID)
		s.Require().NoError(err)
		s.False(status.Enrolled)
		s.False(status.Fresh)
		s.Nil(status.LastVerifiedAt)
	})

	s.Require().NoError(s.service.Enroll(s.ctx, identity.ID, []float64{1, 0}))
	_, err := s.service.Verify(s.ctx, identity.ID, []float64{1, 0})
	s.Require().NoError(err)

	s.Run("fresh within the window, boundary inclusive", func() {
		for _, offset := range []time.Duration{0, time.Minute, 5 * time.Minute} {
			later := requestcontext.WithTime(context.Background(), s.now.Add(offset))
			fresh, err := s.service.Fresh(later, identity.ID)
			s.Require().NoError(err)
			s.True(fresh)
		}
	})

	s.Run("stale past the window", func() {
		later := requestcontext.WithTime(context.Background(), s.now.Add(5*time.Minute+time.Second))
		fresh, err := s.service.Fresh(later, identity.ID)
		s.Require().NoError(err)
		s.False(fresh)
	})
}

func TestCosineSimilarity(t *testing.T) {
	t.Run("identical vectors", func(t *testing.T) {
		assert.InDelta(t, 1.0, CosineSimilarity([]float64{0.3, 0.5, 0.2}, []float64{0.3, 0.5, 0.2}), 1e-9)
	})

	t.Run("opposite vectors", func(t *testing.T) {
		assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 2}, []float64{-1, -2}), 1e-9)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	})

	t.Run("scale invariant", func(t *testing.T) {
		a := []float64{0.2, 0.4, 0.6}
		b := []float64{2, 4, 6}
		assert.InDelta(t, 1.0, CosineSimilarity(a, b), 1e-9)
	})

	t.Run("mismatched lengths score zero", func(t *testing.T) {
		assert.Zero(t, CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
	})

	t.Run("zero vectors score zero", func(t *testing.T) {
		assert.Zero(t, CosineSimilarity([]float64{0, 0}, []float64{1, 2}))
	})
}
