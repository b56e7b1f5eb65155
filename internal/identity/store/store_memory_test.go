package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballotgate/internal/identity/models"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/platform/sentinel"
)

func newIdentity(email, mobile, hash string) *models.Identity {
	return &models.Identity{
		ID:                id.NewIdentityID(),
		Name:              "Test",
		Age:               30,
		Email:             email,
		Mobile:            mobile,
		NationalIDHash:    hash,
		Role:              models.RoleVoter,
		ApplicationStatus: models.ApplicationNone,
		CreatedAt:         time.Now(),
	}
}

func TestMemoryStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate email conflicts", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.Create(ctx, newIdentity("a@x.com", "1111111111", "h1")))
		assert.ErrorIs(t, s.Create(ctx, newIdentity("a@x.com", "2222222222", "h2")), sentinel.ErrConflict)
	})

	t.Run("duplicate national id hash conflicts", func(t *testing.T) {
		s := NewMemory()
		require.NoError(t, s.Create(ctx, newIdentity("a@x.com", "1111111111", "h1")))
		assert.ErrorIs(t, s.Create(ctx, newIdentity("b@x.com", "2222222222", "h1")), sentinel.ErrConflict)
	})

	t.Run("second admin conflicts", func(t *testing.T) {
		s := NewMemory()
		first := newIdentity("a@x.com", "1111111111", "h1")
		first.Role = models.RoleAdmin
		require.NoError(t, s.Create(ctx, first))

		second := newIdentity("b@x.com", "2222222222", "h2")
		second.Role = models.RoleAdmin
		assert.ErrorIs(t, s.Create(ctx, second), sentinel.ErrConflict)

		exists, err := s.AdminExists(ctx)
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestMemoryStore_MarkVoted(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	identity := newIdentity("a@x.com", "1111111111", "h1")
	require.NoError(t, s.Create(ctx, identity))

	t.Run("unknown identity", func(t *testing.T) {
		_, err := s.MarkVoted(ctx, id.NewIdentityID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("exactly one concurrent flip wins", func(t *testing.T) {
		const goroutines = 32
		var wg sync.WaitGroup
		flips := make([]bool, goroutines)
		for i := range goroutines {
			wg.Add(1)
			go func() {
				defer wg.Done()
				flipped, err := s.MarkVoted(ctx, identity.ID)
				assert.NoError(t, err)
				flips[i] = flipped
			}()
		}
		wg.Wait()

		var count int
		for _, flipped := range flips {
			if flipped {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("unmark makes the ballot claimable again", func(t *testing.T) {
		require.NoError(t, s.UnmarkVoted(ctx, identity.ID))
		flipped, err := s.MarkVoted(ctx, identity.ID)
		require.NoError(t, err)
		assert.True(t, flipped)
	})
}

func TestMemoryStore_HandsOutCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	identity := newIdentity("a@x.com", "1111111111", "h1")
	identity.FaceTemplate = []float64{0.5}
	require.NoError(t, s.Create(ctx, identity))

	found, err := s.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	found.Email = "mutated@x.com"
	found.FaceTemplate[0] = 99

	again, err := s.FindByID(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", again.Email)
	assert.Equal(t, 0.5, again.FaceTemplate[0])
}
