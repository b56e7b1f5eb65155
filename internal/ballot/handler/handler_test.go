package handler

import (
	"context"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ballotgate/internal/ballot/models"
	ballotService "ballotgate/internal/ballot/service"
	ballotStore "ballotgate/internal/ballot/store"
	identityStore "ballotgate/internal/identity/store"
	"ballotgate/internal/platform/middleware"
	sessionModel "ballotgate/internal/session/models"
	sessionService "ballotgate/internal/session/service"
	sessionStore "ballotgate/internal/session/store"
	id "ballotgate/pkg/domain"
	"ballotgate/pkg/testutil"
)

func passthrough(next http.Handler) http.Handler { return next }

func forbid(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
}

// staticToken resolves every bearer token to one fixed identity.
type staticToken struct {
	identityID id.IdentityID
	role       string
}

func (s staticToken) ValidateToken(string) (id.IdentityID, error) { return s.identityID, nil }

func (s staticToken) RoleOf(context.Context, id.IdentityID) (string, error) { return s.role, nil }

type fixture struct {
	ballots  *ballotStore.MemoryStore
	sessions *sessionService.Service
	router   chi.Router
}

func newFixture(t *testing.T, token staticToken, admin Middleware) *fixture {
	t.Helper()
	log := slog.New(slog.DiscardHandler)

	ballots := ballotStore.NewMemory()
	sessions, err := sessionService.New(sessionStore.NewMemory(), log)
	require.NoError(t, err)

	svc := ballotService.New(identityStore.NewMemory(), ballots, sessions, log)
	optional := middleware.OptionalAuth(token, token, log)

	r := chi.NewRouter()
	New(svc, passthrough, optional, admin, log).Register(r)
	return &fixture{ballots: ballots, sessions: sessions, router: r}
}

func (f *fixture) seedCandidate(t *testing.T, party string, votes int) *models.Candidate {
	t.Helper()
	ctx := context.Background()
	ownerID := id.NewIdentityID()
	candidate := &models.Candidate{
		ID:         id.NewCandidateID(),
		IdentityID: &ownerID,
		Name:       "Candidate " + party,
		Party:      models.NormalizeParty(party),
		Age:        37,
		Manifesto:  "a pitch for " + party,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, f.ballots.CreateCandidate(ctx, candidate))
	for range votes {
		require.NoError(t, f.ballots.AppendVote(ctx, models.Vote{
			VoterID:     id.NewIdentityID(),
			CandidateID: candidate.ID,
			CastAt:      time.Now().UTC(),
		}))
	}
	return candidate
}

func (f *fixture) declareResults(t *testing.T) {
	t.Helper()
	now := time.Now().UTC()
	_, err := f.sessions.Update(context.Background(), sessionModel.UpdateRequest{
		StartTime:       now.Add(-2 * time.Hour),
		EndTime:         now.Add(-time.Hour),
		ResultsDeclared: true,
	}, now)
	require.NoError(t, err)
}

func TestHandler_PublicListing(t *testing.T) {
	f := newFixture(t, staticToken{}, forbid)
	candidate := f.seedCandidate(t, "alpha", 7)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/ballot/candidates", nil)
	rr := testutil.DoRequest(f.router, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string][]map[string]any
	testutil.DecodeJSON(t, rr, &body)
	rows := body["candidates"]
	require.Len(t, rows, 1)

	assert.Equal(t, candidate.ID.String(), rows[0]["id"])
	assert.Equal(t, candidate.Name, rows[0]["name"])
	assert.Equal(t, "alpha", rows[0]["party"])
	assert.EqualValues(t, 37, rows[0]["age"])

	// The open roster never shows the running count or the person behind
	// the candidacy.
	assert.NotContains(t, rows[0], "vote_count")
	assert.NotContains(t, rows[0], "identity_id")
	assert.NotContains(t, rows[0], "manifesto")
	assert.Len(t, rows[0], 4)
}

func TestHandler_Results(t *testing.T) {
	t.Run("anonymous read before declaration is forbidden", func(t *testing.T) {
		f := newFixture(t, staticToken{}, forbid)
		f.seedCandidate(t, "alpha", 3)

		req := testutil.NewJSONRequest(t, http.MethodGet, "/ballot/results", nil)
		rr := testutil.DoRequest(f.router, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		var body map[string]string
		testutil.DecodeJSON(t, rr, &body)
		assert.Equal(t, "forbidden", body["error"])
	})

	t.Run("anonymous read after declaration succeeds", func(t *testing.T) {
		f := newFixture(t, staticToken{}, forbid)
		f.seedCandidate(t, "alpha", 3)
		f.declareResults(t)

		req := testutil.NewJSONRequest(t, http.MethodGet, "/ballot/results", nil)
		rr := testutil.DoRequest(f.router, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var results ballotService.Results
		testutil.DecodeJSON(t, rr, &results)
		assert.True(t, results.Declared)
		assert.EqualValues(t, 3, results.TotalVotes)
	})

	t.Run("admin token reads the tally early", func(t *testing.T) {
		f := newFixture(t, staticToken{identityID: id.NewIdentityID(), role: "admin"}, forbid)
		f.seedCandidate(t, "alpha", 3)

		req := testutil.NewJSONRequest(t, http.MethodGet, "/ballot/results", nil)
		req.Header.Set("Authorization", "Bearer token")
		rr := testutil.DoRequest(f.router, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var results ballotService.Results
		testutil.DecodeJSON(t, rr, &results)
		assert.False(t, results.Declared)
		assert.EqualValues(t, 3, results.TotalVotes)
	})
}

func TestHandler_AddCandidate(t *testing.T) {
	t.Run("admin creates a roster entry", func(t *testing.T) {
		f := newFixture(t, staticToken{}, passthrough)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/ballot/candidates", candidateRequest{
			Name: "Asha Verma", Party: "Unity Front", Age: 52, Manifesto: "roads",
		})
		rr := testutil.DoRequest(f.router, req)
		require.Equal(t, http.StatusCreated, rr.Code)

		var candidate models.Candidate
		testutil.DecodeJSON(t, rr, &candidate)
		assert.Equal(t, "unity front", candidate.Party)
		assert.Nil(t, candidate.IdentityID)
	})

	t.Run("underage creation is a validation error", func(t *testing.T) {
		f := newFixture(t, staticToken{}, passthrough)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/ballot/candidates", candidateRequest{
			Name: "Too Young", Party: "Youth", Age: 24, Manifesto: "pitch",
		})
		rr := testutil.DoRequest(f.router, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var body map[string]string
		testutil.DecodeJSON(t, rr, &body)
		assert.Equal(t, "validation_error", body["error"])
	})

	t.Run("non-admin is rejected by the guard", func(t *testing.T) {
		f := newFixture(t, staticToken{}, forbid)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/ballot/candidates", candidateRequest{
			Name: "Name", Party: "Party", Age: 30, Manifesto: "pitch",
		})
		rr := testutil.DoRequest(f.router, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
