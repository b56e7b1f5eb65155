package handler

import (
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessionModel "ballotgate/internal/session/models"
	sessionService "ballotgate/internal/session/service"
	sessionStore "ballotgate/internal/session/store"
	"ballotgate/pkg/testutil"
)

func passthrough(next http.Handler) http.Handler { return next }

func forbid(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
}

func newRouter(t *testing.T, admin Middleware) chi.Router {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	svc, err := sessionService.New(sessionStore.NewMemory(), log)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(svc, passthrough, admin, log).Register(r)
	return r
}

func TestHandler_ReadSession(t *testing.T) {
	r := newRouter(t, passthrough)

	req := testutil.NewJSONRequest(t, http.MethodGet, "/session", nil)
	rr := testutil.DoRequest(r, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var config sessionModel.Config
	testutil.DecodeJSON(t, rr, &config)
	assert.False(t, config.VotingEnabled)
	assert.False(t, config.ResultsDeclared)
	assert.Equal(t, 24*time.Hour, config.EndTime.Sub(config.StartTime))
}

func TestHandler_UpdateSession(t *testing.T) {
	t.Run("admin can reconfigure", func(t *testing.T) {
		r := newRouter(t, passthrough)
		now := time.Now().UTC()

		req := testutil.NewJSONRequest(t, http.MethodPut, "/session", sessionModel.UpdateRequest{
			StartTime:     now.Add(-time.Hour),
			EndTime:       now.Add(time.Hour),
			VotingEnabled: true,
		})
		rr := testutil.DoRequest(r, req)
		require.Equal(t, http.StatusOK, rr.Code)

		var config sessionModel.Config
		testutil.DecodeJSON(t, rr, &config)
		assert.True(t, config.VotingEnabled)
	})

	t.Run("invalid window is a validation error", func(t *testing.T) {
		r := newRouter(t, passthrough)
		now := time.Now().UTC()

		req := testutil.NewJSONRequest(t, http.MethodPut, "/session", sessionModel.UpdateRequest{
			StartTime: now,
			EndTime:   now,
		})
		rr := testutil.DoRequest(r, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		var body map[string]string
		testutil.DecodeJSON(t, rr, &body)
		assert.Equal(t, "validation_error", body["error"])
	})

	t.Run("non-admin is rejected by the guard", func(t *testing.T) {
		r := newRouter(t, forbid)

		req := testutil.NewJSONRequest(t, http.MethodPut, "/session", sessionModel.UpdateRequest{})
		rr := testutil.DoRequest(r, req)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})
}
