// Package handler exposes the session configuration endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	sessionModel "ballotgate/internal/session/models"
	"ballotgate/internal/transport/http/shared"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/requestcontext"
)

// Service defines the session operations the handler needs.
type Service interface {
	Current(ctx context.Context, now time.Time) (*sessionModel.Config, error)
	Update(ctx context.Context, req sessionModel.UpdateRequest, now time.Time) (*sessionModel.Config, error)
}

type Middleware func(http.Handler) http.Handler

type Handler struct {
	logger  *slog.Logger
	session Service
	auth    Middleware
	admin   Middleware
}

func New(session Service, auth, admin Middleware, logger *slog.Logger) *Handler {
	return &Handler{logger: logger, session: session, auth: auth, admin: admin}
}

// Register mounts the routes. Reading the config needs no auth; updating it
// is admin-only.
func (h *Handler) Register(r chi.Router) {
	r.Get("/session", h.handleRead)
	r.With(h.auth, h.admin).Put("/session", h.handleUpdate)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	config, err := h.session.Current(ctx, requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read session config",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, config)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req sessionModel.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	config, err := h.session.Update(ctx, req, requestcontext.Now(ctx))
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeValidation) {
			h.logger.ErrorContext(ctx, "failed to update session config",
				"request_id", requestcontext.RequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, config)
}
