// Package handler exposes face enrollment and verification over HTTP. All
// routes operate on the authenticated identity only.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	faceService "ballotgate/internal/face/service"
	"ballotgate/internal/transport/http/shared"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/requestcontext"
)

// Service defines the face operations the handler needs.
type Service interface {
	Enroll(ctx context.Context, identityID id.IdentityID, template []float64) error
	Verify(ctx context.Context, identityID id.IdentityID, candidate []float64) (*faceService.VerifyResult, error)
	Status(ctx context.Context, identityID id.IdentityID) (*faceService.Status, error)
}

type Middleware func(http.Handler) http.Handler

type Handler struct {
	logger *slog.Logger
	face   Service
	auth   Middleware
}

func New(face Service, auth Middleware, logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		face:   face,
		auth:   auth,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.With(h.auth).Post("/face/enroll", h.handleEnroll)
	r.With(h.auth).Post("/face/verify", h.handleVerify)
	r.With(h.auth).Get("/face/status", h.handleStatus)
}

type templateRequest struct {
	Template []float64 `json:"template"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID, ok := requestcontext.IdentityID(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	if err := h.face.Enroll(ctx, identityID, req.Template); err != nil {
		h.logger.WarnContext(ctx, "face enrollment rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"message": "face template enrolled"})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID, ok := requestcontext.IdentityID(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	res, err := h.face.Verify(ctx, identityID, req.Template)
	if err != nil {
		h.logger.WarnContext(ctx, "face verification rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID, ok := requestcontext.IdentityID(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	status, err := h.face.Status(ctx, identityID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, status)
}
