// Package handler exposes the candidacy workflow over HTTP. Applying is an
// authenticated route; review routes are admin only.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ballotgate/internal/identity/models"
	"ballotgate/internal/transport/http/shared"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/requestcontext"
)

// Service defines the candidacy operations the handler needs.
type Service interface {
	Apply(ctx context.Context, identityID id.IdentityID, party, manifesto string) error
	Approve(ctx context.Context, applicantID id.IdentityID) error
	Reject(ctx context.Context, applicantID id.IdentityID) error
	ListApplications(ctx context.Context) ([]models.ApplicationView, error)
}

type Middleware func(http.Handler) http.Handler

type Handler struct {
	logger    *slog.Logger
	candidacy Service
	auth      Middleware
	admin     Middleware
}

func New(candidacy Service, auth, admin Middleware, logger *slog.Logger) *Handler {
	return &Handler{
		logger:    logger,
		candidacy: candidacy,
		auth:      auth,
		admin:     admin,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.With(h.auth).Post("/candidacy/apply", h.handleApply)
	r.With(h.auth, h.admin).Get("/candidacy/applications", h.handleList)
	r.With(h.auth, h.admin).Post("/candidacy/applications/{applicantID}/approve", h.handleApprove)
	r.With(h.auth, h.admin).Post("/candidacy/applications/{applicantID}/reject", h.handleReject)
}

type applyRequest struct {
	Party     string `json:"party"`
	Manifesto string `json:"manifesto"`
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	identityID, ok := requestcontext.IdentityID(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	if err := h.candidacy.Apply(ctx, identityID, req.Party, req.Manifesto); err != nil {
		h.logger.WarnContext(ctx, "candidacy application rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{"message": "application submitted"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.candidacy.ListApplications(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"applications": views})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.candidacy.Approve, "application approved")
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.candidacy.Reject, "application rejected")
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decide func(context.Context, id.IdentityID) error, message string) {
	ctx := r.Context()

	applicantID, err := id.ParseIdentityID(chi.URLParam(r, "applicantID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid applicant id"))
		return
	}

	if err := decide(ctx, applicantID); err != nil {
		h.logger.WarnContext(ctx, "candidacy decision rejected",
			"applicant_id", applicantID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"message": message})
}
