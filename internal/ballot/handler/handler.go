// Package handler exposes voting, the candidate roster, and results over
// HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ballotgate/internal/ballot/models"
	ballotService "ballotgate/internal/ballot/service"
	"ballotgate/internal/transport/http/shared"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/requestcontext"
)

// Service defines the ballot operations the handler needs.
type Service interface {
	CastVote(ctx context.Context, voterID id.IdentityID, candidateID id.CandidateID) error
	ListCandidates(ctx context.Context) ([]models.CandidateSummary, error)
	AddCandidate(ctx context.Context, input ballotService.CandidateInput) (*models.Candidate, error)
	UpdateCandidate(ctx context.Context, candidateID id.CandidateID, input ballotService.CandidateInput) (*models.Candidate, error)
	RemoveCandidate(ctx context.Context, candidateID id.CandidateID) error
	Results(ctx context.Context) (*ballotService.Results, error)
}

type Middleware func(http.Handler) http.Handler

type Handler struct {
	logger       *slog.Logger
	ballot       Service
	auth         Middleware
	optionalAuth Middleware
	admin        Middleware
}

func New(ballot Service, auth, optionalAuth, admin Middleware, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		ballot:       ballot,
		auth:         auth,
		optionalAuth: optionalAuth,
		admin:        admin,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/ballot/candidates", h.handleListCandidates)
	r.With(h.auth).Post("/ballot/vote", h.handleCastVote)
	// Results are public once declared; the service rejects early reads
	// from anyone but an admin, so auth here is opportunistic.
	r.With(h.optionalAuth).Get("/ballot/results", h.handleResults)
	r.With(h.auth, h.admin).Post("/ballot/candidates", h.handleAddCandidate)
	r.With(h.auth, h.admin).Put("/ballot/candidates/{candidateID}", h.handleUpdateCandidate)
	r.With(h.auth, h.admin).Delete("/ballot/candidates/{candidateID}", h.handleRemoveCandidate)
}

type castVoteRequest struct {
	CandidateID string `json:"candidate_id"`
}

func (h *Handler) handleCastVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	voterID, ok := requestcontext.IdentityID(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}
	candidateID, err := id.ParseCandidateID(req.CandidateID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid candidate_id"))
		return
	}

	if err := h.ballot.CastVote(ctx, voterID, candidateID); err != nil {
		h.logger.WarnContext(ctx, "vote rejected",
			"candidate_id", candidateID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"message": "vote recorded"})
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.ballot.ListCandidates(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
}

type candidateRequest struct {
	Name      string `json:"name"`
	Party     string `json:"party"`
	Age       int    `json:"age"`
	Manifesto string `json:"manifesto"`
}

func (r candidateRequest) input() ballotService.CandidateInput {
	return ballotService.CandidateInput{
		Name:      r.Name,
		Party:     r.Party,
		Age:       r.Age,
		Manifesto: r.Manifesto,
	}
}

func (h *Handler) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	candidate, err := h.ballot.AddCandidate(ctx, req.input())
	if err != nil {
		h.logger.WarnContext(ctx, "candidate creation rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, candidate)
}

func (h *Handler) handleUpdateCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	candidateID, err := id.ParseCandidateID(chi.URLParam(r, "candidateID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid candidate id"))
		return
	}

	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid request body"))
		return
	}

	candidate, err := h.ballot.UpdateCandidate(ctx, candidateID, req.input())
	if err != nil {
		h.logger.WarnContext(ctx, "candidate update rejected",
			"candidate_id", candidateID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, candidate)
}

func (h *Handler) handleRemoveCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	candidateID, err := id.ParseCandidateID(chi.URLParam(r, "candidateID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "invalid candidate id"))
		return
	}

	if err := h.ballot.RemoveCandidate(ctx, candidateID); err != nil {
		h.logger.WarnContext(ctx, "candidate removal rejected",
			"candidate_id", candidateID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.ballot.Results(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, results)
}
