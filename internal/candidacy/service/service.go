// Package service implements the candidacy workflow: identities apply for
// a party slot, an admin approves or rejects, and approval admits the
// applicant to the candidate roster.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	ballotModel "ballotgate/internal/ballot/models"
	"ballotgate/internal/identity/models"
	"ballotgate/internal/platform/metrics"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/platform/sentinel"
	"ballotgate/pkg/requestcontext"
)

// IdentityStore is the slice of identity persistence the workflow needs.
type IdentityStore interface {
	FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error)
	SetApplication(ctx context.Context, identityID id.IdentityID, party, manifesto string, appliedAt time.Time) error
	SetApplicationStatus(ctx context.Context, identityID id.IdentityID, status string, decidedAt time.Time) error
	ListApplicants(ctx context.Context) ([]*models.Identity, error)
}

// CandidateStore admits approved applicants to the roster.
type CandidateStore interface {
	CreateCandidate(ctx context.Context, candidate *ballotModel.Candidate) error
	PartyTaken(ctx context.Context, party string) (bool, error)
}

// SessionGate answers whether candidacy state may change right now.
type SessionGate interface {
	CandidacyMutationAllowed(ctx context.Context) (bool, error)
}

type Service struct {
	identities IdentityStore
	candidates CandidateStore
	gate       SessionGate
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(identities IdentityStore, candidates CandidateStore, gate SessionGate, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		identities: identities,
		candidates: candidates,
		gate:       gate,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Apply submits a candidacy application. A rejected applicant may apply
// again; pending and approved are blocking states.
func (s *Service) Apply(ctx context.Context, identityID id.IdentityID, party, manifesto string) error {
	allowed, err := s.gate.CandidacyMutationAllowed(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}
	if !allowed {
		return dErrors.New(dErrors.CodeSessionLocked, "candidacy applications are locked while voting is live or results are declared")
	}

	if party == "" || manifesto == "" {
		return dErrors.New(dErrors.CodeValidation, "party and manifesto are required")
	}
	normalized := ballotModel.NormalizeParty(party)
	if normalized == "" {
		return dErrors.New(dErrors.CodeValidation, "party must not be blank")
	}

	taken, err := s.candidates.PartyTaken(ctx, normalized)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}
	if taken {
		return dErrors.New(dErrors.CodeConflict, "party already has a candidate")
	}

	identity, err := s.identities.FindByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "identity not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}

	if identity.Role == models.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "admin cannot apply for candidacy")
	}
	if identity.Age < ballotModel.MinCandidateAge {
		return dErrors.Newf(dErrors.CodeValidation, "candidates must be at least %d years old", ballotModel.MinCandidateAge)
	}
	switch identity.ApplicationStatus {
	case models.ApplicationPending:
		return dErrors.New(dErrors.CodeConflict, "application already submitted")
	case models.ApplicationApproved:
		return dErrors.New(dErrors.CodeConflict, "already an approved candidate")
	}
	if identity.HasVoted {
		return dErrors.New(dErrors.CodeConflict, "cannot apply for candidacy after voting")
	}

	if err := s.identities.SetApplication(ctx, identityID, normalized, manifesto, requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}

	s.logger.InfoContext(ctx, "candidacy application submitted",
		"identity_id", identityID,
		"party", normalized,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Approve admits a pending applicant to the roster. The roster's party
// constraint settles concurrent approvals for the same party: one wins,
// the others surface a conflict and the application stays pending.
func (s *Service) Approve(ctx context.Context, applicantID id.IdentityID) error {
	applicant, err := s.pendingApplicant(ctx, applicantID)
	if err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	candidate := &ballotModel.Candidate{
		ID:         id.NewCandidateID(),
		IdentityID: &applicant.ID,
		Name:       applicant.Name,
		Party:      ballotModel.NormalizeParty(applicant.Party),
		Age:        applicant.Age,
		Manifesto:  applicant.Manifesto,
		CreatedAt:  now,
	}
	if err := s.candidates.CreateCandidate(ctx, candidate); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "party already has a candidate")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}

	if err := s.identities.SetApplicationStatus(ctx, applicantID, models.ApplicationApproved, now); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}

	s.countDecision("approved")
	s.logger.InfoContext(ctx, "candidacy approved",
		"identity_id", applicantID,
		"candidate_id", candidate.ID,
		"party", candidate.Party,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Reject declines a pending application. The applicant may apply again.
func (s *Service) Reject(ctx context.Context, applicantID id.IdentityID) error {
	if _, err := s.pendingApplicant(ctx, applicantID); err != nil {
		return err
	}

	if err := s.identities.SetApplicationStatus(ctx, applicantID, models.ApplicationRejected, requestcontext.Now(ctx)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}

	s.countDecision("rejected")
	s.logger.InfoContext(ctx, "candidacy rejected",
		"identity_id", applicantID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// ListApplications returns every identity that has ever applied, newest
// application first.
func (s *Service) ListApplications(ctx context.Context) ([]models.ApplicationView, error) {
	applicants, err := s.identities.ListApplicants(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}

	views := make([]models.ApplicationView, 0, len(applicants))
	for _, applicant := range applicants {
		views = append(views, applicant.Application())
	}
	return views, nil
}

func (s *Service) pendingApplicant(ctx context.Context, applicantID id.IdentityID) (*models.Identity, error) {
	allowed, err := s.gate.CandidacyMutationAllowed(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}
	if !allowed {
		return nil, dErrors.New(dErrors.CodeSessionLocked, "candidacy decisions are locked while voting is live or results are declared")
	}

	applicant, err := s.identities.FindByID(ctx, applicantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "applicant not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "candidacy unavailable")
	}
	if applicant.ApplicationStatus != models.ApplicationPending {
		return nil, dErrors.New(dErrors.CodeConflict, "application already processed")
	}
	return applicant, nil
}

func (s *Service) countDecision(outcome string) {
	if s.metrics != nil {
		s.metrics.ApplicationsDecided.WithLabelValues(outcome).Inc()
	}
}
