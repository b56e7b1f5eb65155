// Package service implements the vote ledger and roster management.
//
// Casting runs a fixed sequence of checks and then claims the voter's
// ballot with an atomic mark-voted flip before the ledger append. A failed
// append rolls the flip back so the voter can retry; a failed rollback is
// surfaced as a retryable outage, never as a silent lost vote.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ballotgate/internal/ballot/models"
	identityModel "ballotgate/internal/identity/models"
	"ballotgate/internal/platform/metrics"
	sessionModel "ballotgate/internal/session/models"
	id "ballotgate/pkg/domain"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/platform/sentinel"
	"ballotgate/pkg/requestcontext"
)

// IdentityStore is the slice of identity persistence voting needs.
// MarkVoted must flip has-voted atomically and report whether this call
// performed the flip.
type IdentityStore interface {
	FindByID(ctx context.Context, identityID id.IdentityID) (*identityModel.Identity, error)
	MarkVoted(ctx context.Context, identityID id.IdentityID) (bool, error)
	UnmarkVoted(ctx context.Context, identityID id.IdentityID) error
}

// BallotStore persists the roster and the ledger.
type BallotStore interface {
	CreateCandidate(ctx context.Context, candidate *models.Candidate) error
	FindCandidate(ctx context.Context, candidateID id.CandidateID) (*models.Candidate, error)
	UpdateCandidate(ctx context.Context, candidate *models.Candidate) error
	DeleteCandidate(ctx context.Context, candidateID id.CandidateID) error
	ListCandidates(ctx context.Context) ([]*models.Candidate, error)
	AppendVote(ctx context.Context, vote models.Vote) error
	Tally(ctx context.Context) ([]models.TallyRow, error)
}

// SessionGate answers window and roster questions.
type SessionGate interface {
	WindowStatus(ctx context.Context, now time.Time) (sessionModel.WindowStatus, error)
	RosterMutationAllowed(ctx context.Context) (bool, error)
	ResultsDeclared(ctx context.Context) (bool, error)
}

// Results is the published tally.
type Results struct {
	Declared   bool              `json:"declared"`
	TotalVotes int64             `json:"total_votes"`
	Rows       []models.TallyRow `json:"results"`
}

type Service struct {
	identities IdentityStore
	ballots    BallotStore
	gate       SessionGate
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(identities IdentityStore, ballots BallotStore, gate SessionGate, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		identities: identities,
		ballots:    ballots,
		gate:       gate,
		logger:     logger,
		tracer:     otel.Tracer("ballotgate/ballot"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// CastVote records one vote for the candidate on behalf of the voter.
//
// Check order is load-bearing: window, candidate, voter, role, prior vote,
// candidacy. Only after all checks pass is the voter's ballot claimed.
func (s *Service) CastVote(ctx context.Context, voterID id.IdentityID, candidateID id.CandidateID) (err error) {
	ctx, span := s.tracer.Start(ctx, "ballot.CastVote",
		trace.WithAttributes(attribute.String("candidate_id", candidateID.String())))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		}
		span.End()
	}()

	start := time.Now()
	now := requestcontext.Now(ctx)

	status, err := s.gate.WindowStatus(ctx, now)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "voting unavailable")
	}
	switch status {
	case sessionModel.WindowOpen:
	case sessionModel.WindowNotStarted:
		return s.rejected("window_not_started", dErrors.New(dErrors.CodeSessionLocked, "voting has not started yet"))
	case sessionModel.WindowEnded:
		return s.rejected("window_ended", dErrors.New(dErrors.CodeSessionLocked, "voting has ended"))
	default:
		return s.rejected("window_disabled", dErrors.New(dErrors.CodeSessionLocked, "voting is not enabled"))
	}

	if _, err := s.ballots.FindCandidate(ctx, candidateID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.rejected("candidate_not_found", dErrors.New(dErrors.CodeNotFound, "candidate not found"))
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "voting unavailable")
	}

	voter, err := s.identities.FindByID(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.rejected("identity_not_found", dErrors.New(dErrors.CodeNotFound, "identity not found"))
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "voting unavailable")
	}
	if voter.Role == identityModel.RoleAdmin {
		return s.rejected("admin", dErrors.New(dErrors.CodeForbidden, "admin cannot vote"))
	}
	if voter.HasVoted {
		return s.rejected("already_voted", dErrors.New(dErrors.CodeConflict, "you have already voted"))
	}
	if voter.ApplicationStatus == identityModel.ApplicationApproved {
		return s.rejected("candidate", dErrors.New(dErrors.CodeForbidden, "candidates cannot vote"))
	}

	flipped, err := s.identities.MarkVoted(ctx, voterID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "voting unavailable")
	}
	if !flipped {
		// A concurrent cast by the same voter won the flip.
		return s.rejected("already_voted", dErrors.New(dErrors.CodeConflict, "you have already voted"))
	}

	if err := s.ballots.AppendVote(ctx, models.Vote{
		VoterID:     voterID,
		CandidateID: candidateID,
		CastAt:      now,
	}); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// The ledger already holds a vote for this voter.
			return s.rejected("already_voted", dErrors.New(dErrors.CodeConflict, "you have already voted"))
		}
		return s.compensate(ctx, voterID, err)
	}

	if s.metrics != nil {
		s.metrics.VotesCast.Inc()
		s.metrics.CastVoteDuration.Observe(time.Since(start).Seconds())
	}
	s.logger.InfoContext(ctx, "vote cast",
		"candidate_id", candidateID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// compensate rolls back the mark-voted flip after a failed ledger append.
// Either way the caller gets a retryable error: on rollback success the
// voter is clean, on rollback failure an operator has a log line and the
// ledger stays the source of truth.
func (s *Service) compensate(ctx context.Context, voterID id.IdentityID, appendErr error) error {
	if err := s.identities.UnmarkVoted(ctx, voterID); err != nil {
		s.logger.ErrorContext(ctx, "vote compensation failed, voter marked without ledger entry",
			"identity_id", voterID,
			"append_error", appendErr.Error(),
			"unmark_error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	} else {
		s.logger.WarnContext(ctx, "ledger append failed, mark rolled back",
			"identity_id", voterID,
			"error", appendErr.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
	if s.metrics != nil {
		s.metrics.VotesRejected.WithLabelValues("ledger_failure").Inc()
	}
	return dErrors.New(dErrors.CodeUnavailable, "vote could not be recorded, please try again")
}

// ListCandidates returns the public roster projection in admission order.
func (s *Service) ListCandidates(ctx context.Context) ([]models.CandidateSummary, error) {
	candidates, err := s.ballots.ListCandidates(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "roster unavailable")
	}
	out := make([]models.CandidateSummary, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, candidate.Summary())
	}
	return out, nil
}

// CandidateInput carries the admin-editable candidate attributes.
type CandidateInput struct {
	Name      string
	Party     string
	Age       int
	Manifesto string
}

func (in CandidateInput) validate() (string, error) {
	if in.Name == "" || in.Party == "" {
		return "", dErrors.New(dErrors.CodeValidation, "name and party are required")
	}
	normalized := models.NormalizeParty(in.Party)
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeValidation, "party must not be blank")
	}
	if in.Age < models.MinCandidateAge {
		return "", dErrors.Newf(dErrors.CodeValidation, "candidates must be at least %d years old", models.MinCandidateAge)
	}
	return normalized, nil
}

// AddCandidate puts an admin-entered candidate on the roster directly,
// without an application behind it. Allowed only while voting is disabled
// and results are undeclared.
func (s *Service) AddCandidate(ctx context.Context, input CandidateInput) (*models.Candidate, error) {
	if err := s.rosterMutable(ctx); err != nil {
		return nil, err
	}
	normalized, err := input.validate()
	if err != nil {
		return nil, err
	}

	candidate := &models.Candidate{
		ID:        id.NewCandidateID(),
		Name:      input.Name,
		Party:     normalized,
		Age:       input.Age,
		Manifesto: input.Manifesto,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.ballots.CreateCandidate(ctx, candidate); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "party already has a candidate")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "roster unavailable")
	}

	s.logger.InfoContext(ctx, "candidate added",
		"candidate_id", candidate.ID,
		"party", candidate.Party,
		"request_id", requestcontext.RequestID(ctx),
	)
	return candidate, nil
}

// UpdateCandidate edits a roster entry. Allowed only while voting is
// disabled and results are undeclared.
func (s *Service) UpdateCandidate(ctx context.Context, candidateID id.CandidateID, input CandidateInput) (*models.Candidate, error) {
	if err := s.rosterMutable(ctx); err != nil {
		return nil, err
	}
	normalized, err := input.validate()
	if err != nil {
		return nil, err
	}

	candidate, err := s.ballots.FindCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "candidate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "roster unavailable")
	}

	candidate.Name = input.Name
	candidate.Party = normalized
	candidate.Age = input.Age
	candidate.Manifesto = input.Manifesto
	if err := s.ballots.UpdateCandidate(ctx, candidate); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "party already has a candidate")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "candidate not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "roster unavailable")
	}
	return candidate, nil
}

// RemoveCandidate withdraws a candidate from the roster.
func (s *Service) RemoveCandidate(ctx context.Context, candidateID id.CandidateID) error {
	if err := s.rosterMutable(ctx); err != nil {
		return err
	}
	if err := s.ballots.DeleteCandidate(ctx, candidateID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "candidate not found")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "roster unavailable")
	}
	s.logger.InfoContext(ctx, "candidate removed",
		"candidate_id", candidateID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Results returns the tally. Before results are declared only an admin may
// read it.
func (s *Service) Results(ctx context.Context) (*Results, error) {
	declared, err := s.gate.ResultsDeclared(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "results unavailable")
	}
	if !declared && requestcontext.Role(ctx) != identityModel.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "results have not been declared")
	}

	rows, err := s.ballots.Tally(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "results unavailable")
	}

	var total int64
	for _, row := range rows {
		total += row.VoteCount
	}
	return &Results{Declared: declared, TotalVotes: total, Rows: rows}, nil
}

func (s *Service) rosterMutable(ctx context.Context) error {
	allowed, err := s.gate.RosterMutationAllowed(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "roster unavailable")
	}
	if !allowed {
		return dErrors.New(dErrors.CodeSessionLocked, "roster changes are locked while voting is live or results are declared")
	}
	return nil
}

func (s *Service) rejected(reason string, err error) error {
	if s.metrics != nil {
		s.metrics.VotesRejected.WithLabelValues(reason).Inc()
	}
	return err
}
