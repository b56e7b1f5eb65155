// Package service implements the voting session gate. Every gated mutation
// in the system asks this service first; the answers re-read the stored
// config so an admin reconfiguration takes effect on the next request.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ballotgate/internal/session/models"
	dErrors "ballotgate/pkg/domain-errors"
	"ballotgate/pkg/platform/sentinel"
)

type Store interface {
	Get(ctx context.Context) (*models.Config, error)
	Upsert(ctx context.Context, config *models.Config) error
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	return &Service{store: store, logger: logger}, nil
}

// Current returns the live configuration, creating the default one on
// first read: a 24-hour window starting now with voting disabled.
func (s *Service) Current(ctx context.Context, now time.Time) (*models.Config, error) {
	config, err := s.store.Get(ctx)
	if err == nil {
		return config, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "session config unavailable")
	}

	config = &models.Config{
		StartTime:       now,
		EndTime:         now.Add(24 * time.Hour),
		VotingEnabled:   false,
		ResultsDeclared: false,
		UpdatedAt:       now,
	}
	if err := s.store.Upsert(ctx, config); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "session config unavailable")
	}
	return config, nil
}

// Update validates and replaces the configuration. Closure past endTime is
// advisory only: nothing auto-disables voting when the window passes, every
// gated operation just re-checks the window. That is intended, not an
// oversight.
func (s *Service) Update(ctx context.Context, req models.UpdateRequest, now time.Time) (*models.Config, error) {
	if !req.StartTime.Before(req.EndTime) {
		return nil, dErrors.New(dErrors.CodeValidation, "start time must be before end time")
	}
	if req.VotingEnabled && now.Before(req.StartTime) {
		return nil, dErrors.New(dErrors.CodeValidation, "cannot enable voting before start time")
	}

	config := &models.Config{
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		VotingEnabled:   req.VotingEnabled,
		ResultsDeclared: req.ResultsDeclared,
		UpdatedAt:       now,
	}
	if err := s.store.Upsert(ctx, config); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "session config unavailable")
	}

	s.logger.InfoContext(ctx, "voting session reconfigured",
		"start_time", config.StartTime,
		"end_time", config.EndTime,
		"voting_enabled", config.VotingEnabled,
		"results_declared", config.ResultsDeclared,
	)
	return config, nil
}

// RosterMutationAllowed reports whether candidates and candidacy
// applications may change right now: only while voting is disabled and
// results are undeclared. An absent config allows mutation.
func (s *Service) RosterMutationAllowed(ctx context.Context) (bool, error) {
	config, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return true, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "session config unavailable")
	}
	return !config.VotingEnabled && !config.ResultsDeclared, nil
}

// CandidacyMutationAllowed uses the same rule as roster mutation.
func (s *Service) CandidacyMutationAllowed(ctx context.Context) (bool, error) {
	return s.RosterMutationAllowed(ctx)
}

// WindowStatus reports whether a vote may be cast at now, and if not, why.
// An absent config means voting is disallowed.
func (s *Service) WindowStatus(ctx context.Context, now time.Time) (models.WindowStatus, error) {
	config, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.WindowDisabled, nil
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "session config unavailable")
	}
	switch {
	case !config.VotingEnabled:
		return models.WindowDisabled, nil
	case now.Before(config.StartTime):
		return models.WindowNotStarted, nil
	case now.After(config.EndTime):
		return models.WindowEnded, nil
	default:
		return models.WindowOpen, nil
	}
}

// ResultsDeclared reports whether the tally is public. Absent config means
// not declared.
func (s *Service) ResultsDeclared(ctx context.Context) (bool, error) {
	config, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "session config unavailable")
	}
	return config.ResultsDeclared, nil
}
