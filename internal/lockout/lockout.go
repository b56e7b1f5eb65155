// Package lockout throttles credential guessing: a burst of failed
// authentications for one national-id hash locks further attempts for the
// rest of the window.
package lockout

import (
	"context"
	"log/slog"
	"time"

	dErrors "ballotgate/pkg/domain-errors"
)

// Store counts failures per key inside a rolling window.
type Store interface {
	// Incr adds one failure and returns the count currently in the window.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	// Count returns the current failure count without changing it.
	Count(ctx context.Context, key string) (int64, error)
	// Clear forgets the key after a successful authentication.
	Clear(ctx context.Context, key string) error
}

// Service applies the lockout policy on top of a counter store. Store
// failures degrade open: a broken counter must not lock everyone out.
type Service struct {
	store     Store
	threshold int64
	window    time.Duration
	logger    *slog.Logger
}

func New(store Store, threshold int, window time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		threshold: int64(threshold),
		window:    window,
		logger:    logger,
	}
}

// Check returns a coded error when the key is currently locked.
func (s *Service) Check(ctx context.Context, key string) error {
	count, err := s.store.Count(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "lockout check degraded open", "error", err)
		return nil
	}
	if count >= s.threshold {
		return dErrors.New(dErrors.CodeUnauthorized, "too many failed attempts, try again later")
	}
	return nil
}

// RecordFailure counts one failed attempt.
func (s *Service) RecordFailure(ctx context.Context, key string) {
	if _, err := s.store.Incr(ctx, key, s.window); err != nil {
		s.logger.WarnContext(ctx, "lockout failure not recorded", "error", err)
	}
}

// ClearFailures resets the counter after a successful authentication.
func (s *Service) ClearFailures(ctx context.Context, key string) {
	if err := s.store.Clear(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "lockout clear failed", "error", err)
	}
}
