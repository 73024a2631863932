// Package cleanup periodically removes spent verification artifacts.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"beantrace/internal/token/metrics"
)

// TokenStore exposes cleanup for verification tokens.
type TokenStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	DeleteUsed(ctx context.Context) (int, error)
}

// SessionStore exposes cleanup for expired attestation sessions.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// Result summarizes the deletions performed by a cleanup run.
type Result struct {
	DeletedExpiredTokens int
	DeletedUsedTokens    int
	DeletedSessions      int
}

// Service periodically removes expired tokens, used tokens, and stale
// attestation sessions.
type Service struct {
	tokenStore   TokenStore
	sessionStore SessionStore
	interval     time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures the cleanup Service.
type Option func(*Service)

// WithInterval overrides the cleanup interval when greater than zero.
func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithLogger overrides the logger used for cleanup errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics instance for cleanup deletion counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a cleanup Service with required stores and options applied.
func New(tokenStore TokenStore, sessionStore SessionStore, opts ...Option) (*Service, error) {
	if tokenStore == nil || sessionStore == nil {
		return nil, fmt.Errorf("tokenStore and sessionStore are required")
	}
	svc := &Service{
		tokenStore:   tokenStore,
		sessionStore: sessionStore,
		interval:     5 * time.Minute,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Start runs cleanup periodically until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "verification cleanup failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RunOnce performs a single cleanup pass. Errors from the individual sweeps
// are aggregated so one failing store does not block the others.
func (s *Service) RunOnce(ctx context.Context) (Result, error) {
	now := time.Now().UTC()
	var res Result
	var errs []error

	deletedExpired, err := s.tokenStore.DeleteExpired(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired tokens: %w", err))
	} else {
		res.DeletedExpiredTokens = deletedExpired
	}

	deletedUsed, err := s.tokenStore.DeleteUsed(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete used tokens: %w", err))
	} else {
		res.DeletedUsedTokens = deletedUsed
	}

	deletedSessions, err := s.sessionStore.DeleteExpiredSessions(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("delete expired sessions: %w", err))
	} else {
		res.DeletedSessions = deletedSessions
	}

	if s.metrics != nil {
		s.metrics.CleanupDeletions.WithLabelValues("expired").Add(float64(res.DeletedExpiredTokens))
		s.metrics.CleanupDeletions.WithLabelValues("used").Add(float64(res.DeletedUsedTokens))
		s.metrics.CleanupDeletions.WithLabelValues("session").Add(float64(res.DeletedSessions))
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}
