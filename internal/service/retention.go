package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/AhmadZeb/SecurityApi/internal/repository"
)

// RetentionSweeper periodically deletes token records whose expiry predates
// a grace window. Used and revoked rows are kept inside the window for
// reuse detection and audit, then dropped with the rest.
type RetentionSweeper struct {
	tokens   repository.RefreshTokenRepository
	resets   repository.ResetTokenRepository
	logger   *slog.Logger
	interval time.Duration
	grace    time.Duration
}

// NewRetentionSweeper creates a sweeper with the given run interval and
// post-expiry grace window.
func NewRetentionSweeper(
	tokens repository.RefreshTokenRepository,
	resets repository.ResetTokenRepository,
	logger *slog.Logger,
	interval, grace time.Duration,
) *RetentionSweeper {
	return &RetentionSweeper{
		tokens:   tokens,
		resets:   resets,
		logger:   logger,
		interval: interval,
		grace:    grace,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// One sweep runs immediately on startup.
func (s *RetentionSweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "retention sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SweepOnce runs a single sweep and returns the number of refresh and reset
// token rows deleted.
func (s *RetentionSweeper) SweepOnce(ctx context.Context) (refresh, reset int64, err error) {
	cutoff := time.Now().UTC().Add(-s.grace)

	refresh, err = s.tokens.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}

	reset, err = s.resets.DeleteExpired(ctx, cutoff)
	if err != nil {
		return refresh, 0, err
	}

	return refresh, reset, nil
}

func (s *RetentionSweeper) sweep(ctx context.Context) {
	refresh, reset, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}

	if refresh > 0 || reset > 0 {
		s.logger.InfoContext(ctx, "retention sweep completed",
			slog.Int64("refresh_tokens_deleted", refresh),
			slog.Int64("reset_tokens_deleted", reset),
		)
	}
}
