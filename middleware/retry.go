package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/storeforge/provision/backoff"
	"github.com/storeforge/provision/job"
)

// Retry returns middleware that retries a failing handler up to
// maxAttempts total attempts, sleeping per the strategy between attempts.
//
// Retry is a handler-level policy: wrap it around an individual stage
// handler whose external interaction is known to be transiently flaky.
// The orchestrator itself never retries — by the time an error escapes
// this middleware the stage, and the job, are terminally failed. Context
// cancellation and deadline expiry are never retried: the external
// interaction's time budget is spent.
func Retry(strategy backoff.Strategy, maxAttempts int, logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, stage job.Stage, next Handler) (job.Result, error) {
		var (
			out     job.Result
			lastErr error
		)
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			out, lastErr = next(ctx)
			if lastErr == nil {
				return out, nil
			}
			if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
				return out, lastErr
			}
			if attempt == maxAttempts {
				break
			}

			delay := strategy.Delay(attempt)
			logger.Warn("stage attempt failed, retrying",
				slog.String("job_id", j.ID.String()),
				slog.String("stage", string(stage)),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()),
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return out, ctx.Err()
			}
		}
		return out, lastErr
	}
}
