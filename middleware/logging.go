package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/storeforge/provision/job"
)

// Logging returns middleware that logs stage start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, stage job.Stage, next Handler) (job.Result, error) {
		logger.Info("stage started",
			slog.String("job_id", j.ID.String()),
			slog.String("stage", string(stage)),
			slog.String("store_name", j.Input.StoreName),
		)

		start := time.Now()
		out, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("stage failed",
				slog.String("job_id", j.ID.String()),
				slog.String("stage", string(stage)),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("stage completed",
				slog.String("job_id", j.ID.String()),
				slog.String("stage", string(stage)),
				slog.Duration("elapsed", elapsed),
			)
		}

		return out, err
	}
}
