package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/storeforge/provision/job"
)

// Recover returns middleware that recovers from panics in the handler
// chain. Panics are converted to errors and logged with a stack trace, so
// a buggy handler fails its job instead of crashing every in-flight job.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, stage job.Stage, next Handler) (out job.Result, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("stage handler panicked",
					slog.String("job_id", j.ID.String()),
					slog.String("stage", string(stage)),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				out = job.Result{}
				retErr = fmt.Errorf("panic in stage %s: %v", stage, r)
			}
		}()
		return next(ctx)
	}
}
