package middleware

import (
	"context"
	"time"

	"github.com/storeforge/provision/job"
)

// Timeout returns middleware that enforces a per-stage execution deadline.
// A zero duration disables the deadline. When the deadline is exceeded the
// context is cancelled and the handler should return context.DeadlineExceeded.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, _ *job.Job, _ job.Stage, next Handler) (job.Result, error) {
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
