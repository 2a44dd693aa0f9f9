// Package middleware provides composable middleware for stage execution.
// Middleware wraps handler calls synchronously and can modify execution
// (recover from panics, enforce deadlines, retry, log, record metrics).
package middleware

import (
	"context"

	"github.com/storeforge/provision/job"
)

// Handler is the terminal function that executes one stage's logic and
// returns the result fields it produced.
type Handler func(ctx context.Context) (job.Result, error)

// Middleware wraps a Handler with cross-cutting logic. It receives the
// current context, the job being provisioned, the stage under execution,
// and the next handler to call. Middleware MUST call next to continue the
// chain (unless short-circuiting on error).
type Middleware func(ctx context.Context, j *job.Job, stage job.Stage, next Handler) (job.Result, error)

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
//
// Example: Chain(logging, recovery, timeout) executes as:
//
//	logging → recovery → timeout → handler
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, j *job.Job, stage job.Stage, next Handler) (job.Result, error) {
		// Build the chain from the end backwards.
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) (job.Result, error) {
				return mw(ctx, j, stage, prev)
			}
		}
		return h(ctx)
	}
}
