// Package step defines the handler contract for the four provisioning
// stages and the registry that binds a handler to each stage. Handlers are
// external collaborators: the orchestrator treats them as opaque slow
// operations that consume the job's session and return result fields.
package step

import (
	"context"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/session"
)

// Handler performs one stage's external automation. It receives the job's
// session (which it may read, mutate, or extend with teardowns) and the
// current job record (input plus results committed by earlier stages), and
// returns the result fields this stage produced.
//
// Transient-failure retry policy belongs to the handler (or middleware
// wrapped around it at registration time), never to the orchestrator:
// a returned error is terminal for the job.
type Handler interface {
	Execute(ctx context.Context, sess *session.Session, j *job.Job) (job.Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, sess *session.Session, j *job.Job) (job.Result, error)

// Execute implements Handler.
func (f HandlerFunc) Execute(ctx context.Context, sess *session.Session, j *job.Job) (job.Result, error) {
	return f(ctx, sess, j)
}
