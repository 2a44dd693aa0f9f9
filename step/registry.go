package step

import (
	"fmt"
	"sync"

	"github.com/storeforge/provision/job"
)

// Registry maps pipeline stages to their handlers.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[job.Stage]Handler
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[job.Stage]Handler),
	}
}

// Register binds a handler to a pipeline stage, replacing any previous
// binding. Registering a non-pipeline stage is an error.
func (r *Registry) Register(stage job.Stage, h Handler) error {
	if stage.Checkpoint() == 0 {
		return fmt.Errorf("step: %q is not a pipeline stage", stage)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[stage] = h
	return nil
}

// Get returns the handler bound to the given stage.
// Returns false if no handler is registered.
func (r *Registry) Get(stage job.Stage) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[stage]
	return h, ok
}

// Complete verifies that every pipeline stage has a handler. Called once
// at wiring time so a missing binding fails fast instead of mid-pipeline.
func (r *Registry) Complete() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, stage := range job.Pipeline() {
		if _, ok := r.handlers[stage]; !ok {
			return fmt.Errorf("step: no handler registered for stage %q", stage)
		}
	}
	return nil
}
