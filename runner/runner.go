// Package runner executes provisioning jobs in the background, one
// goroutine per job, with per-id dedup so a record is never driven by two
// pipelines at once.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/orchestrator"
)

// ErrStopped is returned by Submit after Stop has been called.
var ErrStopped = errors.New("runner: stopped")

// Runner dispatches jobs to the orchestrator on background goroutines.
// Safe for concurrent use.
type Runner struct {
	orch   *orchestrator.Orchestrator
	store  job.Store
	logger *slog.Logger

	mu      sync.Mutex
	active  map[string]struct{}
	stopped bool
	wg      sync.WaitGroup
}

// New creates a runner.
func New(orch *orchestrator.Orchestrator, store job.Store, logger *slog.Logger) *Runner {
	return &Runner{
		orch:   orch,
		store:  store,
		logger: logger,
		active: make(map[string]struct{}),
	}
}

// Submit starts background execution of the given job. Submitting a job
// that is already executing is a no-op, as is submitting a terminal job:
// a record is driven by at most one pipeline at a time and terminal
// records are immutable. An unknown id is an error.
//
// The execution context is detached from ctx so an aborted HTTP request
// never cancels a stage mid-flight.
func (r *Runner) Submit(ctx context.Context, jobID id.JobID) error {
	j, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("submit job %s: %w", jobID, err)
	}
	if j.Terminal() {
		r.logger.Debug("submit ignored, job already terminal",
			slog.String("job_id", jobID.String()),
			slog.String("stage", string(j.Stage)),
		)
		return nil
	}

	key := jobID.String()

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if _, running := r.active[key]; running {
		r.mu.Unlock()
		r.logger.Debug("submit ignored, job already executing",
			slog.String("job_id", key),
		)
		return nil
	}
	r.active[key] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.active, key)
			r.mu.Unlock()
			r.wg.Done()
		}()

		if runErr := r.orch.Run(runCtx, jobID); runErr != nil {
			r.logger.Error("job execution error",
				slog.String("job_id", key),
				slog.String("error", runErr.Error()),
			)
		}
	}()

	return nil
}

// Running reports whether the given job is currently executing.
func (r *Runner) Running(jobID id.JobID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[jobID.String()]
	return ok
}

// ActiveCount returns the number of jobs currently executing.
func (r *Runner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// ResumeAll finds all non-terminal jobs and submits them for execution.
// Called at startup for crash recovery when resume is enabled.
func (r *Runner) ResumeAll(ctx context.Context) error {
	stages := append([]job.Stage{job.StageQueued}, job.Pipeline()...)
	for _, stage := range stages {
		jobs, err := r.store.ListJobs(ctx, job.ListOpts{Stage: stage})
		if err != nil {
			return fmt.Errorf("list %s jobs: %w", stage, err)
		}
		for _, j := range jobs {
			r.logger.Info("resuming job",
				slog.String("job_id", j.ID.String()),
				slog.String("stage", string(j.Stage)),
				slog.Int("progress", j.Progress),
			)
			if submitErr := r.Submit(ctx, j.ID); submitErr != nil {
				r.logger.Error("failed to resume job",
					slog.String("job_id", j.ID.String()),
					slog.String("error", submitErr.Error()),
				)
			}
		}
	}
	return nil
}

// Stop rejects further submissions and waits for in-flight jobs to
// drain. Stages are never cancelled mid-flight; if ctx expires before
// the drain finishes, Stop returns ctx.Err() and the remaining jobs keep
// running to their next durable checkpoint.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	remaining := len(r.active)
	r.mu.Unlock()

	r.logger.Info("runner stopping", slog.Int("active", remaining))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("runner stopped gracefully")
		return nil
	case <-ctx.Done():
		r.logger.Warn("runner shutdown timed out with jobs still executing",
			slog.Int("active", r.ActiveCount()),
		)
		return ctx.Err()
	}
}
