// Package hook defines the lifecycle hook system for provision.
// Hooks are notified of provisioning events (job queued, stage completed,
// job failed, etc.) and can react to them — notifications, audit trails,
// cache invalidation, etc.
//
// Each lifecycle event is a separate interface so hooks opt in only
// to the events they care about.
package hook

import (
	"context"
	"time"

	"github.com/storeforge/provision/job"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// ──────────────────────────────────────────────────
// Job lifecycle events
// ──────────────────────────────────────────────────

// JobQueued is called after a provisioning job is created and accepted.
type JobQueued interface {
	OnJobQueued(ctx context.Context, j *job.Job) error
}

// JobCompleted is called after all four stages finish successfully.
type JobCompleted interface {
	OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobFailed is called when a job fails terminally.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, err error) error
}

// ──────────────────────────────────────────────────
// Stage lifecycle events
// ──────────────────────────────────────────────────

// StageStarted is called when the orchestrator begins executing a stage.
type StageStarted interface {
	OnStageStarted(ctx context.Context, j *job.Job, stage job.Stage) error
}

// StageCompleted is called after a stage commits successfully.
type StageCompleted interface {
	OnStageCompleted(ctx context.Context, j *job.Job, stage job.Stage, elapsed time.Duration) error
}

// StageFailed is called when a stage fails, before the job is marked failed.
type StageFailed interface {
	OnStageFailed(ctx context.Context, j *job.Job, stage job.Stage, err error) error
}

// ──────────────────────────────────────────────────
// Other lifecycle events
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
