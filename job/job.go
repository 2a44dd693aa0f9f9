// Package job defines the provisioning job record, its stage lifecycle,
// input validation, the write-once result accumulator, and the store
// interface that persists records across process restarts.
package job

import (
	"fmt"
	"time"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/id"
)

// Stage represents the lifecycle stage of a provisioning job.
type Stage string

const (
	// StageQueued means the job is accepted but no stage has started.
	StageQueued Stage = "queued"
	// StageAccountCreate means the storefront account is being created.
	StageAccountCreate Stage = "account_create"
	// StageCredentialAcquire means an API access token is being acquired.
	StageCredentialAcquire Stage = "credential_acquire"
	// StageCatalogImport means products are being imported into the store.
	StageCatalogImport Stage = "catalog_import"
	// StageOwnershipTransfer means the store is being handed to the customer.
	StageOwnershipTransfer Stage = "ownership_transfer"
	// StageCompleted means all four stages finished successfully.
	StageCompleted Stage = "completed"
	// StageFailed means a stage failed terminally; Error carries details.
	StageFailed Stage = "failed"
)

// pipeline is the fixed execution order. Each stage's external side effects
// are a precondition for the next, so there is no branching or skipping.
var pipeline = [4]Stage{
	StageAccountCreate,
	StageCredentialAcquire,
	StageCatalogImport,
	StageOwnershipTransfer,
}

// Pipeline returns the four execution stages in order.
func Pipeline() []Stage {
	return pipeline[:]
}

// Terminal reports whether the stage is a terminal state.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Valid reports whether s is a known stage value.
func (s Stage) Valid() bool {
	switch s {
	case StageQueued, StageAccountCreate, StageCredentialAcquire,
		StageCatalogImport, StageOwnershipTransfer, StageCompleted, StageFailed:
		return true
	}
	return false
}

// Next returns the stage following s in the pipeline. The second return is
// false for the last pipeline stage and for any stage outside the pipeline.
func (s Stage) Next() (Stage, bool) {
	for i, st := range pipeline {
		if st == s && i+1 < len(pipeline) {
			return pipeline[i+1], true
		}
	}
	return "", false
}

// Checkpoint returns the progress percentage committed when s completes.
// Checkpoints are coarse 25% boundaries: each stage is independently slow
// (tens of seconds to minutes) and polling clients need monotone feedback,
// not intra-stage granularity.
func (s Stage) Checkpoint() int {
	for i, st := range pipeline {
		if st == s {
			return (i + 1) * 25
		}
	}
	return 0
}

// activityMessages are the human-readable progress lines shown to polling
// clients while each stage runs.
var activityMessages = map[Stage]string{
	StageQueued:            "Starting store creation...",
	StageAccountCreate:     "Creating your store...",
	StageCredentialAcquire: "Preparing store configuration...",
	StageCatalogImport:     "Uploading products...",
	StageOwnershipTransfer: "Finalizing setup and ownership transfer...",
	StageCompleted:         "Your store is ready!",
}

// ActivityMessage returns the human-readable progress line for s.
// StageFailed has no fixed message; the failure description is used instead.
func (s Stage) ActivityMessage() string {
	return activityMessages[s]
}

// StageError records which stage failed and why. It is present on a job
// record only when Stage == StageFailed.
type StageError struct {
	Stage       Stage  `json:"stage"`
	Description string `json:"description"`
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %s", e.Stage, e.Description)
}

// Job is the durable record of one provisioning request. It is created in
// StageQueued by the request-acceptance path and mutated exclusively by the
// orchestrator through the store's atomic update; once terminal it is
// immutable except for reads.
type Job struct {
	provision.Entity

	ID          id.JobID    `json:"id"`
	Input       Input       `json:"input"`
	Stage       Stage       `json:"stage"`
	Progress    int         `json:"progress_percent"`
	Message     string      `json:"message"`
	Result      Result      `json:"result"`
	Error       *StageError `json:"error,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// New builds a queued job record for validated input.
func New(input Input) *Job {
	return &Job{
		Entity:   provision.NewEntity(),
		ID:       id.NewJobID(),
		Input:    input,
		Stage:    StageQueued,
		Progress: 0,
		Message:  StageQueued.ActivityMessage(),
	}
}

// Terminal reports whether the record has reached a terminal state.
func (j *Job) Terminal() bool {
	return j.Stage.Terminal()
}

// Clone returns a deep copy of the record. Stores hand out clones so
// callers can never mutate persisted state outside an atomic update.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.Result.ProductIDs != nil {
		cp.Result.ProductIDs = append([]string(nil), j.Result.ProductIDs...)
	}
	return &cp
}
