package job

import (
	"context"

	"github.com/storeforge/provision/id"
)

// Mutator applies a change to a job record inside an atomic update. It
// receives the current persisted state; returning an error aborts the
// update without committing.
type Mutator func(*Job) error

// ListOpts controls job list queries. Results are always ordered by
// creation time, newest first.
type ListOpts struct {
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
	// Stage filters by stage. Empty means all stages.
	Stage Stage
}

// Store defines the persistence contract for job records. The store is the
// durable source of truth: a crash mid-stage leaves the last committed
// record intact and inspectable.
type Store interface {
	// CreateJob persists a new record. Returns provision.ErrJobAlreadyExists
	// if the id is already present.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a record by ID. Returns provision.ErrJobNotFound
	// for unknown ids.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// UpdateJob applies mutate under a per-id mutual exclusion guarantee:
	// concurrent readers never observe a partially written record and no
	// two updates interleave. Returns the committed record.
	UpdateJob(ctx context.Context, jobID id.JobID, mutate Mutator) (*Job, error)

	// ListJobs returns records matching opts, newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of records in the given stage.
	// The zero Stage counts all records.
	CountJobs(ctx context.Context, stage Stage) (int, error)

	// Migrate prepares backend schema or indexes.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases store resources.
	Close() error
}
