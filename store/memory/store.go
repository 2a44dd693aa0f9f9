// Package memory provides a fully in-memory job store.
// Safe for concurrent access. Intended for unit testing and development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
)

var _ job.Store = (*Store)(nil)

// Store is an in-memory implementation of job.Store. Records are cloned
// on the way in and out so callers can never mutate persisted state
// outside UpdateJob.
type Store struct {
	mu     sync.RWMutex
	jobs   map[string]*job.Job
	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*job.Job),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle — Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping reports whether the store is open.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return provision.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Further operations fail with
// provision.ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job record.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return provision.ErrStoreClosed
	}

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return provision.ErrJobAlreadyExists
	}
	m.jobs[key] = j.Clone()
	return nil
}

// GetJob retrieves a job record by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, provision.ErrStoreClosed
	}

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, provision.ErrJobNotFound
	}
	return j.Clone(), nil
}

// UpdateJob applies mutate to the current record under the store lock.
// Terminal records are immutable: mutating one fails with
// provision.ErrInvalidState before mutate runs.
func (m *Store) UpdateJob(_ context.Context, jobID id.JobID, mutate job.Mutator) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, provision.ErrStoreClosed
	}

	cur, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, provision.ErrJobNotFound
	}
	if cur.Terminal() {
		return nil, provision.ErrInvalidState
	}

	// Mutate a clone so an aborting mutator leaves the record untouched.
	next := cur.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	m.jobs[jobID.String()] = next

	return next.Clone(), nil
}

// ListJobs returns records matching opts, newest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, provision.ErrStoreClosed
	}

	result := make([]*job.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.Stage != "" && j.Stage != opts.Stage {
			continue
		}
		result = append(result, j.Clone())
	}

	sort.Slice(result, func(i, k int) bool {
		return result[i].CreatedAt.After(result[k].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}

	return result, nil
}

// CountJobs returns the number of records in the given stage.
// The zero Stage counts all records.
func (m *Store) CountJobs(_ context.Context, stage job.Stage) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, provision.ErrStoreClosed
	}

	if stage == "" {
		return len(m.jobs), nil
	}

	count := 0
	for _, j := range m.jobs {
		if j.Stage == stage {
			count++
		}
	}
	return count, nil
}
