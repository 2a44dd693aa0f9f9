package bunstore

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
)

// CreateJob persists a new job record.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			return provision.ErrJobAlreadyExists
		}
		return fmt.Errorf("provision/bun: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, provision.ErrJobNotFound
		}
		return nil, fmt.Errorf("provision/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob applies mutate inside a transaction holding a row lock, so
// concurrent updates to the same record serialize at the database.
// Terminal records fail with provision.ErrInvalidState before mutate runs.
func (s *Store) UpdateJob(ctx context.Context, jobID id.JobID, mutate job.Mutator) (*job.Job, error) {
	var committed *job.Job

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		m := new(jobModel)
		selectErr := tx.NewSelect().Model(m).
			Where("id = ?", jobID.String()).
			For("UPDATE").
			Limit(1).
			Scan(ctx)
		if selectErr != nil {
			if isNoRows(selectErr) {
				return provision.ErrJobNotFound
			}
			return fmt.Errorf("provision/bun: lock job: %w", selectErr)
		}

		cur, convErr := fromJobModel(m)
		if convErr != nil {
			return convErr
		}
		if cur.Terminal() {
			return provision.ErrInvalidState
		}

		if mutateErr := mutate(cur); mutateErr != nil {
			return mutateErr
		}
		cur.UpdatedAt = time.Now().UTC()

		next, modelErr := toJobModel(cur)
		if modelErr != nil {
			return modelErr
		}
		if _, updateErr := tx.NewUpdate().Model(next).WherePK().Exec(ctx); updateErr != nil {
			return fmt.Errorf("provision/bun: update job: %w", updateErr)
		}

		committed = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// ListJobs returns records matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models)

	if opts.Stage != "" {
		q = q.Where("stage = ?", string(opts.Stage))
	}

	q = q.Order("created_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("provision/bun: list jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("provision/bun: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobs returns the number of records in the given stage.
// The zero Stage counts all records.
func (s *Store) CountJobs(ctx context.Context, stage job.Stage) (int, error) {
	q := s.db.NewSelect().Model((*jobModel)(nil))
	if stage != "" {
		q = q.Where("stage = ?", string(stage))
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("provision/bun: count jobs: %w", err)
	}
	return count, nil
}
