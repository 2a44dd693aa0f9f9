package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
)

// maxCASRetries bounds the compare-and-swap retry loop in UpdateJob.
const maxCASRetries = 5

// CreateJob persists a new job record.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m := toJobModel(j, 1)
	_, err := s.db.Collection(colJobs).InsertOne(ctx, m)
	if err != nil {
		if isDuplicateKey(err) {
			return provision.ErrJobAlreadyExists
		}
		return fmt.Errorf("provision/mongo: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, provision.ErrJobNotFound
		}
		return nil, fmt.Errorf("provision/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// UpdateJob applies mutate via compare-and-swap on the record's version
// counter, retrying when a concurrent writer got there first. Terminal
// records fail with provision.ErrInvalidState before mutate runs.
func (s *Store) UpdateJob(ctx context.Context, jobID id.JobID, mutate job.Mutator) (*job.Job, error) {
	col := s.db.Collection(colJobs)

	for i := 0; i < maxCASRetries; i++ {
		var m jobModel
		err := col.FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				return nil, provision.ErrJobNotFound
			}
			return nil, fmt.Errorf("provision/mongo: update read: %w", err)
		}

		cur, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}
		if cur.Terminal() {
			return nil, provision.ErrInvalidState
		}

		if mutateErr := mutate(cur); mutateErr != nil {
			return nil, mutateErr
		}
		cur.UpdatedAt = now()

		next := toJobModel(cur, m.Version+1)
		res, err := col.ReplaceOne(ctx,
			bson.M{"_id": m.ID, "version": m.Version},
			next,
		)
		if err != nil {
			return nil, fmt.Errorf("provision/mongo: update job: %w", err)
		}
		if res.MatchedCount == 1 {
			return cur, nil
		}
		// Lost the race. Reload and retry.
	}
	return nil, fmt.Errorf("provision/mongo: update job %s: too many concurrent writes", jobID)
}

// ListJobs returns records matching opts, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	filter := bson.M{}
	if opts.Stage != "" {
		filter["stage"] = string(opts.Stage)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colJobs).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("provision/mongo: list jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("provision/mongo: list jobs decode: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("provision/mongo: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobs returns the number of records in the given stage.
// The zero Stage counts all records.
func (s *Store) CountJobs(ctx context.Context, stage job.Stage) (int, error) {
	filter := bson.M{}
	if stage != "" {
		filter["stage"] = string(stage)
	}
	count, err := s.db.Collection(colJobs).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("provision/mongo: count jobs: %w", err)
	}
	return int(count), nil
}
