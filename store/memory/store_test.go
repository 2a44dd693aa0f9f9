package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/store/memory"
)

func newJob(t *testing.T) *job.Job {
	t.Helper()
	input := job.Input{
		ClientName:      "Acme",
		StoreName:       "Acme Gadgets",
		Email:           "owner@acme.example",
		BusinessType:    "ecommerce",
		ProductCategory: "iphone",
		ProductCount:    5,
	}
	if err := input.Validate(); err != nil {
		t.Fatalf("input should be valid: %v", err)
	}
	return job.New(input)
}

func TestCreateAndGetJob(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("id = %s, want %s", got.ID, j.ID)
	}
	if got.Stage != job.StageQueued {
		t.Errorf("stage = %s, want %s", got.Stage, job.StageQueued)
	}
	if got.Progress != 0 {
		t.Errorf("progress = %d, want 0", got.Progress)
	}
}

func TestCreateJobDuplicate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := s.CreateJob(ctx, j); !errors.Is(err, provision.ErrJobAlreadyExists) {
		t.Fatalf("expected ErrJobAlreadyExists, got %v", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := memory.New()

	_, err := s.GetJob(context.Background(), newJob(t).ID)
	if !errors.Is(err, provision.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestGetJobReturnsCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	got.Stage = job.StageFailed
	got.Message = "mutated"

	again, _ := s.GetJob(ctx, j.ID)
	if again.Stage != job.StageQueued {
		t.Errorf("store record mutated through returned copy: stage = %s", again.Stage)
	}
}

func TestUpdateJob(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	updated, err := s.UpdateJob(ctx, j.ID, func(r *job.Job) error {
		r.Stage = job.StageAccountCreate
		r.Message = job.StageAccountCreate.ActivityMessage()
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if updated.Stage != job.StageAccountCreate {
		t.Errorf("stage = %s, want %s", updated.Stage, job.StageAccountCreate)
	}
	if !updated.UpdatedAt.After(j.UpdatedAt) && !updated.UpdatedAt.Equal(j.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: %v vs %v", updated.UpdatedAt, j.UpdatedAt)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Stage != job.StageAccountCreate {
		t.Errorf("update not persisted: stage = %s", got.Stage)
	}
}

func TestUpdateJobMutatorErrorAborts(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	abort := errors.New("abort")
	_, err := s.UpdateJob(ctx, j.ID, func(r *job.Job) error {
		r.Stage = job.StageFailed
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	got, _ := s.GetJob(ctx, j.ID)
	if got.Stage != job.StageQueued {
		t.Errorf("aborted mutator leaked changes: stage = %s", got.Stage)
	}
}

func TestUpdateJobTerminalRejected(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	now := time.Now().UTC()
	if _, err := s.UpdateJob(ctx, j.ID, func(r *job.Job) error {
		r.Stage = job.StageCompleted
		r.Progress = 100
		r.CompletedAt = &now
		return nil
	}); err != nil {
		t.Fatalf("UpdateJob to completed: %v", err)
	}

	_, err := s.UpdateJob(ctx, j.ID, func(r *job.Job) error {
		r.Message = "should not happen"
		return nil
	})
	if !errors.Is(err, provision.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for terminal record, got %v", err)
	}
}

func TestUpdateJobNotFound(t *testing.T) {
	s := memory.New()

	_, err := s.UpdateJob(context.Background(), newJob(t).ID, func(_ *job.Job) error { return nil })
	if !errors.Is(err, provision.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestListJobsNewestFirst(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	jobs := make([]*job.Job, 3)
	for i := range jobs {
		j := newJob(t)
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		jobs[i] = j
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	got, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(got))
	}
	// Newest first: jobs[2], jobs[1], jobs[0].
	for i := range got {
		want := jobs[len(jobs)-1-i].ID
		if got[i].ID != want {
			t.Errorf("got[%d].ID = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestListJobsFilterAndPagination(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		j := newJob(t)
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		if i%2 == 0 {
			now := time.Now().UTC()
			if _, err := s.UpdateJob(ctx, j.ID, func(r *job.Job) error {
				r.Stage = job.StageCompleted
				r.Progress = 100
				r.CompletedAt = &now
				return nil
			}); err != nil {
				t.Fatalf("UpdateJob: %v", err)
			}
		}
	}

	completed, err := s.ListJobs(ctx, job.ListOpts{Stage: job.StageCompleted})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(completed) != 3 {
		t.Fatalf("expected 3 completed jobs, got %d", len(completed))
	}

	page, err := s.ListJobs(ctx, job.ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	past, err := s.ListJobs(ctx, job.ListOpts{Offset: 100})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(past) != 0 {
		t.Fatalf("expected empty page past the end, got %d", len(past))
	}
}

func TestCountJobs(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		j := newJob(t)
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
		if i == 0 {
			now := time.Now().UTC()
			if _, err := s.UpdateJob(ctx, j.ID, func(r *job.Job) error {
				r.Stage = job.StageFailed
				r.CompletedAt = &now
				return nil
			}); err != nil {
				t.Fatalf("UpdateJob: %v", err)
			}
		}
	}

	total, err := s.CountJobs(ctx, "")
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}

	queued, err := s.CountJobs(ctx, job.StageQueued)
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if queued != 3 {
		t.Errorf("queued = %d, want 3", queued)
	}

	failed, err := s.CountJobs(ctx, job.StageFailed)
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	j := newJob(t)
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.UpdateJob(ctx, j.ID, func(r *job.Job) error {
				r.Progress++
				return nil
			})
		}()
	}
	wg.Wait()

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Progress != n {
		t.Errorf("progress = %d, want %d (lost updates)", got.Progress, n)
	}
}

func TestClosedStore(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping on open store: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, provision.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	if err := s.CreateJob(ctx, newJob(t)); !errors.Is(err, provision.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}
