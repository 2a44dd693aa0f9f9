// Package orchestrator drives the four-stage provisioning pipeline.
//
// The orchestrator owns all job record mutations after acceptance: it
// advances the stage pointer, commits progress checkpoints, accumulates
// stage results, and records terminal failure. Stage handlers never touch
// the store.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storeforge/provision"
	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/middleware"
	"github.com/storeforge/provision/session"
	"github.com/storeforge/provision/step"
)

// sessionCloseTimeout bounds session teardown so a hung external handle
// cannot block pipeline completion indefinitely.
const sessionCloseTimeout = 30 * time.Second

// Emitter emits provisioning lifecycle events. It is satisfied by
// hook.Registry; defining the interface here keeps this package free of
// a hook dependency and lets tests inject fakes.
type Emitter interface {
	EmitJobQueued(ctx context.Context, j *job.Job)
	EmitStageStarted(ctx context.Context, j *job.Job, stage job.Stage)
	EmitStageCompleted(ctx context.Context, j *job.Job, stage job.Stage, elapsed time.Duration)
	EmitStageFailed(ctx context.Context, j *job.Job, stage job.Stage, err error)
	EmitJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration)
	EmitJobFailed(ctx context.Context, j *job.Job, err error)
}

// Orchestrator executes provisioning jobs stage by stage against the
// durable store. It is safe for concurrent use; per-record consistency is
// delegated to the store's atomic update.
type Orchestrator struct {
	store    job.Store
	handlers *step.Registry
	chain    middleware.Middleware
	emitter  Emitter
	logger   *slog.Logger
}

// New creates an orchestrator. The middleware chain wraps every stage
// execution in the order given (first middleware is outermost).
func New(store job.Store, handlers *step.Registry, emitter Emitter, logger *slog.Logger, mw ...middleware.Middleware) *Orchestrator {
	return &Orchestrator{
		store:    store,
		handlers: handlers,
		chain:    middleware.Chain(mw...),
		emitter:  emitter,
		logger:   logger,
	}
}

// Create validates the input and persists a new queued job record. The
// record is not executed; submit its id to a runner (or call Run) to
// start the pipeline.
func (o *Orchestrator) Create(ctx context.Context, input job.Input) (*job.Job, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	j := job.New(input)
	if err := o.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	o.logger.Info("job queued",
		slog.String("job_id", j.ID.String()),
		slog.String("store_name", j.Input.StoreName),
	)
	o.emitter.EmitJobQueued(ctx, j)

	return j, nil
}

// Run executes the job's remaining stages to completion or first failure.
//
// A stage failure is an outcome, not an error: the record is marked
// failed with the failing stage and description, progress frozen at the
// last committed checkpoint, and Run returns nil. A non-nil return means
// the pipeline itself could not make progress (store unreachable, missing
// handler) and the record may be left mid-flight for a later resume.
//
// Running a terminal job is a no-op. Re-running a mid-flight job (crash
// recovery) picks up from the last committed checkpoint with a fresh
// session; the interrupted stage re-executes from scratch.
func (o *Orchestrator) Run(ctx context.Context, jobID id.JobID) error {
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job %s: %w", jobID, err)
	}
	if j.Terminal() {
		o.logger.Debug("job already terminal, skipping",
			slog.String("job_id", jobID.String()),
			slog.String("stage", string(j.Stage)),
		)
		return nil
	}

	stages := remainingStages(j)

	// External handles live for the whole pipeline and are torn down on
	// every exit path, success or failure.
	sess := session.New()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
		defer cancel()
		if closeErr := sess.Close(closeCtx); closeErr != nil {
			o.logger.Error("session teardown error",
				slog.String("job_id", jobID.String()),
				slog.String("session_id", sess.ID().String()),
				slog.String("error", closeErr.Error()),
			)
		}
	}()

	start := time.Now()

	for _, stage := range stages {
		handler, ok := o.handlers.Get(stage)
		if !ok {
			return fmt.Errorf("stage %s: %w", stage, provision.ErrNoHandler)
		}

		// Transition-in commit: a crash from here on shows this stage as
		// in flight, with progress still at the previous checkpoint.
		j, err = o.store.UpdateJob(ctx, jobID, func(r *job.Job) error {
			r.Stage = stage
			r.Message = stage.ActivityMessage()
			return nil
		})
		if err != nil {
			return fmt.Errorf("enter stage %s for job %s: %w", stage, jobID, err)
		}

		o.emitter.EmitStageStarted(ctx, j, stage)
		o.logger.Info("stage started",
			slog.String("job_id", jobID.String()),
			slog.String("stage", string(stage)),
		)

		stageStart := time.Now()
		out, execErr := o.chain(ctx, j, stage, func(ctx context.Context) (job.Result, error) {
			return handler.Execute(ctx, sess, j)
		})
		stageElapsed := time.Since(stageStart)

		if execErr != nil {
			return o.failJob(ctx, jobID, j, stage, execErr)
		}

		// Checkpoint commit: result merged, progress advanced. Stage stays
		// put until the next transition-in so a crash here is indistinguishable
		// from one just before the next stage begins. The last stage folds
		// completion into the same commit: full progress and a non-terminal
		// stage must never be readable together, not even transiently.
		_, hasNext := stage.Next()
		j, err = o.store.UpdateJob(ctx, jobID, func(r *job.Job) error {
			r.Result.Merge(out)
			r.Progress = stage.Checkpoint()
			if !hasNext {
				now := time.Now().UTC()
				r.Stage = job.StageCompleted
				r.Message = job.StageCompleted.ActivityMessage()
				r.CompletedAt = &now
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("commit stage %s for job %s: %w", stage, jobID, err)
		}

		o.emitter.EmitStageCompleted(ctx, j, stage, stageElapsed)
		o.logger.Info("stage completed",
			slog.String("job_id", jobID.String()),
			slog.String("stage", string(stage)),
			slog.Int("progress", j.Progress),
			slog.Duration("elapsed", stageElapsed),
		)
	}

	// Normally the last checkpoint already completed the record. The
	// commit here only covers the resume path where every stage had
	// committed but the record was left mid-flight.
	if !j.Terminal() {
		now := time.Now().UTC()
		j, err = o.store.UpdateJob(ctx, jobID, func(r *job.Job) error {
			r.Stage = job.StageCompleted
			r.Progress = 100
			r.Message = job.StageCompleted.ActivityMessage()
			r.CompletedAt = &now
			return nil
		})
		if err != nil {
			return fmt.Errorf("complete job %s: %w", jobID, err)
		}
	}

	elapsed := time.Since(start)
	o.emitter.EmitJobCompleted(ctx, j, elapsed)
	o.logger.Info("job completed",
		slog.String("job_id", jobID.String()),
		slog.String("store_url", j.Result.StoreURL),
		slog.Duration("elapsed", elapsed),
	)

	return nil
}

// failJob records a terminal stage failure. Progress stays frozen at the
// last committed checkpoint.
func (o *Orchestrator) failJob(ctx context.Context, jobID id.JobID, j *job.Job, stage job.Stage, execErr error) error {
	o.emitter.EmitStageFailed(ctx, j, stage, execErr)

	now := time.Now().UTC()
	failed, err := o.store.UpdateJob(ctx, jobID, func(r *job.Job) error {
		r.Stage = job.StageFailed
		r.Error = &job.StageError{Stage: stage, Description: execErr.Error()}
		r.Message = fmt.Sprintf("Store creation failed during %s.", stage)
		r.CompletedAt = &now
		return nil
	})
	if err != nil {
		return fmt.Errorf("record failure of stage %s for job %s: %w", stage, jobID, err)
	}

	o.emitter.EmitJobFailed(ctx, failed, execErr)
	o.logger.Error("job failed",
		slog.String("job_id", jobID.String()),
		slog.String("stage", string(stage)),
		slog.Int("progress", failed.Progress),
		slog.String("error", execErr.Error()),
	)

	return nil
}

// remainingStages derives which pipeline stages still need to run from
// the persisted stage pointer and progress checkpoint.
//
// A queued record runs the whole pipeline. A record whose progress is
// below its stage's checkpoint was interrupted mid-stage and re-runs that
// stage. A record whose checkpoint committed continues with the next
// stage; if the last stage committed but the completion mark did not,
// the slice is empty and Run only finalizes the record.
func remainingStages(j *job.Job) []job.Stage {
	if j.Stage == job.StageQueued {
		return job.Pipeline()
	}

	all := job.Pipeline()
	for i, stage := range all {
		if stage != j.Stage {
			continue
		}
		if j.Progress < stage.Checkpoint() {
			return all[i:]
		}
		return all[i+1:]
	}
	return all
}
