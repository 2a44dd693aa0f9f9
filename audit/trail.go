package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/storeforge/provision/hook"
	"github.com/storeforge/provision/job"
)

// Compile-time interface checks.
var (
	_ hook.Hook           = (*Trail)(nil)
	_ hook.JobQueued      = (*Trail)(nil)
	_ hook.JobCompleted   = (*Trail)(nil)
	_ hook.JobFailed      = (*Trail)(nil)
	_ hook.StageStarted   = (*Trail)(nil)
	_ hook.StageCompleted = (*Trail)(nil)
	_ hook.StageFailed    = (*Trail)(nil)
)

// Recorder is the interface that audit backends must implement. Callers
// inject their concrete audit sink at wiring time so this package does not
// depend on any particular backend.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *Event) error
}

// Event is the structured audit record emitted for each lifecycle action.
type Event struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *Event) error

func (f RecorderFunc) Record(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Trail bridges provisioning lifecycle events to an audit backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Trail struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates a Trail that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Trail {
	t := &Trail{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements hook.Hook.
func (t *Trail) Name() string { return "audit-trail" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobQueued implements hook.JobQueued.
func (t *Trail) OnJobQueued(ctx context.Context, j *job.Job) error {
	return t.record(ctx, ActionStoreRequested, SeverityInfo, OutcomeSuccess,
		j.ID.String(), CategoryStore, nil,
		"store_name", j.Input.StoreName,
		"client_name", j.Input.ClientName,
	)
}

// OnJobCompleted implements hook.JobCompleted.
func (t *Trail) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return t.record(ctx, ActionStoreCompleted, SeverityInfo, OutcomeSuccess,
		j.ID.String(), CategoryStore, nil,
		"store_name", j.Input.StoreName,
		"store_url", j.Result.StoreURL,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobFailed implements hook.JobFailed.
func (t *Trail) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return t.record(ctx, ActionStoreFailed, SeverityCritical, OutcomeFailure,
		j.ID.String(), CategoryStore, jobErr,
		"store_name", j.Input.StoreName,
		"stage", string(j.Stage),
		"progress", j.Progress,
	)
}

// ── Stage lifecycle hooks ───────────────────────────

// OnStageStarted implements hook.StageStarted.
func (t *Trail) OnStageStarted(ctx context.Context, j *job.Job, stage job.Stage) error {
	return t.record(ctx, ActionStageStarted, SeverityInfo, OutcomeSuccess,
		j.ID.String(), CategoryStage, nil,
		"stage", string(stage),
	)
}

// OnStageCompleted implements hook.StageCompleted.
func (t *Trail) OnStageCompleted(ctx context.Context, j *job.Job, stage job.Stage, elapsed time.Duration) error {
	return t.record(ctx, ActionStageCompleted, SeverityInfo, OutcomeSuccess,
		j.ID.String(), CategoryStage, nil,
		"stage", string(stage),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnStageFailed implements hook.StageFailed.
func (t *Trail) OnStageFailed(ctx context.Context, j *job.Job, stage job.Stage, stageErr error) error {
	return t.record(ctx, ActionStageFailed, SeverityCritical, OutcomeFailure,
		j.ID.String(), CategoryStage, stageErr,
		"stage", string(stage),
		"progress", j.Progress,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (t *Trail) record(
	ctx context.Context,
	action, severity, outcome string,
	resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if t.enabled != nil && !t.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &Event{
		Action:     action,
		Resource:   ResourceStore,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := t.recorder.Record(ctx, evt); recErr != nil {
		t.logger.Warn("audit: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
