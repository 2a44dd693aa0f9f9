package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/storeforge/provision/hook"
	"github.com/storeforge/provision/job"
)

// Compile-time interface checks.
var (
	_ hook.Hook           = (*Notifier)(nil)
	_ hook.JobQueued      = (*Notifier)(nil)
	_ hook.JobCompleted   = (*Notifier)(nil)
	_ hook.JobFailed      = (*Notifier)(nil)
	_ hook.StageStarted   = (*Notifier)(nil)
	_ hook.StageCompleted = (*Notifier)(nil)
	_ hook.StageFailed    = (*Notifier)(nil)
)

// defaultTimeout bounds a single webhook delivery attempt.
const defaultTimeout = 10 * time.Second

// Envelope is the JSON body delivered to the webhook endpoint.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Notifier delivers provisioning lifecycle events to an HTTP endpoint.
type Notifier struct {
	endpoint string
	client   *http.Client
	enabled  map[string]bool        // nil = all enabled
	payloads map[string]PayloadFunc // custom payload builders
}

// New creates a Notifier that POSTs lifecycle events to endpoint.
func New(endpoint string, opts ...Option) *Notifier {
	n := &Notifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name implements hook.Hook.
func (n *Notifier) Name() string { return "webhook-notifier" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobQueued implements hook.JobQueued.
func (n *Notifier) OnJobQueued(ctx context.Context, j *job.Job) error {
	return n.send(ctx, EventStoreRequested, newStorePayload(j))
}

// OnJobCompleted implements hook.JobCompleted.
func (n *Notifier) OnJobCompleted(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return n.send(ctx, EventStoreCompleted, &storeCompletedPayload{
		storePayload: *newStorePayload(j),
		StoreURL:     j.Result.StoreURL,
		AdminURL:     j.Result.AdminURL,
		ElapsedMs:    elapsed.Milliseconds(),
	})
}

// OnJobFailed implements hook.JobFailed.
func (n *Notifier) OnJobFailed(ctx context.Context, j *job.Job, jobErr error) error {
	return n.send(ctx, EventStoreFailed, &storeFailedPayload{
		storePayload: *newStorePayload(j),
		Error:        jobErr.Error(),
	})
}

// ── Stage lifecycle hooks ───────────────────────────

// OnStageStarted implements hook.StageStarted.
func (n *Notifier) OnStageStarted(ctx context.Context, j *job.Job, stage job.Stage) error {
	return n.send(ctx, EventStageStarted, &stagePayload{
		storePayload: *newStorePayload(j),
		StageName:    string(stage),
	})
}

// OnStageCompleted implements hook.StageCompleted.
func (n *Notifier) OnStageCompleted(ctx context.Context, j *job.Job, stage job.Stage, elapsed time.Duration) error {
	return n.send(ctx, EventStageCompleted, &stagePayload{
		storePayload: *newStorePayload(j),
		StageName:    string(stage),
		ElapsedMs:    elapsed.Milliseconds(),
	})
}

// OnStageFailed implements hook.StageFailed.
func (n *Notifier) OnStageFailed(ctx context.Context, j *job.Job, stage job.Stage, stageErr error) error {
	return n.send(ctx, EventStageFailed, &stagePayload{
		storePayload: *newStorePayload(j),
		StageName:    string(stage),
		Error:        stageErr.Error(),
	})
}

// ── Internal helpers ────────────────────────────────

// send delivers an event envelope if the event type is enabled.
func (n *Notifier) send(ctx context.Context, eventType string, defaultData any) error {
	if n.enabled != nil && !n.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := n.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return err
		}
		data = custom
	}

	body, err := json.Marshal(&Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Provision-Event", eventType)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver %s: %w", eventType, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook: deliver %s: endpoint returned %d", eventType, resp.StatusCode)
	}
	return nil
}

// ── Default payload types ───────────────────────────

type storePayload struct {
	JobID     string `json:"job_id"`
	StoreName string `json:"store_name"`
	Stage     string `json:"stage"`
	Progress  int    `json:"progress_percent"`
	Message   string `json:"message"`
}

func newStorePayload(j *job.Job) *storePayload {
	return &storePayload{
		JobID:     j.ID.String(),
		StoreName: j.Input.StoreName,
		Stage:     string(j.Stage),
		Progress:  j.Progress,
		Message:   j.Message,
	}
}

type storeCompletedPayload struct {
	storePayload
	StoreURL  string `json:"store_url"`
	AdminURL  string `json:"admin_url,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type storeFailedPayload struct {
	storePayload
	Error string `json:"error"`
}

type stagePayload struct {
	storePayload
	StageName string `json:"stage_name"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}
