package client_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/storeforge/provision/api"
	"github.com/storeforge/provision/client"
	"github.com/storeforge/provision/hook"
	"github.com/storeforge/provision/id"
	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/orchestrator"
	"github.com/storeforge/provision/runner"
	"github.com/storeforge/provision/step"
	"github.com/storeforge/provision/steps"
	"github.com/storeforge/provision/store/memory"
	"github.com/storeforge/provision/stream"
)

// ── Test Helpers ──────────────────────────────────────

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clientTest struct {
	client *client.Client
	store  *memory.Store
	orch   *orchestrator.Orchestrator
	broker *stream.Broker
}

// setupClientTest runs a full provisioning server on httptest and builds
// a client pointed at it.
func setupClientTest(t *testing.T) *clientTest {
	t.Helper()

	logger := testLogger()
	store := memory.New()

	reg := step.NewRegistry()
	if err := steps.RegisterAll(reg, steps.WithDelay(0)); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	broker := stream.NewBroker(logger)
	hooks := hook.NewRegistry(logger)
	hooks.Register(broker)
	orch := orchestrator.New(store, reg, hooks, logger)
	run := runner.New(orch, store, logger)

	srv := &api.Server{Orch: orch, Runner: run, Store: store, Logger: logger, Stream: broker}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	c, err := client.New(ts.URL, client.WithLogger(logger))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	return &clientTest{client: c, store: store, orch: orch, broker: broker}
}

func validInput() job.Input {
	return job.Input{
		ClientName:      "Acme",
		StoreName:       "Acme Gadgets",
		Email:           "owner@acme.example",
		BusinessType:    "ecommerce",
		ProductCategory: "iphone",
		ProductCount:    5,
	}
}

// ── Constructor ───────────────────────────────────────

func TestClient_InvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative/path"} {
		if _, err := client.New(raw); err == nil {
			t.Errorf("New(%q): expected error", raw)
		}
	}
}

// ── Store Lifecycle ───────────────────────────────────

func TestClient_CreateStoreAndWait(t *testing.T) {
	ct := setupClientTest(t)
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	created, err := ct.client.CreateStore(ctx, validInput())
	if err != nil {
		t.Fatalf("CreateStore: %v", err)
	}
	if created.JobID == "" {
		t.Fatal("empty job id")
	}
	if created.Stage != job.StageQueued {
		t.Errorf("stage: want %q, got %q", job.StageQueued, created.Stage)
	}

	status, err := ct.client.WaitForCompletion(ctx, created.JobID, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForCompletion: %v", err)
	}
	if status.Stage != job.StageCompleted {
		t.Fatalf("stage: want completed, got %q (error: %v)", status.Stage, status.Error)
	}
	if status.ProgressPercent != 100 {
		t.Errorf("progress: want 100, got %d", status.ProgressPercent)
	}
	if status.StoreURL == "" {
		t.Error("no store_url on completed status")
	}
	if status.CompletedAt == nil {
		t.Error("no completed_at on completed status")
	}
}

func TestClient_CreateStoreInvalidInput(t *testing.T) {
	ct := setupClientTest(t)

	input := validInput()
	input.Email = "not-an-email"
	_, err := ct.client.CreateStore(t.Context(), input)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 400 {
		t.Errorf("status: want 400, got %d", apiErr.StatusCode)
	}
	if apiErr.Message == "" {
		t.Error("empty error message")
	}
}

func TestClient_GetStoreFullRecord(t *testing.T) {
	ct := setupClientTest(t)
	ctx := t.Context()

	j, err := ct.orch.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := ct.client.GetStore(ctx, j.ID.String())
	if err != nil {
		t.Fatalf("GetStore: %v", err)
	}
	if got.ID != j.ID {
		t.Errorf("id: want %s, got %s", j.ID, got.ID)
	}
	if got.Input.StoreName != "Acme Gadgets" {
		t.Errorf("input.store_name: got %q", got.Input.StoreName)
	}
}

func TestClient_GetStoreNotFound(t *testing.T) {
	ct := setupClientTest(t)

	_, err := ct.client.GetStatus(t.Context(), id.NewJobID().String())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 404 {
		t.Errorf("status: want 404, got %d", apiErr.StatusCode)
	}
}

func TestClient_ListStores(t *testing.T) {
	ct := setupClientTest(t)
	ctx := t.Context()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		input := validInput()
		input.StoreName = fmt.Sprintf("Store %d", i)
		j := job.New(input)
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := ct.store.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	stores, err := ct.client.ListStores(ctx, client.ListOptions{})
	if err != nil {
		t.Fatalf("ListStores: %v", err)
	}
	if len(stores) != 3 {
		t.Fatalf("len: want 3, got %d", len(stores))
	}
	if stores[0].StoreName != "Store 2" {
		t.Errorf("expected newest first, got %q", stores[0].StoreName)
	}

	paged, err := ct.client.ListStores(ctx, client.ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListStores paged: %v", err)
	}
	if len(paged) != 1 {
		t.Fatalf("paged len: want 1, got %d", len(paged))
	}

	completed, err := ct.client.ListStores(ctx, client.ListOptions{Stage: job.StageCompleted})
	if err != nil {
		t.Fatalf("ListStores filtered: %v", err)
	}
	if len(completed) != 0 {
		t.Errorf("completed filter: want 0, got %d", len(completed))
	}
}

func TestClient_Stats(t *testing.T) {
	ct := setupClientTest(t)
	ctx := t.Context()

	for i := 0; i < 2; i++ {
		if err := ct.store.CreateJob(ctx, job.New(validInput())); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	stats, err := ct.client.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 {
		t.Errorf("total: want 2, got %d", stats.Total)
	}
	if stats.ByStage["queued"] != 2 {
		t.Errorf("by_stage.queued: want 2, got %d", stats.ByStage["queued"])
	}
}

func TestClient_Health(t *testing.T) {
	ct := setupClientTest(t)
	ctx := t.Context()

	if err := ct.client.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}

	if err := ct.store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := ct.client.Health(ctx)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError after store close, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 503 {
		t.Errorf("status: want 503, got %d", apiErr.StatusCode)
	}
}

// ── Event Streaming ───────────────────────────────────

func TestClient_WatchReceivesEvents(t *testing.T) {
	ct := setupClientTest(t)
	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	// Create the record without submitting it so events can be published
	// once the subscription is live.
	j, err := ct.orch.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ch, err := ct.client.Watch(ctx, j.ID.String())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := ct.broker.OnJobQueued(ctx, j); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case evt := <-ch:
		if evt.Type != stream.EventStoreRequested {
			t.Errorf("type: want %q, got %q", stream.EventStoreRequested, evt.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Cancelling the context ends the stream and closes the channel.
	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after cancel")
		}
	}
}

func TestClient_WatchUnknownJob(t *testing.T) {
	ct := setupClientTest(t)

	_, err := ct.client.Watch(t.Context(), id.NewJobID().String())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != 404 {
		t.Errorf("status: want 404, got %d", apiErr.StatusCode)
	}
}
