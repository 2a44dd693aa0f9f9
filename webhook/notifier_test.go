package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/webhook"
)

type capturedDelivery struct {
	header   string
	envelope webhook.Envelope
	raw      map[string]any
}

// captureServer records every delivery it receives.
type captureServer struct {
	mu         sync.Mutex
	deliveries []capturedDelivery
	status     int
}

func (c *captureServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}

		var env webhook.Envelope
		var raw struct {
			Data map[string]any `json:"data"`
		}
		dec := json.NewDecoder(r.Body)
		buf := json.RawMessage{}
		if err := dec.Decode(&buf); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.Unmarshal(buf, &env) //nolint:errcheck // shape verified below
		_ = json.Unmarshal(buf, &raw) //nolint:errcheck // shape verified below

		c.mu.Lock()
		c.deliveries = append(c.deliveries, capturedDelivery{
			header:   r.Header.Get("X-Provision-Event"),
			envelope: env,
			raw:      raw.Data,
		})
		status := c.status
		c.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
	}
}

func (c *captureServer) last() *capturedDelivery {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.deliveries) == 0 {
		return nil
	}
	return &c.deliveries[len(c.deliveries)-1]
}

func (c *captureServer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.deliveries)
}

func newTestJob() *job.Job {
	j := job.New(job.Input{
		ClientName:      "Acme",
		StoreName:       "Acme Gadgets",
		Email:           "owner@acme.example",
		BusinessType:    "ecommerce",
		ProductCategory: "iphone",
		ProductCount:    5,
	})
	return j
}

func TestNotifier_Name(t *testing.T) {
	n := webhook.New("http://localhost/hook")
	if n.Name() != "webhook-notifier" {
		t.Errorf("expected name %q, got %q", "webhook-notifier", n.Name())
	}
}

func TestNotifier_StoreRequested(t *testing.T) {
	rec := &captureServer{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := webhook.New(srv.URL)
	j := newTestJob()

	if err := n.OnJobQueued(context.Background(), j); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}

	d := rec.last()
	if d == nil {
		t.Fatal("no delivery received")
	}
	if d.header != webhook.EventStoreRequested {
		t.Errorf("header: want %q, got %q", webhook.EventStoreRequested, d.header)
	}
	if d.envelope.Type != webhook.EventStoreRequested {
		t.Errorf("envelope type: want %q, got %q", webhook.EventStoreRequested, d.envelope.Type)
	}
	if d.raw["job_id"] != j.ID.String() {
		t.Errorf("data.job_id: want %q, got %v", j.ID.String(), d.raw["job_id"])
	}
	if d.raw["store_name"] != "Acme Gadgets" {
		t.Errorf("data.store_name: got %v", d.raw["store_name"])
	}
}

func TestNotifier_StoreCompletedCarriesResult(t *testing.T) {
	rec := &captureServer{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := webhook.New(srv.URL)
	j := newTestJob()
	j.Result.StoreURL = "https://acme-gadgets.myshopify.com"
	j.Result.AdminURL = "https://acme-gadgets.myshopify.com/admin"

	if err := n.OnJobCompleted(context.Background(), j, 1500*time.Millisecond); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}

	d := rec.last()
	if d.raw["store_url"] != "https://acme-gadgets.myshopify.com" {
		t.Errorf("data.store_url: got %v", d.raw["store_url"])
	}
	if d.raw["elapsed_ms"] != float64(1500) {
		t.Errorf("data.elapsed_ms: got %v", d.raw["elapsed_ms"])
	}
}

func TestNotifier_StageFailedCarriesError(t *testing.T) {
	rec := &captureServer{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := webhook.New(srv.URL)
	j := newTestJob()

	err := n.OnStageFailed(context.Background(), j, job.StageCatalogImport, errors.New("upload rejected"))
	if err != nil {
		t.Fatalf("OnStageFailed: %v", err)
	}

	d := rec.last()
	if d.header != webhook.EventStageFailed {
		t.Errorf("header: want %q, got %q", webhook.EventStageFailed, d.header)
	}
	if d.raw["stage_name"] != string(job.StageCatalogImport) {
		t.Errorf("data.stage_name: got %v", d.raw["stage_name"])
	}
	if d.raw["error"] != "upload rejected" {
		t.Errorf("data.error: got %v", d.raw["error"])
	}
}

func TestNotifier_WithEvents_FiltersDisabled(t *testing.T) {
	rec := &captureServer{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := webhook.New(srv.URL, webhook.WithEvents(webhook.EventStoreCompleted, webhook.EventStoreFailed))
	ctx := context.Background()
	j := newTestJob()

	if err := n.OnStageStarted(ctx, j, job.StageAccountCreate); err != nil {
		t.Fatalf("OnStageStarted: %v", err)
	}
	if rec.count() != 0 {
		t.Errorf("expected 0 deliveries (stage events disabled), got %d", rec.count())
	}

	if err := n.OnJobCompleted(ctx, j, time.Second); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 delivery, got %d", rec.count())
	}
}

func TestNotifier_WithPayloadFunc(t *testing.T) {
	rec := &captureServer{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := webhook.New(srv.URL,
		webhook.WithPayloadFunc(webhook.EventStoreRequested, func(_ any) (any, error) {
			return map[string]string{"custom": "payload"}, nil
		}),
	)

	if err := n.OnJobQueued(context.Background(), newTestJob()); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}

	d := rec.last()
	if d.raw["custom"] != "payload" {
		t.Errorf("expected custom payload, got %v", d.raw)
	}
}

func TestNotifier_ErrorStatusReported(t *testing.T) {
	rec := &captureServer{status: http.StatusBadGateway}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	n := webhook.New(srv.URL)

	err := n.OnJobQueued(context.Background(), newTestJob())
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestNotifier_UnreachableEndpoint(t *testing.T) {
	n := webhook.New("http://127.0.0.1:1", webhook.WithHTTPClient(&http.Client{Timeout: 200 * time.Millisecond}))

	err := n.OnJobQueued(context.Background(), newTestJob())
	if err == nil {
		t.Fatal("expected error for unreachable endpoint")
	}
}

func TestAllEvents(t *testing.T) {
	if len(webhook.AllEvents()) != 6 {
		t.Errorf("expected 6 event types, got %d", len(webhook.AllEvents()))
	}
}
