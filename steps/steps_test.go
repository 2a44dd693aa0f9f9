package steps_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/orchestrator"
	"github.com/storeforge/provision/session"
	"github.com/storeforge/provision/step"
	"github.com/storeforge/provision/steps"
	"github.com/storeforge/provision/store/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validInput() job.Input {
	return job.Input{
		ClientName:      "Acme",
		StoreName:       "Acme Gadgets & Co",
		Email:           "owner@acme.example",
		BusinessType:    "ecommerce",
		ProductCategory: "iphone",
		ProductCount:    8,
	}
}

// nopEmitter satisfies orchestrator.Emitter.
type nopEmitter struct{}

func (nopEmitter) EmitJobQueued(context.Context, *job.Job) {}

func (nopEmitter) EmitStageStarted(context.Context, *job.Job, job.Stage) {}

func (nopEmitter) EmitStageCompleted(context.Context, *job.Job, job.Stage, time.Duration) {}

func (nopEmitter) EmitStageFailed(context.Context, *job.Job, job.Stage, error) {}

func (nopEmitter) EmitJobCompleted(context.Context, *job.Job, time.Duration) {}

func (nopEmitter) EmitJobFailed(context.Context, *job.Job, error) {}

func newRegistry(t *testing.T) *step.Registry {
	t.Helper()
	reg := step.NewRegistry()
	if err := steps.RegisterAll(reg, steps.WithDelay(0)); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	return reg
}

func TestRegisterAllBindsEveryStage(t *testing.T) {
	reg := newRegistry(t)
	if err := reg.Complete(); err != nil {
		t.Fatalf("registry incomplete: %v", err)
	}
}

func TestAccountCreate(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageAccountCreate)

	sess := session.New()
	j := job.New(validInput())

	out, err := h.Execute(context.Background(), sess, j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.StoreURL != "https://acme-gadgets-co.myshopify.com" {
		t.Errorf("store_url = %q", out.StoreURL)
	}
	if out.AdminURL != out.StoreURL+"/admin" {
		t.Errorf("admin_url = %q", out.AdminURL)
	}
	if !strings.HasPrefix(out.StoreID, "store_") {
		t.Errorf("store_id = %q, want store_ prefix", out.StoreID)
	}
	if got := sess.String(steps.SessionKeyStoreURL); got != out.StoreURL {
		t.Errorf("session store_url = %q, want %q", got, out.StoreURL)
	}
}

func TestAccountCreateRejectsUnusableName(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageAccountCreate)

	j := job.New(validInput())
	j.Input.StoreName = "!!!"

	if _, err := h.Execute(context.Background(), session.New(), j); err == nil {
		t.Fatal("expected error for name with no usable characters")
	}
}

func TestCredentialAcquire(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageCredentialAcquire)

	sess := session.New()
	sess.Set(steps.SessionKeyStoreURL, "https://acme.myshopify.com")
	j := job.New(validInput())

	out, err := h.Execute(context.Background(), sess, j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.AccessToken, "shpat_") {
		t.Errorf("access_token = %q, want shpat_ prefix", out.AccessToken)
	}
}

func TestCredentialAcquireResumesFromResult(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageCredentialAcquire)

	// Fresh session, but the committed result already carries the URL.
	j := job.New(validInput())
	j.Result.StoreURL = "https://acme.myshopify.com"

	out, err := h.Execute(context.Background(), session.New(), j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.AccessToken == "" {
		t.Error("no token minted on resume")
	}
}

func TestCredentialAcquireWithoutStore(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageCredentialAcquire)

	if _, err := h.Execute(context.Background(), session.New(), job.New(validInput())); err == nil {
		t.Fatal("expected error without a storefront handle")
	}
}

func TestCatalogImport(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageCatalogImport)

	j := job.New(validInput())
	j.Result.AccessToken = "shpat_x"

	out, err := h.Execute(context.Background(), session.New(), j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(out.ProductIDs) != j.Input.ProductCount {
		t.Fatalf("imported %d products, want %d", len(out.ProductIDs), j.Input.ProductCount)
	}
	seen := make(map[string]bool)
	for _, pid := range out.ProductIDs {
		// "iphone" resolves to the canonical phones group.
		if !strings.HasPrefix(pid, "prod_phones_") {
			t.Errorf("product id = %q, want prod_phones_ prefix", pid)
		}
		if seen[pid] {
			t.Errorf("duplicate product id %q", pid)
		}
		seen[pid] = true
	}
}

func TestCatalogImportWithoutToken(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageCatalogImport)

	if _, err := h.Execute(context.Background(), session.New(), job.New(validInput())); err == nil {
		t.Fatal("expected error without an access token")
	}
}

func TestOwnershipTransfer(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageOwnershipTransfer)

	j := job.New(validInput())
	j.Result.StoreURL = "https://acme.myshopify.com"

	out, err := h.Execute(context.Background(), session.New(), j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.TransferConfirmation, "xfer_owner-acme-example_") {
		t.Errorf("confirmation = %q", out.TransferConfirmation)
	}
}

func TestOwnershipTransferWithoutStore(t *testing.T) {
	reg := newRegistry(t)
	h, _ := reg.Get(job.StageOwnershipTransfer)

	if _, err := h.Execute(context.Background(), session.New(), job.New(validInput())); err == nil {
		t.Fatal("expected error without a storefront")
	}
}

// End-to-end through the orchestrator with the real handlers.
func TestFullPipelineWithRealHandlers(t *testing.T) {
	store := memory.New()
	o := orchestrator.New(store, newRegistry(t), nopEmitter{}, discardLogger())

	ctx := context.Background()
	j, err := o.Create(ctx, validInput())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := o.Run(ctx, j.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, err := store.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Stage != job.StageCompleted || got.Progress != 100 {
		t.Fatalf("stage=%s progress=%d, want completed/100", got.Stage, got.Progress)
	}
	if got.Result.StoreURL == "" || got.Result.AccessToken == "" ||
		len(got.Result.ProductIDs) != 8 || got.Result.TransferConfirmation == "" {
		t.Errorf("incomplete result: %+v", got.Result)
	}
}
