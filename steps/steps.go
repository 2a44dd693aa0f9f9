// Package steps provides the stage handlers for the provisioning
// pipeline. The handlers simulate the storefront platform's control
// surface: they produce the same records and session handles a real
// integration would, with configurable latency instead of network calls.
package steps

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/step"
)

// Session keys shared between stages. Earlier stages deposit platform
// handles here; later stages fail fast when a handle they need is absent.
const (
	SessionKeyStoreSlug = "store_slug"
	SessionKeyStoreURL  = "store_url"
	SessionKeyAdminURL  = "admin_url"
)

// RegisterAll binds all four pipeline handlers to the registry.
func RegisterAll(reg *step.Registry, opts ...Option) error {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	handlers := map[job.Stage]step.Handler{
		job.StageAccountCreate:     &AccountCreate{delay: cfg.delay},
		job.StageCredentialAcquire: &CredentialAcquire{delay: cfg.delay},
		job.StageCatalogImport:     &CatalogImport{delay: cfg.delay, concurrency: cfg.importConcurrency},
		job.StageOwnershipTransfer: &OwnershipTransfer{delay: cfg.delay},
	}
	for stage, h := range handlers {
		if err := reg.Register(stage, h); err != nil {
			return err
		}
	}
	return nil
}

type config struct {
	delay             time.Duration
	importConcurrency int
}

func defaultConfig() config {
	return config{
		delay:             50 * time.Millisecond,
		importConcurrency: 5,
	}
}

// Option configures the stage handlers.
type Option func(*config)

// WithDelay sets the simulated latency of each external interaction.
// Zero disables the delay entirely; tests use this.
func WithDelay(d time.Duration) Option {
	return func(c *config) { c.delay = d }
}

// WithImportConcurrency caps how many products are uploaded in parallel
// during catalog import.
func WithImportConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.importConcurrency = n
		}
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slugify converts a store name into a platform subdomain handle.
func slugify(name string) string {
	var b strings.Builder
	prevDash := true // trim leading dashes
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
