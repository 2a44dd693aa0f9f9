package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/session"
	"github.com/storeforge/provision/step"
)

var _ step.Handler = (*AccountCreate)(nil)

// AccountCreate provisions the storefront account: it claims a subdomain
// derived from the store name and opens the platform session later
// stages reuse. The session handle is torn down when the pipeline ends,
// whatever the outcome.
type AccountCreate struct {
	delay time.Duration
}

// Execute implements step.Handler.
func (h *AccountCreate) Execute(ctx context.Context, sess *session.Session, j *job.Job) (job.Result, error) {
	if err := sleep(ctx, h.delay); err != nil {
		return job.Result{}, err
	}

	slug := slugify(j.Input.StoreName)
	if slug == "" {
		return job.Result{}, fmt.Errorf("store name %q yields no usable subdomain", j.Input.StoreName)
	}

	storeURL := fmt.Sprintf("https://%s.myshopify.com", slug)
	adminURL := storeURL + "/admin"
	storeID := "store_" + randomHex(8)

	sess.Set(SessionKeyStoreSlug, slug)
	sess.Set(SessionKeyStoreURL, storeURL)
	sess.Set(SessionKeyAdminURL, adminURL)

	// The platform session opened here outlives this stage; releasing it
	// is a teardown with the same simulated latency as opening it.
	sess.OnClose(func(ctx context.Context) error {
		return sleep(ctx, h.delay)
	})

	return job.Result{
		StoreURL: storeURL,
		StoreID:  storeID,
		AdminURL: adminURL,
	}, nil
}
