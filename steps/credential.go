package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/session"
	"github.com/storeforge/provision/step"
)

var _ step.Handler = (*CredentialAcquire)(nil)

// CredentialAcquire mints an admin API access token for the storefront
// created by the previous stage. It requires the platform session handle
// deposited by AccountCreate; running it against a fresh session (e.g.
// after a crash recovery re-entered the pipeline here) re-resolves the
// handle from the committed result instead of failing.
type CredentialAcquire struct {
	delay time.Duration
}

// Execute implements step.Handler.
func (h *CredentialAcquire) Execute(ctx context.Context, sess *session.Session, j *job.Job) (job.Result, error) {
	storeURL := sess.String(SessionKeyStoreURL)
	if storeURL == "" {
		// Fresh session on resume: the store already exists, its URL is in
		// the committed result.
		storeURL = j.Result.StoreURL
	}
	if storeURL == "" {
		return job.Result{}, fmt.Errorf("no storefront handle for job %s", j.ID)
	}

	if err := sleep(ctx, h.delay); err != nil {
		return job.Result{}, err
	}

	sess.Set(SessionKeyStoreURL, storeURL)

	// Token format mirrors the platform's admin API tokens.
	token := "shpat_" + randomHex(16)

	return job.Result{AccessToken: token}, nil
}
