package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/session"
	"github.com/storeforge/provision/step"
)

var _ step.Handler = (*OwnershipTransfer)(nil)

// OwnershipTransfer invites the client's email as the store owner and
// confirms the handover. After this stage the provisioning account no
// longer owns the store.
type OwnershipTransfer struct {
	delay time.Duration
}

// Execute implements step.Handler.
func (h *OwnershipTransfer) Execute(ctx context.Context, _ *session.Session, j *job.Job) (job.Result, error) {
	if j.Result.StoreURL == "" {
		return job.Result{}, fmt.Errorf("no storefront to transfer for job %s", j.ID)
	}

	if err := sleep(ctx, h.delay); err != nil {
		return job.Result{}, err
	}

	confirmation := fmt.Sprintf("xfer_%s_%s", slugify(j.Input.Email), randomHex(6))
	return job.Result{TransferConfirmation: confirmation}, nil
}
