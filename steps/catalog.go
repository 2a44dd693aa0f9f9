package steps

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/session"
	"github.com/storeforge/provision/step"
)

var _ step.Handler = (*CatalogImport)(nil)

// CatalogImport uploads the requested number of products from the
// chosen category into the store. Uploads run concurrently with a
// bounded worker count; one failed upload aborts the stage and the
// in-flight uploads drain via context cancellation.
type CatalogImport struct {
	delay       time.Duration
	concurrency int
}

// Execute implements step.Handler.
func (h *CatalogImport) Execute(ctx context.Context, _ *session.Session, j *job.Job) (job.Result, error) {
	if j.Result.AccessToken == "" {
		return job.Result{}, fmt.Errorf("no access token for job %s", j.ID)
	}

	category := j.Input.Category()
	count := j.Input.ProductCount

	ids := make([]string, count)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)

	for i := 0; i < count; i++ {
		g.Go(func() error {
			if err := sleep(gctx, h.delay); err != nil {
				return err
			}
			productID := fmt.Sprintf("prod_%s_%s", category, randomHex(6))
			mu.Lock()
			ids[i] = productID
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return job.Result{}, fmt.Errorf("import %s products: %w", category, err)
	}

	return job.Result{ProductIDs: ids}, nil
}
