package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/storeforge/provision/job"
)

// CreateResult is the acknowledgement returned when a store request is
// accepted. The pipeline runs in the background; poll GetStatus or use
// Watch for progress.
type CreateResult struct {
	JobID   string    `json:"job_id"`
	Stage   job.Stage `json:"stage"`
	Message string    `json:"message"`
}

// Status is the condensed polling view of a provisioning run.
type Status struct {
	JobID           string          `json:"job_id"`
	StoreName       string          `json:"store_name"`
	Stage           job.Stage       `json:"stage"`
	ProgressPercent int             `json:"progress_percent"`
	Message         string          `json:"message"`
	StoreURL        string          `json:"store_url,omitempty"`
	Error           *job.StageError `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Stats summarizes the server's provisioning workload.
type Stats struct {
	Total            int            `json:"total"`
	ByStage          map[string]int `json:"by_stage"`
	Executing        int            `json:"executing"`
	ProductsImported int            `json:"products_imported"`
	SuccessRate      float64        `json:"success_rate"`
}

// CreateStore requests a new storefront.
func (c *Client) CreateStore(ctx context.Context, input job.Input) (*CreateResult, error) {
	var result CreateResult
	if err := c.post(ctx, "/v1/stores", input, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStore retrieves the full provisioning record.
func (c *Client) GetStore(ctx context.Context, jobID string) (*job.Job, error) {
	var j job.Job
	if err := c.get(ctx, "/v1/stores/"+url.PathEscape(jobID), &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// GetStatus retrieves the polling view of a provisioning run.
func (c *Client) GetStatus(ctx context.Context, jobID string) (*Status, error) {
	var status Status
	if err := c.get(ctx, "/v1/stores/"+url.PathEscape(jobID)+"/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListOptions filters and pages a store listing.
type ListOptions struct {
	Limit  int
	Offset int
	Stage  job.Stage
}

// ListStores lists provisioning runs, newest first.
func (c *Client) ListStores(ctx context.Context, opts ListOptions) ([]Status, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Stage != "" {
		query.Set("stage", string(opts.Stage))
	}

	path := "/v1/stores"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var body struct {
		Stores []Status `json:"stores"`
	}
	if err := c.get(ctx, path, &body); err != nil {
		return nil, err
	}
	return body.Stores, nil
}

// Stats retrieves workload counters from the server.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/v1/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// WaitForCompletion polls the status endpoint until the run reaches a
// terminal stage or the context expires.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string, interval time.Duration) (*Status, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := c.GetStatus(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if status.Stage.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("provision/client: waiting for %s: %w", jobID, ctx.Err())
		case <-ticker.C:
		}
	}
}
