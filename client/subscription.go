package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/storeforge/provision/stream"
)

// subscriptionBuffer is the channel capacity for delivered events.
const subscriptionBuffer = 64

// Watch streams live lifecycle events for one provisioning run. The
// returned channel is closed when the context is cancelled or the server
// ends the stream.
func (c *Client) Watch(ctx context.Context, jobID string) (<-chan *stream.Event, error) {
	return c.subscribe(ctx, "/v1/stores/"+url.PathEscape(jobID)+"/events")
}

// Events streams every store lifecycle event from the server.
func (c *Client) Events(ctx context.Context) (<-chan *stream.Event, error) {
	return c.subscribe(ctx, "/v1/events")
}

func (c *Client) subscribe(ctx context.Context, path string) (<-chan *stream.Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("provision/client: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// Streaming connections must not be cut off by the client timeout;
	// the caller's context bounds their lifetime.
	httpc := &http.Client{Transport: c.httpc.Transport}
	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provision/client: subscribe %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer drain(resp.Body)
		return nil, decodeError(resp)
	}

	ch := make(chan *stream.Event, subscriptionBuffer)
	go c.readEvents(ctx, resp, ch)
	return ch, nil
}

// readEvents parses text/event-stream frames and delivers them until the
// stream ends.
func (c *Client) readEvents(ctx context.Context, resp *http.Response, ch chan<- *stream.Event) {
	defer close(ch)
	defer drain(resp.Body)

	scanner := bufio.NewScanner(resp.Body)
	var data string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, ":"):
			// Heartbeat comment.
		case line == "" && data != "":
			var evt stream.Event
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				c.logger.Warn("provision/client: invalid event frame", slog.String("error", err.Error()))
				data = ""
				continue
			}
			data = ""
			select {
			case ch <- &evt:
			case <-ctx.Done():
				return
			}
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("provision/client: event stream closed", slog.String("error", err.Error()))
	}
}
