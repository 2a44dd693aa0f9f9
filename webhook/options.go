package webhook

import "net/http"

// Option configures a Notifier.
type Option func(*Notifier)

// PayloadFunc builds a custom event payload for a specific event type.
// It receives the default payload and the returned value becomes the
// envelope data.
type PayloadFunc func(defaultData any) (any, error)

// WithEvents restricts the notifier to emit only the listed event types.
// By default all event types are enabled. Unknown types are silently
// ignored.
func WithEvents(events ...string) Option {
	return func(n *Notifier) {
		n.enabled = make(map[string]bool, len(events))
		for _, e := range events {
			n.enabled[e] = true
		}
	}
}

// WithPayloadFunc registers a custom payload builder for the given event
// type. The function replaces the default JSON payload for that event.
func WithPayloadFunc(eventType string, fn PayloadFunc) Option {
	return func(n *Notifier) {
		if n.payloads == nil {
			n.payloads = make(map[string]PayloadFunc)
		}
		n.payloads[eventType] = fn
	}
}

// WithHTTPClient sets the HTTP client used for delivery.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}
