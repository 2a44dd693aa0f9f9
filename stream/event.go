// Package stream provides a real-time event broker for provisioning
// lifecycle events. It bridges the hook registry to connected clients via
// topic-based pub/sub, backing the live progress feed of the HTTP API.
package stream

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	EventStoreRequested EventType = "store.requested"
	EventStoreCompleted EventType = "store.completed"
	EventStoreFailed    EventType = "store.failed"
	EventStageStarted   EventType = "stage.started"
	EventStageCompleted EventType = "stage.completed"
	EventStageFailed    EventType = "stage.failed"
)

// Event is the envelope sent to subscribers on a topic channel.
type Event struct {
	// Type identifies the lifecycle event.
	Type EventType `json:"type"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"ts"`

	// Topic is the channel this event was published on.
	Topic string `json:"topic"`

	// Data is the event-specific payload.
	Data json.RawMessage `json:"data"`
}

// StoreEventData is the payload for store lifecycle events.
type StoreEventData struct {
	JobID     string `json:"job_id"`
	StoreName string `json:"store_name"`
	Stage     string `json:"stage"`
	Progress  int    `json:"progress_percent"`
	Message   string `json:"message,omitempty"`
	StageName string `json:"stage_name,omitempty"`
	StoreURL  string `json:"store_url,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}
