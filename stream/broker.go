package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/storeforge/provision/hook"
	"github.com/storeforge/provision/job"
)

// Compile-time interface checks.
var (
	_ hook.Hook           = (*Broker)(nil)
	_ hook.JobQueued      = (*Broker)(nil)
	_ hook.JobCompleted   = (*Broker)(nil)
	_ hook.JobFailed      = (*Broker)(nil)
	_ hook.StageStarted   = (*Broker)(nil)
	_ hook.StageCompleted = (*Broker)(nil)
	_ hook.StageFailed    = (*Broker)(nil)
	_ hook.Shutdown       = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the hook
// interfaces to receive lifecycle events and fans them out to subscribers
// via topic-based pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Hook.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish creates an event and broadcasts it to all matching topics.
func (b *Broker) publish(evt *Event) {
	topics := resolveTopics(evt)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// storeData builds the common payload for a provisioning run.
func storeData(j *job.Job) StoreEventData {
	return StoreEventData{
		JobID:     j.ID.String(),
		StoreName: j.Input.StoreName,
		Stage:     string(j.Stage),
		Progress:  j.Progress,
		Message:   j.Message,
	}
}

// ── Job lifecycle hooks ─────────────────────────────

func (b *Broker) OnJobQueued(_ context.Context, j *job.Job) error {
	b.publish(&Event{
		Type:      EventStoreRequested,
		Timestamp: time.Now().UTC(),
		Topic:     StoreTopic(j.ID.String()),
		Data:      mustMarshal(storeData(j)),
	})
	return nil
}

func (b *Broker) OnJobCompleted(_ context.Context, j *job.Job, elapsed time.Duration) error {
	data := storeData(j)
	data.StoreURL = j.Result.StoreURL
	data.ElapsedMs = elapsed.Milliseconds()
	b.publish(&Event{
		Type:      EventStoreCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     StoreTopic(j.ID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

func (b *Broker) OnJobFailed(_ context.Context, j *job.Job, jobErr error) error {
	data := storeData(j)
	data.Error = jobErr.Error()
	b.publish(&Event{
		Type:      EventStoreFailed,
		Timestamp: time.Now().UTC(),
		Topic:     StoreTopic(j.ID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

// ── Stage lifecycle hooks ───────────────────────────

func (b *Broker) OnStageStarted(_ context.Context, j *job.Job, stage job.Stage) error {
	data := storeData(j)
	data.StageName = string(stage)
	b.publish(&Event{
		Type:      EventStageStarted,
		Timestamp: time.Now().UTC(),
		Topic:     StoreTopic(j.ID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

func (b *Broker) OnStageCompleted(_ context.Context, j *job.Job, stage job.Stage, elapsed time.Duration) error {
	data := storeData(j)
	data.StageName = string(stage)
	data.ElapsedMs = elapsed.Milliseconds()
	b.publish(&Event{
		Type:      EventStageCompleted,
		Timestamp: time.Now().UTC(),
		Topic:     StoreTopic(j.ID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

func (b *Broker) OnStageFailed(_ context.Context, j *job.Job, stage job.Stage, stageErr error) error {
	data := storeData(j)
	data.StageName = string(stage)
	data.Error = stageErr.Error()
	b.publish(&Event{
		Type:      EventStageFailed,
		Timestamp: time.Now().UTC(),
		Topic:     StoreTopic(j.ID.String()),
		Data:      mustMarshal(data),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
