package stream_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/storeforge/provision/job"
	"github.com/storeforge/provision/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestJob() *job.Job {
	return job.New(job.Input{
		ClientName:      "Acme",
		StoreName:       "Acme Gadgets",
		Email:           "owner@acme.example",
		BusinessType:    "ecommerce",
		ProductCategory: "iphone",
		ProductCount:    5,
	})
}

func recvEvent(t *testing.T, sub *stream.Subscriber) *stream.Event {
	t.Helper()
	select {
	case evt := <-sub.C():
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func decodeData(t *testing.T, evt *stream.Event) stream.StoreEventData {
	t.Helper()
	var data stream.StoreEventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		t.Fatalf("decode event data: %v", err)
	}
	return data
}

func TestBroker_SubscriberReceivesStoreEvents(t *testing.T) {
	b := stream.NewBroker(testLogger())
	j := newTestJob()

	sub := b.Subscribe("sub-1", stream.StoreTopic(j.ID.String()))

	if err := b.OnJobQueued(context.Background(), j); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}

	evt := recvEvent(t, sub)
	if evt.Type != stream.EventStoreRequested {
		t.Errorf("type: want %q, got %q", stream.EventStoreRequested, evt.Type)
	}
	data := decodeData(t, evt)
	if data.JobID != j.ID.String() {
		t.Errorf("job_id: want %q, got %q", j.ID.String(), data.JobID)
	}
	if data.StoreName != "Acme Gadgets" {
		t.Errorf("store_name: got %q", data.StoreName)
	}
}

func TestBroker_FirehoseSeesEverything(t *testing.T) {
	b := stream.NewBroker(testLogger())
	ctx := context.Background()
	j := newTestJob()

	sub := b.Subscribe("firehose-sub", stream.TopicFirehose)

	if err := b.OnStageStarted(ctx, j, job.StageAccountCreate); err != nil {
		t.Fatalf("OnStageStarted: %v", err)
	}
	if err := b.OnStageCompleted(ctx, j, job.StageAccountCreate, time.Second); err != nil {
		t.Fatalf("OnStageCompleted: %v", err)
	}
	if err := b.OnJobFailed(ctx, j, errors.New("boom")); err != nil {
		t.Fatalf("OnJobFailed: %v", err)
	}

	types := []stream.EventType{
		recvEvent(t, sub).Type,
		recvEvent(t, sub).Type,
		recvEvent(t, sub).Type,
	}
	want := []stream.EventType{
		stream.EventStageStarted,
		stream.EventStageCompleted,
		stream.EventStoreFailed,
	}
	for i, w := range want {
		if types[i] != w {
			t.Errorf("event %d: want %q, got %q", i, w, types[i])
		}
	}
}

func TestBroker_TopicIsolation(t *testing.T) {
	b := stream.NewBroker(testLogger())
	ctx := context.Background()
	j1 := newTestJob()
	j2 := newTestJob()

	sub := b.Subscribe("sub-1", stream.StoreTopic(j1.ID.String()))

	// An event for a different run must not reach this subscriber.
	if err := b.OnJobQueued(ctx, j2); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}
	select {
	case evt := <-sub.C():
		t.Fatalf("unexpected event: %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}

	if err := b.OnJobQueued(ctx, j1); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}
	evt := recvEvent(t, sub)
	if data := decodeData(t, evt); data.JobID != j1.ID.String() {
		t.Errorf("expected event for j1, got %q", data.JobID)
	}
}

func TestBroker_DeduplicatesAcrossTopics(t *testing.T) {
	b := stream.NewBroker(testLogger())
	j := newTestJob()

	// Subscribed to both firehose and the run topic; each event must
	// arrive exactly once.
	sub := b.Subscribe("sub-1", stream.TopicFirehose, stream.StoreTopic(j.ID.String()))

	if err := b.OnJobQueued(context.Background(), j); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}

	recvEvent(t, sub)
	select {
	case evt := <-sub.C():
		t.Fatalf("duplicate delivery: %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_SubscriberFilter(t *testing.T) {
	b := stream.NewBroker(testLogger())
	ctx := context.Background()
	j := newTestJob()

	sub := b.Subscribe("sub-1", stream.TopicFirehose)
	sub.SetFilter(func(evt *stream.Event) bool {
		return evt.Type == stream.EventStoreCompleted
	})

	if err := b.OnStageStarted(ctx, j, job.StageAccountCreate); err != nil {
		t.Fatalf("OnStageStarted: %v", err)
	}
	if err := b.OnJobCompleted(ctx, j, time.Second); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}

	evt := recvEvent(t, sub)
	if evt.Type != stream.EventStoreCompleted {
		t.Errorf("filter leaked event type %q", evt.Type)
	}
}

func TestBroker_CreditsExhausted(t *testing.T) {
	b := stream.NewBroker(testLogger(), stream.WithDefaultCredits(1))
	ctx := context.Background()
	j := newTestJob()

	sub := b.Subscribe("sub-1", stream.TopicFirehose)

	if err := b.OnJobQueued(ctx, j); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}
	if err := b.OnJobCompleted(ctx, j, time.Second); err != nil {
		t.Fatalf("OnJobCompleted: %v", err)
	}

	recvEvent(t, sub)
	select {
	case evt := <-sub.C():
		t.Fatalf("expected drop after credits exhausted, got %s", evt.Type)
	case <-time.After(50 * time.Millisecond):
	}

	// Replenish and verify delivery resumes.
	sub.AddCredits(10)
	if err := b.OnJobQueued(ctx, j); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}
	recvEvent(t, sub)
}

func TestBroker_RemoveSubscriberClosesChannel(t *testing.T) {
	b := stream.NewBroker(testLogger())
	sub := b.Subscribe("sub-1", stream.TopicFirehose)

	b.RemoveSubscriber("sub-1")

	if _, open := <-sub.C(); open {
		t.Fatal("expected closed channel after RemoveSubscriber")
	}
	if b.Topics().SubscriberCount(stream.TopicFirehose) != 0 {
		t.Errorf("expected 0 subscribers on firehose")
	}
}

func TestBroker_ShutdownClosesAllSubscribers(t *testing.T) {
	b := stream.NewBroker(testLogger())
	sub1 := b.Subscribe("sub-1", stream.TopicFirehose)
	sub2 := b.Subscribe("sub-2", stream.TopicStores)

	if err := b.OnShutdown(context.Background()); err != nil {
		t.Fatalf("OnShutdown: %v", err)
	}

	if _, open := <-sub1.C(); open {
		t.Error("sub-1 channel still open after shutdown")
	}
	if _, open := <-sub2.C(); open {
		t.Error("sub-2 channel still open after shutdown")
	}
}

func TestBroker_Stats(t *testing.T) {
	b := stream.NewBroker(testLogger())
	b.Subscribe("sub-1", stream.TopicFirehose)
	b.Subscribe("sub-2", stream.TopicStores)

	if err := b.OnJobQueued(context.Background(), newTestJob()); err != nil {
		t.Fatalf("OnJobQueued: %v", err)
	}

	stats := b.Stats()
	if stats.SubscriberCount != 2 {
		t.Errorf("subscriber_count: want 2, got %d", stats.SubscriberCount)
	}
	if stats.TopicCount < 2 {
		t.Errorf("topic_count: want at least 2, got %d", stats.TopicCount)
	}
	if stats.TotalPublished != 2 {
		t.Errorf("total_published: want 2, got %d", stats.TotalPublished)
	}
}

func TestValidateTopic(t *testing.T) {
	valid := []string{"stores", "firehose", "store:job_abc"}
	for _, topic := range valid {
		if err := stream.ValidateTopic(topic); err != nil {
			t.Errorf("ValidateTopic(%q): unexpected error: %v", topic, err)
		}
	}

	invalid := []string{"", "bogus", "queue:default", "store:"}
	for _, topic := range invalid {
		if err := stream.ValidateTopic(topic); err == nil {
			t.Errorf("ValidateTopic(%q): expected error", topic)
		}
	}
}
