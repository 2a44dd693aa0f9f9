package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/storeforge/provision/audit"
)

func testLoggerDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSlogRecorder(t *testing.T) {
	recorder := slogRecorder(testLoggerDiscard())

	err := recorder.Record(context.Background(), &audit.Event{
		Action:     audit.ActionStoreCompleted,
		Resource:   audit.ResourceStore,
		Category:   audit.CategoryStore,
		ResourceID: "job_test",
		Outcome:    audit.OutcomeSuccess,
		Severity:   audit.SeverityInfo,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
}
