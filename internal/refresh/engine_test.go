package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/weeklyops/reportbot/internal/report"
)

type fakeCreator struct {
	calls chan time.Time
}

func (f *fakeCreator) GetOrCreate(ctx context.Context, anchor time.Time) *report.Artifact {
	f.calls <- anchor
	return &report.Artifact{Token: "tok", URL: "https://example.com/docx/tok"}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEngineProcessesEnqueuedJobs(t *testing.T) {
	creator := &fakeCreator{calls: make(chan time.Time, 1)}
	engine := NewEngine(creator, 1, time.Minute, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Start(ctx)

	anchor := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)
	id, err := engine.Enqueue(anchor)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a job id")
	}

	select {
	case got := <-creator.calls:
		if !got.Equal(anchor) {
			t.Fatalf("worker received anchor %v, want %v", got, anchor)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("job was never processed")
	}
}

func TestEnqueueReportsFullQueue(t *testing.T) {
	creator := &fakeCreator{calls: make(chan time.Time, 1)}
	engine := NewEngine(creator, 1, time.Minute, discardLogger())

	// No workers running: fill the buffer until it rejects.
	var sawFull bool
	for i := 0; i < 100; i++ {
		if _, err := engine.Enqueue(time.Now()); err != nil {
			if !errors.Is(err, ErrQueueFull) {
				t.Fatalf("unexpected error: %v", err)
			}
			sawFull = true
			break
		}
	}
	if !sawFull {
		t.Fatalf("queue never reported full")
	}
}
