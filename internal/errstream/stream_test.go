package errstream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/havenops/remedy/internal/types"
)

type memorySink struct {
	mu     sync.Mutex
	events []*types.ErrorEvent
	fail   bool
}

func (s *memorySink) StoreErrorEvent(ctx context.Context, event *types.ErrorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memorySink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestStreamRecordClassifies(t *testing.T) {
	stream := NewStream(nil, nil)

	event, err := stream.Record(context.Background(), errors.New("request timed out"), nil, "proc-1", "")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if event.ID == "" {
		t.Error("event should get an ID")
	}
	if event.Type != types.ErrorTypeTimeout {
		t.Errorf("expected timeout type, got %v", event.Type)
	}
	if event.Severity != types.SeverityMedium {
		t.Errorf("expected medium severity, got %v", event.Severity)
	}
	if event.ProcessID != "proc-1" {
		t.Errorf("process ID not carried: %q", event.ProcessID)
	}
}

func TestStreamEviction(t *testing.T) {
	stream := NewStream(&Config{BufferSize: 10}, nil)

	ctx := context.Background()
	for i := 0; i < 25; i++ {
		if _, err := stream.RecordMessage(ctx, fmt.Sprintf("error number %d", i), "", nil, "", ""); err != nil {
			t.Fatalf("RecordMessage failed: %v", err)
		}
	}

	if got := stream.Len(); got != 10 {
		t.Errorf("expected buffer capped at 10, got %d", got)
	}

	// The survivors are the newest events.
	recent := stream.Recent(10)
	if len(recent) != 10 {
		t.Fatalf("expected 10 recent events, got %d", len(recent))
	}
	if recent[len(recent)-1].Message != "error number 24" {
		t.Errorf("newest event missing, got %q", recent[len(recent)-1].Message)
	}
}

func TestStreamSubscribers(t *testing.T) {
	stream := NewStream(nil, nil)

	var mu sync.Mutex
	var seen []string
	id := stream.Subscribe(func(event *types.ErrorEvent) {
		mu.Lock()
		seen = append(seen, event.Message)
		mu.Unlock()
	})

	ctx := context.Background()
	if _, err := stream.RecordMessage(ctx, "first failure", "", nil, "", ""); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	n := len(seen)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("subscriber should have seen 1 event, saw %d", n)
	}

	stream.Unsubscribe(id)
	if _, err := stream.RecordMessage(ctx, "second failure", "", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	n = len(seen)
	mu.Unlock()
	if n != 1 {
		t.Errorf("unsubscribed subscriber still received events (%d)", n)
	}
}

func TestStreamSinkWrite(t *testing.T) {
	sink := &memorySink{}
	stream := NewStream(nil, sink)

	if _, err := stream.RecordMessage(context.Background(), "disk full", "", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	if sink.count() != 1 {
		t.Errorf("sink should hold 1 event, holds %d", sink.count())
	}
}

func TestStreamSinkFailureDoesNotDropEvent(t *testing.T) {
	sink := &memorySink{fail: true}
	stream := NewStream(nil, sink)

	event, err := stream.RecordMessage(context.Background(), "disk full", "", nil, "", "")
	if err != nil {
		t.Fatalf("a failing sink must not fail Record: %v", err)
	}
	if event == nil {
		t.Fatal("event should still be returned")
	}
	if stream.Len() != 1 {
		t.Error("event should remain in the ring despite sink failure")
	}
}

func TestStreamEventsSince(t *testing.T) {
	stream := NewStream(nil, nil)
	ctx := context.Background()

	if _, err := stream.RecordMessage(ctx, "old failure", "", nil, "", ""); err != nil {
		t.Fatal(err)
	}
	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	if _, err := stream.RecordMessage(ctx, "new failure", "", nil, "", ""); err != nil {
		t.Fatal(err)
	}

	since := stream.EventsSince(cutoff)
	if len(since) != 1 {
		t.Fatalf("expected 1 event since cutoff, got %d", len(since))
	}
	if since[0].Message != "new failure" {
		t.Errorf("wrong event returned: %q", since[0].Message)
	}
}
