package healing

import (
	"testing"
	"time"

	"github.com/havenops/remedy/internal/types"
)

func TestQueuePopOrdersByPriority(t *testing.T) {
	q := NewInterventionQueue()
	now := time.Now()

	q.Push(&types.Intervention{ID: "low", Priority: 30, QueuedAt: now})
	q.Push(&types.Intervention{ID: "high", Priority: 70, QueuedAt: now})
	q.Push(&types.Intervention{ID: "mid", Priority: 55, QueuedAt: now})

	for _, want := range []string{"high", "mid", "low"} {
		iv := q.Pop(time.Second)
		if iv == nil {
			t.Fatalf("unexpected timeout waiting for %s", want)
		}
		if iv.ID != want {
			t.Errorf("popped %s, want %s", iv.ID, want)
		}
	}
}

func TestQueueTiesBreakOldestFirst(t *testing.T) {
	q := NewInterventionQueue()
	base := time.Now()

	q.Push(&types.Intervention{ID: "second", Priority: 50, QueuedAt: base.Add(time.Second)})
	q.Push(&types.Intervention{ID: "first", Priority: 50, QueuedAt: base})

	if iv := q.Pop(time.Second); iv == nil || iv.ID != "first" {
		t.Fatalf("expected the older intervention first, got %+v", iv)
	}
	if iv := q.Pop(time.Second); iv == nil || iv.ID != "second" {
		t.Fatalf("expected the newer intervention second, got %+v", iv)
	}
}

func TestQueuePopTimesOut(t *testing.T) {
	q := NewInterventionQueue()

	start := time.Now()
	if iv := q.Pop(20 * time.Millisecond); iv != nil {
		t.Fatalf("expected nil on timeout, got %+v", iv)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Pop returned after %v, before the timeout", elapsed)
	}
}

func TestQueuePushWakesWaitingPop(t *testing.T) {
	q := NewInterventionQueue()

	done := make(chan *types.Intervention, 1)
	go func() {
		done <- q.Pop(5 * time.Second)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(&types.Intervention{ID: "late", Priority: 10, QueuedAt: time.Now()})

	select {
	case iv := <-done:
		if iv == nil || iv.ID != "late" {
			t.Fatalf("got %+v, want the pushed intervention", iv)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueueLen(t *testing.T) {
	q := NewInterventionQueue()
	if q.Len() != 0 {
		t.Fatalf("new queue length = %d", q.Len())
	}
	q.Push(&types.Intervention{ID: "a", QueuedAt: time.Now()})
	q.Push(&types.Intervention{ID: "b", QueuedAt: time.Now()})
	if q.Len() != 2 {
		t.Errorf("length = %d, want 2", q.Len())
	}
	q.Pop(time.Second)
	if q.Len() != 1 {
		t.Errorf("length after pop = %d, want 1", q.Len())
	}
}
