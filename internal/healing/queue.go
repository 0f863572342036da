package healing

import (
	"container/heap"
	"sync"
	"time"

	"github.com/havenops/remedy/internal/types"
)

// InterventionQueue is the single cross-task handoff point between the
// health checker (producer) and the intervention consumer. Interventions
// are dequeued highest priority first; ties break oldest first.
type InterventionQueue struct {
	mu    sync.Mutex
	items interventionHeap
	wake  chan struct{}
}

// NewInterventionQueue creates an empty queue.
func NewInterventionQueue() *InterventionQueue {
	q := &InterventionQueue{wake: make(chan struct{}, 1)}
	heap.Init(&q.items)
	return q
}

// Push enqueues an intervention and wakes the consumer.
func (q *InterventionQueue) Push(iv *types.Intervention) {
	q.mu.Lock()
	heap.Push(&q.items, iv)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop dequeues the highest-priority intervention, waiting up to timeout
// for one to arrive. Returns nil on timeout.
func (q *InterventionQueue) Pop(timeout time.Duration) *types.Intervention {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if q.items.Len() > 0 {
			iv := heap.Pop(&q.items).(*types.Intervention)
			q.mu.Unlock()
			return iv
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-deadline.C:
			return nil
		}
	}
}

// Len returns the number of queued interventions.
func (q *InterventionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

type interventionHeap []*types.Intervention

func (h interventionHeap) Len() int { return len(h) }

func (h interventionHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].QueuedAt.Before(h[j].QueuedAt)
}

func (h interventionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *interventionHeap) Push(x interface{}) {
	*h = append(*h, x.(*types.Intervention))
}

func (h *interventionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
