// Package errstream ingests raw failures, classifies them into a fixed
// type/severity taxonomy, and exposes a bounded, subscribable stream of
// error events.
package errstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/havenops/remedy/internal/types"
)

// Sink receives classified error events for durable storage. Writes are
// fire-and-forget relative to in-memory state.
type Sink interface {
	StoreErrorEvent(ctx context.Context, event *types.ErrorEvent) error
}

// Subscriber is a callback invoked for every recorded event. Delivery is
// at-least-once to all current subscribers before Record returns.
type Subscriber func(event *types.ErrorEvent)

// Config holds stream configuration.
type Config struct {
	// BufferSize is the maximum number of events kept in memory.
	// Default: 1000
	BufferSize int
}

// DefaultConfig returns default stream configuration.
func DefaultConfig() *Config {
	return &Config{BufferSize: 1000}
}

// Stream is a bounded, time-ordered ring of classified error events with
// fan-out to subscribers. Oldest events are evicted first; every error is
// classified before any eviction can drop it.
type Stream struct {
	mu sync.RWMutex

	events     []*types.ErrorEvent
	bufferSize int

	subscribers map[int]Subscriber
	nextSubID   int

	sink Sink
}

// NewStream creates a new error stream. The sink may be nil, in which
// case events are kept in memory only.
func NewStream(cfg *Config, sink Sink) *Stream {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}

	return &Stream{
		events:      make([]*types.ErrorEvent, 0, cfg.BufferSize),
		bufferSize:  cfg.BufferSize,
		subscribers: make(map[int]Subscriber),
		sink:        sink,
	}
}

// Record classifies and appends a new error event, fans it out to all
// current subscribers, and writes it to the sink. It returns the
// immutable event.
func (s *Stream) Record(ctx context.Context, err error, fields map[string]interface{}, processID, agentID string) (*types.ErrorEvent, error) {
	if err == nil {
		return nil, fmt.Errorf("error is required")
	}
	return s.RecordMessage(ctx, err.Error(), "", fields, processID, agentID)
}

// RecordMessage is Record for callers that have message/stack text rather
// than an error value.
func (s *Stream) RecordMessage(ctx context.Context, message, stack string, fields map[string]interface{}, processID, agentID string) (*types.ErrorEvent, error) {
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	event := &types.ErrorEvent{
		ID:         uuid.New().String(),
		Timestamp:  time.Now(),
		Type:       ClassifyType(message, stack),
		Severity:   ClassifySeverity(message),
		Message:    message,
		StackTrace: stack,
		Context:    fields,
		ProcessID:  processID,
		AgentID:    agentID,
	}

	s.mu.Lock()
	s.events = append(s.events, event)
	if len(s.events) > s.bufferSize {
		// Evict oldest. The event being evicted was classified and
		// delivered when it was recorded, so nothing is silently dropped.
		s.events = s.events[len(s.events)-s.bufferSize:]
	}
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	// Fan out outside the lock so subscribers can query the stream.
	for _, sub := range subs {
		sub(event)
	}

	if s.sink != nil {
		if serr := s.sink.StoreErrorEvent(ctx, event); serr != nil {
			fmt.Printf("ErrorStream: failed to persist event %s: %v\n", event.ID, serr)
		}
	}

	return event, nil
}

// Subscribe registers a callback for future events and returns an
// unsubscribe token.
func (s *Stream) Subscribe(sub Subscriber) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = sub
	return id
}

// Unsubscribe removes a previously registered subscriber.
func (s *Stream) Unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subscribers, id)
}

// EventsSince returns all buffered events recorded at or after the given
// time, oldest first.
func (s *Stream) EventsSince(since time.Time) []*types.ErrorEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.ErrorEvent
	for _, e := range s.events {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// Recent returns up to limit of the most recent events, oldest first.
func (s *Stream) Recent(limit int) []*types.ErrorEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]*types.ErrorEvent, limit)
	copy(out, s.events[len(s.events)-limit:])
	return out
}

// Len returns the number of buffered events.
func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
