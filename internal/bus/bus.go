// Package bus provides the async event bus between the cognitive scheduler and
// its observers (CLI, timeline, Kafka export).
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the scheduler and the orchestrator.
const (
	EventCycleStarted    = "cycle_started"
	EventPhaseCompleted  = "phase_completed"
	EventPhaseFailed     = "phase_failed"
	EventAgentCreated    = "agent_created"
	EventAgentRemoved    = "agent_removed"
	EventKnowledgeShared = "knowledge_shared"
	EventTaskCoordinated = "task_coordinated"

	// AllEvents subscribes to every event type.
	AllEvents = "*"
)

// CycleEvent reports progress of an agent's cognitive cycle.
type CycleEvent struct {
	Type      string            `json:"type"`
	AgentID   string            `json:"agent_id"`
	TaskID    string            `json:"task_id,omitempty"`
	Phase     string            `json:"phase,omitempty"`
	Success   bool              `json:"success"`
	Duration  time.Duration     `json:"duration_ns,omitempty"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MessageBus fans cycle events out to subscribers. Publish never blocks: when
// the buffer is full the event is dropped and counted.
type MessageBus struct {
	events  chan CycleEvent
	subs    map[string][]func(CycleEvent)
	mu      sync.RWMutex
	dropped atomic.Uint64
}

// DefaultBufferSize is the event buffer used by NewMessageBus.
const DefaultBufferSize = 1024

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return NewMessageBusSize(DefaultBufferSize)
}

// NewMessageBusSize creates a bus with a custom buffer.
func NewMessageBusSize(size int) *MessageBus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &MessageBus{
		events: make(chan CycleEvent, size),
		subs:   make(map[string][]func(CycleEvent)),
	}
}

// Publish queues evt for dispatch.
func (b *MessageBus) Publish(evt CycleEvent) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case b.events <- evt:
	default:
		b.dropped.Add(1)
	}
}

// Subscribe registers a callback for one event type, or AllEvents.
func (b *MessageBus) Subscribe(eventType string, callback func(CycleEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[eventType] = append(b.subs[eventType], callback)
}

// Dispatch delivers queued events to subscribers until ctx is cancelled.
// This should be run as a goroutine.
func (b *MessageBus) Dispatch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-b.events:
			b.deliver(evt)
		}
	}
}

// Flush delivers every event currently queued and returns how many were
// delivered.
func (b *MessageBus) Flush() int {
	n := 0
	for {
		select {
		case evt := <-b.events:
			b.deliver(evt)
			n++
		default:
			return n
		}
	}
}

func (b *MessageBus) deliver(evt CycleEvent) {
	b.mu.RLock()
	callbacks := append([]func(CycleEvent){}, b.subs[evt.Type]...)
	callbacks = append(callbacks, b.subs[AllEvents]...)
	b.mu.RUnlock()

	for _, cb := range callbacks {
		cb(evt)
	}
}

// Pending returns the number of queued events.
func (b *MessageBus) Pending() int {
	return len(b.events)
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *MessageBus) Dropped() uint64 {
	return b.dropped.Load()
}
