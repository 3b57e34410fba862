package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPublishSubscribeDispatch(t *testing.T) {
	b := NewMessageBus()

	var completed, all atomic.Int32
	b.Subscribe(EventPhaseCompleted, func(CycleEvent) { completed.Add(1) })
	b.Subscribe(AllEvents, func(CycleEvent) { all.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Dispatch(ctx)

	b.Publish(CycleEvent{Type: EventPhaseCompleted, AgentID: "a1", Phase: "perception"})
	b.Publish(CycleEvent{Type: EventCycleStarted, AgentID: "a1"})

	deadline := time.Now().Add(time.Second)
	for all.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if completed.Load() != 1 {
		t.Errorf("expected 1 phase_completed delivery, got %d", completed.Load())
	}
	if all.Load() != 2 {
		t.Errorf("expected 2 wildcard deliveries, got %d", all.Load())
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := NewMessageBusSize(2)
	for i := 0; i < 5; i++ {
		b.Publish(CycleEvent{Type: EventCycleStarted})
	}
	if b.Pending() != 2 {
		t.Errorf("expected 2 pending, got %d", b.Pending())
	}
	if b.Dropped() != 3 {
		t.Errorf("expected 3 dropped, got %d", b.Dropped())
	}
	if n := b.Flush(); n != 2 {
		t.Errorf("expected flush of 2, got %d", n)
	}
}

func TestPublishStampsTimestamp(t *testing.T) {
	b := NewMessageBus()
	var got CycleEvent
	b.Subscribe(AllEvents, func(e CycleEvent) { got = e })
	b.Publish(CycleEvent{Type: EventAgentCreated})
	b.Flush()
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestInjectedEventValidate(t *testing.T) {
	base := InjectedEvent{
		SchemaVersion:  CurrentSchemaVersion,
		IdempotencyKey: "k1",
		Timestamp:      time.Now(),
	}
	tests := []struct {
		name    string
		mutate  func(*InjectedEvent)
		wantErr bool
	}{
		{"belief ok", func(e *InjectedEvent) { e.Type = InjectBelief; e.Key = "weather" }, false},
		{"belief without key", func(e *InjectedEvent) { e.Type = InjectBelief }, true},
		{"goal ok", func(e *InjectedEvent) { e.Type = InjectGoal; e.Value = "explore" }, false},
		{"goal without value", func(e *InjectedEvent) { e.Type = InjectGoal }, true},
		{"knowledge ok", func(e *InjectedEvent) { e.Type = InjectKnowledge; e.Value = "fact" }, false},
		{"missing type", func(e *InjectedEvent) {}, true},
		{"unknown type", func(e *InjectedEvent) { e.Type = "vote"; e.Value = "x" }, true},
		{"bad schema", func(e *InjectedEvent) { e.Type = InjectGoal; e.Value = "x"; e.SchemaVersion = "v9" }, true},
		{"missing key", func(e *InjectedEvent) { e.Type = InjectGoal; e.Value = "x"; e.IdempotencyKey = "" }, true},
		{"missing timestamp", func(e *InjectedEvent) { e.Type = InjectGoal; e.Value = "x"; e.Timestamp = time.Time{} }, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evt := base
			tc.mutate(&evt)
			err := evt.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
