package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"github.com/cogpy/swarmcog/internal/bus"
	"github.com/cogpy/swarmcog/internal/knowledge"
)

func TestCoordinateTaskCollaborative(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	for _, id := range []string{"a1", "a2", "a3"} {
		mustCreate(t, o, id)
	}
	var events []bus.CycleEvent
	o.Bus().Subscribe(bus.EventTaskCoordinated, func(evt bus.CycleEvent) { events = append(events, evt) })

	c, err := o.CoordinateTask("  map the dataset ", nil, "")
	if err != nil {
		t.Fatalf("CoordinateTask: %v", err)
	}
	if c.Strategy != StrategyCollaborative || c.Status != "initiated" || c.Description != "map the dataset" {
		t.Errorf("unexpected coordination %+v", c)
	}
	if !slices.Equal(c.Agents, []string{"a1", "a2", "a3"}) {
		t.Errorf("expected every agent to take part, got %v", c.Agents)
	}
	if len(c.Links) != 3 {
		t.Fatalf("expected 3 pairwise links, got %d", len(c.Links))
	}
	goal := TaskGoalPrefix + "map the dataset"
	for _, id := range c.Agents {
		if c.Assignments[id] != goal {
			t.Errorf("%s assigned %q", id, c.Assignments[id])
		}
		st, _ := o.Scheduler().State(id)
		if !slices.Contains(st.Goals, goal) {
			t.Errorf("%s scheduler goals %v", id, st.Goals)
		}
		a, _ := o.Agent(id)
		if !slices.Contains(a.Goals, goal) {
			t.Errorf("%s swarm goals %v", id, a.Goals)
		}
	}
	if got := o.Collaborators("a1"); !slices.Equal(got, []string{"a2", "a3"}) {
		t.Errorf("a1 collaborators = %v", got)
	}

	o.Bus().Flush()
	if len(events) != 1 || events[0].TaskID != c.TaskID || events[0].Metadata["links"] != "3" {
		t.Errorf("unexpected coordination events %+v", events)
	}
}

func TestCoordinateTaskHierarchical(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	for _, id := range []string{"lead", "w1", "w2", "idle"} {
		mustCreate(t, o, id)
	}

	c, err := o.CoordinateTask("label images", []string{"lead", "w1", "w2", "w1"}, StrategyHierarchical)
	if err != nil {
		t.Fatalf("CoordinateTask: %v", err)
	}
	if !slices.Equal(c.Agents, []string{"lead", "w1", "w2"}) {
		t.Errorf("expected duplicates dropped, got %v", c.Agents)
	}
	if n := len(o.Space().ListByType(knowledge.DelegationLink)); n != 2 {
		t.Fatalf("expected 2 delegation links, got %d", n)
	}
	if n := len(o.Space().ListByType(knowledge.CollaborationLink)); n != 0 {
		t.Errorf("hierarchical coordination should not add collaborations, got %d", n)
	}

	in, err := o.Interactions("lead")
	if err != nil {
		t.Fatalf("Interactions: %v", err)
	}
	want := []Delegation{{From: "lead", To: "w1", Task: "label images"}, {From: "lead", To: "w2", Task: "label images"}}
	if !slices.Equal(in.Delegations, want) {
		t.Errorf("lead delegations = %+v", in.Delegations)
	}
	w, _ := o.Interactions("w2")
	if len(w.Delegations) != 1 || w.Delegations[0].From != "lead" {
		t.Errorf("w2 delegations = %+v", w.Delegations)
	}
	idle, _ := o.Agent("idle")
	if slices.Contains(idle.Goals, TaskGoalPrefix+"label images") {
		t.Error("non-participant received the task goal")
	}
}

func TestCoordinateTaskRejects(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	mustCreate(t, o, "a1")

	if _, err := o.CoordinateTask("", nil, ""); err == nil {
		t.Error("expected error for empty description")
	}
	if _, err := o.CoordinateTask("x", nil, "anarchic"); err == nil {
		t.Error("expected error for unknown strategy")
	}
	if _, err := o.CoordinateTask("x", []string{"a1", "ghost"}, ""); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
	a, _ := o.Agent("a1")
	if slices.Contains(a.Goals, TaskGoalPrefix+"x") {
		t.Error("failed coordination must not assign goals")
	}
}

func TestEvaluate(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	mustCreate(t, o, "a1")
	mustCreate(t, o, "a2")

	if err := o.Evaluate("a1", "a2", 0.8); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := o.TrustLevel("a1", "a2"); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("trust after first evaluation = %v", got)
	}
	if err := o.Evaluate("a1", "a2", 0.2); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got := o.TrustLevel("a1", "a2"); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected trust to move halfway to 0.5, got %v", got)
	}
	if n := len(o.Space().ListByType(knowledge.TrustLink)); n != 1 {
		t.Errorf("expected the trust link updated in place, got %d links", n)
	}

	in, _ := o.Interactions("a2")
	if len(in.Evaluations) != 2 || in.Evaluations[0].Evaluator != "a1" || in.Evaluations[1].Score != 0.2 {
		t.Errorf("a2 evaluations = %+v", in.Evaluations)
	}

	for _, tc := range []struct {
		from, to string
		score    float64
	}{{"a1", "a2", 1.5}, {"a1", "a1", 0.5}, {"a1", "ghost", 0.5}} {
		if err := o.Evaluate(tc.from, tc.to, tc.score); err == nil {
			t.Errorf("Evaluate(%s, %s, %v): expected error", tc.from, tc.to, tc.score)
		}
	}
}

func TestInteractions(t *testing.T) {
	o := newTestOrchestrator(t, nil)
	mustCreate(t, o, "a1", "search")
	mustCreate(t, o, "a2")
	mustCreate(t, o, "a3")
	if err := o.Collaborate("a1", "a2", "pairing"); err != nil {
		t.Fatalf("Collaborate: %v", err)
	}
	if err := o.Trust("a1", "a3", 0.7); err != nil {
		t.Fatalf("Trust: %v", err)
	}
	if err := o.Trust("a3", "a1", 0.2); err != nil {
		t.Fatalf("Trust: %v", err)
	}
	if _, err := o.ShareKnowledge("insight", "from a2", "a2"); err != nil {
		t.Fatalf("ShareKnowledge: %v", err)
	}
	for i := 0; i < 12; i++ {
		if _, err := o.ShareKnowledge("note", fmt.Sprintf("note %d", i), "a1"); err != nil {
			t.Fatalf("ShareKnowledge: %v", err)
		}
	}
	if _, err := o.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	in, err := o.Interactions("a1")
	if err != nil {
		t.Fatalf("Interactions: %v", err)
	}
	if !slices.Equal(in.Collaborators, []string{"a2"}) {
		t.Errorf("collaborators = %v", in.Collaborators)
	}
	if len(in.TrustLevels) != 1 || in.TrustLevels["a3"] != 0.7 {
		t.Errorf("outgoing trust = %v", in.TrustLevels)
	}
	if !slices.Equal(in.Capabilities, []string{"search"}) || !slices.Equal(in.Goals, []string{"explore"}) {
		t.Errorf("capabilities %v goals %v", in.Capabilities, in.Goals)
	}
	if len(in.RecentMemories) != 10 {
		t.Fatalf("expected the 10 most recent memories, got %d: %v", len(in.RecentMemories), in.RecentMemories)
	}
	if last := in.RecentMemories[9]; last != "Executed 1 actions successfully" {
		t.Errorf("expected the learned memory last, got %q", last)
	}

	a3, _ := o.Interactions("a3")
	if len(a3.RecentMemories) != 10 || a3.RecentMemories[0] != "note 3" {
		t.Errorf("a3 memories = %v", a3.RecentMemories)
	}

	if _, err := o.Interactions("ghost"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("expected ErrAgentNotFound, got %v", err)
	}
	if all := o.AllInteractions(); len(all) != 3 || all["a3"].TrustLevels["a1"] != 0.2 {
		t.Errorf("unexpected AllInteractions %+v", all)
	}
}
