package knowledge

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore("test_space", nil)
}

func indexed(s *Store, e *Entity) (byType, byName bool) {
	for _, x := range s.ListByType(e.Type) {
		if x.ID == e.ID {
			byType = true
		}
	}
	for _, x := range s.ListByName(e.Name) {
		if x.ID == e.ID {
			byName = true
		}
	}
	return byType, byName
}

func TestIndexConsistency(t *testing.T) {
	s := newTestStore(t)
	rng := rand.New(rand.NewSource(7))
	types := []EntityType{Node, GoalNode, BeliefNode, MemoryNode}

	var pool []*Entity
	for i := 0; i < 40; i++ {
		pool = append(pool, NewNode(types[i%len(types)], fmt.Sprintf("n%d", i%6), ""))
	}

	for step := 0; step < 400; step++ {
		e := pool[rng.Intn(len(pool))]
		if rng.Intn(2) == 0 {
			s.Add(e)
		} else {
			s.Remove(e.ID)
		}
		for _, p := range pool {
			_, present := s.Get(p.ID)
			inType, inName := indexed(s, p)
			if inType != present || inName != present {
				t.Fatalf("step %d: %s present=%v byType=%v byName=%v", step, p.ID, present, inType, inName)
			}
		}
	}
}

func TestAddOverwritesByID(t *testing.T) {
	s := newTestStore(t)
	a := NewNode(GoalNode, "ship", "")
	s.Add(a)

	b := newEntity(a.ID, BeliefNode, "renamed")
	s.Add(b)

	if got, _ := s.Get(a.ID); got != b {
		t.Fatal("expected second add to replace the first")
	}
	if len(s.ListByType(GoalNode)) != 0 {
		t.Error("stale type index entry left behind")
	}
	if len(s.ListByName("ship")) != 0 {
		t.Error("stale name index entry left behind")
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 entity, got %d", s.Len())
	}
	if st := s.Statistics(); st.Added != 2 {
		t.Errorf("expected added counter 2, got %d", st.Added)
	}
}

func TestRemoveAbsent(t *testing.T) {
	s := newTestStore(t)
	if s.Remove("missing") {
		t.Error("Remove of absent id should return false")
	}
}

func TestClamping(t *testing.T) {
	tests := []struct {
		name   string
		tv     TruthValue
		wantTV TruthValue
		av     AttentionValue
		wantAV AttentionValue
	}{
		{"high", TruthValue{1.5, 2}, TruthValue{1, 1}, AttentionValue{3, 1.2, 9}, AttentionValue{1, 1, 1}},
		{"low", TruthValue{-0.3, -1}, TruthValue{0, 0}, AttentionValue{-4, -1.5, -0.2}, AttentionValue{-1, -1, 0}},
		{"in range", TruthValue{0.4, 0.6}, TruthValue{0.4, 0.6}, AttentionValue{0.1, -0.2, 0.3}, AttentionValue{0.1, -0.2, 0.3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewTruthValue(tc.tv.Strength, tc.tv.Confidence); got != tc.wantTV {
				t.Errorf("truth: got %+v, want %+v", got, tc.wantTV)
			}
			if got := NewAttentionValue(tc.av.STI, tc.av.LTI, tc.av.VLTI); got != tc.wantAV {
				t.Errorf("attention: got %+v, want %+v", got, tc.wantAV)
			}

			e := NewNode(Node, "", "")
			e.SetTruth(tc.tv)
			e.SetAttention(tc.av)
			if e.Truth() != tc.wantTV {
				t.Errorf("stored truth: got %+v", e.Truth())
			}
			if e.Attention() != tc.wantAV {
				t.Errorf("stored attention: got %+v", e.Attention())
			}
		})
	}
}

func TestDefaultName(t *testing.T) {
	e := NewNode(Node, "", "")
	if want := "atom_" + e.ID[:8]; e.Name != want {
		t.Errorf("expected default name %q, got %q", want, e.Name)
	}
	if tv := e.Truth(); tv.Strength != 0.5 || tv.Confidence != 0 {
		t.Errorf("unexpected default truth %+v", tv)
	}
}

func TestFocusBound(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 25; i++ {
		s.AddToFocus(fmt.Sprintf("e%02d", i))
	}
	focus := s.Focus()
	if len(focus) != FocusCapacity {
		t.Fatalf("expected %d focus entries, got %d", FocusCapacity, len(focus))
	}
	for i, id := range focus {
		if want := fmt.Sprintf("e%02d", 24-i); id != want {
			t.Errorf("focus[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestFocusDedupMovesToFront(t *testing.T) {
	s := newTestStore(t)
	s.AddToFocus("a")
	s.AddToFocus("b")
	s.AddToFocus("c")
	s.AddToFocus("a")

	got := s.Focus()
	want := []string{"a", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	if !s.RemoveFromFocus("c") || s.RemoveFromFocus("c") {
		t.Error("RemoveFromFocus should succeed exactly once")
	}
}

func TestDecayMonotonicity(t *testing.T) {
	s := newTestStore(t)
	e := s.Add(NewNode(Node, "hot", ""))
	e.SetAttention(NewAttentionValue(1, 0, 0))

	prev := e.Attention()
	for i := 0; i < 2000; i++ {
		s.DecayAttention()
		av := e.Attention()
		if av.STI >= prev.STI {
			t.Fatalf("pass %d: sti did not decrease (%v -> %v)", i, prev.STI, av.STI)
		}
		if av.STI < -1 || av.STI > 1 || av.LTI < -1 || av.LTI > 1 || av.VLTI < 0 || av.VLTI > 1 {
			t.Fatalf("pass %d: out of range %+v", i, av)
		}
		prev = av
	}
	if prev.STI > 0.01 {
		t.Errorf("sti should approach 0, got %v", prev.STI)
	}
}

func TestDecayFormula(t *testing.T) {
	s := newTestStore(t)
	e := s.Add(NewNode(Node, "", ""))
	e.SetAttention(NewAttentionValue(0.5, 0.2, 0.1))
	s.DecayAttention()

	sti := 0.5 * 0.99
	lti := 0.2*0.999 + sti*0.001
	vlti := 0.1*0.9999 + lti*0.0001
	got := e.Attention()
	if got.STI != sti || got.LTI != lti || got.VLTI != vlti {
		t.Errorf("got %+v, want {%v %v %v}", got, sti, lti, vlti)
	}
}

func TestMostImportant(t *testing.T) {
	s := newTestStore(t)
	low := s.Add(NewNode(Node, "low", ""))
	high := s.Add(NewNode(Node, "high", ""))
	tieA := s.Add(NewNode(Node, "tieA", ""))
	tieB := s.Add(NewNode(Node, "tieB", ""))
	low.SetAttention(NewAttentionValue(0.1, 0, 0))
	high.SetAttention(NewAttentionValue(0.9, 0.5, 0.5))
	tieA.SetAttention(NewAttentionValue(0.3, 0, 0))
	tieB.SetAttention(NewAttentionValue(0.3, 0, 0))

	got := s.MostImportant(3)
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0] != high || got[1] != tieA || got[2] != tieB {
		t.Errorf("unexpected order: %v %v %v", got[0].Name, got[1].Name, got[2].Name)
	}
}

func TestTrustSymmetry(t *testing.T) {
	s := newTestStore(t)
	a := s.AddAgentNode("a", nil)
	b := s.AddAgentNode("b", nil)
	if s.AddTrustRelationship(a.ID, b.ID, 0.7) == nil {
		t.Fatal("trust link not created")
	}
	if got := s.TrustLevel(a.ID, b.ID); got != 0.7 {
		t.Errorf("TrustLevel(a,b) = %v", got)
	}
	if got := s.TrustLevel(b.ID, a.ID); got != 0.7 {
		t.Errorf("TrustLevel(b,a) = %v", got)
	}

	// first match wins
	s.AddTrustRelationship(b.ID, a.ID, 0.2)
	if got := s.TrustLevel(a.ID, b.ID); got != 0.7 {
		t.Errorf("expected first trust link to win, got %v", got)
	}

	c := s.AddAgentNode("c", nil)
	if got := s.TrustLevel(a.ID, c.ID); got != 0 {
		t.Errorf("expected 0 for unknown pair, got %v", got)
	}
}

func TestValidationSkips(t *testing.T) {
	s := newTestStore(t)
	a := s.AddAgentNode("a", nil)
	b := s.AddAgentNode("b", nil)
	before := s.Len()

	if s.AddTrustRelationship(a.ID, b.ID, 1.4) != nil {
		t.Error("out-of-range trust should be rejected")
	}
	if s.AddCapabilityNode("", "empty") != nil {
		t.Error("empty capability name should be rejected")
	}
	if s.AddCapabilityNode("a,b", "comma") != nil {
		t.Error("comma capability name should be rejected")
	}
	if s.AddEvaluationLink(a.ID, b.ID, -0.1) != nil {
		t.Error("negative evaluation score should be rejected")
	}
	if s.AddCollaborationLink(a.ID, "ghost", "pair") != nil {
		t.Error("missing endpoint should be rejected")
	}
	if s.Len() != before {
		t.Errorf("store changed: %d -> %d", before, s.Len())
	}
}

func TestCollaborators(t *testing.T) {
	s := newTestStore(t)
	a := s.AddAgentNode("a", nil)
	b := s.AddAgentNode("b", nil)
	c := s.AddAgentNode("c", nil)
	s.AddCollaborationLink(a.ID, b.ID, "research")
	s.AddCollaborationLink(c.ID, a.ID, "review")

	got := s.Collaborators(a.ID)
	if len(got) != 2 || got[0] != b.ID || got[1] != c.ID {
		t.Errorf("unexpected collaborators %v", got)
	}

	// stale endpoint resolves to not found
	s.Remove(b.ID)
	got = s.Collaborators(a.ID)
	if len(got) != 1 || got[0] != c.ID {
		t.Errorf("expected only c after removing b, got %v", got)
	}
	if len(s.ListByType(CollaborationLink)) != 2 {
		t.Error("removing an endpoint must not remove links")
	}
}

func TestUniqueNodeNames(t *testing.T) {
	s := newTestStore(t)
	first := s.AddAgentNode("worker", []string{"reasoning", "planning"})
	second := s.AddAgentNode("worker", nil)
	third := s.AddAgentNode("worker", nil)

	if first.Name != "worker" || second.Name != "worker_1" || third.Name != "worker_2" {
		t.Errorf("unexpected names %q %q %q", first.Name, second.Name, third.Name)
	}
	if v, _ := first.Meta(MetaCapabilities); v != "reasoning,planning" {
		t.Errorf("unexpected capabilities %q", v)
	}
	if v, _ := first.Meta(MetaType); v != AgentNodeType {
		t.Errorf("unexpected type metadata %q", v)
	}
	if got := s.GenerateUniqueNodeName("fresh"); got != "fresh" {
		t.Errorf("unused base should be returned as is, got %q", got)
	}
}

func TestFind(t *testing.T) {
	s := newTestStore(t)
	s.AddGoalNode("explore", 0.9)
	s.AddBeliefNode("explore", "yes")
	s.AddGoalNode("rest", DefaultGoalPriority)

	if got := s.Find(GoalNode, ""); len(got) != 2 {
		t.Errorf("expected 2 goals, got %d", len(got))
	}
	got := s.Find(GoalNode, "explore")
	if len(got) != 1 || got[0].Type != GoalNode {
		t.Fatalf("expected the explore goal, got %v", got)
	}
	if tv := got[0].Truth(); tv.Strength != 0.9 || tv.Confidence != 0.8 {
		t.Errorf("unexpected goal truth %+v", tv)
	}
}

func TestMemoryNode(t *testing.T) {
	s := newTestStore(t)
	m := s.AddMemoryNode("Executed 2 actions successfully", "procedural")
	if m.Value != "Executed 2 actions successfully" {
		t.Errorf("unexpected value %q", m.Value)
	}
	if v, _ := m.Meta(MetaMemoryType); v != "procedural" {
		t.Errorf("unexpected memory type %q", v)
	}
	if av := m.Attention(); av != (AttentionValue{0.5, 0, 0.3}) {
		t.Errorf("unexpected attention %+v", av)
	}
}

func TestIncoming(t *testing.T) {
	s := newTestStore(t)
	a := s.AddAgentNode("a", nil)
	planning := s.AddCapabilityNode("planning", "plans")
	link := s.AddKnowledgeLink(a.ID, planning.ID, "")

	in := s.Incoming(planning.ID)
	if len(in) != 1 || in[0] != link {
		t.Fatalf("expected knowledge link, got %v", in)
	}
	if v, _ := link.Meta(MetaRelation); v != "knows" {
		t.Errorf("expected default relation, got %q", v)
	}
}

func TestSharedHandles(t *testing.T) {
	s := newTestStore(t)
	a := s.AddAgentNode("a", nil)
	b := s.AddAgentNode("b", nil)
	l := s.AddCollaborationLink(a.ID, b.ID, "pair")

	s.UpdateAttention(a.ID, 0.4, 0, 0)
	if l.Outgoing[0].Attention().STI != 0.4 {
		t.Error("link endpoint should observe attention update")
	}
}

func TestSnapshotRestore(t *testing.T) {
	src := newTestStore(t)
	a := src.AddAgentNode("a", []string{"x"})
	b := src.AddAgentNode("b", nil)
	src.AddTrustRelationship(a.ID, b.ID, 0.6)
	src.AddMemoryNode("remember", "episodic")

	records := src.Snapshot()
	dst := newTestStore(t)
	if n := dst.Restore(records); n != len(records) {
		t.Fatalf("restored %d of %d", n, len(records))
	}
	if got := dst.TrustLevel(a.ID, b.ID); got != 0.6 {
		t.Errorf("trust after restore = %v", got)
	}

	// links with unknown endpoints are skipped
	orphan := NewLink(TrustLink, []*Entity{a, NewNode(AgentNode, "ghost", "")}, "").ToRecord()
	if n := newTestStore(t).Restore([]Record{orphan}); n != 0 {
		t.Errorf("expected orphan link to be skipped, restored %d", n)
	}
}

func TestStatistics(t *testing.T) {
	s := newTestStore(t)
	s.AddGoalNode("g1", 0.5)
	s.AddGoalNode("g2", 0.5)
	m := s.AddMemoryNode("m", "procedural")
	s.AddToFocus(m.ID)

	st := s.Statistics()
	if st.Total != 3 || st.FocusSize != 1 || st.ByType[GoalNode] != 2 || st.ByType[MemoryNode] != 1 {
		t.Errorf("unexpected stats %+v", st)
	}

	s.Clear()
	if st := s.Statistics(); st.Total != 0 || st.FocusSize != 0 {
		t.Errorf("expected empty store after Clear, got %+v", st)
	}
}

func TestConcurrentAddStress(t *testing.T) {
	s := newTestStore(t)
	const workers, perWorker = 16, 250

	var wg sync.WaitGroup
	ids := make([][]string, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				e := s.Add(NewNode(Node, fmt.Sprintf("w%d", w), ""))
				ids[w] = append(ids[w], e.ID)
				// interleave readers
				_ = s.ListByName(fmt.Sprintf("w%d", (w+1)%workers))
			}
		}(w)
	}
	wg.Wait()

	if s.Len() != workers*perWorker {
		t.Fatalf("expected %d entities, got %d", workers*perWorker, s.Len())
	}
	seen := make(map[string]bool)
	for _, list := range ids {
		for _, id := range list {
			if seen[id] {
				t.Fatalf("duplicate id %s", id)
			}
			seen[id] = true
			if !s.Contains(id) {
				t.Fatalf("lost id %s", id)
			}
		}
	}
}
