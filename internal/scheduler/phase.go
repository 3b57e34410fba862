// Package scheduler runs the seven-phase cognitive cycle of every registered
// agent on a pool of workers fed by a priority task queue.
package scheduler

import (
	"fmt"
	"maps"
	"slices"
	"time"
)

// Phase is one stage of the cognitive cycle.
type Phase int

const (
	PhasePerception Phase = iota
	PhaseAttention
	PhaseReasoning
	PhasePlanning
	PhaseExecution
	PhaseLearning
	PhaseReflection
)

var phaseNames = [...]string{
	PhasePerception: "perception",
	PhaseAttention:  "attention",
	PhaseReasoning:  "reasoning",
	PhasePlanning:   "planning",
	PhaseExecution:  "execution",
	PhaseLearning:   "learning",
	PhaseReflection: "reflection",
}

func (p Phase) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Valid reports whether p is one of the seven phases.
func (p Phase) Valid() bool {
	return p >= PhasePerception && p <= PhaseReflection
}

// Next returns the phase that follows p; REFLECTION wraps to PERCEPTION.
func (p Phase) Next() Phase {
	if p >= PhaseReflection || p < PhasePerception {
		return PhasePerception
	}
	return p + 1
}

// Phases returns the cycle order.
func Phases() []Phase {
	return []Phase{
		PhasePerception,
		PhaseAttention,
		PhaseReasoning,
		PhasePlanning,
		PhaseExecution,
		PhaseLearning,
		PhaseReflection,
	}
}

// ParsePhase resolves a phase name such as "planning".
func ParsePhase(s string) (Phase, error) {
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// AgentState is the per-agent phase state owned by the scheduler.
type AgentState struct {
	AgentID    string            `json:"agent_id"`
	Phase      Phase             `json:"phase"`
	Goals      []string          `json:"goals"`
	Beliefs    map[string]string `json:"beliefs"`
	Intentions []string          `json:"intentions"`
	Focus      []string          `json:"focus"`
	// WorkingMemory carries phase results from one phase task to the next.
	WorkingMemory map[string]string `json:"working_memory"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewAgentState builds the initial PERCEPTION state for an agent.
func NewAgentState(agentID string, goals []string, beliefs map[string]string) AgentState {
	st := AgentState{
		AgentID:       agentID,
		Phase:         PhasePerception,
		Beliefs:       make(map[string]string, len(beliefs)),
		WorkingMemory: make(map[string]string),
	}
	for _, g := range goals {
		st.AddGoal(g)
	}
	maps.Copy(st.Beliefs, beliefs)
	return st
}

// AddGoal appends goal unless it is already present.
func (s *AgentState) AddGoal(goal string) bool {
	if slices.Contains(s.Goals, goal) {
		return false
	}
	s.Goals = append(s.Goals, goal)
	return true
}

// SetBelief sets a belief value.
func (s *AgentState) SetBelief(key, value string) {
	if s.Beliefs == nil {
		s.Beliefs = make(map[string]string)
	}
	s.Beliefs[key] = value
}

// Remember stores a working-memory value.
func (s *AgentState) Remember(key, value string) {
	if s.WorkingMemory == nil {
		s.WorkingMemory = make(map[string]string)
	}
	s.WorkingMemory[key] = value
}

// Recall reads a working-memory value.
func (s *AgentState) Recall(key string) string {
	return s.WorkingMemory[key]
}

// Clone returns a deep copy.
func (s AgentState) Clone() AgentState {
	out := s
	out.Goals = slices.Clone(s.Goals)
	out.Intentions = slices.Clone(s.Intentions)
	out.Focus = slices.Clone(s.Focus)
	out.Beliefs = maps.Clone(s.Beliefs)
	out.WorkingMemory = maps.Clone(s.WorkingMemory)
	if out.Beliefs == nil {
		out.Beliefs = make(map[string]string)
	}
	if out.WorkingMemory == nil {
		out.WorkingMemory = make(map[string]string)
	}
	return out
}
