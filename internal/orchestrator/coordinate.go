package orchestrator

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cogpy/swarmcog/internal/bus"
	"github.com/cogpy/swarmcog/internal/knowledge"
	"github.com/google/uuid"
)

// Coordination strategies accepted by CoordinateTask.
const (
	// StrategyCollaborative links every pair of participants.
	StrategyCollaborative = "collaborative"
	// StrategyHierarchical makes the first participant the lead, delegating
	// the task to every other participant.
	StrategyHierarchical = "hierarchical"
)

// TaskGoalPrefix prefixes the goal each participant of a coordinated task
// receives.
const TaskGoalPrefix = "contribute_to_task: "

// recentMemories bounds Interactions.RecentMemories.
const recentMemories = 10

// CoordinationLink is one link created for a coordinated task.
type CoordinationLink struct {
	From   string `json:"from"`
	To     string `json:"to"`
	LinkID string `json:"link_id"`
}

// Coordination is the record of a multi-agent task.
type Coordination struct {
	TaskID      string             `json:"task_id"`
	Description string             `json:"description"`
	Strategy    string             `json:"strategy"`
	Agents      []string           `json:"participating_agents"`
	Assignments map[string]string  `json:"agent_assignments"`
	Links       []CoordinationLink `json:"links"`
	StartedAt   time.Time          `json:"started_at"`
	Status      string             `json:"status"`
}

// Evaluation is one agent's score of another.
type Evaluation struct {
	Evaluator string  `json:"evaluator"`
	Target    string  `json:"target"`
	Score     float64 `json:"score"`
}

// Delegation is a task handed from one agent to another.
type Delegation struct {
	From string `json:"from"`
	To   string `json:"to"`
	Task string `json:"task"`
}

// Interactions is the relationship view of one agent.
type Interactions struct {
	Agent          string             `json:"agent"`
	Collaborators  []string           `json:"collaborators"`
	TrustLevels    map[string]float64 `json:"trust_levels"`
	Goals          []string           `json:"active_goals"`
	Capabilities   []string           `json:"capabilities"`
	Delegations    []Delegation       `json:"delegations"`
	Evaluations    []Evaluation       `json:"evaluations"`
	RecentMemories []string           `json:"recent_memories"`
}

// CoordinateTask assigns description to the participating agents (every
// agent when agents is empty) as a goal and links them according to
// strategy. Unknown agents fail the call before anything is changed.
func (o *Orchestrator) CoordinateTask(description string, agents []string, strategy string) (Coordination, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Coordination{}, fmt.Errorf("task description is required")
	}
	if strategy == "" {
		strategy = StrategyCollaborative
	}
	if strategy != StrategyCollaborative && strategy != StrategyHierarchical {
		return Coordination{}, fmt.Errorf("unknown coordination strategy %q", strategy)
	}
	if len(agents) == 0 {
		for _, a := range o.Agents() {
			agents = append(agents, a.ID)
		}
	}
	var unique []string
	for _, id := range agents {
		if !slices.Contains(unique, id) {
			unique = append(unique, id)
		}
	}
	agents = unique
	nodes := make([]string, len(agents))
	for i, id := range agents {
		n, err := o.nodeOf(id)
		if err != nil {
			return Coordination{}, err
		}
		nodes[i] = n
	}

	c := Coordination{
		TaskID:      "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Description: description,
		Strategy:    strategy,
		Agents:      agents,
		Assignments: make(map[string]string, len(agents)),
		StartedAt:   time.Now(),
		Status:      "initiated",
	}
	goal := TaskGoalPrefix + description
	for _, id := range agents {
		if err := o.AddGoal(id, goal, knowledge.DefaultGoalPriority); err != nil {
			return Coordination{}, err
		}
		c.Assignments[id] = goal
	}

	switch strategy {
	case StrategyCollaborative:
		for i := range agents {
			for j := i + 1; j < len(agents); j++ {
				if l := o.space.AddCollaborationLink(nodes[i], nodes[j], description); l != nil {
					c.Links = append(c.Links, CoordinationLink{From: agents[i], To: agents[j], LinkID: l.ID})
				}
			}
		}
	case StrategyHierarchical:
		for i := 1; i < len(agents); i++ {
			if l := o.space.AddDelegationLink(nodes[0], nodes[i], description); l != nil {
				c.Links = append(c.Links, CoordinationLink{From: agents[0], To: agents[i], LinkID: l.ID})
			}
		}
	}

	o.bus.Publish(bus.CycleEvent{
		Type:    bus.EventTaskCoordinated,
		TaskID:  c.TaskID,
		Success: true,
		Metadata: map[string]string{
			"strategy": strategy,
			"agents":   strings.Join(agents, ","),
			"links":    strconv.Itoa(len(c.Links)),
		},
	})
	o.logger.Info("Coordinated multi-agent task",
		"task_id", c.TaskID, "strategy", strategy, "agents", len(agents), "links", len(c.Links))
	return c, nil
}

// Evaluate records evaluator's score of target and moves the trust evaluator
// places in target halfway towards the score.
func (o *Orchestrator) Evaluate(evaluator, target string, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("evaluation score %v outside [0,1]", score)
	}
	if evaluator == target {
		return fmt.Errorf("agent %s cannot evaluate itself", evaluator)
	}
	ne, err := o.nodeOf(evaluator)
	if err != nil {
		return err
	}
	nt, err := o.nodeOf(target)
	if err != nil {
		return err
	}
	if o.space.AddEvaluationLink(ne, nt, score) == nil {
		return fmt.Errorf("evaluation %s->%s not recorded", evaluator, target)
	}
	level := score
	if l := o.trustLink(ne, nt); l != nil {
		level = (l.Truth().Strength + score) / 2
	}
	return o.Trust(evaluator, target, level)
}

// Interactions returns the relationship view of agent id.
func (o *Orchestrator) Interactions(id string) (Interactions, error) {
	a, ok := o.Agent(id)
	if !ok {
		return Interactions{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	byNode := o.agentOfNode()
	out := Interactions{
		Agent:         id,
		Collaborators: o.Collaborators(id),
		TrustLevels:   make(map[string]float64),
		Goals:         a.Goals,
		Capabilities:  a.Capabilities,
	}
	for _, l := range o.space.ListByType(knowledge.TrustLink) {
		if l.Arity() != 2 || l.Outgoing[0].ID != a.NodeID {
			continue
		}
		if other, ok := byNode[l.Outgoing[1].ID]; ok {
			out.TrustLevels[other] = l.Truth().Strength
		}
	}
	for _, l := range o.space.ListByType(knowledge.DelegationLink) {
		if l.Arity() != 2 || (l.Outgoing[0].ID != a.NodeID && l.Outgoing[1].ID != a.NodeID) {
			continue
		}
		from, okFrom := byNode[l.Outgoing[0].ID]
		to, okTo := byNode[l.Outgoing[1].ID]
		if okFrom && okTo {
			task, _ := l.Meta(knowledge.MetaTask)
			out.Delegations = append(out.Delegations, Delegation{From: from, To: to, Task: task})
		}
	}
	for _, l := range o.space.ListByType(knowledge.EvaluationLink) {
		if l.Arity() != 2 || l.Outgoing[1].ID != a.NodeID {
			continue
		}
		if from, ok := byNode[l.Outgoing[0].ID]; ok {
			out.Evaluations = append(out.Evaluations, Evaluation{Evaluator: from, Target: id, Score: l.Truth().Strength})
		}
	}
	out.RecentMemories = o.memoriesOf(a)
	return out, nil
}

// AllInteractions returns Interactions for every agent, keyed by id.
func (o *Orchestrator) AllInteractions() map[string]Interactions {
	out := make(map[string]Interactions)
	for _, a := range o.Agents() {
		if in, err := o.Interactions(a.ID); err == nil {
			out[a.ID] = in
		}
	}
	return out
}

// memoriesOf returns the contents of the latest memories the agent learned,
// shared or received, oldest first.
func (o *Orchestrator) memoriesOf(a Agent) []string {
	received := make(map[string]bool)
	for _, l := range o.space.Incoming(a.NodeID) {
		if l.Type != knowledge.KnowledgeLink || l.Arity() != 2 {
			continue
		}
		if rel, _ := l.Meta(knowledge.MetaRelation); rel == RelationSharedKnowledge {
			received[l.Outgoing[0].ID] = true
		}
	}
	var out []string
	for _, m := range o.space.ListByType(knowledge.MemoryNode) {
		owner, _ := m.Meta(knowledge.MetaOwner)
		source, _ := m.Meta("source")
		if owner == a.ID || source == a.ID || received[m.ID] {
			out = append(out, m.Value)
		}
	}
	if len(out) > recentMemories {
		out = out[len(out)-recentMemories:]
	}
	return out
}
