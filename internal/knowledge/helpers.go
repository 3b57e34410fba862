package knowledge

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Metadata keys written by the domain helpers.
const (
	MetaType              = "type"
	MetaCapabilities      = "capabilities"
	MetaCreationTime      = "creation_time"
	MetaPriority          = "priority"
	MetaMemoryType        = "memory_type"
	MetaCollaborationType = "collaboration_type"
	MetaCreatedTime       = "created_time"
	MetaTrustLevel        = "trust_level"
	MetaRelation          = "relation"
	MetaTask              = "task"
	MetaScore             = "score"
	MetaOwner             = "owner"
)

// AgentNodeType is the metadata type value of agent nodes.
const AgentNodeType = "cognitive_agent"

// DefaultGoalPriority is used when a goal is added without a priority.
const DefaultGoalPriority = 0.5

func stamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// AddAgentNode adds an agent node under a unique variant of name.
func (s *Store) AddAgentNode(name string, capabilities []string) *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := NewNode(AgentNode, s.uniqueNameLocked(name), "")
	e.SetMeta(MetaType, AgentNodeType)
	e.SetMeta(MetaCreationTime, stamp())
	e.SetMeta(MetaCapabilities, strings.Join(capabilities, ","))
	s.addLocked(e)
	s.logger.Info("Agent node created", "name", e.Name, "id", e.ID)
	return e
}

// AddCapabilityNode adds a capability node. Names must be non-empty and
// comma-free since agent nodes store capabilities as a comma-joined list.
func (s *Store) AddCapabilityNode(name, description string) *Entity {
	if strings.TrimSpace(name) == "" || strings.Contains(name, ",") {
		s.logger.Warn("Capability node skipped: malformed name", "name", name)
		return nil
	}
	return s.Add(NewNode(CapabilityNode, name, description))
}

// AddGoalNode adds a goal node whose truth strength is the priority.
func (s *Store) AddGoalNode(goal string, priority float64) *Entity {
	e := NewNode(GoalNode, goal, "")
	e.SetTruth(NewTruthValue(priority, 0.8))
	e.SetMeta(MetaPriority, formatFloat(priority))
	return s.Add(e)
}

// AddBeliefNode adds a belief node.
func (s *Store) AddBeliefNode(belief, value string) *Entity {
	e := NewNode(BeliefNode, belief, value)
	e.SetTruth(NewTruthValue(0.8, 0.7))
	return s.Add(e)
}

// AddMemoryNode records content as a memory node of the given kind.
func (s *Store) AddMemoryNode(content, memoryType string) *Entity {
	e := NewNode(MemoryNode, "memory_"+shortID(uuid.NewString()), content)
	e.SetMeta(MetaMemoryType, memoryType)
	e.SetMeta(MetaCreationTime, stamp())
	e.SetAttention(NewAttentionValue(0.5, 0, 0.3))
	return s.Add(e)
}

// endpoints resolves ids to stored entities, logging the first missing one.
func (s *Store) endpoints(kind EntityType, ids ...string) ([]*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		e, ok := s.entities[id]
		if !ok {
			s.logger.Warn("Link skipped: endpoint not found", "type", kind.String(), "id", id)
			return nil, false
		}
		out = append(out, e)
	}
	return out, true
}

// AddCollaborationLink links two agents that collaborate.
func (s *Store) AddCollaborationLink(agentA, agentB, collaborationType string) *Entity {
	ends, ok := s.endpoints(CollaborationLink, agentA, agentB)
	if !ok {
		return nil
	}
	l := NewLink(CollaborationLink, ends, "")
	l.SetMeta(MetaCollaborationType, collaborationType)
	l.SetMeta(MetaCreatedTime, stamp())
	return s.Add(l)
}

// AddTrustRelationship records how much truster trusts trustee. Levels
// outside [0,1] are rejected.
func (s *Store) AddTrustRelationship(truster, trustee string, level float64) *Entity {
	if level < 0 || level > 1 || level != level {
		s.logger.Warn("Trust link skipped: level out of range", "truster", truster, "trustee", trustee, "level", level)
		return nil
	}
	ends, ok := s.endpoints(TrustLink, truster, trustee)
	if !ok {
		return nil
	}
	l := NewLink(TrustLink, ends, "")
	l.SetTruth(NewTruthValue(level, 0.5))
	l.SetMeta(MetaTrustLevel, formatFloat(level))
	return s.Add(l)
}

// AddKnowledgeLink links a source to a piece of knowledge. An empty relation
// defaults to "knows".
func (s *Store) AddKnowledgeLink(source, target, relation string) *Entity {
	if relation == "" {
		relation = "knows"
	}
	ends, ok := s.endpoints(KnowledgeLink, source, target)
	if !ok {
		return nil
	}
	l := NewLink(KnowledgeLink, ends, "")
	l.SetMeta(MetaRelation, relation)
	return s.Add(l)
}

// AddDelegationLink records that from delegated task to to.
func (s *Store) AddDelegationLink(from, to, task string) *Entity {
	ends, ok := s.endpoints(DelegationLink, from, to)
	if !ok {
		return nil
	}
	l := NewLink(DelegationLink, ends, "")
	l.SetMeta(MetaTask, task)
	l.SetMeta(MetaCreatedTime, stamp())
	return s.Add(l)
}

// AddEvaluationLink records evaluator's score of target. Scores outside
// [0,1] are rejected.
func (s *Store) AddEvaluationLink(evaluator, target string, score float64) *Entity {
	if score < 0 || score > 1 || score != score {
		s.logger.Warn("Evaluation link skipped: score out of range", "evaluator", evaluator, "target", target, "score", score)
		return nil
	}
	ends, ok := s.endpoints(EvaluationLink, evaluator, target)
	if !ok {
		return nil
	}
	l := NewLink(EvaluationLink, ends, "")
	l.SetTruth(NewTruthValue(score, 0.6))
	l.SetMeta(MetaScore, formatFloat(score))
	return s.Add(l)
}

// Collaborators returns the ids of entities sharing a binary collaboration
// link with agentID. Endpoints no longer in the store are skipped.
func (s *Store) Collaborators(agentID string) []string {
	var out []string
	for _, l := range s.ListByType(CollaborationLink) {
		if l.Arity() != 2 {
			continue
		}
		var other string
		switch agentID {
		case l.Outgoing[0].ID:
			other = l.Outgoing[1].ID
		case l.Outgoing[1].ID:
			other = l.Outgoing[0].ID
		default:
			continue
		}
		if s.Contains(other) {
			out = append(out, other)
		}
	}
	return out
}

// TrustLevel returns the strength of the first binary trust link between a
// and b in either direction, or 0 when none exists.
func (s *Store) TrustLevel(a, b string) float64 {
	for _, l := range s.ListByType(TrustLink) {
		if l.Arity() != 2 {
			continue
		}
		x, y := l.Outgoing[0].ID, l.Outgoing[1].ID
		if (x == a && y == b) || (x == b && y == a) {
			return l.Truth().Strength
		}
	}
	return 0
}
