// Package knowledge implements the shared agent knowledge graph: typed nodes and
// links with truth and attention values, type and name indices, an attentional
// focus list and the attention decay pass.
package knowledge

import (
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EntityType tags an entity as one of the node or link kinds.
type EntityType int

const (
	Node EntityType = iota
	AgentNode
	CapabilityNode
	GoalNode
	BeliefNode
	MemoryNode
	CollaborationLink
	DelegationLink
	TrustLink
	KnowledgeLink
	EvaluationLink
)

var entityTypeNames = [...]string{
	Node:              "Node",
	AgentNode:         "AgentNode",
	CapabilityNode:    "CapabilityNode",
	GoalNode:          "GoalNode",
	BeliefNode:        "BeliefNode",
	MemoryNode:        "MemoryNode",
	CollaborationLink: "CollaborationLink",
	DelegationLink:    "DelegationLink",
	TrustLink:         "TrustLink",
	KnowledgeLink:     "KnowledgeLink",
	EvaluationLink:    "EvaluationLink",
}

func (t EntityType) String() string {
	if t < 0 || int(t) >= len(entityTypeNames) {
		return fmt.Sprintf("EntityType(%d)", int(t))
	}
	return entityTypeNames[t]
}

// IsLink reports whether entities of this type carry an outgoing set.
func (t EntityType) IsLink() bool {
	return t >= CollaborationLink && t <= EvaluationLink
}

// EntityTypes returns every entity type in declaration order.
func EntityTypes() []EntityType {
	out := make([]EntityType, 0, len(entityTypeNames))
	for i := range entityTypeNames {
		out = append(out, EntityType(i))
	}
	return out
}

// ParseEntityType resolves a type name such as "GoalNode".
func ParseEntityType(s string) (EntityType, error) {
	for i, name := range entityTypeNames {
		if name == s {
			return EntityType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown entity type %q", s)
}

// TruthValue is the (strength, confidence) pair of an entity.
type TruthValue struct {
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
}

// NewTruthValue returns a truth value with both components clamped to [0,1].
func NewTruthValue(strength, confidence float64) TruthValue {
	return TruthValue{
		Strength:   clamp(strength, 0, 1),
		Confidence: clamp(confidence, 0, 1),
	}
}

// DefaultTruthValue is assigned to entities created without one.
func DefaultTruthValue() TruthValue {
	return TruthValue{Strength: 0.5, Confidence: 0}
}

// AttentionValue holds the short, long and very-long term importance.
type AttentionValue struct {
	STI  float64 `json:"sti"`
	LTI  float64 `json:"lti"`
	VLTI float64 `json:"vlti"`
}

// NewAttentionValue clamps sti and lti to [-1,1] and vlti to [0,1].
func NewAttentionValue(sti, lti, vlti float64) AttentionValue {
	return AttentionValue{
		STI:  clamp(sti, -1, 1),
		LTI:  clamp(lti, -1, 1),
		VLTI: clamp(vlti, 0, 1),
	}
}

// Importance is the ranking key used by MostImportant.
func (a AttentionValue) Importance() float64 {
	return a.STI + a.LTI + a.VLTI
}

func clamp(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Entity is a node or a link in the knowledge graph.
//
// ID, Type, Name, CreatedAt, Value and Outgoing are fixed once the entity has
// been added to a Store. Truth, attention and metadata are mutable through the
// accessor methods and are safe for concurrent use. Links hold the same *Entity
// handles the store holds, so updates are visible through every reference.
type Entity struct {
	ID        string
	Type      EntityType
	Name      string
	CreatedAt time.Time

	// Value is set on nodes.
	Value string
	// Outgoing is the ordered endpoint list of a link; its length is the arity.
	Outgoing []*Entity

	mu        sync.RWMutex
	truth     TruthValue
	attention AttentionValue
	metadata  map[string]string

	seq atomic.Uint64
}

// NewNode builds a node entity. An empty name defaults to "atom_<id prefix>".
func NewNode(t EntityType, name, value string) *Entity {
	e := newEntity(uuid.NewString(), t, name)
	e.Value = value
	return e
}

// NewLink builds a link entity over the given endpoints.
func NewLink(t EntityType, outgoing []*Entity, name string) *Entity {
	e := newEntity(uuid.NewString(), t, name)
	e.Outgoing = append([]*Entity(nil), outgoing...)
	return e
}

func newEntity(id string, t EntityType, name string) *Entity {
	if name == "" {
		name = "atom_" + shortID(id)
	}
	return &Entity{
		ID:        id,
		Type:      t,
		Name:      name,
		CreatedAt: time.Now(),
		truth:     DefaultTruthValue(),
		metadata:  make(map[string]string),
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// IsLink reports whether the entity is a link.
func (e *Entity) IsLink() bool { return e.Type.IsLink() }

// Arity is the number of outgoing endpoints.
func (e *Entity) Arity() int { return len(e.Outgoing) }

// Truth returns the current truth value.
func (e *Entity) Truth() TruthValue {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.truth
}

// SetTruth stores tv after clamping.
func (e *Entity) SetTruth(tv TruthValue) {
	tv = NewTruthValue(tv.Strength, tv.Confidence)
	e.mu.Lock()
	e.truth = tv
	e.mu.Unlock()
}

// Attention returns the current attention value.
func (e *Entity) Attention() AttentionValue {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attention
}

// SetAttention stores av after clamping.
func (e *Entity) SetAttention(av AttentionValue) {
	av = NewAttentionValue(av.STI, av.LTI, av.VLTI)
	e.mu.Lock()
	e.attention = av
	e.mu.Unlock()
}

// updateAttention applies fn to the attention value under the entity lock.
func (e *Entity) updateAttention(fn func(AttentionValue) AttentionValue) {
	e.mu.Lock()
	av := fn(e.attention)
	e.attention = NewAttentionValue(av.STI, av.LTI, av.VLTI)
	e.mu.Unlock()
}

// Meta returns a metadata value.
func (e *Entity) Meta(key string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.metadata[key]
	return v, ok
}

// SetMeta sets a metadata value.
func (e *Entity) SetMeta(key, value string) {
	e.mu.Lock()
	if e.metadata == nil {
		e.metadata = make(map[string]string)
	}
	e.metadata[key] = value
	e.mu.Unlock()
}

// Metadata returns a copy of the metadata map.
func (e *Entity) Metadata() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.metadata)
}

// OutgoingIDs returns the identifiers of the outgoing set in order.
func (e *Entity) OutgoingIDs() []string {
	ids := make([]string, len(e.Outgoing))
	for i, o := range e.Outgoing {
		ids[i] = o.ID
	}
	return ids
}

// String renders the entity for logs and CLI output.
func (e *Entity) String() string {
	tv := e.Truth()
	if e.IsLink() {
		return fmt.Sprintf("%s(%s %v) tv=(%.2f,%.2f)", e.Type, e.Name, e.OutgoingIDs(), tv.Strength, tv.Confidence)
	}
	return fmt.Sprintf("%s(%s) tv=(%.2f,%.2f)", e.Type, e.Name, tv.Strength, tv.Confidence)
}
