package knowledge

import (
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// FocusCapacity bounds the attentional focus list.
const FocusCapacity = 20

// Decay factors applied by DecayAttention.
const (
	STIDecay      = 0.99
	LTIRetention  = 0.999
	LTIFromSTI    = 0.001
	VLTIRetention = 0.9999
	VLTIFromLTI   = 0.0001
)

// Store is the thread-safe knowledge graph shared by all agents of a swarm.
type Store struct {
	name   string
	logger *slog.Logger

	// mu guards entities and both indices as one unit.
	mu       sync.RWMutex
	entities map[string]*Entity
	byType   map[EntityType]map[string]*Entity
	byName   map[string]map[string]*Entity

	focusMu sync.Mutex
	focus   []string // oldest first

	added atomic.Uint64
	seq   atomic.Uint64
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	Total     int                `json:"total"`
	FocusSize int                `json:"focus_size"`
	Added     uint64             `json:"added"`
	ByType    map[EntityType]int `json:"by_type"`
}

// NewStore creates an empty store. A nil logger falls back to slog.Default().
func NewStore(name string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if name == "" {
		name = "swarm_agentspace"
	}
	return &Store{
		name:     name,
		logger:   logger.With("agentspace", name),
		entities: make(map[string]*Entity),
		byType:   make(map[EntityType]map[string]*Entity),
		byName:   make(map[string]map[string]*Entity),
	}
}

// Name returns the store's name.
func (s *Store) Name() string { return s.name }

// Add inserts e under its identifier, replacing any entity with the same id.
func (s *Store) Add(e *Entity) *Entity {
	if e == nil {
		return nil
	}
	s.mu.Lock()
	s.addLocked(e)
	s.mu.Unlock()
	return e
}

func (s *Store) addLocked(e *Entity) {
	if old, ok := s.entities[e.ID]; ok {
		s.unindexLocked(old)
	}
	if e.seq.Load() == 0 {
		e.seq.Store(s.seq.Add(1))
	}
	s.entities[e.ID] = e

	ti := s.byType[e.Type]
	if ti == nil {
		ti = make(map[string]*Entity)
		s.byType[e.Type] = ti
	}
	ti[e.ID] = e

	ni := s.byName[e.Name]
	if ni == nil {
		ni = make(map[string]*Entity)
		s.byName[e.Name] = ni
	}
	ni[e.ID] = e

	s.added.Add(1)
}

func (s *Store) unindexLocked(e *Entity) {
	delete(s.entities, e.ID)
	if ti := s.byType[e.Type]; ti != nil {
		delete(ti, e.ID)
		if len(ti) == 0 {
			delete(s.byType, e.Type)
		}
	}
	if ni := s.byName[e.Name]; ni != nil {
		delete(ni, e.ID)
		if len(ni) == 0 {
			delete(s.byName, e.Name)
		}
	}
}

// Remove deletes the entity with id from the store, its indices and the
// attentional focus. Links pointing at it are left in place.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	e, ok := s.entities[id]
	if ok {
		s.unindexLocked(e)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.RemoveFromFocus(id)
	return true
}

// Get looks up an entity by id.
func (s *Store) Get(id string) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	return e, ok
}

// Contains reports whether id is present.
func (s *Store) Contains(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// List returns every entity in insertion order.
func (s *Store) List() []*Entity {
	s.mu.RLock()
	out := collect(s.entities)
	s.mu.RUnlock()
	return sortBySeq(out)
}

// ListByType returns the entities of type t in insertion order.
func (s *Store) ListByType(t EntityType) []*Entity {
	s.mu.RLock()
	out := collect(s.byType[t])
	s.mu.RUnlock()
	return sortBySeq(out)
}

// ListByName returns the entities named name in insertion order.
func (s *Store) ListByName(name string) []*Entity {
	s.mu.RLock()
	out := collect(s.byName[name])
	s.mu.RUnlock()
	return sortBySeq(out)
}

// Find returns entities of type t, narrowed to those named name when name is
// not empty.
func (s *Store) Find(t EntityType, name string) []*Entity {
	if name == "" {
		return s.ListByType(t)
	}
	s.mu.RLock()
	var out []*Entity
	for _, e := range s.byName[name] {
		if e.Type == t {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()
	return sortBySeq(out)
}

// Len returns the number of stored entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entities)
}

// Incoming returns the links whose outgoing set contains id.
func (s *Store) Incoming(id string) []*Entity {
	s.mu.RLock()
	var out []*Entity
	for t, idx := range s.byType {
		if !t.IsLink() {
			continue
		}
		for _, l := range idx {
			for _, o := range l.Outgoing {
				if o.ID == id {
					out = append(out, l)
					break
				}
			}
		}
	}
	s.mu.RUnlock()
	return sortBySeq(out)
}

// GenerateUniqueNodeName returns base, or base with the first numeric suffix
// ("_1", "_2", ...) that no stored entity uses.
func (s *Store) GenerateUniqueNodeName(base string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uniqueNameLocked(base)
}

func (s *Store) uniqueNameLocked(base string) string {
	if len(s.byName[base]) == 0 {
		return base
	}
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i)
		if len(s.byName[candidate]) == 0 {
			return candidate
		}
	}
}

// UpdateAttention adds the deltas to an entity's attention value.
func (s *Store) UpdateAttention(id string, dSTI, dLTI, dVLTI float64) bool {
	e, ok := s.Get(id)
	if !ok {
		s.logger.Warn("Attention update for unknown entity", "id", id)
		return false
	}
	e.updateAttention(func(av AttentionValue) AttentionValue {
		return AttentionValue{STI: av.STI + dSTI, LTI: av.LTI + dLTI, VLTI: av.VLTI + dVLTI}
	})
	return true
}

// MostImportant returns up to limit entities ranked by STI+LTI+VLTI,
// descending. Equal scores keep insertion order.
func (s *Store) MostImportant(limit int) []*Entity {
	all := s.List()
	scores := make(map[*Entity]float64, len(all))
	for _, e := range all {
		scores[e] = e.Attention().Importance()
	}
	sort.SliceStable(all, func(i, j int) bool {
		return scores[all[i]] > scores[all[j]]
	})
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// AddToFocus moves id to the most recent focus slot, evicting the oldest
// entry once the list exceeds FocusCapacity.
func (s *Store) AddToFocus(id string) {
	s.focusMu.Lock()
	defer s.focusMu.Unlock()
	if i := slices.Index(s.focus, id); i >= 0 {
		s.focus = slices.Delete(s.focus, i, i+1)
	}
	s.focus = append(s.focus, id)
	if over := len(s.focus) - FocusCapacity; over > 0 {
		s.focus = slices.Delete(s.focus, 0, over)
	}
}

// RemoveFromFocus drops id from the focus list.
func (s *Store) RemoveFromFocus(id string) bool {
	s.focusMu.Lock()
	defer s.focusMu.Unlock()
	i := slices.Index(s.focus, id)
	if i < 0 {
		return false
	}
	s.focus = slices.Delete(s.focus, i, i+1)
	return true
}

// Focus returns the focus list, most recent first.
func (s *Store) Focus() []string {
	s.focusMu.Lock()
	out := slices.Clone(s.focus)
	s.focusMu.Unlock()
	slices.Reverse(out)
	return out
}

// DecayAttention runs one decay pass over every entity.
func (s *Store) DecayAttention() {
	for _, e := range s.List() {
		e.updateAttention(decay)
	}
}

func decay(av AttentionValue) AttentionValue {
	sti := av.STI * STIDecay
	lti := av.LTI*LTIRetention + sti*LTIFromSTI
	vlti := av.VLTI*VLTIRetention + lti*VLTIFromLTI
	return AttentionValue{STI: sti, LTI: lti, VLTI: vlti}
}

// Statistics returns entity counts.
func (s *Store) Statistics() Stats {
	st := Stats{ByType: make(map[EntityType]int)}
	s.mu.RLock()
	st.Total = len(s.entities)
	for t, idx := range s.byType {
		st.ByType[t] = len(idx)
	}
	s.mu.RUnlock()
	st.Added = s.added.Load()
	s.focusMu.Lock()
	st.FocusSize = len(s.focus)
	s.focusMu.Unlock()
	return st
}

// Clear removes every entity and empties the focus list.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entities = make(map[string]*Entity)
	s.byType = make(map[EntityType]map[string]*Entity)
	s.byName = make(map[string]map[string]*Entity)
	s.mu.Unlock()
	s.focusMu.Lock()
	s.focus = nil
	s.focusMu.Unlock()
	s.added.Store(0)
}

func collect(m map[string]*Entity) []*Entity {
	out := make([]*Entity, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

func sortBySeq(es []*Entity) []*Entity {
	sort.Slice(es, func(i, j int) bool {
		return es[i].seq.Load() < es[j].seq.Load()
	})
	return es
}
