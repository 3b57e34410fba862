package knowledge

import (
	"time"
)

// Record is the flat, serializable form of an entity. Links refer to their
// endpoints by id.
type Record struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Name      string            `json:"name"`
	Value     string            `json:"value,omitempty"`
	Outgoing  []string          `json:"outgoing,omitempty"`
	Truth     TruthValue        `json:"truth"`
	Attention AttentionValue    `json:"attention"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ToRecord flattens e.
func (e *Entity) ToRecord() Record {
	r := Record{
		ID:        e.ID,
		Type:      e.Type.String(),
		Name:      e.Name,
		Value:     e.Value,
		Truth:     e.Truth(),
		Attention: e.Attention(),
		Metadata:  e.Metadata(),
		CreatedAt: e.CreatedAt,
	}
	if e.IsLink() {
		r.Outgoing = e.OutgoingIDs()
	}
	return r
}

// Snapshot returns every entity as a record, in insertion order.
func (s *Store) Snapshot() []Record {
	all := s.List()
	out := make([]Record, 0, len(all))
	for _, e := range all {
		out = append(out, e.ToRecord())
	}
	return out
}

// Restore adds the records to the store. Nodes are restored before links;
// links whose endpoints cannot be resolved are skipped. It returns the number
// of entities restored.
func (s *Store) Restore(records []Record) int {
	var links []Record
	restored := 0
	for _, r := range records {
		t, err := ParseEntityType(r.Type)
		if err != nil {
			s.logger.Warn("Restore skipped record", "id", r.ID, "error", err)
			continue
		}
		if t.IsLink() {
			links = append(links, r)
			continue
		}
		e := fromRecord(t, r)
		e.Value = r.Value
		s.Add(e)
		restored++
	}
	for _, r := range links {
		t, _ := ParseEntityType(r.Type)
		ends, ok := s.endpoints(t, r.Outgoing...)
		if !ok {
			continue
		}
		e := fromRecord(t, r)
		e.Outgoing = ends
		s.Add(e)
		restored++
	}
	return restored
}

func fromRecord(t EntityType, r Record) *Entity {
	e := newEntity(r.ID, t, r.Name)
	if !r.CreatedAt.IsZero() {
		e.CreatedAt = r.CreatedAt
	}
	e.truth = NewTruthValue(r.Truth.Strength, r.Truth.Confidence)
	e.attention = NewAttentionValue(r.Attention.STI, r.Attention.LTI, r.Attention.VLTI)
	for k, v := range r.Metadata {
		e.metadata[k] = v
	}
	return e
}
