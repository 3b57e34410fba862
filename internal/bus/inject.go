package bus

import (
	"fmt"
	"strings"
	"time"
)

// CurrentSchemaVersion is the schema version of injected events.
const CurrentSchemaVersion = "v1"

// Injected event types.
const (
	InjectBelief    = "belief"
	InjectGoal      = "goal"
	InjectKnowledge = "knowledge"
)

// InjectedEvent is an external stimulus delivered to the swarm, typically
// consumed from Kafka.
type InjectedEvent struct {
	SchemaVersion  string    `json:"schemaVersion"`
	Type           string    `json:"type"`
	IdempotencyKey string    `json:"idempotencyKey"`
	Source         string    `json:"source"`
	Timestamp      time.Time `json:"timestamp"`
	// AgentID targets one agent; empty means every agent (belief and goal
	// events) or the swarm as a whole (knowledge events).
	AgentID string `json:"agentId,omitempty"`
	Key     string `json:"key,omitempty"`
	Value   string `json:"value"`
}

// Validate checks the envelope and the type-specific fields.
func (e InjectedEvent) Validate() error {
	if strings.TrimSpace(e.SchemaVersion) == "" {
		return fmt.Errorf("schemaVersion is required")
	}
	if e.SchemaVersion != CurrentSchemaVersion {
		return fmt.Errorf("unsupported schemaVersion: %s", e.SchemaVersion)
	}
	if strings.TrimSpace(e.IdempotencyKey) == "" {
		return fmt.Errorf("idempotencyKey is required")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	switch e.Type {
	case InjectBelief:
		if strings.TrimSpace(e.Key) == "" {
			return fmt.Errorf("key is required for belief events")
		}
	case InjectGoal, InjectKnowledge:
		if strings.TrimSpace(e.Value) == "" {
			return fmt.Errorf("value is required for %s events", e.Type)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unsupported type: %s", e.Type)
	}
	return nil
}
