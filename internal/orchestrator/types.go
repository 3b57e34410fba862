// Package orchestrator runs a swarm of cognitive agents over a shared
// knowledge store: agent lifecycle, trust and collaboration, the autonomous
// cycle loop and cron-driven maintenance.
package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/cogpy/swarmcog/internal/scheduler"
)

var (
	// ErrMaxAgents is returned by CreateAgent once the swarm is full.
	ErrMaxAgents = errors.New("maximum number of agents reached")
	// ErrAgentNotFound is returned when an operation names an unknown agent.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrAlreadyRunning is returned by Run while another Run is active.
	ErrAlreadyRunning = errors.New("orchestrator already running")
	// ErrLocked is returned by Run when another process holds the swarm lock.
	ErrLocked = errors.New("swarm lock held by another process")
)

// AgentSpec describes an agent to create.
type AgentSpec struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"` // defaults to ID
	Model        string            `json:"model,omitempty"`
	Instructions string            `json:"instructions,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Goals        []string          `json:"goals,omitempty"`
	Beliefs      map[string]string `json:"beliefs,omitempty"`
}

// Agent is the swarm's record of a created agent. NodeID is the id of its
// agent node in the knowledge store.
type Agent struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Model        string            `json:"model,omitempty"`
	Instructions string            `json:"instructions,omitempty"`
	NodeID       string            `json:"node_id"`
	Capabilities []string          `json:"capabilities"`
	Goals        []string          `json:"goals"`
	Beliefs      map[string]string `json:"beliefs"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (a *Agent) clone() Agent {
	out := *a
	out.Capabilities = slices.Clone(a.Capabilities)
	out.Goals = slices.Clone(a.Goals)
	out.Beliefs = maps.Clone(a.Beliefs)
	return out
}

// Job is a cron-scheduled maintenance task. Its semaphore keeps at most one
// run in flight.
type Job struct {
	Name string
	Cron *scheduler.Cron
	Run  func(ctx context.Context) error

	sem *scheduler.Semaphore
}

// TrustEdge is one directed trust relationship between agents.
type TrustEdge struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Level float64 `json:"level"`
}

// Topology summarises the swarm's relationship graph, in agent ids.
type Topology struct {
	TotalAgents      int                 `json:"total_agents"`
	Connections      map[string][]string `json:"connections"`
	Trust            []TrustEdge         `json:"trust"`
	Collaborations   [][2]string         `json:"collaborations"`
	Capabilities     map[string][]string `json:"capabilities"`
	TotalConnections int                 `json:"total_connections"`
	AverageTrust     float64             `json:"average_trust"`
}

// Density is the share of possible directed trust connections present.
func (t Topology) Density() float64 {
	if t.TotalAgents <= 1 {
		return 0
	}
	possible := t.TotalAgents * (t.TotalAgents - 1)
	return float64(t.TotalConnections) / float64(possible)
}

// CentralAgents returns up to limit agents ordered by outgoing trust
// connections, most connected first. Ties are broken by id.
func (t Topology) CentralAgents(limit int) []string {
	ids := make([]string, 0, len(t.Connections))
	for id := range t.Connections {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if d := len(t.Connections[b]) - len(t.Connections[a]); d != 0 {
			return d
		}
		return cmp.Compare(a, b)
	})
	if limit >= 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

// CapabilityDistribution maps each capability to the share of agents that
// have it.
func (t Topology) CapabilityDistribution() map[string]float64 {
	out := make(map[string]float64)
	if t.TotalAgents == 0 {
		return out
	}
	counts := make(map[string]int)
	for _, caps := range t.Capabilities {
		for _, c := range caps {
			counts[c]++
		}
	}
	for c, n := range counts {
		out[c] = float64(n) / float64(t.TotalAgents)
	}
	return out
}
