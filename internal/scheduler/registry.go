package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cogpy/swarmcog/internal/knowledge"
)

// Processor implements the behaviour of one phase.
//
// Process may read and modify state and the knowledge store. Values written to
// ctx.Vars are merged into the agent's working memory once Process returns
// without error; the scheduler then advances the agent to the next phase.
type Processor interface {
	Phase() Phase
	Process(ctx *Context, state *AgentState, space *knowledge.Store) error
}

// ProcessFunc is the function form of Processor.Process.
type ProcessFunc func(ctx *Context, state *AgentState, space *knowledge.Store) error

type funcProcessor struct {
	phase Phase
	fn    ProcessFunc
}

func (p funcProcessor) Phase() Phase { return p.phase }

func (p funcProcessor) Process(ctx *Context, state *AgentState, space *knowledge.Store) error {
	return p.fn(ctx, state, space)
}

// ProcessorFunc adapts fn into a Processor for phase.
func ProcessorFunc(phase Phase, fn ProcessFunc) Processor {
	return funcProcessor{phase: phase, fn: fn}
}

// Registry maps phases to processors. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	procs map[Phase]Processor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[Phase]Processor)}
}

// DefaultRegistry returns a registry holding the built-in processor of every
// phase.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range DefaultProcessors() {
		_ = r.Register(p)
	}
	return r
}

// Register installs p, replacing any processor already registered for its
// phase.
func (r *Registry) Register(p Processor) error {
	if p == nil {
		return fmt.Errorf("registry: nil processor")
	}
	if !p.Phase().Valid() {
		return fmt.Errorf("registry: invalid phase %d", int(p.Phase()))
	}
	r.mu.Lock()
	r.procs[p.Phase()] = p
	r.mu.Unlock()
	return nil
}

// Unregister removes the processor for phase.
func (r *Registry) Unregister(phase Phase) {
	r.mu.Lock()
	delete(r.procs, phase)
	r.mu.Unlock()
}

// Get returns the processor for phase.
func (r *Registry) Get(phase Phase) (Processor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[phase]
	return p, ok
}

// Has reports whether a processor is registered for phase.
func (r *Registry) Has(phase Phase) bool {
	_, ok := r.Get(phase)
	return ok
}

// Phases returns the registered phases in cycle order.
func (r *Registry) Phases() []Phase {
	r.mu.RLock()
	out := make([]Phase, 0, len(r.procs))
	for p := range r.procs {
		out = append(out, p)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
