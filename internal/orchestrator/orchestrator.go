package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cogpy/swarmcog/internal/bus"
	"github.com/cogpy/swarmcog/internal/config"
	"github.com/cogpy/swarmcog/internal/knowledge"
	"github.com/cogpy/swarmcog/internal/scheduler"
	"github.com/cogpy/swarmcog/internal/timeline"
)

// RelationHasCapability labels the knowledge link from an agent node to one
// of its capability nodes.
const RelationHasCapability = "has_capability"

// Agent node metadata keys.
const (
	MetaAgentID      = "agent_id"
	MetaModel        = "model"
	MetaInstructions = "instructions"
)

// RelationSharedKnowledge labels the knowledge link from shared knowledge to
// a receiving agent.
const RelationSharedKnowledge = "shared_knowledge"

// injectSource delivers external events to the swarm.
type injectSource interface {
	Run(ctx context.Context, handle func(bus.InjectedEvent) error) error
	Close() error
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimeline uses tl for task runs and snapshots instead of opening the
// configured database.
func WithTimeline(tl *timeline.TimelineService) Option {
	return func(o *Orchestrator) { o.timeline = tl }
}

// WithSink forwards bus events to sink instead of the configured Kafka topic.
func WithSink(sink bus.Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithSource consumes injected events from src instead of the configured
// Kafka topic.
func WithSource(src injectSource) Option {
	return func(o *Orchestrator) { o.source = src }
}

// WithRegistry replaces the scheduler's phase processors.
func WithRegistry(r *scheduler.Registry) Option {
	return func(o *Orchestrator) { o.registry = r }
}

// Orchestrator owns the shared knowledge store, the cognitive scheduler and
// the event bus, and keeps the swarm's agent bookkeeping.
type Orchestrator struct {
	mu       sync.RWMutex
	cfg      *config.Config
	logger   *slog.Logger
	space    *knowledge.Store
	sched    *scheduler.Scheduler
	registry *scheduler.Registry
	bus      *bus.MessageBus
	timeline *timeline.TimelineService
	ownsTL   bool
	sink     bus.Sink
	fwd      *bus.Forwarder
	source   injectSource
	lock     *scheduler.FileLock

	agents    map[string]*Agent
	jobs      map[string]*Job
	jobsWG    sync.WaitGroup
	running   bool
	startedAt time.Time
}

// New builds an orchestrator from cfg. A nil cfg uses config.DefaultConfig().
// When the timeline is enabled and no WithTimeline option is given, the
// configured database is opened; Close releases it.
func New(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := &Orchestrator{
		cfg:       cfg,
		logger:    slog.Default(),
		agents:    make(map[string]*Agent),
		jobs:      make(map[string]*Job),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.timeline == nil && cfg.Timeline.Enabled {
		if err := config.EnsureDir(filepath.Dir(cfg.Timeline.DBPath)); err != nil {
			return nil, fmt.Errorf("timeline dir: %w", err)
		}
		tl, err := timeline.NewTimelineService(cfg.Timeline.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open timeline: %w", err)
		}
		o.timeline = tl
		o.ownsTL = true
	}
	if cfg.Events.KafkaEnabled {
		if o.sink == nil {
			o.sink = bus.NewKafkaSink(cfg.Events.KafkaBrokers, cfg.Events.Topic)
		}
		if o.source == nil && cfg.Events.InjectTopic != "" {
			o.source = bus.NewKafkaSource(cfg.Events.KafkaBrokers, cfg.Events.InjectTopic, cfg.Events.ConsumerGroup, o.logger)
		}
	}

	o.space = knowledge.NewStore(cfg.Space.Name, o.logger)
	o.bus = bus.NewMessageBusSize(cfg.Events.BufferSize)
	if o.sink != nil {
		o.fwd = bus.NewForwarder(o.sink, cfg.Events.BatchSize, cfg.Events.FlushInterval, o.logger)
		o.fwd.Attach(o.bus)
	}

	mode, _ := scheduler.ParseProcessingMode(cfg.Scheduler.Mode)
	schedOpts := []scheduler.Option{
		scheduler.WithLogger(o.logger),
		scheduler.WithPublisher(o.bus),
		scheduler.WithRegistry(o.registry),
	}
	if o.timeline != nil && cfg.Timeline.RecordTasks {
		schedOpts = append(schedOpts, scheduler.WithRecorder(o.timeline))
	}
	o.sched = scheduler.New(scheduler.Config{
		Workers:       cfg.Scheduler.Workers,
		Mode:          mode,
		CycleInterval: cfg.Scheduler.CycleInterval,
	}, o.space, schedOpts...)

	if cfg.Swarm.LockPath != "" {
		o.lock = scheduler.NewFileLock(cfg.Swarm.LockPath)
	}
	if err := o.registerBuiltinJobs(); err != nil {
		return nil, err
	}

	o.logger.Info("Swarm initialized", "agentspace", o.space.Name(), "mode", mode, "workers", cfg.Scheduler.Workers)
	return o, nil
}

// Space returns the shared knowledge store.
func (o *Orchestrator) Space() *knowledge.Store { return o.space }

// Scheduler returns the cognitive scheduler.
func (o *Orchestrator) Scheduler() *scheduler.Scheduler { return o.sched }

// Bus returns the event bus.
func (o *Orchestrator) Bus() *bus.MessageBus { return o.bus }

// Timeline returns the persistence service, or nil when disabled.
func (o *Orchestrator) Timeline() *timeline.TimelineService { return o.timeline }

// Close releases the timeline database if the orchestrator opened it and
// closes the Kafka clients.
func (o *Orchestrator) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if o.source != nil {
		keep(o.source.Close())
	}
	if o.sink != nil {
		keep(o.sink.Close())
	}
	if o.ownsTL && o.timeline != nil {
		keep(o.timeline.Close())
	}
	return firstErr
}

// CreateAgent registers an agent with the scheduler and adds its agent,
// capability, goal and belief nodes to the knowledge store. Creating an
// existing id returns the existing agent.
func (o *Orchestrator) CreateAgent(spec AgentSpec) (Agent, error) {
	if spec.ID == "" {
		return Agent{}, fmt.Errorf("agent id is required")
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.agents[spec.ID]; ok {
		o.logger.Warn("Agent already exists", "agent_id", spec.ID)
		return existing.clone(), nil
	}
	if len(o.agents) >= o.cfg.Swarm.MaxAgents {
		o.logger.Error("Maximum number of agents reached", "max_agents", o.cfg.Swarm.MaxAgents)
		return Agent{}, fmt.Errorf("%w (%d)", ErrMaxAgents, o.cfg.Swarm.MaxAgents)
	}

	name := spec.Name
	if name == "" {
		name = spec.ID
	}
	state := o.sched.RegisterAgent(spec.ID, spec.Goals, spec.Beliefs)

	node := o.space.AddAgentNode(name, spec.Capabilities)
	node.SetMeta(MetaAgentID, spec.ID)
	if spec.Model != "" {
		node.SetMeta(MetaModel, spec.Model)
	}
	if spec.Instructions != "" {
		node.SetMeta(MetaInstructions, spec.Instructions)
	}
	caps := make([]string, 0, len(spec.Capabilities))
	for _, c := range spec.Capabilities {
		capNode := o.capabilityNode(c)
		if capNode == nil {
			continue
		}
		o.space.AddKnowledgeLink(node.ID, capNode.ID, RelationHasCapability)
		caps = append(caps, c)
	}
	for _, g := range state.Goals {
		o.space.AddGoalNode(g, knowledge.DefaultGoalPriority)
	}
	keys := make([]string, 0, len(state.Beliefs))
	for k := range state.Beliefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o.space.AddBeliefNode(k, state.Beliefs[k])
	}

	a := &Agent{
		ID:           spec.ID,
		Name:         node.Name,
		Model:        spec.Model,
		Instructions: spec.Instructions,
		NodeID:       node.ID,
		Capabilities: caps,
		Goals:        state.Goals,
		Beliefs:      state.Beliefs,
		CreatedAt:    time.Now(),
	}
	o.agents[spec.ID] = a
	o.bus.Publish(bus.CycleEvent{Type: bus.EventAgentCreated, AgentID: spec.ID, Success: true})
	o.logger.Info("Created cognitive agent", "agent_id", spec.ID, "node_id", node.ID, "capabilities", len(caps))
	return a.clone(), nil
}

// capabilityNode returns the capability node named c, creating it on first
// use so agents with the same capability share one node.
func (o *Orchestrator) capabilityNode(c string) *knowledge.Entity {
	if found := o.space.Find(knowledge.CapabilityNode, c); len(found) > 0 {
		return found[0]
	}
	return o.space.AddCapabilityNode(c, "")
}

// RemoveAgent deregisters the agent and removes its agent node together with
// every link that points at it.
func (o *Orchestrator) RemoveAgent(id string) bool {
	o.mu.Lock()
	a, ok := o.agents[id]
	if ok {
		delete(o.agents, id)
	}
	o.mu.Unlock()
	if !ok {
		o.logger.Warn("Remove of unknown agent", "agent_id", id)
		return false
	}

	o.sched.DeregisterAgent(id)
	for _, l := range o.space.Incoming(a.NodeID) {
		o.space.Remove(l.ID)
	}
	o.space.Remove(a.NodeID)
	o.bus.Publish(bus.CycleEvent{Type: bus.EventAgentRemoved, AgentID: id, Success: true})
	o.logger.Info("Removed agent", "agent_id", id)
	return true
}

// Agent returns the record of id.
func (o *Orchestrator) Agent(id string) (Agent, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[id]
	if !ok {
		return Agent{}, false
	}
	return a.clone(), true
}

// Agents returns every agent sorted by id.
func (o *Orchestrator) Agents() []Agent {
	o.mu.RLock()
	out := make([]Agent, 0, len(o.agents))
	for _, a := range o.agents {
		out = append(out, a.clone())
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AgentCount returns the number of agents.
func (o *Orchestrator) AgentCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.agents)
}

// AddGoal gives the agent a new goal with the given priority. A goal the
// agent already has is ignored. The scheduler write waits for a phase of the
// agent that is in flight, so it is made without holding the swarm lock.
func (o *Orchestrator) AddGoal(id, goal string, priority float64) error {
	o.mu.RLock()
	a, ok := o.agents[id]
	known := ok && slices.Contains(a.Goals, goal)
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	if known {
		return nil
	}
	if !o.sched.AddGoal(id, goal) {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	o.mu.Lock()
	a, ok = o.agents[id]
	added := ok && !slices.Contains(a.Goals, goal)
	if added {
		a.Goals = append(a.Goals, goal)
	}
	o.mu.Unlock()
	if added {
		o.space.AddGoalNode(goal, priority)
	}
	return nil
}

// UpdateBelief sets one belief of the agent and records it as a belief node.
func (o *Orchestrator) UpdateBelief(id, key, value string) error {
	if _, err := o.nodeOf(id); err != nil {
		return err
	}
	if !o.sched.UpdateBelief(id, key, value) {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}

	o.mu.Lock()
	if a, ok := o.agents[id]; ok {
		if a.Beliefs == nil {
			a.Beliefs = make(map[string]string)
		}
		a.Beliefs[key] = value
	}
	o.mu.Unlock()
	for _, b := range o.space.Find(knowledge.BeliefNode, key) {
		if b.Value == value {
			return nil
		}
	}
	o.space.AddBeliefNode(key, value)
	return nil
}

func (o *Orchestrator) nodeOf(id string) (string, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a.NodeID, nil
}

// agentOfNode maps agent node ids back to agent ids.
func (o *Orchestrator) agentOfNode() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]string, len(o.agents))
	for id, a := range o.agents {
		out[a.NodeID] = id
	}
	return out
}

// Collaborate links two agents with a collaboration link of the given kind.
func (o *Orchestrator) Collaborate(a, b, kind string) error {
	na, err := o.nodeOf(a)
	if err != nil {
		return err
	}
	nb, err := o.nodeOf(b)
	if err != nil {
		return err
	}
	if o.space.AddCollaborationLink(na, nb, kind) == nil {
		return fmt.Errorf("collaboration %s-%s not recorded", a, b)
	}
	return nil
}

// Collaborators returns the ids of the agents collaborating with id.
func (o *Orchestrator) Collaborators(id string) []string {
	n, err := o.nodeOf(id)
	if err != nil {
		return nil
	}
	byNode := o.agentOfNode()
	var out []string
	for _, other := range o.space.Collaborators(n) {
		if aid, ok := byNode[other]; ok && !slices.Contains(out, aid) {
			out = append(out, aid)
		}
	}
	return out
}

// Trust sets the trust truster places in trustee. An existing link in that
// direction is updated in place.
func (o *Orchestrator) Trust(truster, trustee string, level float64) error {
	if level < 0 || level > 1 {
		return fmt.Errorf("trust level %v outside [0,1]", level)
	}
	na, err := o.nodeOf(truster)
	if err != nil {
		return err
	}
	nb, err := o.nodeOf(trustee)
	if err != nil {
		return err
	}
	if l := o.trustLink(na, nb); l != nil {
		l.SetTruth(knowledge.NewTruthValue(level, l.Truth().Confidence))
		l.SetMeta(knowledge.MetaTrustLevel, strconv.FormatFloat(level, 'f', -1, 64))
		return nil
	}
	if o.space.AddTrustRelationship(na, nb, level) == nil {
		return fmt.Errorf("trust %s->%s not recorded", truster, trustee)
	}
	o.logger.Info("Established trust", "truster", truster, "trustee", trustee, "level", level)
	return nil
}

func (o *Orchestrator) trustLink(from, to string) *knowledge.Entity {
	for _, l := range o.space.ListByType(knowledge.TrustLink) {
		if l.Arity() == 2 && l.Outgoing[0].ID == from && l.Outgoing[1].ID == to {
			return l
		}
	}
	return nil
}

// TrustLevel returns the trust between two agents, or 0.
func (o *Orchestrator) TrustLevel(a, b string) float64 {
	na, err := o.nodeOf(a)
	if err != nil {
		return 0
	}
	nb, err := o.nodeOf(b)
	if err != nil {
		return 0
	}
	return o.space.TrustLevel(na, nb)
}

// EstablishGlobalTrust adds a trust link at base from every agent to every
// other agent it does not trust yet, and returns how many were added.
func (o *Orchestrator) EstablishGlobalTrust(base float64) (int, error) {
	if base < 0 || base > 1 {
		return 0, fmt.Errorf("trust level %v outside [0,1]", base)
	}
	agents := o.Agents()
	added := 0
	for _, a := range agents {
		for _, b := range agents {
			if a.ID == b.ID || o.trustLink(a.NodeID, b.NodeID) != nil {
				continue
			}
			if o.space.AddTrustRelationship(a.NodeID, b.NodeID, base) != nil {
				added++
			}
		}
	}
	o.logger.Info("Established global trust", "level", base, "links", added)
	return added, nil
}

// FindAgentsByCapability returns the ids of agents with capability c.
func (o *Orchestrator) FindAgentsByCapability(c string) []string {
	var out []string
	for _, a := range o.Agents() {
		if slices.Contains(a.Capabilities, c) {
			out = append(out, a.ID)
		}
	}
	return out
}

// ShareKnowledge stores content as a memory node of the given kind and links
// it to every agent other than source. It returns the memory node id.
func (o *Orchestrator) ShareKnowledge(kind, content, source string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("knowledge content is required")
	}
	if kind == "" {
		kind = "shared"
	}
	mem := o.space.AddMemoryNode(content, kind)
	if source != "" {
		mem.SetMeta("source", source)
	}
	shared := 0
	for _, a := range o.Agents() {
		if a.ID == source {
			continue
		}
		if o.space.AddKnowledgeLink(mem.ID, a.NodeID, RelationSharedKnowledge) != nil {
			shared++
		}
	}
	o.bus.Publish(bus.CycleEvent{
		Type:     bus.EventKnowledgeShared,
		AgentID:  source,
		Success:  true,
		Metadata: map[string]string{"kind": kind, "node_id": mem.ID, "recipients": strconv.Itoa(shared)},
	})
	o.logger.Info("Shared knowledge globally", "kind", kind, "source", source, "recipients", shared)
	return mem.ID, nil
}

// InjectEvent applies an external event: belief and goal events target one
// agent, or every agent when AgentID is empty; knowledge events are shared
// with the swarm.
func (o *Orchestrator) InjectEvent(evt bus.InjectedEvent) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("invalid injected event: %w", err)
	}
	targets := []string{evt.AgentID}
	if evt.AgentID == "" {
		targets = targets[:0]
		for _, a := range o.Agents() {
			targets = append(targets, a.ID)
		}
	}

	switch evt.Type {
	case bus.InjectBelief:
		for _, id := range targets {
			if err := o.UpdateBelief(id, evt.Key, evt.Value); err != nil {
				return err
			}
		}
	case bus.InjectGoal:
		for _, id := range targets {
			if err := o.AddGoal(id, evt.Value, knowledge.DefaultGoalPriority); err != nil {
				return err
			}
		}
	case bus.InjectKnowledge:
		if _, err := o.ShareKnowledge(evt.Key, evt.Value, evt.AgentID); err != nil {
			return err
		}
	}
	o.logger.Debug("Injected event applied", "type", evt.Type, "key", evt.IdempotencyKey, "targets", len(targets))
	return nil
}

// Topology builds the swarm's trust and collaboration graph.
func (o *Orchestrator) Topology() Topology {
	byNode := o.agentOfNode()
	t := Topology{
		Connections:  make(map[string][]string),
		Capabilities: make(map[string][]string),
	}
	for _, a := range o.Agents() {
		t.TotalAgents++
		t.Capabilities[a.ID] = a.Capabilities
	}

	sum := 0.0
	for _, l := range o.space.ListByType(knowledge.TrustLink) {
		if l.Arity() != 2 {
			continue
		}
		from, okA := byNode[l.Outgoing[0].ID]
		to, okB := byNode[l.Outgoing[1].ID]
		if !okA || !okB {
			continue
		}
		level := l.Truth().Strength
		t.Connections[from] = append(t.Connections[from], to)
		t.Trust = append(t.Trust, TrustEdge{From: from, To: to, Level: level})
		t.TotalConnections++
		sum += level
	}
	if len(t.Trust) > 0 {
		t.AverageTrust = sum / float64(len(t.Trust))
	}

	for _, l := range o.space.ListByType(knowledge.CollaborationLink) {
		if l.Arity() != 2 {
			continue
		}
		a, okA := byNode[l.Outgoing[0].ID]
		b, okB := byNode[l.Outgoing[1].ID]
		if okA && okB {
			t.Collaborations = append(t.Collaborations, [2]string{a, b})
		}
	}
	return t
}

// Status returns a flat snapshot of the scheduler and the swarm.
func (o *Orchestrator) Status() map[string]string {
	st := o.sched.Status()
	stats := o.space.Statistics()

	o.mu.RLock()
	running := o.running
	agents := len(o.agents)
	jobs := len(o.jobs)
	o.mu.RUnlock()

	st["agentspace"] = o.space.Name()
	st["agents"] = strconv.Itoa(agents)
	st["entities"] = strconv.Itoa(stats.Total)
	st["focus_size"] = strconv.Itoa(stats.FocusSize)
	st["autonomous"] = strconv.FormatBool(running)
	st["events_dropped"] = strconv.FormatUint(o.bus.Dropped(), 10)
	st["maintenance_jobs"] = strconv.Itoa(jobs)
	st["uptime"] = time.Since(o.startedAt).Round(time.Second).String()
	st["timeline"] = strconv.FormatBool(o.timeline != nil)
	st["kafka"] = strconv.FormatBool(o.sink != nil || o.source != nil)
	return st
}
