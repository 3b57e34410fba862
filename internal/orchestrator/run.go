package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cogpy/swarmcog/internal/bus"
	"github.com/cogpy/swarmcog/internal/knowledge"
	"github.com/cogpy/swarmcog/internal/scheduler"
	"github.com/cogpy/swarmcog/internal/timeline"
	"golang.org/x/sync/errgroup"
)

// Built-in maintenance jobs.
const (
	JobDecay    = "attention_decay"
	JobSnapshot = "snapshot"
)

func (o *Orchestrator) registerBuiltinJobs() error {
	if expr := o.cfg.Swarm.DecayCron; expr != "" {
		if err := o.RegisterJob(JobDecay, expr, func(context.Context) error {
			o.space.DecayAttention()
			return nil
		}); err != nil {
			return err
		}
	}
	if expr := o.cfg.Swarm.SnapshotCron; expr != "" && o.timeline != nil {
		if err := o.RegisterJob(JobSnapshot, expr, func(context.Context) error {
			return o.SaveSnapshot()
		}); err != nil {
			return err
		}
	}
	return nil
}

// RegisterJob adds or replaces a maintenance job run whenever expr matches a
// maintenance tick.
func (o *Orchestrator) RegisterJob(name, expr string, fn func(ctx context.Context) error) error {
	c, err := scheduler.ParseCron(expr)
	if err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	o.mu.Lock()
	o.jobs[name] = &Job{Name: name, Cron: c, Run: fn, sem: scheduler.NewSemaphore(1)}
	o.mu.Unlock()
	o.logger.Info("Maintenance job registered", "name", name, "cron", expr)
	return nil
}

// Jobs returns the registered job names, sorted.
func (o *Orchestrator) Jobs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.jobs))
	for name := range o.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunMaintenance starts every job whose schedule matches now and returns how
// many were started. A job whose previous run is still in flight is skipped.
func (o *Orchestrator) RunMaintenance(ctx context.Context, now time.Time) int {
	o.mu.RLock()
	var due []*Job
	for _, job := range o.jobs {
		if job.Cron.Matches(now) {
			due = append(due, job)
		}
	}
	o.mu.RUnlock()

	started := 0
	for _, job := range due {
		if !job.sem.TryAcquire() {
			o.logger.Warn("Maintenance job skipped: still running", "job", job.Name)
			o.logJobRun(job.Name, "skipped_concurrency", now)
			continue
		}
		started++
		o.jobsWG.Add(1)
		go func(job *Job) {
			defer o.jobsWG.Done()
			defer job.sem.Release()
			if err := job.Run(ctx); err != nil {
				o.logger.Warn("Maintenance job failed", "job", job.Name, "error", err)
				o.logJobRun(job.Name, "failed", now)
				return
			}
			o.logJobRun(job.Name, "completed", now)
		}(job)
	}
	return started
}

func (o *Orchestrator) waitJobs() { o.jobsWG.Wait() }

// logJobRun persists the last job status as a timeline setting (best-effort).
func (o *Orchestrator) logJobRun(name, status string, tick time.Time) {
	if o.timeline == nil {
		return
	}
	_ = o.timeline.SetSetting("job:"+name, status+" "+tick.UTC().Format(time.RFC3339))
}

// Step runs one cognitive cycle for every agent and returns the number of
// cycles scheduled. In synchronous mode it also drains the queue.
func (o *Orchestrator) Step(ctx context.Context) (int, error) {
	n := o.sched.RunAllCycles()
	if o.sched.Config().Mode == scheduler.ModeSynchronous {
		if err := o.sched.Drain(ctx); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Running reports whether Run is active.
func (o *Orchestrator) Running() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.running
}

// Run drives the swarm autonomously until ctx is cancelled: one cycle per
// agent every cycle interval, maintenance jobs every tick, event dispatch and
// the optional Kafka bridge. On return the scheduler is stopped and a final
// snapshot is saved when the timeline is enabled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if o.lock != nil {
		acquired, err := o.lock.TryLock()
		if err != nil {
			return fmt.Errorf("swarm lock: %w", err)
		}
		if !acquired {
			return ErrLocked
		}
		defer o.lock.Unlock()
	}

	async := o.sched.Config().Mode != scheduler.ModeSynchronous
	if async {
		o.sched.Start(o.cfg.Scheduler.Workers)
	}
	o.logger.Info("Autonomous operation started", "agents", o.AgentCount(), "interval", o.cfg.Scheduler.CycleInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.bus.Dispatch(gctx) })
	if o.fwd != nil {
		g.Go(func() error { return o.fwd.Run(gctx) })
	}
	if o.source != nil {
		g.Go(func() error {
			return o.source.Run(gctx, func(evt bus.InjectedEvent) error {
				if err := o.InjectEvent(evt); err != nil {
					o.logger.Warn("Injected event rejected", "error", err)
				}
				return nil
			})
		})
	}
	g.Go(func() error { return o.loop(gctx) })

	err := g.Wait()

	if async {
		o.sched.Stop()
	}
	o.waitJobs()
	if o.timeline != nil {
		if serr := o.SaveSnapshot(); serr != nil {
			o.logger.Warn("Final snapshot failed", "error", serr)
		}
	}
	// The forwarder has already exited; events from the last tasks are
	// handed to it by Flush and written here.
	o.bus.Flush()
	if o.fwd != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if derr := o.fwd.Drain(drainCtx); derr != nil {
			o.logger.Warn("Final event forward failed", "error", derr)
		}
		cancel()
	}
	o.logger.Info("Autonomous operation stopped")

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (o *Orchestrator) loop(ctx context.Context) error {
	interval := o.cfg.Scheduler.CycleInterval
	if interval <= 0 {
		interval = time.Second
	}
	cycles := time.NewTicker(interval)
	defer cycles.Stop()
	tick := o.cfg.Swarm.TickInterval
	if tick <= 0 {
		tick = time.Minute
	}
	maintenance := time.NewTicker(tick)
	defer maintenance.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-cycles.C:
			if _, err := o.Step(ctx); err != nil {
				return err
			}
		case now := <-maintenance.C:
			o.RunMaintenance(ctx, now)
		}
	}
}

// SaveSnapshot stores the knowledge graph and every agent state in the
// timeline.
func (o *Orchestrator) SaveSnapshot() error {
	if o.timeline == nil {
		return errors.New("timeline disabled")
	}
	records := o.space.Snapshot()
	var states []timeline.AgentStateRecord
	for _, id := range o.sched.Agents() {
		st, ok := o.sched.State(id)
		if !ok {
			continue
		}
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode state of %s: %w", id, err)
		}
		states = append(states, timeline.AgentStateRecord{
			AgentID:   id,
			Phase:     st.Phase.String(),
			State:     string(data),
			UpdatedAt: st.UpdatedAt,
		})
	}
	if err := o.timeline.SaveSnapshot(records, states); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	o.logger.Debug("Snapshot saved", "entities", len(records), "agents", len(states))
	return nil
}

// RestoreSnapshot loads the stored snapshot into the knowledge store and
// re-registers the stored agents with the scheduler. It returns the number of
// restored entities and agents.
func (o *Orchestrator) RestoreSnapshot() (int, int, error) {
	if o.timeline == nil {
		return 0, 0, errors.New("timeline disabled")
	}
	records, states, err := o.timeline.LoadSnapshot()
	if err != nil {
		return 0, 0, fmt.Errorf("load snapshot: %w", err)
	}
	entities := o.space.Restore(records)

	agents := 0
	for _, rec := range states {
		var st scheduler.AgentState
		if err := json.Unmarshal([]byte(rec.State), &st); err != nil {
			o.logger.Warn("Skipping undecodable agent state", "agent_id", rec.AgentID, "error", err)
			continue
		}
		node := o.agentNode(rec.AgentID)
		if node == nil {
			o.logger.Warn("Skipping agent state without agent node", "agent_id", rec.AgentID)
			continue
		}
		o.sched.RegisterAgent(rec.AgentID, st.Goals, st.Beliefs)
		o.sched.SetState(rec.AgentID, st)

		o.mu.Lock()
		model, _ := node.Meta(MetaModel)
		instructions, _ := node.Meta(MetaInstructions)
		o.agents[rec.AgentID] = &Agent{
			ID:           rec.AgentID,
			Name:         node.Name,
			Model:        model,
			Instructions: instructions,
			NodeID:       node.ID,
			Capabilities: o.capabilitiesOf(node.ID),
			Goals:        st.Goals,
			Beliefs:      st.Beliefs,
			CreatedAt:    rec.UpdatedAt,
		}
		o.mu.Unlock()
		agents++
	}
	o.logger.Info("Snapshot restored", "entities", entities, "agents", agents)
	return entities, agents, nil
}

// agentNode finds the agent node created for id.
func (o *Orchestrator) agentNode(id string) *knowledge.Entity {
	for _, n := range o.space.ListByType(knowledge.AgentNode) {
		if v, ok := n.Meta(MetaAgentID); ok && v == id {
			return n
		}
	}
	return nil
}

// capabilitiesOf lists the capability names linked from an agent node.
func (o *Orchestrator) capabilitiesOf(nodeID string) []string {
	var caps []string
	for _, l := range o.space.ListByType(knowledge.KnowledgeLink) {
		if l.Arity() != 2 || l.Outgoing[0].ID != nodeID || l.Outgoing[1].Type != knowledge.CapabilityNode {
			continue
		}
		if rel, _ := l.Meta(knowledge.MetaRelation); rel == RelationHasCapability {
			caps = append(caps, l.Outgoing[1].Name)
		}
	}
	return caps
}
