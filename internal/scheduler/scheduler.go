package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cogpy/swarmcog/internal/bus"
	"github.com/cogpy/swarmcog/internal/knowledge"
	"github.com/cogpy/swarmcog/internal/timeline"
)

// ProcessingMode describes how the owner drives the scheduler.
type ProcessingMode string

const (
	// ModeSynchronous drains the queue on the caller's goroutine.
	ModeSynchronous ProcessingMode = "synchronous"
	// ModeAsynchronous runs a worker pool.
	ModeAsynchronous ProcessingMode = "asynchronous"
	// ModeDistributed is reserved; it behaves like ModeAsynchronous.
	ModeDistributed ProcessingMode = "distributed"
)

// ParseProcessingMode validates a mode name.
func ParseProcessingMode(s string) (ProcessingMode, error) {
	switch m := ProcessingMode(s); m {
	case ModeSynchronous, ModeAsynchronous, ModeDistributed:
		return m, nil
	default:
		return "", fmt.Errorf("unknown processing mode %q", s)
	}
}

// ErrUnknownAgent is returned when a task targets an agent that is not
// registered.
var ErrUnknownAgent = errors.New("unknown agent")

// Config holds scheduler settings.
type Config struct {
	Workers       int            `json:"workers" envconfig:"WORKERS"`
	Mode          ProcessingMode `json:"mode" envconfig:"MODE"`
	CycleInterval time.Duration  `json:"cycleInterval" envconfig:"CYCLE_INTERVAL"`
}

// DefaultConfig returns sensible scheduler defaults.
func DefaultConfig() Config {
	return Config{
		Workers:       4,
		Mode:          ModeAsynchronous,
		CycleInterval: time.Second,
	}
}

// EventPublisher receives one event per processed task.
type EventPublisher interface {
	Publish(evt bus.CycleEvent)
}

// TaskRecorder persists task outcomes.
type TaskRecorder interface {
	RecordTaskRun(run timeline.TaskRun) error
}

// StateCallback observes agent state updates. It receives a copy.
type StateCallback func(AgentState)

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegistry replaces the default phase processors.
func WithRegistry(r *Registry) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithPublisher sends task events to p.
func WithPublisher(p EventPublisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithRecorder persists task outcomes through r.
func WithRecorder(r TaskRecorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// Stats are the scheduler's aggregate counters.
type Stats struct {
	Cycles              uint64        `json:"cycles"`
	CompletedTasks      uint64        `json:"completed_tasks"`
	FailedTasks         uint64        `json:"failed_tasks"`
	TotalProcessingTime time.Duration `json:"total_processing_time"`
	StartedAt           time.Time     `json:"started_at"`
}

// Scheduler owns agent phase state, the task queue and the worker pool.
type Scheduler struct {
	cfg       Config
	space     *knowledge.Store
	registry  *Registry
	logger    *slog.Logger
	publisher EventPublisher
	recorder  TaskRecorder

	stateMu   sync.RWMutex
	states    map[string]*AgentState
	callbacks map[string][]StateCallback
	// agentLocks serialize every write to one agent's state: phase bodies
	// and the goal and belief passthroughs. Taken before stateMu.
	agentLocks map[string]*sync.Mutex

	// queueMu guards the queue, the lanes, the run flag and the active count.
	queueMu  sync.Mutex
	workCond *sync.Cond
	idleCond *sync.Cond
	queue    taskQueue
	lanes    map[string]*lane
	parked   int
	seq      uint64
	active   int
	running  bool
	workers  int
	wg       sync.WaitGroup

	lifecycle sync.Mutex
	startedAt atomic.Int64

	cycles          atomic.Uint64
	completed       atomic.Uint64
	failed          atomic.Uint64
	processingNanos atomic.Int64
}

// New creates a Scheduler over space.
func New(cfg Config, space *knowledge.Store, opts ...Option) *Scheduler {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = def.CycleInterval
	}

	s := &Scheduler{
		cfg:        cfg,
		space:      space,
		registry:   DefaultRegistry(),
		logger:     slog.Default(),
		states:     make(map[string]*AgentState),
		callbacks:  make(map[string][]StateCallback),
		agentLocks: make(map[string]*sync.Mutex),
		lanes:      make(map[string]*lane),
		workers:    cfg.Workers,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.workCond = sync.NewCond(&s.queueMu)
	s.idleCond = sync.NewCond(&s.queueMu)
	s.startedAt.Store(time.Now().UnixNano())
	return s
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config { return s.cfg }

// Registry returns the phase processor registry.
func (s *Scheduler) Registry() *Registry { return s.registry }

// Space returns the knowledge store the phases operate on.
func (s *Scheduler) Space() *knowledge.Store { return s.space }

// RegisterAgent creates the phase state for id. Registering an existing agent
// logs a warning and returns its state unchanged.
func (s *Scheduler) RegisterAgent(id string, goals []string, beliefs map[string]string) AgentState {
	s.stateMu.Lock()
	if st, ok := s.states[id]; ok {
		out := st.Clone()
		s.stateMu.Unlock()
		s.logger.Warn("Cognitive agent already registered", "agent_id", id)
		return out
	}
	st := NewAgentState(id, goals, beliefs)
	st.UpdatedAt = time.Now()
	s.states[id] = &st
	s.agentLocks[id] = &sync.Mutex{}
	out := st.Clone()
	s.stateMu.Unlock()

	s.logger.Info("Cognitive agent registered", "agent_id", id, "goals", len(out.Goals))
	return out
}

// DeregisterAgent removes the state and callbacks of id.
func (s *Scheduler) DeregisterAgent(id string) bool {
	s.stateMu.Lock()
	_, ok := s.states[id]
	delete(s.states, id)
	delete(s.callbacks, id)
	delete(s.agentLocks, id)
	s.stateMu.Unlock()
	s.dropLane(id)
	if !ok {
		s.logger.Warn("Deregister of unknown cognitive agent", "agent_id", id)
		return false
	}
	s.logger.Info("Cognitive agent deregistered", "agent_id", id)
	return true
}

// HasAgent reports whether id is registered.
func (s *Scheduler) HasAgent(id string) bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	_, ok := s.states[id]
	return ok
}

// Agents returns the registered agent ids, sorted.
func (s *Scheduler) Agents() []string {
	s.stateMu.RLock()
	out := make([]string, 0, len(s.states))
	for id := range s.states {
		out = append(out, id)
	}
	s.stateMu.RUnlock()
	sort.Strings(out)
	return out
}

// State returns a copy of the state of id.
func (s *Scheduler) State(id string) (AgentState, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	st, ok := s.states[id]
	if !ok {
		return AgentState{}, false
	}
	return st.Clone(), true
}

// SetState replaces the state of id, refreshes its timestamp and notifies the
// agent's callbacks.
func (s *Scheduler) SetState(id string, state AgentState) bool {
	return s.update(id, func(st *AgentState) {
		*st = state.Clone()
	})
}

// AddGoal appends goal to the agent's goals if it is not already present.
func (s *Scheduler) AddGoal(id, goal string) bool {
	return s.update(id, func(st *AgentState) { st.AddGoal(goal) })
}

// UpdateBelief sets one belief of the agent.
func (s *Scheduler) UpdateBelief(id, key, value string) bool {
	return s.update(id, func(st *AgentState) { st.SetBelief(key, value) })
}

func (s *Scheduler) agentLock(id string) *sync.Mutex {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.agentLocks[id]
}

// update applies mutate under the agent lock, so a write made while a phase
// is running lands after the phase has written its result back.
func (s *Scheduler) update(id string, mutate func(*AgentState)) bool {
	lock := s.agentLock(id)
	ok := false
	var snapshot AgentState
	var cbs []StateCallback
	if lock != nil {
		lock.Lock()
		snapshot, cbs, ok = s.apply(id, mutate)
		lock.Unlock()
	}
	if !ok {
		s.logger.Warn("State update for unknown cognitive agent", "agent_id", id)
		return false
	}
	s.notify(id, cbs, snapshot)
	return true
}

// apply mutates the stored state and returns a copy plus the callbacks to
// notify. The caller holds the agent lock.
func (s *Scheduler) apply(id string, mutate func(*AgentState)) (AgentState, []StateCallback, bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return AgentState{}, nil, false
	}
	mutate(st)
	st.AgentID = id
	st.UpdatedAt = time.Now()
	return st.Clone(), append([]StateCallback(nil), s.callbacks[id]...), true
}

func (s *Scheduler) notify(id string, cbs []StateCallback, state AgentState) {
	for i, cb := range cbs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("State callback failed", "agent_id", id, "callback", i, "panic", r)
				}
			}()
			cb(state.Clone())
		}()
	}
}

// RegisterCallback adds an observer of the agent's state updates.
func (s *Scheduler) RegisterCallback(id string, fn StateCallback) bool {
	if fn == nil {
		return false
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if _, ok := s.states[id]; !ok {
		s.logger.Warn("Callback for unknown cognitive agent", "agent_id", id)
		return false
	}
	s.callbacks[id] = append(s.callbacks[id], fn)
	return true
}

// UnregisterCallbacks drops every observer of id.
func (s *Scheduler) UnregisterCallbacks(id string) {
	s.stateMu.Lock()
	delete(s.callbacks, id)
	s.stateMu.Unlock()
}

// Start launches workers long-running workers. A non-positive count uses the
// configured worker count.
func (s *Scheduler) Start(workers int) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.queueMu.Lock()
	if s.running {
		s.queueMu.Unlock()
		s.logger.Warn("Cognitive scheduler already running")
		return
	}
	if workers <= 0 {
		workers = s.cfg.Workers
	}
	s.running = true
	s.workers = workers
	s.queueMu.Unlock()

	s.startedAt.Store(time.Now().UnixNano())
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go s.worker(i)
	}
	s.logger.Info("Cognitive scheduler started", "workers", workers, "mode", s.cfg.Mode)
}

// Stop signals the workers and waits for them. A task already dequeued runs
// to completion; queued tasks stay queued.
func (s *Scheduler) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.queueMu.Lock()
	if !s.running {
		s.queueMu.Unlock()
		s.logger.Warn("Cognitive scheduler not running")
		return
	}
	s.running = false
	s.workCond.Broadcast()
	s.queueMu.Unlock()

	s.wg.Wait()
	s.logger.Info("Cognitive scheduler stopped")
}

// Running reports whether the worker pool is up.
func (s *Scheduler) Running() bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.running
}

func (s *Scheduler) worker(n int) {
	defer s.wg.Done()
	for {
		s.queueMu.Lock()
		var item *queuedTask
		for {
			if !s.running {
				s.queueMu.Unlock()
				s.logger.Debug("Cognitive worker exiting", "worker", n)
				return
			}
			if item = s.popReadyLocked(); item != nil {
				break
			}
			s.workCond.Wait()
		}
		s.active++
		s.queueMu.Unlock()

		s.processTask(item.task)
		s.finishTask(item)
	}
}

// popReadyLocked pops the next task that may run now. Cycle tasks whose
// predecessor in the agent's lane has not finished are parked on the lane.
func (s *Scheduler) popReadyLocked() *queuedTask {
	for s.queue.Len() > 0 {
		item := heap.Pop(&s.queue).(*queuedTask)
		l := item.lane
		if l == nil || l.dropped {
			return item
		}
		if l.busy || item.ticket != l.next {
			l.parked[item.ticket] = item
			s.parked++
			continue
		}
		l.busy = true
		return item
	}
	return nil
}

func (s *Scheduler) finishTask(item *queuedTask) {
	s.queueMu.Lock()
	s.active--
	if l := item.lane; l != nil && !l.dropped {
		l.busy = false
		l.next++
		if p, ok := l.parked[l.next]; ok {
			delete(l.parked, l.next)
			s.parked--
			heap.Push(&s.queue, p)
			s.workCond.Signal()
		}
	}
	if s.active == 0 && s.queue.Len() == 0 {
		s.idleCond.Broadcast()
	}
	s.queueMu.Unlock()
}

// dropLane releases the parked tasks of a deregistered agent; they run
// unordered and fail as unknown-agent tasks.
func (s *Scheduler) dropLane(id string) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	l, ok := s.lanes[id]
	if !ok {
		return
	}
	delete(s.lanes, id)
	l.dropped = true
	for _, p := range l.parked {
		heap.Push(&s.queue, p)
	}
	s.parked -= len(l.parked)
	clear(l.parked)
	s.workCond.Broadcast()
}

// ScheduleTask enqueues task and returns its id. Higher priorities run first;
// equal priorities run in the order they were scheduled.
func (s *Scheduler) ScheduleTask(task Task) string {
	task = prepareTask(task)

	s.queueMu.Lock()
	s.pushLocked(task, nil)
	s.workCond.Signal()
	s.queueMu.Unlock()

	s.logger.Debug("Cognitive task scheduled", "task_id", task.ID, "agent_id", task.AgentID, "phase", task.Phase.String())
	return task.ID
}

func prepareTask(task Task) Task {
	if task.ID == "" {
		fresh := NewTask(task.AgentID, task.Phase, task.Params, task.Priority)
		task.ID = fresh.ID
		if task.CreatedAt.IsZero() {
			task.CreatedAt = fresh.CreatedAt
		}
	}
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = time.Now()
	}
	return task
}

func (s *Scheduler) pushLocked(task Task, l *lane) {
	s.seq++
	item := &queuedTask{task: task, seq: s.seq}
	if l != nil {
		item.lane = l
		item.ticket = l.issued
		l.issued++
	}
	heap.Push(&s.queue, item)
}

// SchedulePhase enqueues a single phase task for agentID.
func (s *Scheduler) SchedulePhase(agentID string, phase Phase, params map[string]string, priority int) string {
	return s.ScheduleTask(NewTask(agentID, phase, params, priority))
}

// QueueLen returns the number of tasks waiting to run, parked ones included.
func (s *Scheduler) QueueLen() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return s.queue.Len() + s.parked
}

// RunCycle enqueues the seven phases for a registered agent. The phases of
// one agent run strictly in cycle order, one at a time, even with several
// workers; cycles of different agents interleave freely.
func (s *Scheduler) RunCycle(agentID string) bool {
	if !s.HasAgent(agentID) {
		s.logger.Warn("Cycle requested for unknown cognitive agent", "agent_id", agentID)
		return false
	}
	phases := Phases()
	tasks := make([]Task, 0, len(phases))
	for _, p := range phases {
		tasks = append(tasks, prepareTask(NewTask(agentID, p, nil, DefaultPriority)))
	}

	s.queueMu.Lock()
	l, ok := s.lanes[agentID]
	if !ok {
		l = newLane()
		s.lanes[agentID] = l
	}
	for _, task := range tasks {
		s.pushLocked(task, l)
	}
	s.workCond.Broadcast()
	s.queueMu.Unlock()

	s.logger.Debug("Cognitive cycle scheduled", "agent_id", agentID, "tasks", len(tasks))
	s.cycles.Add(1)
	if s.publisher != nil {
		s.publisher.Publish(bus.CycleEvent{
			Type:      bus.EventCycleStarted,
			AgentID:   agentID,
			Timestamp: time.Now(),
		})
	}
	return true
}

// RunAllCycles runs a cycle for every agent registered at call time and
// returns how many cycles were enqueued.
func (s *Scheduler) RunAllCycles() int {
	n := 0
	for _, id := range s.Agents() {
		if s.RunCycle(id) {
			n++
		}
	}
	return n
}

// Drain processes queued tasks on the calling goroutine until no task is
// ready to run or ctx is done.
func (s *Scheduler) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.queueMu.Lock()
		item := s.popReadyLocked()
		if item == nil {
			s.queueMu.Unlock()
			return nil
		}
		s.active++
		s.queueMu.Unlock()

		s.processTask(item.task)
		s.finishTask(item)
	}
}

// WaitIdle blocks until the queue is empty and no task is being processed.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		s.queueMu.Lock()
		s.idleCond.Broadcast()
		s.queueMu.Unlock()
	})
	defer stop()

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	for s.queue.Len() > 0 || s.active > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.idleCond.Wait()
	}
	return nil
}

func (s *Scheduler) processTask(task Task) {
	ctx := NewContext(task.AgentID, task.Params)
	ctx.TaskID = task.ID
	ctx.Phase = task.Phase
	ctx.Logger = s.logger

	err := s.dispatch(task.Phase, task.AgentID, ctx)
	ctx.Elapsed = time.Since(ctx.StartedAt)
	s.processingNanos.Add(int64(ctx.Elapsed))

	status := "completed"
	if err != nil {
		status = "failed"
		s.failed.Add(1)
		s.logger.Error("Cognitive task failed",
			"task_id", task.ID, "agent_id", task.AgentID, "phase", task.Phase.String(), "error", err)
	} else {
		s.completed.Add(1)
	}

	if s.publisher != nil {
		evt := bus.CycleEvent{
			Type:      bus.EventPhaseCompleted,
			AgentID:   task.AgentID,
			TaskID:    task.ID,
			Phase:     task.Phase.String(),
			Success:   err == nil,
			Duration:  ctx.Elapsed,
			Timestamp: time.Now(),
		}
		if err != nil {
			evt.Type = bus.EventPhaseFailed
			evt.Error = err.Error()
		}
		s.publisher.Publish(evt)
	}
	s.recordTaskRun(task, status, err, ctx)
}

// recordTaskRun persists the outcome (best-effort).
func (s *Scheduler) recordTaskRun(task Task, status string, err error, ctx *Context) {
	if s.recorder == nil {
		return
	}
	run := timeline.TaskRun{
		TaskID:     task.ID,
		AgentID:    task.AgentID,
		Phase:      task.Phase.String(),
		Status:     status,
		Priority:   task.Priority,
		DurationMs: ctx.Elapsed.Milliseconds(),
		StartedAt:  ctx.StartedAt,
	}
	if err != nil {
		run.ErrorText = err.Error()
	}
	if rerr := s.recorder.RecordTaskRun(run); rerr != nil {
		s.logger.Debug("Task run not recorded", "task_id", task.ID, "error", rerr)
	}
}

// dispatch runs a phase inside the task failure boundary.
func (s *Scheduler) dispatch(phase Phase, agentID string, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("phase %s panicked: %v", phase, r)
		}
	}()
	return s.ProcessPhase(phase, agentID, ctx)
}

// ProcessPhase runs the registered processor of phase for agentID, merges the
// context variables into the agent's working memory, advances the agent to the
// following phase and writes the state back.
func (s *Scheduler) ProcessPhase(phase Phase, agentID string, ctx *Context) error {
	lock := s.agentLock(agentID)
	if lock == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	snapshot, cbs, err := s.runPhase(lock, phase, agentID, ctx)
	if err != nil {
		return err
	}
	s.notify(agentID, cbs, snapshot)
	return nil
}

func (s *Scheduler) runPhase(lock *sync.Mutex, phase Phase, agentID string, ctx *Context) (AgentState, []StateCallback, error) {
	lock.Lock()
	defer lock.Unlock()

	state, ok := s.State(agentID)
	if !ok {
		return AgentState{}, nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	proc, ok := s.registry.Get(phase)
	if !ok {
		return AgentState{}, nil, fmt.Errorf("no processor registered for phase %s", phase)
	}
	if ctx == nil {
		ctx = NewContext(agentID, nil)
	}
	if ctx.Logger == nil {
		ctx.Logger = s.logger
	}
	ctx.Phase = phase

	if err := proc.Process(ctx, &state, s.space); err != nil {
		return AgentState{}, nil, fmt.Errorf("phase %s: %w", phase, err)
	}
	if state.WorkingMemory == nil {
		state.WorkingMemory = make(map[string]string, len(ctx.Vars))
	}
	maps.Copy(state.WorkingMemory, ctx.Vars)
	state.Phase = phase.Next()

	snapshot, cbs, ok := s.apply(agentID, func(st *AgentState) { *st = state })
	if !ok {
		return AgentState{}, nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	return snapshot, cbs, nil
}

// ProcessPerception pulls the attentional focus into ctx.
func (s *Scheduler) ProcessPerception(agentID string, ctx *Context) error {
	return s.ProcessPhase(PhasePerception, agentID, ctx)
}

// ProcessAttention focuses on the most important entities and decays attention.
func (s *Scheduler) ProcessAttention(agentID string, ctx *Context) error {
	return s.ProcessPhase(PhaseAttention, agentID, ctx)
}

// ProcessReasoning summarises the agent's goals.
func (s *Scheduler) ProcessReasoning(agentID string, ctx *Context) error {
	return s.ProcessPhase(PhaseReasoning, agentID, ctx)
}

// ProcessPlanning derives one plan per goal into the agent's intentions.
func (s *Scheduler) ProcessPlanning(agentID string, ctx *Context) error {
	return s.ProcessPhase(PhasePlanning, agentID, ctx)
}

// ProcessExecution executes the agent's intentions.
func (s *Scheduler) ProcessExecution(agentID string, ctx *Context) error {
	return s.ProcessPhase(PhaseExecution, agentID, ctx)
}

// ProcessLearning records a procedural memory when actions were executed.
func (s *Scheduler) ProcessLearning(agentID string, ctx *Context) error {
	return s.ProcessPhase(PhaseLearning, agentID, ctx)
}

// ProcessReflection scores the cycle and returns the agent to PERCEPTION.
func (s *Scheduler) ProcessReflection(agentID string, ctx *Context) error {
	return s.ProcessPhase(PhaseReflection, agentID, ctx)
}

// Stats returns the aggregate counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Cycles:              s.cycles.Load(),
		CompletedTasks:      s.completed.Load(),
		FailedTasks:         s.failed.Load(),
		TotalProcessingTime: time.Duration(s.processingNanos.Load()),
		StartedAt:           time.Unix(0, s.startedAt.Load()),
	}
}

// ResetStats zeroes the counters.
func (s *Scheduler) ResetStats() {
	s.cycles.Store(0)
	s.completed.Store(0)
	s.failed.Store(0)
	s.processingNanos.Store(0)
	s.startedAt.Store(time.Now().UnixNano())
}

// Status returns a flat snapshot for CLIs and monitoring.
func (s *Scheduler) Status() map[string]string {
	s.queueMu.Lock()
	running := s.running
	workers := s.workers
	queued := s.queue.Len() + s.parked
	s.queueMu.Unlock()

	st := s.Stats()
	s.stateMu.RLock()
	agents := len(s.states)
	s.stateMu.RUnlock()

	return map[string]string{
		"running":                  strconv.FormatBool(running),
		"num_workers":              strconv.Itoa(workers),
		"processing_mode":          string(s.cfg.Mode),
		"cycle_interval":           s.cfg.CycleInterval.String(),
		"total_cycles":             strconv.FormatUint(st.Cycles, 10),
		"completed_tasks":          strconv.FormatUint(st.CompletedTasks, 10),
		"failed_tasks":             strconv.FormatUint(st.FailedTasks, 10),
		"total_processing_time_ms": strconv.FormatInt(st.TotalProcessingTime.Milliseconds(), 10),
		"active_agents":            strconv.Itoa(agents),
		"queue_size":               strconv.Itoa(queued),
	}
}
