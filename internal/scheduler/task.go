package scheduler

import (
	"container/heap"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPriority is the priority of the phase tasks enqueued by RunCycle.
const DefaultPriority = 0

// Task is one scheduled unit of phase work for one agent.
type Task struct {
	ID          string
	AgentID     string
	Phase       Phase
	Params      map[string]string
	CreatedAt   time.Time
	ScheduledAt time.Time
	Priority    int
}

// NewTask builds a task with a fresh "task_" identifier.
func NewTask(agentID string, phase Phase, params map[string]string, priority int) Task {
	now := time.Now()
	return Task{
		ID:          "task_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		AgentID:     agentID,
		Phase:       phase,
		Params:      maps.Clone(params),
		CreatedAt:   now,
		ScheduledAt: now,
		Priority:    priority,
	}
}

// Context is the per-execution scratch space handed to a phase processor.
// Vars written by a processor are merged into the agent's working memory.
type Context struct {
	AgentID   string
	TaskID    string
	Phase     Phase
	Vars      map[string]string
	Focus     []string
	StartedAt time.Time
	Elapsed   time.Duration
	Logger    *slog.Logger
}

// NewContext builds a context for agentID seeded with params.
func NewContext(agentID string, params map[string]string) *Context {
	vars := make(map[string]string, len(params))
	maps.Copy(vars, params)
	return &Context{
		AgentID:   agentID,
		Vars:      vars,
		StartedAt: time.Now(),
	}
}

// Set stores a context variable.
func (c *Context) Set(key, value string) { c.Vars[key] = value }

// Get reads a context variable.
func (c *Context) Get(key string) string { return c.Vars[key] }

func (c *Context) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

type queuedTask struct {
	task   Task
	seq    uint64
	lane   *lane
	ticket uint64
}

// lane orders the cycle tasks of one agent: ticket n runs only after ticket
// n-1 has finished, whichever worker picks it up. Tasks popped early wait in
// parked until their turn.
type lane struct {
	issued  uint64
	next    uint64
	busy    bool
	dropped bool
	parked  map[uint64]*queuedTask
}

func newLane() *lane {
	return &lane{parked: make(map[uint64]*queuedTask)}
}

// taskQueue is a max-heap on priority; equal priorities pop in arrival order.
type taskQueue []*queuedTask

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].task.Priority != q[j].task.Priority {
		return q[i].task.Priority > q[j].task.Priority
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *taskQueue) Push(x any) { *q = append(*q, x.(*queuedTask)) }

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*taskQueue)(nil)
