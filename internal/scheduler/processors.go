package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cogpy/swarmcog/internal/knowledge"
)

// Context and working-memory keys written by the built-in processors.
const (
	VarPerceptionTimestamp = "perception_timestamp"
	VarEnvironmentState    = "environment_state"
	VarFocusSize           = "focus_size"
	VarActiveGoals         = "active_goals"
	VarReasoningResult     = "reasoning_result"
	VarReasoningConfidence = "reasoning_confidence"
	VarActionPlans         = "action_plans"
	VarActionsExecuted     = "actions_executed"
	VarLearningOutcome     = "learning_outcome"
	VarPerformanceScore    = "performance_score"
	VarReflectionComplete  = "reflection_complete"
)

// AttentionTopN is how many entities the attention phase pulls into focus.
const AttentionTopN = 5

// DefaultProcessors returns the built-in processors in cycle order.
func DefaultProcessors() []Processor {
	return []Processor{
		ProcessorFunc(PhasePerception, perceive),
		ProcessorFunc(PhaseAttention, attend),
		ProcessorFunc(PhaseReasoning, reason),
		ProcessorFunc(PhasePlanning, plan),
		ProcessorFunc(PhaseExecution, execute),
		ProcessorFunc(PhaseLearning, learn),
		ProcessorFunc(PhaseReflection, reflect),
	}
}

func perceive(ctx *Context, _ *AgentState, space *knowledge.Store) error {
	ctx.Focus = space.Focus()
	ctx.Set(VarPerceptionTimestamp, time.Now().UTC().Format(time.RFC3339Nano))
	ctx.Set(VarEnvironmentState, "active")
	return nil
}

func attend(ctx *Context, state *AgentState, space *knowledge.Store) error {
	top := space.MostImportant(AttentionTopN)
	focus := make([]string, 0, len(top))
	for _, e := range top {
		focus = append(focus, e.ID)
		space.AddToFocus(e.ID)
	}
	ctx.Focus = focus
	state.Focus = append([]string(nil), focus...)
	ctx.Set(VarFocusSize, strconv.Itoa(len(focus)))
	space.DecayAttention()
	return nil
}

func reason(ctx *Context, state *AgentState, _ *knowledge.Store) error {
	ctx.Set(VarActiveGoals, strings.Join(state.Goals, ","))
	ctx.Set(VarReasoningResult, "goal_analysis_complete")
	ctx.Set(VarReasoningConfidence, "0.8")
	return nil
}

func plan(ctx *Context, state *AgentState, _ *knowledge.Store) error {
	plans := make([]string, 0, len(state.Goals))
	for _, g := range state.Goals {
		plans = append(plans, "plan_for_"+g)
	}
	state.Intentions = plans
	ctx.Set(VarActionPlans, strings.Join(plans, ","))
	return nil
}

func execute(ctx *Context, state *AgentState, _ *knowledge.Store) error {
	for _, p := range state.Intentions {
		ctx.logger().Info("Executing plan", "agent_id", state.AgentID, "plan", p)
	}
	ctx.Set(VarActionsExecuted, strconv.Itoa(len(state.Intentions)))
	return nil
}

func learn(ctx *Context, state *AgentState, space *knowledge.Store) error {
	n := actionsExecuted(state)
	if n > 0 {
		mem := space.AddMemoryNode(fmt.Sprintf("Executed %d actions successfully", n), "procedural")
		mem.SetMeta(knowledge.MetaOwner, state.AgentID)
		ctx.Set(VarLearningOutcome, "knowledge_updated")
		return nil
	}
	ctx.Set(VarLearningOutcome, "nothing_learned")
	return nil
}

func reflect(ctx *Context, state *AgentState, _ *knowledge.Store) error {
	score := "0.3"
	if actionsExecuted(state) > 0 {
		score = "0.8"
	}
	ctx.Set(VarPerformanceScore, score)
	ctx.Set(VarReflectionComplete, "true")
	return nil
}

func actionsExecuted(state *AgentState) int {
	n, _ := strconv.Atoi(state.Recall(VarActionsExecuted))
	return n
}
