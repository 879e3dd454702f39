// Package runtime wires a planner and an executor into the single
// Planner→Executor pipeline external callers invoke, propagating
// session/run identifiers and optional span tracing across both steps.
package runtime

import (
	"context"

	"github.com/agentsdk/agentsdk/agent/observability"
	"github.com/agentsdk/agentsdk/agentcore"
	"github.com/google/uuid"
)

// Planner is the subset of planner.Agent the runtime depends on.
type Planner interface {
	Step(ctx context.Context, incoming agentcore.Message) (agentcore.Message, error)
}

// Executor is the subset of executor.Agent the runtime depends on.
type Executor interface {
	Step(ctx context.Context, incoming agentcore.Message) (agentcore.Message, error)
}

// PlannerExecutorRuntime runs a task through a Planner then an Executor,
// propagating a shared session/run identifier pair into both contexts.
type PlannerExecutorRuntime struct {
	PlannerName    string
	ExecutorName   string
	PlannerContext *agentcore.Context
	ExecutorContext *agentcore.Context
	Planner        Planner
	Executor       Executor
}

// New constructs a PlannerExecutorRuntime over the given planner/executor
// pair and their contexts.
func New(plannerName, executorName string, plannerCtx, executorCtx *agentcore.Context, planner Planner, executor Executor) *PlannerExecutorRuntime {
	return &PlannerExecutorRuntime{
		PlannerName: plannerName, ExecutorName: executorName,
		PlannerContext: plannerCtx, ExecutorContext: executorCtx,
		Planner: planner, Executor: executor,
	}
}

func (r *PlannerExecutorRuntime) prepareRunContext(sessionID, runID *string) (string, string) {
	resolvedSession := ""
	if sessionID != nil && *sessionID != "" {
		resolvedSession = *sessionID
	} else if r.PlannerContext.SessionID != "" {
		resolvedSession = r.PlannerContext.SessionID
	} else {
		resolvedSession = uuid.NewString()
	}

	resolvedRun := uuid.NewString()
	if runID != nil && *runID != "" {
		resolvedRun = *runID
	}

	r.PlannerContext.SetRunContext(resolvedSession, resolvedRun)
	r.ExecutorContext.SetRunContext(resolvedSession, resolvedRun)
	return resolvedSession, resolvedRun
}

func (r *PlannerExecutorRuntime) observabilityManager() *observability.Manager {
	if r.PlannerContext.Config == nil {
		return nil
	}
	manager, _ := r.PlannerContext.Config["observability"].(*observability.Manager)
	return manager
}

// Run resolves session/run identifiers, runs the planner then the executor
// over taskText, and returns [planMessage, executionMessage]. sessionID and
// runID may be nil to request resolution per PlannerExecutorRuntime's rules:
// session_id falls back to the planner's existing session or a fresh one;
// run_id is always freshly generated unless explicitly supplied.
func (r *PlannerExecutorRuntime) Run(ctx context.Context, taskText string, sessionID, runID *string) ([]agentcore.Message, error) {
	r.prepareRunContext(sessionID, runID)

	taskMsg := agentcore.NewMessage(agentcore.RoleUser, taskText, nil)
	r.PlannerContext.ApplyRunMetadata(&taskMsg)

	manager := r.observabilityManager()

	var planMsg agentcore.Message
	var err error
	if manager != nil {
		err = manager.TraceAgentExecution(ctx, r.PlannerName, taskText, func(ctx context.Context, span *observability.Span) error {
			var stepErr error
			planMsg, stepErr = r.Planner.Step(ctx, taskMsg)
			return stepErr
		})
	} else {
		planMsg, err = r.Planner.Step(ctx, taskMsg)
	}
	if err != nil {
		return nil, err
	}

	var execMsg agentcore.Message
	if manager != nil {
		err = manager.TraceAgentExecution(ctx, r.ExecutorName, taskText, func(ctx context.Context, span *observability.Span) error {
			var stepErr error
			execMsg, stepErr = r.Executor.Step(ctx, planMsg)
			return stepErr
		})
	} else {
		execMsg, err = r.Executor.Step(ctx, planMsg)
	}
	if err != nil {
		return nil, err
	}

	r.PlannerContext.ApplyRunMetadata(&planMsg)
	r.ExecutorContext.ApplyRunMetadata(&execMsg)

	return []agentcore.Message{planMsg, execMsg}, nil
}
