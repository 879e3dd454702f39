package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/agentsdk/agentsdk/agent/observability"
	"github.com/agentsdk/agentsdk/agentcore"
	"github.com/stretchr/testify/require"
)

type stepFunc func(ctx context.Context, incoming agentcore.Message) (agentcore.Message, error)

type fakeStepper struct {
	fn stepFunc
}

func (f fakeStepper) Step(ctx context.Context, incoming agentcore.Message) (agentcore.Message, error) {
	return f.fn(ctx, incoming)
}

func echoStepper(metaType string) fakeStepper {
	return fakeStepper{fn: func(ctx context.Context, incoming agentcore.Message) (agentcore.Message, error) {
		return agentcore.NewMessage(agentcore.RoleAgent, "reply:"+incoming.Content, map[string]any{"type": metaType}), nil
	}}
}

func TestRunResolvesFreshSessionAndRunIDsWhenNoneProvided(t *testing.T) {
	plannerCtx := agentcore.NewContext()
	executorCtx := agentcore.NewContext()
	rt := New("planner", "executor", plannerCtx, executorCtx, echoStepper("plan"), echoStepper("execution_step"))

	msgs, err := rt.Run(context.Background(), "do something", nil, nil)

	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.NotEmpty(t, plannerCtx.SessionID)
	require.NotEmpty(t, plannerCtx.RunID)
	require.Equal(t, plannerCtx.SessionID, executorCtx.SessionID)
	require.Equal(t, plannerCtx.RunID, executorCtx.RunID)
}

func TestRunReusesPlannerExistingSessionWhenNotProvided(t *testing.T) {
	plannerCtx := agentcore.NewContext()
	plannerCtx.SetRunContext("existing-session", "")
	executorCtx := agentcore.NewContext()
	rt := New("planner", "executor", plannerCtx, executorCtx, echoStepper("plan"), echoStepper("execution_step"))

	_, err := rt.Run(context.Background(), "task", nil, nil)

	require.NoError(t, err)
	require.Equal(t, "existing-session", plannerCtx.SessionID)
}

func TestRunRespectsExplicitSessionAndRunIDs(t *testing.T) {
	plannerCtx := agentcore.NewContext()
	executorCtx := agentcore.NewContext()
	rt := New("planner", "executor", plannerCtx, executorCtx, echoStepper("plan"), echoStepper("execution_step"))

	session, run := "sess-1", "run-1"
	_, err := rt.Run(context.Background(), "task", &session, &run)

	require.NoError(t, err)
	require.Equal(t, "sess-1", plannerCtx.SessionID)
	require.Equal(t, "run-1", plannerCtx.RunID)
	require.Equal(t, "sess-1", executorCtx.SessionID)
	require.Equal(t, "run-1", executorCtx.RunID)
}

func TestRunGeneratesFreshRunIDEvenWithExistingSession(t *testing.T) {
	plannerCtx := agentcore.NewContext()
	plannerCtx.SetRunContext("existing-session", "old-run")
	executorCtx := agentcore.NewContext()
	rt := New("planner", "executor", plannerCtx, executorCtx, echoStepper("plan"), echoStepper("execution_step"))

	_, err := rt.Run(context.Background(), "task", nil, nil)

	require.NoError(t, err)
	require.NotEqual(t, "old-run", plannerCtx.RunID)
}

func TestRunPropagatesPlannerFailure(t *testing.T) {
	plannerCtx := agentcore.NewContext()
	executorCtx := agentcore.NewContext()
	failingPlanner := fakeStepper{fn: func(ctx context.Context, incoming agentcore.Message) (agentcore.Message, error) {
		return agentcore.Message{}, errors.New("planner blew up")
	}}
	rt := New("planner", "executor", plannerCtx, executorCtx, failingPlanner, echoStepper("execution_step"))

	_, err := rt.Run(context.Background(), "task", nil, nil)
	require.Error(t, err)
}

func TestRunWrapsStepsInObservabilitySpansWhenConfigured(t *testing.T) {
	plannerCtx := agentcore.NewContext(agentcore.WithConfig(map[string]any{
		"observability": observability.NewManager("agentsdk-test"),
	}))
	executorCtx := agentcore.NewContext()
	rt := New("planner", "executor", plannerCtx, executorCtx, echoStepper("plan"), echoStepper("execution_step"))

	msgs, err := rt.Run(context.Background(), "task", nil, nil)

	require.NoError(t, err)
	require.Len(t, msgs, 2)

	manager := plannerCtx.Config["observability"].(*observability.Manager)
	require.Equal(t, 2, manager.Tracer.SpanCount())
}
