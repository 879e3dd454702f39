package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/agentsdk/agentsdk/agentcore"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestExecutePlanStepWithoutToolSucceedsTrivially(t *testing.T) {
	ctx := agentcore.NewContext()
	agent := New("executor-1", ctx, nil)

	plan := agentcore.Plan{Task: "t", Steps: []agentcore.PlanStep{{ID: 1, Description: "noop"}}}
	msgs := agent.ExecutePlan(context.Background(), plan)

	require.Len(t, msgs, 1)
	require.Equal(t, true, msgs[0].Metadata["success"])
}

func TestExecutePlanFailsWhenToolNotFound(t *testing.T) {
	ctx := agentcore.NewContext()
	agent := New("executor-1", ctx, nil)

	plan := agentcore.Plan{Task: "t", Steps: []agentcore.PlanStep{{ID: 1, Description: "d", Tool: strPtr("missing.tool")}}}
	msgs := agent.ExecutePlan(context.Background(), plan)

	require.Len(t, msgs, 1)
	require.Equal(t, false, msgs[0].Metadata["success"])
	require.Contains(t, msgs[0].Content, "not found")
}

func TestExecutePlanInvokesToolAndSucceeds(t *testing.T) {
	tools := map[string]agentcore.Tool{
		"echo": {Name: "echo", Description: "echoes input", Func: func(ctx context.Context, inputs map[string]any) (any, error) {
			return inputs["text"], nil
		}},
	}
	ctx := agentcore.NewContext(agentcore.WithTools(tools))
	agent := New("executor-1", ctx, nil)

	plan := agentcore.Plan{Task: "t", Steps: []agentcore.PlanStep{
		{ID: 1, Description: "d", Tool: strPtr("echo"), Inputs: map[string]any{"text": "hi"}},
	}}
	msgs := agent.ExecutePlan(context.Background(), plan)

	require.Len(t, msgs, 1)
	require.Equal(t, true, msgs[0].Metadata["success"])
}

func TestExecutePlanNormalizesNilInputsWithoutMutatingStep(t *testing.T) {
	var seenInputs map[string]any
	tools := map[string]agentcore.Tool{
		"probe": {Name: "probe", Func: func(ctx context.Context, inputs map[string]any) (any, error) {
			seenInputs = inputs
			return "ok", nil
		}},
	}
	ctx := agentcore.NewContext(agentcore.WithTools(tools))
	agent := New("executor-1", ctx, nil)

	step := agentcore.PlanStep{ID: 1, Description: "d", Tool: strPtr("probe"), Inputs: nil}
	plan := agentcore.Plan{Task: "t", Steps: []agentcore.PlanStep{step}}
	agent.ExecutePlan(context.Background(), plan)

	require.NotNil(t, seenInputs)
	require.Nil(t, step.Inputs, "ExecutePlan must not mutate the source PlanStep")
}

type denyAllPolicy struct{}

func (denyAllPolicy) Authorize(ctx context.Context, orgID, toolName string, inputs map[string]any) error {
	return errors.New("Policy denied tool '" + toolName + "'")
}

func TestExecutePlanFailsStepWhenPolicyDenies(t *testing.T) {
	tools := map[string]agentcore.Tool{
		"shell.exec": {Name: "shell.exec", Func: func(ctx context.Context, inputs map[string]any) (any, error) { return "ran", nil }},
	}
	ctx := agentcore.NewContext(agentcore.WithTools(tools), agentcore.WithPolicy(denyAllPolicy{}))
	agent := New("executor-1", ctx, nil)

	plan := agentcore.Plan{Task: "t", Steps: []agentcore.PlanStep{{ID: 1, Description: "d", Tool: strPtr("shell.exec")}}}
	msgs := agent.ExecutePlan(context.Background(), plan)

	require.Equal(t, false, msgs[0].Metadata["success"])
	require.Contains(t, msgs[0].Content, "Policy denied")
}

type memoryReplayStore struct {
	values map[string]any
}

func (m *memoryReplayStore) Get(key string) (any, bool) { v, ok := m.values[key]; return v, ok }
func (m *memoryReplayStore) Record(key string, value any) {
	if m.values == nil {
		m.values = map[string]any{}
	}
	m.values[key] = value
}

func TestExecutePlanUsesReplayStoreInReplayModeInsteadOfInvokingTool(t *testing.T) {
	called := false
	tools := map[string]agentcore.Tool{
		"costly": {Name: "costly", Func: func(ctx context.Context, inputs map[string]any) (any, error) {
			called = true
			return "fresh", nil
		}},
	}
	store := &memoryReplayStore{values: map[string]any{"costly:1": "cached"}}
	ctx := agentcore.NewContext(agentcore.WithTools(tools), agentcore.WithReplay(store))
	agent := New("executor-1", ctx, nil)

	plan := agentcore.Plan{Task: "t", Steps: []agentcore.PlanStep{{ID: 1, Description: "d", Tool: strPtr("costly")}}}
	msgs := agent.ExecutePlan(context.Background(), plan)

	require.False(t, called)
	require.Equal(t, true, msgs[0].Metadata["success"])
}

func TestSummarizeStepFailureDoesNotFlipToolSuccess(t *testing.T) {
	tools := map[string]agentcore.Tool{
		"echo": {Name: "echo", Func: func(ctx context.Context, inputs map[string]any) (any, error) { return "done", nil }},
	}
	ctx := agentcore.NewContext(agentcore.WithTools(tools), agentcore.WithModelConfig(agentcore.ModelConfig{Name: "gpt-4"}))
	llm := &failingSummarizeLLM{}
	agent := New("executor-1", ctx, llm)

	plan := agentcore.Plan{Task: "t", Steps: []agentcore.PlanStep{{ID: 1, Description: "d", Tool: strPtr("echo")}}}
	msgs := agent.ExecutePlan(context.Background(), plan)

	require.Equal(t, true, msgs[0].Metadata["success"], "tool success must not be affected by summarization failure")
	require.Contains(t, msgs[0].Content, "Failed to summarize step")
}

type failingSummarizeLLM struct{}

func (failingSummarizeLLM) Generate(ctx context.Context, messages []agentcore.ChatMessage, cfg agentcore.ModelConfig) (*agentcore.LLMResponse, error) {
	return nil, errors.New("summarizer unavailable")
}

func TestStepParsesIncomingPlanJSONAndReturnsLastMessage(t *testing.T) {
	tools := map[string]agentcore.Tool{
		"echo": {Name: "echo", Func: func(ctx context.Context, inputs map[string]any) (any, error) { return "done", nil }},
	}
	ctx := agentcore.NewContext(agentcore.WithTools(tools))
	agent := New("executor-1", ctx, nil)

	incoming := agentcore.NewMessage(agentcore.RoleAgent,
		`{"task":"t","steps":[{"id":1,"description":"d1"},{"id":2,"description":"d2","tool":"echo"}]}`, nil)

	reply, err := agent.Step(context.Background(), incoming)
	require.NoError(t, err)
	require.Contains(t, reply.Content, "Step 2")
	require.Len(t, ctx.ShortTerm, 3) // incoming + 2 step observations
}

type recordingBus struct {
	events []agentcore.Event
}

func (b *recordingBus) Publish(e agentcore.Event) { b.events = append(b.events, e) }

func (b *recordingBus) last(name string) (agentcore.Event, bool) {
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Name == name {
			return b.events[i], true
		}
	}
	return agentcore.Event{}, false
}

func TestExecutePlanWrapsToolFailureAsToolErrorWithCauseDepth(t *testing.T) {
	tools := map[string]agentcore.Tool{
		"flaky": {Name: "flaky", Func: func(ctx context.Context, inputs map[string]any) (any, error) {
			return nil, errors.New("connection refused")
		}},
	}
	bus := &recordingBus{}
	ctx := agentcore.NewContext(agentcore.WithTools(tools), agentcore.WithEvents(bus))
	agent := New("executor-1", ctx, nil)

	plan := agentcore.Plan{Task: "t", Steps: []agentcore.PlanStep{{ID: 1, Description: "d", Tool: strPtr("flaky")}}}
	msgs := agent.ExecutePlan(context.Background(), plan)

	require.Equal(t, false, msgs[0].Metadata["success"])
	require.Contains(t, msgs[0].Content, "tool 'flaky' failed")

	evt, ok := bus.last("executor.tool.error")
	require.True(t, ok)
	require.Equal(t, 1, evt.Payload["cause_depth"])
	require.Equal(t, "tool 'flaky' failed", evt.Payload["error"])
}

func TestStepReturnsSyntheticMessageForEmptyPlan(t *testing.T) {
	ctx := agentcore.NewContext()
	agent := New("executor-1", ctx, nil)

	incoming := agentcore.NewMessage(agentcore.RoleAgent, `{"task":"t","steps":[]}`, nil)
	reply, err := agent.Step(context.Background(), incoming)

	require.NoError(t, err)
	require.Equal(t, "No steps to execute", reply.Content)
}
