// Package executor runs a Plan step by step: dispatching each step's tool
// under the policy engine, reliability manager, and replay store, then
// summarizing the result via the LLM.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentsdk/agentsdk/agent/toolerrors"
	"github.com/agentsdk/agentsdk/agentcore"
)

const systemPrompt = `You are an execution agent. You receive:
- a high-level task
- the current step description
- the tool output (if any)

You produce a short textual result for this step.`

// Agent dispatches plan steps to tools and summarizes their results.
type Agent struct {
	Name    string
	Context *agentcore.Context
	LLM     agentcore.LLMClient
}

// New constructs an executing Agent.
func New(name string, ctx *agentcore.Context, llm agentcore.LLMClient) *Agent {
	return &Agent{Name: name, Context: ctx, LLM: llm}
}

func (a *Agent) emit(name string, payload map[string]any) {
	if a.Context.Events == nil {
		return
	}
	a.Context.Events.Publish(agentcore.Event{
		Name: name, Agent: a.Name, Payload: payload, Timestamp: time.Now().UnixMilli(),
	})
}

func replayKey(step agentcore.PlanStep) string {
	tool := ""
	if step.Tool != nil {
		tool = *step.Tool
	}
	return tool + ":" + strconv.Itoa(step.ID)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// toolErrorDepth counts the cause chain length of a ToolError, letting
// observers distinguish a direct tool failure from one surfaced through
// several retry/reliability layers.
func toolErrorDepth(te *toolerrors.ToolError) int {
	depth := 0
	for cause := te.Cause; cause != nil; cause = cause.Cause {
		depth++
	}
	return depth
}

// runTool dispatches a single step's tool, consulting the policy engine and
// replay store and reporting latency/outcome events. It never mutates
// step.Inputs; a normalized copy is built locally.
func (a *Agent) runTool(ctx context.Context, step agentcore.PlanStep) agentcore.StepResult {
	a.emit("executor.step.start", map[string]any{"step_id": step.ID, "description": step.Description})

	if step.Tool == nil || *step.Tool == "" {
		return agentcore.StepResult{StepID: step.ID, Success: true, Output: nil}
	}
	toolName := *step.Tool

	tool, ok := a.Context.Tools[toolName]
	if !ok {
		te := toolerrors.New(fmt.Sprintf("Tool '%s' not found", toolName))
		a.emit("executor.tool.not_found", map[string]any{"tool": toolName})
		a.emit("tool.latency", map[string]any{"tool": toolName, "latency_ms": 0.0, "success": false})
		return agentcore.StepResult{StepID: step.ID, Success: false, Error: te.Error()}
	}

	if a.Context.Policy != nil {
		if err := a.Context.Policy.Authorize(ctx, a.Context.OrgID, toolName, step.Inputs); err != nil {
			te := toolerrors.NewWithCause(err.Error(), err)
			a.emit("executor.tool.denied", map[string]any{"tool": toolName, "error": te.Error()})
			a.emit("tool.latency", map[string]any{"tool": toolName, "latency_ms": 0.0, "success": false})
			return agentcore.StepResult{StepID: step.ID, Success: false, Error: te.Error()}
		}
	}

	inputs := step.Inputs
	if inputs == nil {
		inputs = map[string]any{}
	}

	a.emit("executor.tool.call", map[string]any{"tool": toolName, "inputs": inputs})

	key := replayKey(step)
	if a.Context.ReplayMode && a.Context.Replay != nil {
		if cached, found := a.Context.Replay.Get(key); found {
			a.emit("executor.tool.result", map[string]any{"tool": toolName, "output": truncate(fmt.Sprintf("%v", cached), 500)})
			a.emit("tool.latency", map[string]any{"tool": toolName, "latency_ms": 0.0, "success": true})
			return agentcore.StepResult{StepID: step.ID, Success: true, Output: cached}
		}
	}

	start := time.Now()
	var output any
	invoke := func(ctx context.Context) error {
		var callErr error
		output, callErr = tool.Call(ctx, inputs)
		return callErr
	}

	var err error
	if a.Context.Reliability != nil {
		err = a.Context.Reliability.Execute(ctx, "tool:"+toolName, invoke)
	} else {
		err = invoke(ctx)
	}
	latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		te := toolerrors.NewWithCause(fmt.Sprintf("tool '%s' failed", toolName), err)
		a.emit("executor.tool.error", map[string]any{"tool": toolName, "error": te.Error(), "cause_depth": toolErrorDepth(te)})
		a.emit("tool.latency", map[string]any{"tool": toolName, "latency_ms": latencyMS, "success": false})
		return agentcore.StepResult{StepID: step.ID, Success: false, Error: te.Error()}
	}

	if a.Context.Replay != nil {
		a.Context.Replay.Record(key, output)
	}

	a.emit("executor.tool.result", map[string]any{"tool": toolName, "output": truncate(fmt.Sprintf("%v", output), 500)})
	a.emit("tool.latency", map[string]any{"tool": toolName, "latency_ms": latencyMS, "success": true})
	return agentcore.StepResult{StepID: step.ID, Success: true, Output: output}
}

// summarizeStep builds a prompt describing task/step/result and asks the LLM
// for a short textual summary. An LLM failure never flips result.Success;
// only the returned summary text reflects the failure.
func (a *Agent) summarizeStep(ctx context.Context, task string, step agentcore.PlanStep, result agentcore.StepResult) string {
	if a.LLM == nil || a.Context.ModelConfig.Name == "" {
		status := "succeeded"
		detail := result.Output
		if !result.Success {
			status = "failed"
			detail = result.Error
		}
		return fmt.Sprintf("Step %d %s: %v", step.ID, status, detail)
	}

	toolOutputText := "ERROR: " + result.Error
	if result.Success {
		toolOutputText = "SUCCESS: " + fmt.Sprintf("%v", result.Output)
	}

	toolName := ""
	if step.Tool != nil {
		toolName = *step.Tool
	}

	messages := []agentcore.ChatMessage{
		{Role: "system", Content: strings.TrimSpace(systemPrompt)},
		{Role: "user", Content: fmt.Sprintf("Task: %s\nStep %d: %s\nTool: %s\nOutput: %s", task, step.ID, step.Description, toolName, toolOutputText)},
	}

	tokensEstimate := 0
	for _, m := range messages {
		tokensEstimate += len(strings.Fields(m.Content))
	}
	if a.Context.RateLimiter != nil {
		if err := a.Context.RateLimiter.Check(ctx, a.Name, a.Context.ModelConfig.Name, tokensEstimate, a.Context.OrgID); err != nil {
			a.emit("llm.error", map[string]any{"error": err.Error(), "step_id": step.ID})
			return fmt.Sprintf("Failed to summarize step: %s", err.Error())
		}
	}

	var resp *agentcore.LLMResponse
	generate := func(ctx context.Context) error {
		var genErr error
		resp, genErr = a.LLM.Generate(ctx, messages, a.Context.ModelConfig)
		return genErr
	}

	start := time.Now()
	var err error
	if a.Context.Reliability != nil {
		err = a.Context.Reliability.Execute(ctx, "executor-summarize:"+a.Name, generate)
	} else {
		err = generate(ctx)
	}
	latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		a.emit("llm.error", map[string]any{"error": err.Error(), "step_id": step.ID})
		return fmt.Sprintf("Failed to summarize step: %s", err.Error())
	}

	a.emit("llm.latency", map[string]any{"model": a.Context.ModelConfig.Name, "latency_ms": latencyMS})
	a.emit("llm.usage", map[string]any{
		"model": a.Context.ModelConfig.Name, "prompt_tokens": resp.PromptTokens,
		"completion_tokens": resp.CompletionTokens, "total_tokens": resp.TotalTokens,
	})
	return resp.Text
}

// ExecutePlan runs every step of plan in order, returning one observation
// Message per step.
func (a *Agent) ExecutePlan(ctx context.Context, plan agentcore.Plan) []agentcore.Message {
	messages := make([]agentcore.Message, 0, len(plan.Steps))

	for _, step := range plan.Steps {
		result := a.runTool(ctx, step)
		summary := a.summarizeStep(ctx, plan.Task, step, result)

		content := fmt.Sprintf("Step %d: %s\nResult: %s", step.ID, step.Description, summary)
		msg := agentcore.NewMessage(agentcore.RoleAgent, content, map[string]any{
			"type": agentcore.MetaTypeExecutionStep, "step_id": step.ID, "tool": step.Tool, "success": result.Success,
		})
		a.Context.ApplyRunMetadata(&msg)
		a.Context.AddShortTermMessage(msg)

		a.emit("executor.step.complete", map[string]any{"step_id": step.ID, "success": result.Success})
		messages = append(messages, msg)
	}

	return messages
}

type planWire struct {
	Task  string     `json:"task"`
	Steps []stepWire `json:"steps"`
}

type stepWire struct {
	ID          int            `json:"id"`
	Description string         `json:"description"`
	Tool        *string        `json:"tool"`
	Inputs      map[string]any `json:"inputs"`
	Notes       *string        `json:"notes"`
}

// Step parses incoming.Content as the JSON plan the planner emits, runs it,
// and returns the last observation message (or a synthetic
// "No steps to execute" message for an empty plan).
func (a *Agent) Step(ctx context.Context, incoming agentcore.Message) (agentcore.Message, error) {
	var wire planWire
	if err := json.Unmarshal([]byte(incoming.Content), &wire); err != nil {
		return agentcore.Message{}, fmt.Errorf("executor: decode plan: %w", err)
	}

	steps := make([]agentcore.PlanStep, 0, len(wire.Steps))
	for _, s := range wire.Steps {
		steps = append(steps, agentcore.PlanStep{
			ID: s.ID, Description: s.Description, Tool: s.Tool, Inputs: s.Inputs, Notes: s.Notes,
		})
	}
	plan := agentcore.Plan{Task: wire.Task, Steps: steps}

	a.Context.AddShortTermMessage(incoming)
	msgs := a.ExecutePlan(ctx, plan)
	if len(msgs) == 0 {
		return agentcore.NewMessage(agentcore.RoleAgent, "No steps to execute", map[string]any{"type": agentcore.MetaTypeExecution}), nil
	}
	return msgs[len(msgs)-1], nil
}
