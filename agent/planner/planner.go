// Package planner turns a task description into an ordered Plan by prompting
// an LLMClient and parsing its JSON response, falling back to a degenerate
// one-step plan whenever the response cannot be parsed or generation fails.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agentsdk/agentsdk/agentcore"
)

const systemPrompt = `You are a planning agent. Given a user task and a list of tools,
you break the task into a small number of ordered steps.

Respond ONLY with valid JSON:
{
  "task": "...",
  "steps": [
    {"id": 1, "description": "...", "tool": "optional_or_null", "inputs": {...}, "notes": "optional"}
  ]
}`

// Agent derives Plans from tasks by prompting an LLM.
type Agent struct {
	Name    string
	Context *agentcore.Context
	LLM     agentcore.LLMClient
}

// New constructs a planning Agent.
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

func (a *Agent) buildPrompt(task string) []agentcore.ChatMessage {
	var toolLines []string
	for _, t := range a.Context.Tools {
		toolLines = append(toolLines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}
	toolsDesc := "None"
	if len(toolLines) > 0 {
		toolsDesc = strings.Join(toolLines, "\n")
	}

	userPrompt := fmt.Sprintf("User task:\n%s\n\nAvailable tools:\n%s", task, toolsDesc)
	return []agentcore.ChatMessage{
		{Role: "system", Content: strings.TrimSpace(systemPrompt)},
		{Role: "user", Content: strings.TrimSpace(userPrompt)},
	}
}

func estimateTokens(prompt []agentcore.ChatMessage) int {
	total := 0
	for _, m := range prompt {
		total += len(strings.Fields(m.Content))
	}
	return total
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

func fallbackPlan(task, description string) agentcore.Plan {
	return agentcore.Plan{Task: task, Steps: []agentcore.PlanStep{{ID: 1, Description: description}}}
}

// Plan prompts the LLM for a plan over task and parses its response. It
// never returns an error: rate-limit rejections and generation failures
// degrade to a single-step plan describing the error, and an unparsable
// response becomes a single-step plan whose description is the raw response
// text, matching the source system's planner, which always returns a usable
// Plan.
func (a *Agent) Plan(ctx context.Context, task string) agentcore.Plan {
	a.emit("planner.start", map[string]any{"task": task})

	prompt := a.buildPrompt(task)
	tokensEstimate := estimateTokens(prompt)

	if a.Context.RateLimiter != nil {
		if err := a.Context.RateLimiter.Check(ctx, a.Name, a.Context.ModelConfig.Name, tokensEstimate, a.Context.OrgID); err != nil {
			a.emit("planner.error", map[string]any{"error": err.Error()})
			return fallbackPlan(task, fmt.Sprintf("Error during planning: %s", err.Error()))
		}
	}

	var resp *agentcore.LLMResponse
	generate := func(ctx context.Context) error {
		var genErr error
		resp, genErr = a.LLM.Generate(ctx, prompt, a.Context.ModelConfig)
		return genErr
	}

	start := time.Now()
	var err error
	if a.Context.Reliability != nil {
		err = a.Context.Reliability.Execute(ctx, "planner:"+a.Name, generate)
	} else {
		err = generate(ctx)
	}
	latencyMS := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		a.emit("planner.error", map[string]any{"error": err.Error()})
		return fallbackPlan(task, fmt.Sprintf("Error during planning: %s", err.Error()))
	}

	a.emit("llm.latency", map[string]any{"model": a.Context.ModelConfig.Name, "latency_ms": latencyMS})
	a.emit("llm.usage", map[string]any{
		"model":             a.Context.ModelConfig.Name,
		"prompt_tokens":     resp.PromptTokens,
		"completion_tokens": resp.CompletionTokens,
		"total_tokens":      resp.TotalTokens,
	})

	raw := resp.Text
	a.emit("planner.raw_output", map[string]any{"raw": raw})

	plan, parseErr := parsePlan(task, raw)
	if parseErr != nil {
		plan = fallbackPlan(task, raw)
	}

	a.emit("planner.complete", map[string]any{"steps": len(plan.Steps)})
	return plan
}

func parsePlan(task, raw string) (agentcore.Plan, error) {
	var wire planWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return agentcore.Plan{}, err
	}
	if wire.Steps == nil {
		return agentcore.Plan{}, fmt.Errorf("planner: missing 'steps' key")
	}

	steps := make([]agentcore.PlanStep, 0, len(wire.Steps))
	for i, s := range wire.Steps {
		id := s.ID
		if id == 0 {
			id = i + 1
		}
		steps = append(steps, agentcore.PlanStep{
			ID: id, Description: s.Description, Tool: s.Tool, Inputs: s.Inputs, Notes: s.Notes,
		})
	}

	planTask := wire.Task
	if planTask == "" {
		planTask = task
	}
	return agentcore.Plan{Task: planTask, Steps: steps}, nil
}

func encodePlan(plan agentcore.Plan) (string, error) {
	wire := planWire{Task: plan.Task}
	for _, s := range plan.Steps {
		wire.Steps = append(wire.Steps, stepWire{
			ID: s.ID, Description: s.Description, Tool: s.Tool, Inputs: s.Inputs, Notes: s.Notes,
		})
	}
	encoded, err := json.MarshalIndent(wire, "", "  ")
	return string(encoded), err
}

// Step runs Plan over incoming.Content and returns the agent's reply
// message, appending both to short-term history.
func (a *Agent) Step(ctx context.Context, incoming agentcore.Message) (agentcore.Message, error) {
	plan := a.Plan(ctx, incoming.Content)

	content, err := encodePlan(plan)
	if err != nil {
		return agentcore.Message{}, fmt.Errorf("planner: encode plan: %w", err)
	}

	reply := agentcore.NewMessage(agentcore.RoleAgent, content, map[string]any{"type": agentcore.MetaTypePlan})
	a.Context.ApplyRunMetadata(&reply)
	a.Context.AddShortTermMessage(incoming)
	a.Context.AddShortTermMessage(reply)
	return reply, nil
}
