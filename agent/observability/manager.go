package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/agentsdk/agentsdk/agent/telemetry"
)

// durationMS converts a millisecond float latency into a time.Duration for
// telemetry.Metrics.RecordTimer, which takes durations rather than raw
// milliseconds.
func durationMS(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// Manager combines a Tracer and a MetricsCollector into the single
// collaborator the planner, executor, and runtime report through. Logger and
// ClueMetrics are an optional second emission path backed by
// goa.design/clue and OpenTelemetry (see NewManagerWithClue); Manager's own
// Tracer/MetricsCollector remain the primary, dependency-free
// implementation used by the in-process Span/GetTrace introspection the
// tests rely on.
type Manager struct {
	ServiceName string
	Tracer      *Tracer
	Metrics     *MetricsCollector
	Logger      telemetry.Logger
	ClueMetrics telemetry.Metrics
	ClueTracer  telemetry.Tracer
}

// NewManager constructs a Manager for serviceName with a no-op Logger and
// ClueMetrics side channel.
func NewManager(serviceName string) *Manager {
	return &Manager{
		ServiceName: serviceName,
		Tracer:      NewTracer(serviceName),
		Metrics:     NewMetricsCollector(),
		Logger:      telemetry.NewNoopLogger(),
		ClueMetrics: telemetry.NewNoopMetrics(),
		ClueTracer:  telemetry.NewNoopTracer(),
	}
}

// NewManagerWithClue constructs a Manager whose Logger, ClueMetrics, and
// ClueTracer side channels delegate to goa.design/clue and OpenTelemetry
// (telemetry.NewClueLogger, telemetry.NewClueMetrics,
// telemetry.NewClueTracer), for deployments that export runtime telemetry to
// an OTEL collector alongside the in-process Tracer/MetricsCollector.
func NewManagerWithClue(serviceName string) *Manager {
	m := NewManager(serviceName)
	m.Logger = telemetry.NewClueLogger()
	m.ClueMetrics = telemetry.NewClueMetrics()
	m.ClueTracer = telemetry.NewClueTracer()
	return m
}

// TraceAgentExecution wraps fn in an "agent_execute:<agentName>" internal
// span, logging start/outcome through Logger.
func (m *Manager) TraceAgentExecution(ctx context.Context, agentName, goal string, fn func(ctx context.Context, span *Span) error) error {
	m.Logger.Info(ctx, "agent execution started", "agent", agentName, "goal", goal)
	err := m.Tracer.Trace(ctx, fmt.Sprintf("agent_execute:%s", agentName), SpanKindInternal,
		map[string]any{"agent": agentName, "goal": goal}, fn)
	if err != nil {
		m.Logger.Error(ctx, "agent execution failed", "agent", agentName, "error", err.Error())
	} else {
		m.Logger.Info(ctx, "agent execution completed", "agent", agentName)
	}
	return err
}

// TraceToolCall wraps fn in a "tool_call:<toolName>" client span, exported to
// OTEL via ClueTracer alongside the in-process Tracer span.
func (m *Manager) TraceToolCall(ctx context.Context, toolName string, inputParams map[string]any, fn func(ctx context.Context, span *Span) error) error {
	clueCtx, clueSpan := m.ClueTracer.Start(ctx, fmt.Sprintf("tool_call:%s", toolName))
	defer clueSpan.End()

	err := m.Tracer.Trace(clueCtx, fmt.Sprintf("tool_call:%s", toolName), SpanKindClient,
		map[string]any{"tool": toolName, "params": fmt.Sprintf("%v", inputParams)}, fn)
	if err != nil {
		clueSpan.RecordError(err)
	}
	return err
}

// TraceModelCall wraps fn in a "model_call:<provider>" client span, exported
// to OTEL via ClueTracer alongside the in-process Tracer span.
func (m *Manager) TraceModelCall(ctx context.Context, modelName, provider string, fn func(ctx context.Context, span *Span) error) error {
	clueCtx, clueSpan := m.ClueTracer.Start(ctx, fmt.Sprintf("model_call:%s", provider))
	defer clueSpan.End()

	err := m.Tracer.Trace(clueCtx, fmt.Sprintf("model_call:%s", provider), SpanKindClient,
		map[string]any{"model": modelName, "provider": provider}, fn)
	if err != nil {
		clueSpan.RecordError(err)
	}
	return err
}

// RecordToolExecution records a tool call's latency, success flag, and
// optional error as metrics, both on the in-process MetricsCollector and on
// the ClueMetrics side channel.
func (m *Manager) RecordToolExecution(toolName string, latencyMS float64, success bool, errMsg string) {
	successValue := 0.0
	if success {
		successValue = 1.0
	}
	m.Metrics.RecordLatency(fmt.Sprintf("tool_%s", toolName), latencyMS)
	m.Metrics.RecordMetric(fmt.Sprintf("tool_%s_success", toolName), successValue, "", nil)
	if errMsg != "" {
		m.Metrics.RecordMetric(fmt.Sprintf("tool_%s_error", toolName), 1.0, "", nil)
	}

	m.ClueMetrics.RecordTimer(fmt.Sprintf("tool_%s", toolName), durationMS(latencyMS), "success", fmt.Sprintf("%t", success))
	if errMsg != "" {
		m.ClueMetrics.IncCounter(fmt.Sprintf("tool_%s_error", toolName), 1.0)
	}
}

// RecordModelExecution records an LLM call's latency and token/cost usage,
// both on the in-process MetricsCollector and on the ClueMetrics side
// channel.
func (m *Manager) RecordModelExecution(modelName, provider string, latencyMS float64, inputTokens, outputTokens int, costUSD float64) {
	m.Metrics.RecordLatency(fmt.Sprintf("model_%s", provider), latencyMS)
	m.Metrics.RecordCost(modelName, provider, inputTokens, outputTokens, costUSD)

	m.ClueMetrics.RecordTimer(fmt.Sprintf("model_%s", provider), durationMS(latencyMS), "model", modelName)
	m.ClueMetrics.IncCounter(fmt.Sprintf("model_%s_cost_usd", provider), costUSD, "model", modelName)
}
