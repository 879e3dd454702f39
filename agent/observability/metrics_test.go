package observability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordLatencyAccumulatesSamplesAndMirrorsMetric(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordLatency("planner.plan", 10)
	m.RecordLatency("planner.plan", 20)

	require.Equal(t, []float64{10, 20}, m.LatencySamples["planner.plan"])

	stats := m.Statistics()
	latency := stats.LatencyStatistics["planner.plan"]
	require.Equal(t, 2, latency.Count)
	require.InDelta(t, 10, latency.MinMS, 0.001)
	require.InDelta(t, 20, latency.MaxMS, 0.001)
	require.InDelta(t, 15, latency.AvgMS, 0.001)
}

func TestRecordCostAggregatesTotalsAndGroupsByModel(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordCost("gpt-4", "openai", 100, 50, 0.01)
	m.RecordCost("gpt-4", "openai", 200, 100, 0.02)
	m.RecordCost("claude", "anthropic", 50, 25, 0.005)

	stats := m.Statistics()
	require.InDelta(t, 0.035, stats.TotalCostUSD, 0.0001)
	require.Equal(t, 350, stats.TotalInputTokens)
	require.Equal(t, 175, stats.TotalOutputTokens)
	require.InDelta(t, 0.03, stats.CostByModel["openai/gpt-4"], 0.0001)
	require.InDelta(t, 0.005, stats.CostByModel["anthropic/claude"], 0.0001)
}

func TestRecordMetricIncrementsMetricCount(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordMetric("tool_http.fetch_success", 1.0, "", nil)
	m.RecordMetric("tool_http.fetch_success", 1.0, "", nil)

	stats := m.Statistics()
	require.Equal(t, 2, stats.MetricCount)
}
