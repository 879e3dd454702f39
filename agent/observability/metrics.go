package observability

import (
	"fmt"
	"sync"
	"time"
)

// Metric is a single recorded measurement.
type Metric struct {
	Name       string
	Unit       string
	Value      float64
	Timestamp  time.Time
	Attributes map[string]any
}

// CostMetric tracks a single LLM API call's token usage and cost.
type CostMetric struct {
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// LatencyStatistics summarizes a set of latency samples for one operation.
type LatencyStatistics struct {
	Count int
	MinMS float64
	MaxMS float64
	AvgMS float64
}

// Statistics is the aggregated view MetricsCollector.Statistics returns.
type Statistics struct {
	MetricCount       int
	CostCount         int
	TotalCostUSD      float64
	TotalInputTokens  int
	TotalOutputTokens int
	LatencyStatistics map[string]LatencyStatistics
	CostByModel       map[string]float64
}

// MetricsCollector accumulates metrics, cost samples, and per-operation
// latency samples in memory.
type MetricsCollector struct {
	mu             sync.Mutex
	Metrics        []Metric
	CostMetrics    []CostMetric
	LatencySamples map[string][]float64
}

// NewMetricsCollector constructs an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{LatencySamples: make(map[string][]float64)}
}

// RecordMetric appends a generic named measurement.
func (m *MetricsCollector) RecordMetric(name string, value float64, unit string, attributes map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Metrics = append(m.Metrics, Metric{Name: name, Unit: unit, Value: value, Timestamp: time.Now(), Attributes: attributes})
}

// RecordLatency records a latency sample for operation, in milliseconds, and
// mirrors it as a generic "<operation>_latency" metric.
func (m *MetricsCollector) RecordLatency(operation string, latencyMS float64) {
	m.mu.Lock()
	m.LatencySamples[operation] = append(m.LatencySamples[operation], latencyMS)
	m.mu.Unlock()
	m.RecordMetric(fmt.Sprintf("%s_latency", operation), latencyMS, "ms", nil)
}

// RecordCost appends a cost sample for one model/provider API call.
func (m *MetricsCollector) RecordCost(model, provider string, inputTokens, outputTokens int, costUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CostMetrics = append(m.CostMetrics, CostMetric{
		Model: model, Provider: provider,
		InputTokens: inputTokens, OutputTokens: outputTokens,
		CostUSD: costUSD, Timestamp: time.Now(),
	})
}

// Statistics computes aggregate latency, cost, and token totals over every
// sample recorded so far.
func (m *MetricsCollector) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	latencyStats := make(map[string]LatencyStatistics, len(m.LatencySamples))
	for op, samples := range m.LatencySamples {
		if len(samples) == 0 {
			continue
		}
		min, max, sum := samples[0], samples[0], 0.0
		for _, v := range samples {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += v
		}
		latencyStats[op] = LatencyStatistics{
			Count: len(samples), MinMS: min, MaxMS: max, AvgMS: sum / float64(len(samples)),
		}
	}

	costByModel := make(map[string]float64)
	var totalCost float64
	var totalInput, totalOutput int
	for _, c := range m.CostMetrics {
		totalCost += c.CostUSD
		totalInput += c.InputTokens
		totalOutput += c.OutputTokens
		key := fmt.Sprintf("%s/%s", c.Provider, c.Model)
		costByModel[key] += c.CostUSD
	}

	return Statistics{
		MetricCount:       len(m.Metrics),
		CostCount:         len(m.CostMetrics),
		TotalCostUSD:      totalCost,
		TotalInputTokens:  totalInput,
		TotalOutputTokens: totalOutput,
		LatencyStatistics: latencyStats,
		CostByModel:       costByModel,
	}
}
