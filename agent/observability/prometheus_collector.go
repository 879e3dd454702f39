package observability

import (
	"encoding/json"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports a Manager's accumulated metrics as Prometheus
// gauge families. It is an "unchecked" collector: its metric set depends on
// what has been recorded so far, so Describe intentionally emits nothing,
// matching prometheus_client's GaugeMetricFamily-per-Collect pattern.
type PrometheusCollector struct {
	manager *Manager
	version string
}

// NewPrometheusCollector builds a collector over manager (nil is valid: it
// still exports the up/build_info families). version is reported in
// agentsdk_build_info.
func NewPrometheusCollector(manager *Manager, version string) *PrometheusCollector {
	return &PrometheusCollector{manager: manager, version: version}
}

// Describe emits no descriptors; Collect's metric set is dynamic.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {}

// Collect renders the current metrics, cost, and latency samples as gauges.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	upDesc := prometheus.NewDesc("agentsdk_up", "Agent SDK process up status", nil, nil)
	ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 1.0)

	buildDesc := prometheus.NewDesc("agentsdk_build_info", "Agent SDK build information", []string{"version"}, nil)
	ch <- prometheus.MustNewConstMetric(buildDesc, prometheus.GaugeValue, 1.0, c.version)

	if c.manager == nil {
		return
	}

	c.collectMetricFamilies(ch)
	c.collectCostFamilies(ch)
	c.collectLatencyFamilies(ch)
}

type metricAgg struct {
	last, sum, count float64
}

func attributesLabel(attributes map[string]any) string {
	if len(attributes) == 0 {
		return ""
	}
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func (c *PrometheusCollector) collectMetricFamilies(ch chan<- prometheus.Metric) {
	type key struct{ name, unit, attrs string }
	grouped := make(map[key]*metricAgg)

	c.manager.Metrics.mu.Lock()
	metrics := make([]Metric, len(c.manager.Metrics.Metrics))
	copy(metrics, c.manager.Metrics.Metrics)
	c.manager.Metrics.mu.Unlock()

	var order []key
	for _, m := range metrics {
		k := key{m.Name, m.Unit, attributesLabel(m.Attributes)}
		agg, ok := grouped[k]
		if !ok {
			agg = &metricAgg{}
			grouped[k] = agg
			order = append(order, k)
		}
		agg.sum += m.Value
		agg.count++
		agg.last = m.Value
	}

	labels := []string{"metric", "unit", "attributes"}
	lastDesc := prometheus.NewDesc("agentsdk_metric_last", "Latest metric value by name", labels, nil)
	sumDesc := prometheus.NewDesc("agentsdk_metric_sum", "Sum of metric values by name", labels, nil)
	countDesc := prometheus.NewDesc("agentsdk_metric_count", "Count of metric samples by name", labels, nil)

	for _, k := range order {
		agg := grouped[k]
		ch <- prometheus.MustNewConstMetric(lastDesc, prometheus.GaugeValue, agg.last, k.name, k.unit, k.attrs)
		ch <- prometheus.MustNewConstMetric(sumDesc, prometheus.GaugeValue, agg.sum, k.name, k.unit, k.attrs)
		ch <- prometheus.MustNewConstMetric(countDesc, prometheus.GaugeValue, agg.count, k.name, k.unit, k.attrs)
	}
}

type costAgg struct {
	costUSD, inputTokens, outputTokens, count float64
}

func (c *PrometheusCollector) collectCostFamilies(ch chan<- prometheus.Metric) {
	type key struct{ model, provider string }
	grouped := make(map[key]*costAgg)

	c.manager.Metrics.mu.Lock()
	costs := make([]CostMetric, len(c.manager.Metrics.CostMetrics))
	copy(costs, c.manager.Metrics.CostMetrics)
	c.manager.Metrics.mu.Unlock()

	var order []key
	for _, cm := range costs {
		k := key{cm.Model, cm.Provider}
		agg, ok := grouped[k]
		if !ok {
			agg = &costAgg{}
			grouped[k] = agg
			order = append(order, k)
		}
		agg.costUSD += cm.CostUSD
		agg.inputTokens += float64(cm.InputTokens)
		agg.outputTokens += float64(cm.OutputTokens)
		agg.count++
	}

	labels := []string{"model", "provider"}
	costDesc := prometheus.NewDesc("agentsdk_cost_usd_total", "Total cost in USD per model/provider", labels, nil)
	inputDesc := prometheus.NewDesc("agentsdk_input_tokens_total", "Total input tokens per model/provider", labels, nil)
	outputDesc := prometheus.NewDesc("agentsdk_output_tokens_total", "Total output tokens per model/provider", labels, nil)
	countDesc := prometheus.NewDesc("agentsdk_cost_sample_count", "Cost metric samples per model/provider", labels, nil)

	for _, k := range order {
		agg := grouped[k]
		ch <- prometheus.MustNewConstMetric(costDesc, prometheus.GaugeValue, agg.costUSD, k.model, k.provider)
		ch <- prometheus.MustNewConstMetric(inputDesc, prometheus.GaugeValue, agg.inputTokens, k.model, k.provider)
		ch <- prometheus.MustNewConstMetric(outputDesc, prometheus.GaugeValue, agg.outputTokens, k.model, k.provider)
		ch <- prometheus.MustNewConstMetric(countDesc, prometheus.GaugeValue, agg.count, k.model, k.provider)
	}
}

func (c *PrometheusCollector) collectLatencyFamilies(ch chan<- prometheus.Metric) {
	c.manager.Metrics.mu.Lock()
	samplesByOp := make(map[string][]float64, len(c.manager.Metrics.LatencySamples))
	operations := make([]string, 0, len(c.manager.Metrics.LatencySamples))
	for op, samples := range c.manager.Metrics.LatencySamples {
		cp := make([]float64, len(samples))
		copy(cp, samples)
		samplesByOp[op] = cp
		operations = append(operations, op)
	}
	c.manager.Metrics.mu.Unlock()
	sort.Strings(operations)

	labels := []string{"operation"}
	avgDesc := prometheus.NewDesc("agentsdk_latency_avg_ms", "Average latency per operation", labels, nil)
	p95Desc := prometheus.NewDesc("agentsdk_latency_p95_ms", "P95 latency per operation", labels, nil)
	countDesc := prometheus.NewDesc("agentsdk_latency_count", "Latency samples per operation", labels, nil)

	for _, op := range operations {
		samples := samplesByOp[op]
		if len(samples) == 0 {
			continue
		}
		var sum float64
		for _, v := range samples {
			sum += v
		}
		avg := sum / float64(len(samples))
		p95 := percentile(samples, 95)

		ch <- prometheus.MustNewConstMetric(avgDesc, prometheus.GaugeValue, avg, op)
		ch <- prometheus.MustNewConstMetric(p95Desc, prometheus.GaugeValue, p95, op)
		ch <- prometheus.MustNewConstMetric(countDesc, prometheus.GaugeValue, float64(len(samples)), op)
	}
}

// percentile returns the sorted value at index (len-1)*pct/100, rounded to the
// nearest index with halves rounded up and clamped to the slice bounds.
func percentile(values []float64, pct float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)-1)*pct/100.0 + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
