// Package model defines domain types for agent performance samples and the
// analyses derived from them.
package model

import (
	"sort"
	"time"
)

// Standard metric names, matching the JSON field names of Sample.
const (
	MetricLatency    = "latency_ms"
	MetricThroughput = "throughput_req_per_min"
	MetricCost       = "cost_per_request"
	MetricCPU        = "cpu_usage_percent"
	MetricGPU        = "gpu_usage_percent"
	MetricMemory     = "memory_usage_mb"
)

// MetricNames lists the numeric metrics every sample may carry.
var MetricNames = []string{
	MetricLatency,
	MetricThroughput,
	MetricCost,
	MetricCPU,
	MetricGPU,
	MetricMemory,
}

// Sample is one timestamped performance observation reported by an agent.
// Optional metrics are nil when the agent did not report them.
type Sample struct {
	ID        string    `json:"metric_id,omitempty"`
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`

	LatencyMs      *float64 `json:"latency_ms,omitempty"`
	Throughput     *float64 `json:"throughput_req_per_min,omitempty"`
	CostPerRequest *float64 `json:"cost_per_request,omitempty"`
	CPUPercent     *float64 `json:"cpu_usage_percent,omitempty"`
	GPUPercent     *float64 `json:"gpu_usage_percent,omitempty"`
	MemoryMB       *float64 `json:"memory_usage_mb,omitempty"`

	CustomMetrics map[string]any `json:"custom_metrics,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
}

// HasMetrics reports whether at least one metric, standard or custom, is set.
func (s Sample) HasMetrics() bool {
	return s.LatencyMs != nil ||
		s.Throughput != nil ||
		s.CostPerRequest != nil ||
		s.CPUPercent != nil ||
		s.GPUPercent != nil ||
		s.MemoryMB != nil ||
		len(s.CustomMetrics) > 0
}

// Metric returns the named standard metric. known is false for names outside
// MetricNames; value is nil when the sample did not report it.
func (s Sample) Metric(name string) (value *float64, known bool) {
	switch name {
	case MetricLatency:
		return s.LatencyMs, true
	case MetricThroughput:
		return s.Throughput, true
	case MetricCost:
		return s.CostPerRequest, true
	case MetricCPU:
		return s.CPUPercent, true
	case MetricGPU:
		return s.GPUPercent, true
	case MetricMemory:
		return s.MemoryMB, true
	default:
		return nil, false
	}
}

// IsMetricName reports whether name is a standard metric.
func IsMetricName(name string) bool {
	_, ok := Sample{}.Metric(name)
	return ok
}

// SortByTime orders samples oldest first. Ties keep their input order.
func SortByTime(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
}

// Float returns a pointer to v, for building optional metrics.
func Float(v float64) *float64 {
	return &v
}
