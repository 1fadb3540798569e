package model

import (
	"fmt"
	"time"
)

// Interval is a calendar bucket granularity.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
	IntervalWeek   Interval = "week"
	IntervalMonth  Interval = "month"
)

// ParseInterval validates an interval name.
func ParseInterval(s string) (Interval, error) {
	switch iv := Interval(s); iv {
	case IntervalMinute, IntervalHour, IntervalDay, IntervalWeek, IntervalMonth:
		return iv, nil
	}
	return "", fmt.Errorf("%w: unknown interval %q", ErrInvalidArgument, s)
}

// Bucket holds aggregate statistics for one agent over [Start, End).
// Averages are nil when no sample in the bucket carried that metric.
type Bucket struct {
	AgentID     string    `json:"agent_id"`
	Interval    Interval  `json:"interval"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
	SampleCount int       `json:"sample_count"`

	AvgLatencyMs *float64 `json:"avg_latency_ms"`
	MinLatencyMs *float64 `json:"min_latency_ms"`
	MaxLatencyMs *float64 `json:"max_latency_ms"`

	AvgThroughput     *float64 `json:"avg_throughput"`
	AvgCostPerRequest *float64 `json:"avg_cost_per_request"`
	AvgCPUPercent     *float64 `json:"avg_cpu_usage"`
	AvgGPUPercent     *float64 `json:"avg_gpu_usage"`
	AvgMemoryMB       *float64 `json:"avg_memory_usage"`

	TotalCost *float64 `json:"total_cost"`
	// TotalRequests is the sum of reported throughput values, a proxy
	// rather than a true request count.
	TotalRequests *float64 `json:"total_requests"`
}

// AgentSummary is the headline view of one agent over a number of days.
type AgentSummary struct {
	AgentID     string    `json:"agent_id"`
	AgentName   string    `json:"agent_name"`
	PeriodDays  int       `json:"period_days"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TotalMetrics  int      `json:"total_metrics"`
	AvgLatencyMs  *float64 `json:"avg_latency_ms"`
	P95LatencyMs  *float64 `json:"p95_latency_ms"`
	AvgThroughput *float64 `json:"avg_throughput"`
	TotalCost     float64  `json:"total_cost"`
	AvgCPUPercent *float64 `json:"avg_cpu_usage"`
	AvgGPUPercent *float64 `json:"avg_gpu_usage"`
	AvgMemoryMB   *float64 `json:"avg_memory_usage"`

	FirstMetric *time.Time `json:"first_metric"`
	LastMetric  *time.Time `json:"last_metric"`
	UptimeHours int        `json:"uptime_hours"`
}

// TrendDirection classifies how a series moved.
type TrendDirection string

const (
	TrendIncreasing       TrendDirection = "increasing"
	TrendDecreasing       TrendDirection = "decreasing"
	TrendStable           TrendDirection = "stable"
	TrendInsufficientData TrendDirection = "insufficient_data"
	TrendNoData           TrendDirection = "no_data"
)

// TrendAnalysis describes the hourly movement of one metric.
type TrendAnalysis struct {
	AgentID       string         `json:"agent_id"`
	MetricName    string         `json:"metric_name"`
	PeriodHours   int            `json:"period_hours"`
	Trend         TrendDirection `json:"trend"`
	ChangePercent float64        `json:"change_percent"`
	DataPoints    int            `json:"data_points"`
	CurrentValue  *float64       `json:"current_value,omitempty"`
	MinValue      *float64       `json:"min_value,omitempty"`
	MaxValue      *float64       `json:"max_value,omitempty"`
	AvgValue      *float64       `json:"avg_value,omitempty"`
}
