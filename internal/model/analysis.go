package model

import (
	"fmt"
	"time"
)

// CostPeriod is the granularity of a cost breakdown.
type CostPeriod string

const (
	CostDaily   CostPeriod = "daily"
	CostWeekly  CostPeriod = "weekly"
	CostMonthly CostPeriod = "monthly"
)

// ParseCostPeriod validates a cost period name.
func ParseCostPeriod(s string) (CostPeriod, error) {
	switch p := CostPeriod(s); p {
	case CostDaily, CostWeekly, CostMonthly:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown cost period %q", ErrInvalidArgument, s)
}

// Interval maps the period to its bucket granularity.
func (p CostPeriod) Interval() Interval {
	switch p {
	case CostWeekly:
		return IntervalWeek
	case CostMonthly:
		return IntervalMonth
	default:
		return IntervalDay
	}
}

// CostTrend compares a period's spend with the one before it.
type CostTrend string

const (
	CostIncreasing CostTrend = "increasing"
	CostDecreasing CostTrend = "decreasing"
	CostStable     CostTrend = "stable"
)

// CostEfficiency rates the average cost per request.
type CostEfficiency string

const (
	EfficiencyExcellent CostEfficiency = "excellent"
	EfficiencyGood      CostEfficiency = "good"
	EfficiencyFair      CostEfficiency = "fair"
	EfficiencyPoor      CostEfficiency = "poor"
	EfficiencyUnknown   CostEfficiency = "unknown"
)

// CostBreakdown is the spend of one agent over one cost period.
type CostBreakdown struct {
	AgentID           string         `json:"agent_id"`
	AgentName         string         `json:"agent_name,omitempty"`
	PeriodStart       time.Time      `json:"period_start"`
	PeriodEnd         time.Time      `json:"period_end"`
	TotalCost         float64        `json:"total_cost"`
	AvgCostPerRequest float64        `json:"avg_cost_per_request"`
	TotalRequests     int            `json:"total_requests"`
	CostTrend         CostTrend      `json:"cost_trend"`
	CostEfficiency    CostEfficiency `json:"cost_efficiency"`
}

// Severity ranks alerts and issues.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertType names the rule that produced a cost alert.
type AlertType string

const (
	AlertCostSpike      AlertType = "cost_spike"
	AlertEfficiencyDrop AlertType = "efficiency_drop"
)

// CostAlert flags an abnormal change in an agent's spend.
type CostAlert struct {
	AgentID        string    `json:"agent_id"`
	AgentName      string    `json:"agent_name,omitempty"`
	AlertType      AlertType `json:"alert_type"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	CurrentValue   float64   `json:"current_value"`
	ThresholdValue float64   `json:"threshold_value"`
	Timestamp      time.Time `json:"timestamp"`
}

// Confidence qualifies a set of recommendations.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// CostMetricsSummary holds the averages the cost rules were evaluated on.
type CostMetricsSummary struct {
	AvgCostPerRequest float64 `json:"avg_cost_per_request"`
	AvgLatencyMs      float64 `json:"avg_latency_ms"`
	AvgThroughput     float64 `json:"avg_throughput"`
	AvgCPUPercent     float64 `json:"avg_cpu_usage"`
	AvgMemoryMB       float64 `json:"avg_memory_mb"`
	TotalRequests     int     `json:"total_requests"`
}

// CostRecommendations is the output of the cost optimization rules.
type CostRecommendations struct {
	AgentID                 string              `json:"agent_id"`
	AnalysisPeriodDays      int                 `json:"analysis_period_days"`
	CurrentTotalCost        float64             `json:"current_total_cost"`
	Recommendations         []string            `json:"recommendations"`
	PotentialMonthlySavings float64             `json:"potential_monthly_savings"`
	Confidence              Confidence          `json:"confidence"`
	MetricsSummary          *CostMetricsSummary `json:"metrics_summary,omitempty"`
}

// IssueType names a performance detector.
type IssueType string

const (
	IssueHighLatency            IssueType = "high_latency"
	IssueLowThroughput          IssueType = "low_throughput"
	IssueHighResourceUsage      IssueType = "high_resource_usage"
	IssueMemoryLeak             IssueType = "memory_leak"
	IssuePerformanceDegradation IssueType = "performance_degradation"
	IssueIntermittent           IssueType = "intermittent_issues"
)

// PerformanceIssue is one finding of the diagnosis rules.
type PerformanceIssue struct {
	AgentID         string    `json:"agent_id"`
	AgentName       string    `json:"agent_name"`
	IssueType       IssueType `json:"issue_type"`
	Severity        Severity  `json:"severity"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	CurrentValue    float64   `json:"current_value"`
	ThresholdValue  float64   `json:"threshold_value"`
	Recommendation  string    `json:"recommendation"`
	DetectedAt      time.Time `json:"detected_at"`
	FirstSeen       time.Time `json:"first_seen"`
	LastSeen        time.Time `json:"last_seen"`
	OccurrenceCount int       `json:"occurrence_count"`
}

// HealthRating buckets the mean of the diagnosis subscores.
type HealthRating string

const (
	HealthExcellent HealthRating = "excellent"
	HealthGood      HealthRating = "good"
	HealthFair      HealthRating = "fair"
	HealthPoor      HealthRating = "poor"
	HealthCritical  HealthRating = "critical"
	HealthUnknown   HealthRating = "unknown"
)

// PerformanceSummary scores an agent over an analysis window.
type PerformanceSummary struct {
	AgentID                 string       `json:"agent_id"`
	AgentName               string       `json:"agent_name"`
	OverallHealth           HealthRating `json:"overall_health"`
	LatencyScore            int          `json:"latency_score"`
	ThroughputScore         int          `json:"throughput_score"`
	ResourceEfficiencyScore int          `json:"resource_efficiency_score"`
	ReliabilityScore        int          `json:"reliability_score"`
	IssuesCount             int          `json:"issues_count"`
	RecommendationsCount    int          `json:"recommendations_count"`
}

// Recommendation is a prioritized performance action list.
type Recommendation struct {
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
}
