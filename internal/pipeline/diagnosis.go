package pipeline

import (
	"fmt"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

// Diagnosis thresholds.
const (
	highAvgLatencyMs   = 2000.0
	highP95LatencyMs   = 5000.0
	lowThroughputDiag  = 5.0
	highCPUPercent     = 85.0
	memoryLeakPercent  = 20.0
	maxCollectionGap   = time.Hour
	degradationPercent = 30.0
	expectedInterval   = 5 * time.Minute
	recommendBelow     = 70
	neutralScore       = 50
)

// Diagnose runs every detector and scorer over one agent's samples in w.
// now stamps DetectedAt; it does not affect which samples are analyzed.
func Diagnose(agent model.Agent, samples []model.Sample, w Window, now time.Time) (model.PerformanceSummary, []model.PerformanceIssue) {
	summary := model.PerformanceSummary{
		AgentID:       agent.ID,
		AgentName:     agent.Name,
		OverallHealth: model.HealthUnknown,
	}

	filtered := FilterByAgent(FilterByTime(samples, w), agent.ID)
	if len(filtered) == 0 {
		return summary, nil
	}
	sorted := make([]model.Sample, len(filtered))
	copy(sorted, filtered)
	model.SortByTime(sorted)

	d := diagnoser{agent: agent, samples: sorted, now: now}
	var issues []model.PerformanceIssue
	issues = append(issues, d.latencyIssues()...)
	issues = append(issues, d.throughputIssues()...)
	issues = append(issues, d.resourceIssues()...)
	issues = append(issues, d.reliabilityIssues()...)
	issues = append(issues, d.degradationIssues(w)...)

	summary.LatencyScore = latencyScore(sorted)
	summary.ThroughputScore = throughputScore(sorted)
	summary.ResourceEfficiencyScore = resourceScore(sorted)
	summary.ReliabilityScore = reliabilityScore(sorted)

	overall := float64(summary.LatencyScore+summary.ThroughputScore+
		summary.ResourceEfficiencyScore+summary.ReliabilityScore) / 4
	summary.OverallHealth = HealthFor(overall)
	summary.IssuesCount = len(issues)
	for _, is := range issues {
		if is.Recommendation != "" {
			summary.RecommendationsCount++
		}
	}
	return summary, issues
}

// HealthFor maps a 0-100 score to a rating.
func HealthFor(score float64) model.HealthRating {
	switch {
	case score >= 90:
		return model.HealthExcellent
	case score >= 75:
		return model.HealthGood
	case score >= 60:
		return model.HealthFair
	case score >= 40:
		return model.HealthPoor
	default:
		return model.HealthCritical
	}
}

type diagnoser struct {
	agent   model.Agent
	samples []model.Sample // oldest first
	now     time.Time
}

func (d diagnoser) issue(t model.IssueType, sev model.Severity) model.PerformanceIssue {
	return model.PerformanceIssue{
		AgentID:    d.agent.ID,
		AgentName:  d.agent.Name,
		IssueType:  t,
		Severity:   sev,
		DetectedAt: d.now,
		FirstSeen:  d.samples[0].Timestamp,
		LastSeen:   d.samples[len(d.samples)-1].Timestamp,
	}
}

// seenWhere narrows FirstSeen/LastSeen to samples matching pred and returns
// how many matched.
func (d diagnoser) seenWhere(is *model.PerformanceIssue, pred func(model.Sample) bool) int {
	n := 0
	for _, s := range d.samples {
		if !pred(s) {
			continue
		}
		if n == 0 {
			is.FirstSeen = s.Timestamp
		}
		is.LastSeen = s.Timestamp
		n++
	}
	return n
}

func (d diagnoser) latencyIssues() []model.PerformanceIssue {
	values := metricValues(d.samples, model.MetricLatency)
	if len(values) == 0 {
		return nil
	}

	var issues []model.PerformanceIssue
	avg := mean(values)
	p95 := NearestRank(values, 0.95)

	if avg > highAvgLatencyMs {
		is := d.issue(model.IssueHighLatency, model.SeverityHigh)
		is.Title = "High Average Latency"
		is.Description = fmt.Sprintf("Average latency (%.1fms) exceeds recommended threshold", avg)
		is.CurrentValue = avg
		is.ThresholdValue = highAvgLatencyMs
		is.Recommendation = "Optimize model parameters, implement caching, or upgrade hardware"
		is.OccurrenceCount = d.seenWhere(&is, func(s model.Sample) bool {
			return s.LatencyMs != nil && *s.LatencyMs > highAvgLatencyMs
		})
		issues = append(issues, is)
	}

	if p95 > highP95LatencyMs {
		is := d.issue(model.IssueHighLatency, model.SeverityCritical)
		is.Title = "High P95 Latency"
		is.Description = fmt.Sprintf("95th percentile latency (%.1fms) is critically high", p95)
		is.CurrentValue = p95
		is.ThresholdValue = highP95LatencyMs
		is.Recommendation = "Investigate and fix performance bottlenecks causing latency spikes"
		is.OccurrenceCount = countWhere(values, func(v float64) bool { return v > highP95LatencyMs })
		issues = append(issues, is)
	}
	return issues
}

func (d diagnoser) throughputIssues() []model.PerformanceIssue {
	values := metricValues(d.samples, model.MetricThroughput)
	if len(values) == 0 {
		return nil
	}

	avg := mean(values)
	if avg >= lowThroughputDiag {
		return nil
	}
	is := d.issue(model.IssueLowThroughput, model.SeverityMedium)
	is.Title = "Low Request Throughput"
	is.Description = fmt.Sprintf("Average throughput (%.1f req/min) is below optimal levels", avg)
	is.CurrentValue = avg
	is.ThresholdValue = lowThroughputDiag
	is.Recommendation = "Implement request batching, optimize processing pipeline, or scale resources"
	is.OccurrenceCount = countWhere(values, func(v float64) bool { return v < lowThroughputDiag })
	return []model.PerformanceIssue{is}
}

func (d diagnoser) resourceIssues() []model.PerformanceIssue {
	var issues []model.PerformanceIssue

	if cpu := metricValues(d.samples, model.MetricCPU); len(cpu) > 0 {
		avg := mean(cpu)
		if avg > highCPUPercent {
			is := d.issue(model.IssueHighResourceUsage, model.SeverityHigh)
			is.Title = "High CPU Usage"
			is.Description = fmt.Sprintf("Average CPU usage (%.1f%%) is critically high", avg)
			is.CurrentValue = avg
			is.ThresholdValue = highCPUPercent
			is.Recommendation = "Scale CPU resources or optimize computational workload"
			is.OccurrenceCount = d.seenWhere(&is, func(s model.Sample) bool {
				return s.CPUPercent != nil && *s.CPUPercent > highCPUPercent
			})
			issues = append(issues, is)
		}
	}

	if mem := metricValues(d.samples, model.MetricMemory); len(mem) > 0 {
		trend := thirdsTrend(mem)
		if trend > memoryLeakPercent {
			is := d.issue(model.IssueMemoryLeak, model.SeverityHigh)
			is.Title = "Potential Memory Leak"
			is.Description = fmt.Sprintf("Memory usage shows increasing trend (%.1f%% growth)", trend)
			is.CurrentValue = mem[len(mem)-1]
			is.ThresholdValue = mem[0] * 1.2
			is.Recommendation = "Investigate memory allocation patterns and fix potential memory leaks"
			is.OccurrenceCount = 1
			issues = append(issues, is)
		}
	}
	return issues
}

func (d diagnoser) reliabilityIssues() []model.PerformanceIssue {
	if len(d.samples) < 2 {
		return nil
	}

	var maxGap time.Duration
	for i := 1; i < len(d.samples); i++ {
		if gap := d.samples[i].Timestamp.Sub(d.samples[i-1].Timestamp); gap > maxGap {
			maxGap = gap
		}
	}
	if maxGap <= maxCollectionGap {
		return nil
	}

	hours := maxGap.Hours()
	is := d.issue(model.IssueIntermittent, model.SeverityMedium)
	is.Title = "Data Collection Gaps"
	is.Description = fmt.Sprintf("Detected data gap of %.1f hours", hours)
	is.CurrentValue = hours
	is.ThresholdValue = maxCollectionGap.Hours()
	is.Recommendation = "Investigate agent connectivity and monitoring system reliability"
	is.OccurrenceCount = 1
	return []model.PerformanceIssue{is}
}

// degradationIssues splits w at its midpoint and compares mean latency of
// the two halves. Samples at the midpoint belong to the first half.
func (d diagnoser) degradationIssues(w Window) []model.PerformanceIssue {
	mid := w.Start.Add(w.End.Sub(w.Start) / 2)

	var first, second []model.Sample
	for _, s := range d.samples {
		if s.Timestamp.After(mid) {
			second = append(second, s)
		} else {
			first = append(first, s)
		}
	}
	if len(first) < 2 || len(second) < 2 {
		return nil
	}

	firstLat := metricValues(first, model.MetricLatency)
	secondLat := metricValues(second, model.MetricLatency)
	if len(firstLat) == 0 || len(secondLat) == 0 {
		return nil
	}
	firstAvg, secondAvg := mean(firstLat), mean(secondLat)
	if firstAvg <= 0 {
		return nil
	}

	degradation := (secondAvg - firstAvg) / firstAvg * 100
	if degradation <= degradationPercent {
		return nil
	}
	is := d.issue(model.IssuePerformanceDegradation, model.SeverityHigh)
	is.Title = "Performance Degradation Detected"
	is.Description = fmt.Sprintf("Latency increased by %.1f%% over the analysis period", degradation)
	is.CurrentValue = secondAvg
	is.ThresholdValue = firstAvg * 1.3
	is.Recommendation = "Investigate system changes, resource constraints, or external dependencies"
	is.FirstSeen = mid
	is.LastSeen = w.End
	is.OccurrenceCount = 1
	return []model.PerformanceIssue{is}
}

func latencyScore(samples []model.Sample) int {
	values := metricValues(samples, model.MetricLatency)
	if len(values) == 0 {
		return neutralScore
	}
	switch avg := mean(values); {
	case avg <= 100:
		return 100
	case avg <= 500:
		return 85
	case avg <= 1000:
		return 70
	case avg <= 2000:
		return 50
	case avg <= 5000:
		return 25
	default:
		return 0
	}
}

func throughputScore(samples []model.Sample) int {
	values := metricValues(samples, model.MetricThroughput)
	if len(values) == 0 {
		return neutralScore
	}
	switch avg := mean(values); {
	case avg >= 60:
		return 100
	case avg >= 30:
		return 85
	case avg >= 15:
		return 70
	case avg >= 5:
		return 50
	case avg >= 1:
		return 25
	default:
		return 0
	}
}

func resourceScore(samples []model.Sample) int {
	var scores []int

	if cpu := metricValues(samples, model.MetricCPU); len(cpu) > 0 {
		switch avg := mean(cpu); {
		case avg >= 50 && avg <= 80:
			scores = append(scores, 100)
		case (avg >= 30 && avg < 50) || (avg > 80 && avg <= 90):
			scores = append(scores, 70)
		default:
			scores = append(scores, 30)
		}
	}

	if mem := metricValues(samples, model.MetricMemory); len(mem) > 1 {
		switch trend := thirdsTrend(mem); {
		case trend <= 0:
			scores = append(scores, 100)
		case trend <= 10:
			scores = append(scores, 70)
		case trend <= 20:
			scores = append(scores, 40)
		default:
			scores = append(scores, 10)
		}
	}

	if len(scores) == 0 {
		return neutralScore
	}
	total := 0
	for _, s := range scores {
		total += s
	}
	return total / len(scores)
}

// reliabilityScore compares the sample count with one sample per five
// minutes across the observed span.
func reliabilityScore(samples []model.Sample) int {
	if len(samples) < 2 {
		return neutralScore
	}
	span := samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp)
	expected := span.Seconds() / expectedInterval.Seconds()
	if expected < 1 {
		expected = 1
	}
	ratio := float64(len(samples)) / expected
	if ratio > 1 {
		ratio = 1
	}
	return int(ratio * 100)
}

// PerformanceRecommendations turns a diagnosis into prioritized actions:
// one per weak subscore, then one per high or critical issue.
func PerformanceRecommendations(summary model.PerformanceSummary, issues []model.PerformanceIssue) []model.Recommendation {
	recs := []model.Recommendation{}

	if summary.LatencyScore < recommendBelow {
		recs = append(recs, model.Recommendation{
			Category:    "latency",
			Priority:    string(model.SeverityHigh),
			Title:       "Optimize Response Latency",
			Description: "Latency performance is below optimal levels",
			Actions: []string{
				"Review model parameters and reduce complexity if possible",
				"Implement response caching for repeated queries",
				"Consider using faster hardware or optimized inference engines",
				"Analyze request patterns for potential batching opportunities",
			},
		})
	}
	if summary.ThroughputScore < recommendBelow {
		recs = append(recs, model.Recommendation{
			Category:    "throughput",
			Priority:    string(model.SeverityHigh),
			Title:       "Improve Request Throughput",
			Description: "Request processing throughput could be improved",
			Actions: []string{
				"Implement request queuing and batch processing",
				"Optimize concurrent request handling",
				"Consider horizontal scaling or load balancing",
				"Review resource allocation and scaling policies",
			},
		})
	}
	if summary.ResourceEfficiencyScore < recommendBelow {
		recs = append(recs, model.Recommendation{
			Category:    "resources",
			Priority:    string(model.SeverityMedium),
			Title:       "Optimize Resource Usage",
			Description: "Resource utilization could be more efficient",
			Actions: []string{
				"Monitor and optimize memory usage patterns",
				"Review CPU utilization and adjust allocation",
				"Implement resource pooling and reuse strategies",
				"Consider auto-scaling based on demand",
			},
		})
	}
	if summary.ReliabilityScore < recommendBelow {
		recs = append(recs, model.Recommendation{
			Category:    "reliability",
			Priority:    string(model.SeverityHigh),
			Title:       "Improve System Reliability",
			Description: "System reliability needs attention",
			Actions: []string{
				"Implement comprehensive error handling and retry logic",
				"Add health checks and monitoring alerts",
				"Review system dependencies and failure points",
				"Implement circuit breaker patterns for external calls",
			},
		})
	}

	for _, is := range issues {
		if is.Severity != model.SeverityHigh && is.Severity != model.SeverityCritical {
			continue
		}
		actions := []string{}
		if is.Recommendation != "" {
			actions = append(actions, is.Recommendation)
		}
		recs = append(recs, model.Recommendation{
			Category:    string(is.IssueType),
			Priority:    string(is.Severity),
			Title:       is.Title,
			Description: is.Description,
			Actions:     actions,
		})
	}
	return recs
}

func metricValues(samples []model.Sample, name string) []float64 {
	var values []float64
	for _, s := range samples {
		if v, _ := s.Metric(name); v != nil {
			values = append(values, *v)
		}
	}
	return values
}

func countWhere(values []float64, pred func(float64) bool) int {
	n := 0
	for _, v := range values {
		if pred(v) {
			n++
		}
	}
	return n
}
