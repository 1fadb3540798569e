package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

// Cost rule thresholds.
const (
	costTrendBand = 10.0 // percent

	spikeCritical  = 100.0 // percent increase
	spikeHigh      = 50.0
	efficiencyDrop = 25.0

	highCostPerRequest    = 0.01
	latencyCostLatencyMs  = 1000.0
	latencyCostPerRequest = 0.005
	lowCPUPercent         = 30.0
	lowMemoryMB           = 500.0
	lowThroughputCost     = 10.0
)

// CostEfficiencyFor rates an average cost per request.
func CostEfficiencyFor(avgCost float64) model.CostEfficiency {
	switch {
	case avgCost <= 0:
		return model.EfficiencyUnknown
	case avgCost <= 0.001:
		return model.EfficiencyExcellent
	case avgCost <= 0.005:
		return model.EfficiencyGood
	case avgCost <= 0.01:
		return model.EfficiencyFair
	default:
		return model.EfficiencyPoor
	}
}

// CostTrendFor compares a period's cost with the previous period's.
func CostTrendFor(current, previous float64) model.CostTrend {
	if current == 0 || previous == 0 {
		return model.CostStable
	}
	change := (current - previous) / previous * 100
	switch {
	case change > costTrendBand:
		return model.CostIncreasing
	case change < -costTrendBand:
		return model.CostDecreasing
	default:
		return model.CostStable
	}
}

type costAcc struct {
	total float64
	count int
}

// AnalyzeCosts breaks down spend per agent and cost period for samples in w
// that report a cost. The trend of each period compares it with the span of
// equal length right before it, so samples should cover that earlier span
// too. names maps agent ids to display names.
func AnalyzeCosts(samples []model.Sample, names map[string]string, agentID string, period model.CostPeriod, w Window) ([]model.CostBreakdown, error) {
	if _, err := model.ParseCostPeriod(string(period)); err != nil {
		return nil, err
	}
	iv := period.Interval()
	span := Span(iv)

	costed := make(map[string][]model.Sample)
	for _, s := range FilterByAgent(samples, agentID) {
		if s.CostPerRequest != nil {
			costed[s.AgentID] = append(costed[s.AgentID], s)
		}
	}

	groups := make(map[bucketKey]*costAcc)
	for agent, list := range costed {
		for _, s := range list {
			if !w.Contains(s.Timestamp) {
				continue
			}
			k := bucketKey{agentID: agent, start: Truncate(s.Timestamp, iv).UnixNano()}
			acc, ok := groups[k]
			if !ok {
				acc = &costAcc{}
				groups[k] = acc
			}
			acc.total += *s.CostPerRequest
			acc.count++
		}
	}

	result := make([]model.CostBreakdown, 0, len(groups))
	for k, acc := range groups {
		start := time.Unix(0, k.start).UTC()
		end := start.Add(span)
		avg := acc.total / float64(acc.count)

		current := periodCost(costed[k.agentID], start, end)
		previous := periodCost(costed[k.agentID], start.Add(-span), start)

		result = append(result, model.CostBreakdown{
			AgentID:           k.agentID,
			AgentName:         names[k.agentID],
			PeriodStart:       start,
			PeriodEnd:         end,
			TotalCost:         acc.total,
			AvgCostPerRequest: avg,
			TotalRequests:     acc.count,
			CostTrend:         CostTrendFor(current, previous),
			CostEfficiency:    CostEfficiencyFor(avg),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].AgentID != result[j].AgentID {
			return result[i].AgentID < result[j].AgentID
		}
		return result[i].PeriodStart.Before(result[j].PeriodStart)
	})
	return result, nil
}

// periodCost sums cost over [start, end).
func periodCost(samples []model.Sample, start, end time.Time) float64 {
	var total float64
	for _, s := range samples {
		if s.CostPerRequest == nil || s.Timestamp.Before(start) || !s.Timestamp.Before(end) {
			continue
		}
		total += *s.CostPerRequest
	}
	return total
}

// windowCost returns the sum and mean cost over the inclusive window w.
func windowCost(samples []model.Sample, w Window) (total, avg float64) {
	var n int
	for _, s := range samples {
		if s.CostPerRequest == nil || !w.Contains(s.Timestamp) {
			continue
		}
		total += *s.CostPerRequest
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return total, total / float64(n)
}

// CostAlerts compares the last hours of spend of each agent with the hours
// before. An agent yields at most one spike alert and one efficiency alert.
func CostAlerts(samples []model.Sample, agents []model.Agent, hours int, now time.Time) []model.CostAlert {
	current := LastHours(now, hours)
	previous := Window{Start: current.Start.Add(-time.Duration(hours) * time.Hour), End: current.Start}

	byAgent := make(map[string][]model.Sample)
	for _, s := range samples {
		byAgent[s.AgentID] = append(byAgent[s.AgentID], s)
	}

	var alerts []model.CostAlert
	for _, agent := range agents {
		list := byAgent[agent.ID]
		curTotal, curAvg := windowCost(list, current)
		prevTotal, prevAvg := windowCost(list, previous)

		if curTotal > 0 && prevTotal > 0 {
			increase := (curTotal - prevTotal) / prevTotal * 100
			alert := model.CostAlert{
				AgentID:      agent.ID,
				AgentName:    agent.Name,
				AlertType:    model.AlertCostSpike,
				Message:      fmt.Sprintf("Cost increased by %.1f%% in the last %d hours", increase, hours),
				CurrentValue: curTotal,
				Timestamp:    now,
			}
			switch {
			case increase > spikeCritical:
				alert.Severity = model.SeverityCritical
				alert.ThresholdValue = prevTotal * 2
				alerts = append(alerts, alert)
			case increase > spikeHigh:
				alert.Severity = model.SeverityHigh
				alert.ThresholdValue = prevTotal * 1.5
				alerts = append(alerts, alert)
			}
		}

		if curAvg > 0 && prevAvg > 0 {
			drop := (curAvg - prevAvg) / prevAvg * 100
			if drop > efficiencyDrop {
				alerts = append(alerts, model.CostAlert{
					AgentID:        agent.ID,
					AgentName:      agent.Name,
					AlertType:      model.AlertEfficiencyDrop,
					Severity:       model.SeverityMedium,
					Message:        fmt.Sprintf("Cost per request increased by %.1f%%", drop),
					CurrentValue:   curAvg,
					ThresholdValue: prevAvg * 1.25,
					Timestamp:      now,
				})
			}
		}
	}
	return alerts
}

// RecommendCosts applies the cost optimization rules to one agent's samples
// in w. days scales the savings estimate to a 30-day month.
func RecommendCosts(samples []model.Sample, agentID string, w Window, days int) model.CostRecommendations {
	rec := model.CostRecommendations{
		AgentID:            agentID,
		AnalysisPeriodDays: days,
	}

	filtered := FilterByAgent(FilterByTime(samples, w), agentID)
	if len(filtered) == 0 || days <= 0 {
		rec.Recommendations = []string{"No data available for analysis"}
		rec.Confidence = model.ConfidenceLow
		return rec
	}

	var acc bucketAcc
	for _, s := range filtered {
		acc.add(s)
	}
	avgCost := acc.cost.avg()
	avgLatency := acc.latency.avg()
	avgThroughput := acc.throughput.avg()
	avgCPU := acc.cpu.avg()
	avgMemory := acc.memory.avg()
	totalCost := acc.cost.sum

	var savings float64
	var recs []string

	if avgCost != nil && *avgCost > highCostPerRequest {
		recs = append(recs, fmt.Sprintf("High cost per request (%.4f). "+
			"Consider optimizing model parameters or using a more efficient model.", *avgCost))
		savings += totalCost * 0.2
	}
	if avgLatency != nil && *avgLatency > latencyCostLatencyMs &&
		avgCost != nil && *avgCost > latencyCostPerRequest {
		recs = append(recs, fmt.Sprintf("High latency (%.1fms) combined with high cost. "+
			"Consider caching strategies or model optimization.", *avgLatency))
		savings += totalCost * 0.15
	}
	if reported(avgCPU) && *avgCPU < lowCPUPercent {
		recs = append(recs, fmt.Sprintf("Low CPU utilization (%.1f%%). "+
			"Consider consolidating workloads or using smaller instances.", *avgCPU))
		savings += totalCost * 0.1
	}
	if reported(avgMemory) && *avgMemory < lowMemoryMB {
		recs = append(recs, "Low memory usage detected. Consider using instances with less memory allocation.")
		savings += totalCost * 0.05
	}
	if reported(avgThroughput) && *avgThroughput < lowThroughputCost {
		recs = append(recs, fmt.Sprintf("Low throughput (%.1f req/min). "+
			"Consider batch processing or request optimization.", *avgThroughput))
	}

	rec.Confidence = model.ConfidenceMedium
	if len(recs) == 0 {
		recs = append(recs, "No major optimization opportunities identified. Current performance appears efficient.")
		rec.Confidence = model.ConfidenceHigh
	}

	rec.Recommendations = recs
	rec.CurrentTotalCost = round(totalCost, 4)
	rec.PotentialMonthlySavings = round(savings*30/float64(days), 2)
	rec.MetricsSummary = &model.CostMetricsSummary{
		AvgCostPerRequest: round(deref(avgCost), 6),
		AvgLatencyMs:      round(deref(avgLatency), 1),
		AvgThroughput:     round(deref(avgThroughput), 1),
		AvgCPUPercent:     round(deref(avgCPU), 1),
		AvgMemoryMB:       round(deref(avgMemory), 1),
		TotalRequests:     acc.count,
	}
	return rec
}

// reported treats a zero average like a missing one. Agents that do not
// measure a resource report 0, which must not read as underutilization.
func reported(v *float64) bool {
	return v != nil && *v != 0
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
