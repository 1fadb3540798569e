// Package pipeline holds the aggregation and analysis engines and the bulk
// sample import path.
package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

// series accumulates one optional metric.
type series struct {
	n   int
	sum float64
	min float64
	max float64
}

func (s *series) add(v *float64) {
	if v == nil {
		return
	}
	if s.n == 0 || *v < s.min {
		s.min = *v
	}
	if s.n == 0 || *v > s.max {
		s.max = *v
	}
	s.n++
	s.sum += *v
}

func (s *series) avg() *float64 {
	if s.n == 0 {
		return nil
	}
	return model.Float(s.sum / float64(s.n))
}

func (s *series) total() *float64 {
	if s.n == 0 {
		return nil
	}
	return model.Float(s.sum)
}

func (s *series) minimum() *float64 {
	if s.n == 0 {
		return nil
	}
	return model.Float(s.min)
}

func (s *series) maximum() *float64 {
	if s.n == 0 {
		return nil
	}
	return model.Float(s.max)
}

type bucketKey struct {
	agentID string
	start   int64
}

type bucketAcc struct {
	count      int
	latency    series
	throughput series
	cost       series
	cpu        series
	gpu        series
	memory     series
}

func (a *bucketAcc) add(s model.Sample) {
	a.count++
	a.latency.add(s.LatencyMs)
	a.throughput.add(s.Throughput)
	a.cost.add(s.CostPerRequest)
	a.cpu.add(s.CPUPercent)
	a.gpu.add(s.GPUPercent)
	a.memory.add(s.MemoryMB)
}

// Aggregate groups samples inside w by agent and calendar bucket. An empty
// agentID keeps every agent. Buckets with no samples are not emitted, and
// the result is ordered by agent then bucket start.
func Aggregate(samples []model.Sample, agentID string, w Window, iv model.Interval) ([]model.Bucket, error) {
	if _, err := model.ParseInterval(string(iv)); err != nil {
		return nil, err
	}

	groups := make(map[bucketKey]*bucketAcc)
	for _, s := range FilterByAgent(FilterByTime(samples, w), agentID) {
		k := bucketKey{agentID: s.AgentID, start: Truncate(s.Timestamp, iv).UnixNano()}
		acc, ok := groups[k]
		if !ok {
			acc = &bucketAcc{}
			groups[k] = acc
		}
		acc.add(s)
	}

	buckets := make([]model.Bucket, 0, len(groups))
	for k, acc := range groups {
		start := time.Unix(0, k.start).UTC()
		buckets = append(buckets, model.Bucket{
			AgentID:           k.agentID,
			Interval:          iv,
			Start:             start,
			End:               start.Add(Span(iv)),
			SampleCount:       acc.count,
			AvgLatencyMs:      acc.latency.avg(),
			MinLatencyMs:      acc.latency.minimum(),
			MaxLatencyMs:      acc.latency.maximum(),
			AvgThroughput:     acc.throughput.avg(),
			AvgCostPerRequest: acc.cost.avg(),
			AvgCPUPercent:     acc.cpu.avg(),
			AvgGPUPercent:     acc.gpu.avg(),
			AvgMemoryMB:       acc.memory.avg(),
			TotalCost:         acc.cost.total(),
			TotalRequests:     acc.throughput.total(),
		})
	}
	sort.Slice(buckets, func(i, j int) bool {
		if buckets[i].AgentID != buckets[j].AgentID {
			return buckets[i].AgentID < buckets[j].AgentID
		}
		return buckets[i].Start.Before(buckets[j].Start)
	})
	return buckets, nil
}

// Summarize computes the headline statistics of one agent over w.
func Summarize(agent model.Agent, samples []model.Sample, w Window, days int) model.AgentSummary {
	sum := model.AgentSummary{
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		PeriodDays:  days,
		PeriodStart: w.Start,
		PeriodEnd:   w.End,
	}

	filtered := FilterByAgent(FilterByTime(samples, w), agent.ID)
	if len(filtered) == 0 {
		return sum
	}

	var acc bucketAcc
	var latencies []float64
	hours := make(map[int64]struct{})
	first, last := filtered[0].Timestamp, filtered[0].Timestamp

	for _, s := range filtered {
		acc.add(s)
		if s.LatencyMs != nil {
			latencies = append(latencies, *s.LatencyMs)
		}
		if s.Timestamp.Before(first) {
			first = s.Timestamp
		}
		if s.Timestamp.After(last) {
			last = s.Timestamp
		}
		hours[Truncate(s.Timestamp, model.IntervalHour).Unix()] = struct{}{}
	}

	sum.TotalMetrics = acc.count
	sum.AvgLatencyMs = acc.latency.avg()
	if len(latencies) > 0 {
		sum.P95LatencyMs = model.Float(NearestRank(latencies, 0.95))
	}
	sum.AvgThroughput = acc.throughput.avg()
	sum.TotalCost = acc.cost.sum
	sum.AvgCPUPercent = acc.cpu.avg()
	sum.AvgGPUPercent = acc.gpu.avg()
	sum.AvgMemoryMB = acc.memory.avg()
	sum.FirstMetric = &first
	sum.LastMetric = &last
	sum.UptimeHours = len(hours)
	return sum
}

// AnalyzeTrend buckets one metric of one agent by hour and classifies the
// movement between the first and last hourly average.
func AnalyzeTrend(samples []model.Sample, agentID, metric string, w Window, hours int) (model.TrendAnalysis, error) {
	if !model.IsMetricName(metric) {
		return model.TrendAnalysis{}, fmt.Errorf("%w: unknown metric %q", model.ErrInvalidArgument, metric)
	}

	byHour := make(map[int64]*series)
	for _, s := range FilterByAgent(FilterByTime(samples, w), agentID) {
		v, _ := s.Metric(metric)
		if v == nil {
			continue
		}
		h := Truncate(s.Timestamp, model.IntervalHour).Unix()
		acc, ok := byHour[h]
		if !ok {
			acc = &series{}
			byHour[h] = acc
		}
		acc.add(v)
	}

	keys := make([]int64, 0, len(byHour))
	for h := range byHour {
		keys = append(keys, h)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	values := make([]float64, len(keys))
	var overall series
	for i, h := range keys {
		values[i] = *byHour[h].avg()
		overall.add(&values[i])
	}

	ta := model.TrendAnalysis{
		AgentID:     agentID,
		MetricName:  metric,
		PeriodHours: hours,
		DataPoints:  len(values),
	}
	ta.Trend, ta.ChangePercent = ClassifyTrend(values)
	if len(values) > 0 {
		ta.CurrentValue = model.Float(values[len(values)-1])
		ta.MinValue = overall.minimum()
		ta.MaxValue = overall.maximum()
		ta.AvgValue = overall.avg()
	}
	return ta, nil
}

// FilterByTime returns samples whose timestamp falls within w.
func FilterByTime(samples []model.Sample, w Window) []model.Sample {
	var result []model.Sample
	for _, s := range samples {
		if w.Contains(s.Timestamp) {
			result = append(result, s)
		}
	}
	return result
}

// FilterByAgent returns samples reported by agentID. An empty id keeps all.
func FilterByAgent(samples []model.Sample, agentID string) []model.Sample {
	if agentID == "" {
		return samples
	}
	var result []model.Sample
	for _, s := range samples {
		if s.AgentID == agentID {
			result = append(result, s)
		}
	}
	return result
}
