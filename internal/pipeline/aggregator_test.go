package pipeline

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

// monday is 2025-06-02, a Monday, at midnight UTC.
var monday = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func wantFloat(t *testing.T, name string, got *float64, want float64) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s = nil, want %v", name, want)
	}
	if !approx(*got, want) {
		t.Fatalf("%s = %v, want %v", name, *got, want)
	}
}

func wantNil(t *testing.T, name string, got *float64) {
	t.Helper()
	if got != nil {
		t.Fatalf("%s = %v, want nil", name, *got)
	}
}

func TestAggregate_HourlyBuckets(t *testing.T) {
	samples := []model.Sample{
		{AgentID: "a", Timestamp: monday.Add(10*time.Hour + 5*time.Minute),
			LatencyMs: model.Float(100), CostPerRequest: model.Float(0.01), Throughput: model.Float(10)},
		{AgentID: "a", Timestamp: monday.Add(10*time.Hour + 40*time.Minute),
			LatencyMs: model.Float(300), CostPerRequest: model.Float(0.03)},
		{AgentID: "a", Timestamp: monday.Add(11*time.Hour + 10*time.Minute),
			LatencyMs: model.Float(50)},
		{AgentID: "b", Timestamp: monday.Add(10*time.Hour + 15*time.Minute),
			CPUPercent: model.Float(50)},
	}
	w := Window{Start: monday, End: monday.Add(24 * time.Hour)}

	buckets, err := Aggregate(samples, "", w, model.IntervalHour)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(buckets) != 3 {
		t.Fatalf("got %d buckets, want 3", len(buckets))
	}

	first := buckets[0]
	if first.AgentID != "a" || !first.Start.Equal(monday.Add(10*time.Hour)) {
		t.Fatalf("bucket 0 = %s@%s, want a@10:00", first.AgentID, first.Start)
	}
	if !first.End.Equal(first.Start.Add(time.Hour)) {
		t.Errorf("bucket 0 end = %s, want start+1h", first.End)
	}
	if first.SampleCount != 2 {
		t.Errorf("bucket 0 count = %d, want 2", first.SampleCount)
	}
	wantFloat(t, "avg latency", first.AvgLatencyMs, 200)
	wantFloat(t, "min latency", first.MinLatencyMs, 100)
	wantFloat(t, "max latency", first.MaxLatencyMs, 300)
	wantFloat(t, "avg cost", first.AvgCostPerRequest, 0.02)
	wantFloat(t, "total cost", first.TotalCost, 0.04)
	wantFloat(t, "total requests", first.TotalRequests, 10)
	wantNil(t, "avg cpu", first.AvgCPUPercent)

	second := buckets[1]
	if second.AgentID != "a" || !second.Start.Equal(monday.Add(11*time.Hour)) {
		t.Fatalf("bucket 1 = %s@%s, want a@11:00", second.AgentID, second.Start)
	}
	wantNil(t, "total cost", second.TotalCost)
	wantNil(t, "avg cost", second.AvgCostPerRequest)

	third := buckets[2]
	if third.AgentID != "b" {
		t.Fatalf("bucket 2 agent = %s, want b", third.AgentID)
	}
	wantNil(t, "avg latency", third.AvgLatencyMs)
	wantFloat(t, "avg cpu", third.AvgCPUPercent, 50)
}

func TestAggregate_AgentFilter(t *testing.T) {
	samples := []model.Sample{
		{AgentID: "a", Timestamp: monday.Add(time.Hour), LatencyMs: model.Float(1)},
		{AgentID: "b", Timestamp: monday.Add(time.Hour), LatencyMs: model.Float(2)},
	}
	w := Window{Start: monday, End: monday.Add(24 * time.Hour)}

	buckets, err := Aggregate(samples, "b", w, model.IntervalDay)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(buckets) != 1 || buckets[0].AgentID != "b" {
		t.Fatalf("got %+v, want one bucket for b", buckets)
	}
}

func TestAggregate_WindowIsInclusive(t *testing.T) {
	w := Window{Start: monday, End: monday.Add(2 * time.Hour)}
	samples := []model.Sample{
		{AgentID: "a", Timestamp: w.Start, LatencyMs: model.Float(1)},
		{AgentID: "a", Timestamp: w.End, LatencyMs: model.Float(1)},
		{AgentID: "a", Timestamp: w.End.Add(time.Nanosecond), LatencyMs: model.Float(1)},
		{AgentID: "a", Timestamp: w.Start.Add(-time.Nanosecond), LatencyMs: model.Float(1)},
	}

	buckets, err := Aggregate(samples, "", w, model.IntervalMonth)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	total := 0
	for _, b := range buckets {
		total += b.SampleCount
	}
	if total != 2 {
		t.Fatalf("counted %d samples, want 2", total)
	}
}

func TestAggregate_CalendarTruncation(t *testing.T) {
	tests := []struct {
		name      string
		interval  model.Interval
		ts        time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "minute",
			interval:  model.IntervalMinute,
			ts:        time.Date(2025, 6, 4, 13, 27, 45, 0, time.UTC),
			wantStart: time.Date(2025, 6, 4, 13, 27, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 6, 4, 13, 28, 0, 0, time.UTC),
		},
		{
			name:      "week starts monday",
			interval:  model.IntervalWeek,
			ts:        time.Date(2025, 6, 8, 23, 0, 0, 0, time.UTC), // Sunday
			wantStart: monday,
			wantEnd:   monday.AddDate(0, 0, 7),
		},
		{
			name:      "month ends thirty days later",
			interval:  model.IntervalMonth,
			ts:        time.Date(2025, 2, 15, 8, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "day in another zone",
			interval:  model.IntervalDay,
			ts:        time.Date(2025, 6, 4, 23, 30, 0, 0, time.FixedZone("UTC-2", -2*3600)),
			wantStart: time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Window{Start: tt.ts.Add(-time.Hour), End: tt.ts.Add(time.Hour)}
			samples := []model.Sample{{AgentID: "a", Timestamp: tt.ts, LatencyMs: model.Float(1)}}

			buckets, err := Aggregate(samples, "", w, tt.interval)
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if len(buckets) != 1 {
				t.Fatalf("got %d buckets, want 1", len(buckets))
			}
			if !buckets[0].Start.Equal(tt.wantStart) {
				t.Errorf("start = %s, want %s", buckets[0].Start, tt.wantStart)
			}
			if !buckets[0].End.Equal(tt.wantEnd) {
				t.Errorf("end = %s, want %s", buckets[0].End, tt.wantEnd)
			}
		})
	}
}

func TestAggregate_UnknownInterval(t *testing.T) {
	_, err := Aggregate(nil, "", Window{}, model.Interval("fortnight"))
	if !errors.Is(err, model.ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestAggregate_CoverageAndIdempotence(t *testing.T) {
	var samples []model.Sample
	for i := 0; i < 200; i++ {
		agent := "a"
		if i%3 == 0 {
			agent = "b"
		}
		samples = append(samples, model.Sample{
			AgentID:   agent,
			Timestamp: monday.Add(time.Duration(i*7) * time.Minute),
			LatencyMs: model.Float(float64(i)),
		})
	}
	w := Window{Start: monday, End: monday.Add(48 * time.Hour)}

	first, err := Aggregate(samples, "", w, model.IntervalHour)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	second, _ := Aggregate(samples, "", w, model.IntervalHour)
	if len(first) != len(second) {
		t.Fatalf("bucket counts differ between runs: %d vs %d", len(first), len(second))
	}

	total := 0
	seen := make(map[string]bool)
	for i, b := range first {
		key := b.AgentID + b.Start.String()
		if seen[key] {
			t.Fatalf("duplicate bucket %s", key)
		}
		seen[key] = true
		total += b.SampleCount
		if b.SampleCount != second[i].SampleCount || !b.Start.Equal(second[i].Start) {
			t.Fatalf("bucket %d differs between runs", i)
		}
	}
	if total != len(samples) {
		t.Fatalf("buckets cover %d samples, want %d", total, len(samples))
	}
}

func TestSummarize_P95AndUptime(t *testing.T) {
	agent := model.Agent{ID: "a", Name: "Alpha"}
	var samples []model.Sample
	for i := 0; i < 19; i++ {
		samples = append(samples, model.Sample{
			AgentID:        "a",
			Timestamp:      monday.Add(time.Duration(i*10) * time.Minute),
			LatencyMs:      model.Float(100),
			CostPerRequest: model.Float(0.5),
		})
	}
	samples = append(samples, model.Sample{
		AgentID:   "a",
		Timestamp: monday.Add(5 * time.Hour),
		LatencyMs: model.Float(10000),
	})
	w := Window{Start: monday, End: monday.Add(24 * time.Hour)}

	sum := Summarize(agent, samples, w, 1)
	if sum.TotalMetrics != 20 {
		t.Errorf("TotalMetrics = %d, want 20", sum.TotalMetrics)
	}
	wantFloat(t, "p95", sum.P95LatencyMs, 10000)
	wantFloat(t, "avg latency", sum.AvgLatencyMs, (19*100+10000)/20.0)
	if !approx(sum.TotalCost, 9.5) {
		t.Errorf("TotalCost = %v, want 9.5", sum.TotalCost)
	}
	// Samples span 00:00-03:00 every 10 minutes plus 05:00.
	if sum.UptimeHours != 5 {
		t.Errorf("UptimeHours = %d, want 5", sum.UptimeHours)
	}
	if sum.FirstMetric == nil || !sum.FirstMetric.Equal(monday) {
		t.Errorf("FirstMetric = %v, want %s", sum.FirstMetric, monday)
	}
	if sum.LastMetric == nil || !sum.LastMetric.Equal(monday.Add(5*time.Hour)) {
		t.Errorf("LastMetric = %v, want 05:00", sum.LastMetric)
	}
	wantNil(t, "avg cpu", sum.AvgCPUPercent)
}

func TestSummarize_NoSamples(t *testing.T) {
	sum := Summarize(model.Agent{ID: "a"}, nil, Window{Start: monday, End: monday.Add(time.Hour)}, 1)
	if sum.TotalMetrics != 0 || sum.P95LatencyMs != nil || sum.FirstMetric != nil {
		t.Fatalf("unexpected summary for empty input: %+v", sum)
	}
}

func TestAnalyzeTrend(t *testing.T) {
	w := Window{Start: monday, End: monday.Add(24 * time.Hour)}

	t.Run("increasing", func(t *testing.T) {
		samples := []model.Sample{
			{AgentID: "a", Timestamp: monday.Add(time.Hour), LatencyMs: model.Float(80)},
			{AgentID: "a", Timestamp: monday.Add(time.Hour + 30*time.Minute), LatencyMs: model.Float(120)},
			{AgentID: "a", Timestamp: monday.Add(3 * time.Hour), LatencyMs: model.Float(200)},
			{AgentID: "a", Timestamp: monday.Add(4 * time.Hour), CPUPercent: model.Float(10)},
		}
		ta, err := AnalyzeTrend(samples, "a", model.MetricLatency, w, 24)
		if err != nil {
			t.Fatalf("AnalyzeTrend: %v", err)
		}
		if ta.Trend != model.TrendIncreasing {
			t.Errorf("Trend = %s, want increasing", ta.Trend)
		}
		if !approx(ta.ChangePercent, 100) {
			t.Errorf("ChangePercent = %v, want 100", ta.ChangePercent)
		}
		if ta.DataPoints != 2 {
			t.Errorf("DataPoints = %d, want 2", ta.DataPoints)
		}
		wantFloat(t, "current", ta.CurrentValue, 200)
		wantFloat(t, "min", ta.MinValue, 100)
		wantFloat(t, "avg", ta.AvgValue, 150)
	})

	t.Run("no data", func(t *testing.T) {
		ta, err := AnalyzeTrend(nil, "a", model.MetricCost, w, 24)
		if err != nil {
			t.Fatalf("AnalyzeTrend: %v", err)
		}
		if ta.Trend != model.TrendNoData || ta.DataPoints != 0 || ta.ChangePercent != 0 {
			t.Errorf("got %+v, want no_data", ta)
		}
	})

	t.Run("single hour", func(t *testing.T) {
		samples := []model.Sample{{AgentID: "a", Timestamp: monday.Add(time.Hour), MemoryMB: model.Float(512)}}
		ta, _ := AnalyzeTrend(samples, "a", model.MetricMemory, w, 24)
		if ta.Trend != model.TrendInsufficientData {
			t.Errorf("Trend = %s, want insufficient_data", ta.Trend)
		}
	})

	t.Run("unknown metric", func(t *testing.T) {
		_, err := AnalyzeTrend(nil, "a", "tokens", w, 24)
		if !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("err = %v, want ErrInvalidArgument", err)
		}
	})
}
