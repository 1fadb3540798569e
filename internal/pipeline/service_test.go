package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

// memStore is an in-memory SampleStore.
type memStore struct {
	agents  []model.Agent
	samples []model.Sample
	fetched []Window
}

func (m *memStore) FetchSamples(_ context.Context, agentID string, start, end time.Time) ([]model.Sample, error) {
	m.fetched = append(m.fetched, Window{Start: start, End: end})
	w := Window{Start: start, End: end}
	var out []model.Sample
	for _, s := range FilterByAgent(m.samples, agentID) {
		if w.Contains(s.Timestamp) {
			out = append(out, s)
		}
	}
	model.SortByTime(out)
	return out, nil
}

func (m *memStore) GetAgent(_ context.Context, id string) (*model.Agent, error) {
	for _, a := range m.agents {
		if a.ID == id {
			a := a
			return &a, nil
		}
	}
	return nil, fmt.Errorf("agent %s: %w", id, model.ErrNotFound)
}

func (m *memStore) ListAgents(_ context.Context, _ model.AgentFilter) ([]model.Agent, int, error) {
	return m.agents, len(m.agents), nil
}

func newTestService(st *memStore, now time.Time) *Service {
	return NewService(st).WithClock(func() time.Time { return now })
}

func TestService_UnknownAgent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&memStore{}, monday)

	if _, err := svc.AgentSummary(ctx, "missing", 7); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("AgentSummary err = %v, want ErrNotFound", err)
	}
	if _, _, err := svc.Diagnose(ctx, "missing", 24); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Diagnose err = %v, want ErrNotFound", err)
	}
	if _, err := svc.PerformanceRecommendations(ctx, "missing", 7); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("PerformanceRecommendations err = %v, want ErrNotFound", err)
	}

	alerts, err := svc.CostAlerts(ctx, "missing", 24)
	if err != nil || len(alerts) != 0 {
		t.Errorf("CostAlerts = %v, %v; want empty", alerts, err)
	}

	rec, err := svc.CostRecommendations(ctx, "missing", 7)
	if err != nil {
		t.Fatalf("CostRecommendations: %v", err)
	}
	if rec.Confidence != model.ConfidenceLow {
		t.Errorf("Confidence = %s, want low", rec.Confidence)
	}
}

func TestService_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(&memStore{agents: []model.Agent{{ID: "a"}}}, monday)

	checks := map[string]error{}
	_, checks["summary days"] = svc.AgentSummary(ctx, "a", 0)
	_, checks["trend hours"] = svc.TrendAnalysis(ctx, "a", model.MetricLatency, 0)
	_, checks["trend metric"] = svc.TrendAnalysis(ctx, "a", "tokens", 24)
	_, checks["cost period"] = svc.AnalyzeCosts(ctx, "", model.CostPeriod("hourly"), 7)
	_, checks["alert hours"] = svc.CostAlerts(ctx, "", -1)
	_, _, checks["diagnose hours"] = svc.Diagnose(ctx, "a", 0)
	_, checks["interval"] = svc.Aggregate(ctx, "", time.Time{}, time.Time{}, model.Interval("decade"))
	_, checks["reversed window"] = svc.Aggregate(ctx, "", monday, monday.Add(-time.Hour), model.IntervalHour)

	for name, err := range checks {
		if !errors.Is(err, model.ErrInvalidArgument) {
			t.Errorf("%s: err = %v, want ErrInvalidArgument", name, err)
		}
	}
}

func TestService_WindowBounds(t *testing.T) {
	ctx := context.Background()
	st := &memStore{
		agents:  []model.Agent{{ID: "a", Name: "A"}},
		samples: []model.Sample{{AgentID: "a", Timestamp: monday.Add(-time.Hour), LatencyMs: model.Float(100)}},
	}
	svc := newTestService(st, monday)

	if _, _, err := svc.Diagnose(ctx, "a", 200000*24); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("Diagnose oversized hours err = %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.PerformanceRecommendations(ctx, "a", 200000); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("PerformanceRecommendations oversized days err = %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.AgentSummary(ctx, "a", MaxDays+1); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("AgentSummary days above max err = %v, want ErrInvalidArgument", err)
	}

	st.fetched = nil
	summary, _, err := svc.Diagnose(ctx, "a", MaxHours)
	if err != nil {
		t.Fatalf("Diagnose at max hours: %v", err)
	}
	if summary.OverallHealth == model.HealthUnknown {
		t.Errorf("health = unknown, want a rating for the sample an hour old")
	}
	for _, w := range st.fetched {
		if w.Start.After(w.End) {
			t.Errorf("fetched window %v..%v starts after it ends", w.Start, w.End)
		}
	}
}

func TestService_AggregateDefaultsToLastDay(t *testing.T) {
	now := monday.Add(48 * time.Hour)
	st := &memStore{samples: []model.Sample{
		{AgentID: "a", Timestamp: now.Add(-2 * time.Hour), LatencyMs: model.Float(10)},
		{AgentID: "a", Timestamp: now.Add(-30 * time.Hour), LatencyMs: model.Float(10)},
	}}
	svc := newTestService(st, now)

	buckets, err := svc.Aggregate(context.Background(), "", time.Time{}, time.Time{}, model.IntervalDay)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(buckets) != 1 || buckets[0].SampleCount != 1 {
		t.Fatalf("got %+v, want one bucket with the recent sample", buckets)
	}
	if got := st.fetched[0]; !got.Start.Equal(now.Add(-24*time.Hour)) || !got.End.Equal(now) {
		t.Errorf("fetched %s..%s, want the last 24h", got.Start, got.End)
	}
}

func TestService_AnalyzeCostsSeesPrecedingPeriod(t *testing.T) {
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	st := &memStore{
		agents: []model.Agent{{ID: "a", Name: "Alpha"}},
		samples: []model.Sample{
			costSample("a", time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC), 0.001),
			costSample("a", time.Date(2025, 6, 4, 13, 0, 0, 0, time.UTC), 0.004),
		},
	}
	svc := newTestService(st, now)

	got, err := svc.AnalyzeCosts(context.Background(), "a", model.CostDaily, 1)
	if err != nil {
		t.Fatalf("AnalyzeCosts: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d breakdowns, want 1", len(got))
	}
	if got[0].CostTrend != model.CostIncreasing {
		t.Errorf("CostTrend = %s, want increasing from the day before the window", got[0].CostTrend)
	}
	if got[0].AgentName != "Alpha" {
		t.Errorf("AgentName = %q, want Alpha", got[0].AgentName)
	}
}

func TestService_DiagnoseAndRecommend(t *testing.T) {
	agent, samples, _, now := slowBusyAgent()
	st := &memStore{agents: []model.Agent{agent}, samples: samples}
	svc := newTestService(st, now)
	ctx := context.Background()

	summary, issues, err := svc.Diagnose(ctx, agent.ID, 24)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if summary.OverallHealth != model.HealthPoor || len(issues) != 3 {
		t.Errorf("Diagnose = %s with %d issues, want poor with 3", summary.OverallHealth, len(issues))
	}

	recs, err := svc.PerformanceRecommendations(ctx, agent.ID, 1)
	if err != nil {
		t.Fatalf("PerformanceRecommendations: %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("got %d recommendations, want 4", len(recs))
	}
	last := st.fetched[len(st.fetched)-1]
	if d := last.End.Sub(last.Start); d != 24*time.Hour {
		t.Errorf("recommendations looked back %s, want 24h", d)
	}
}

func TestService_SummaryAndTrend(t *testing.T) {
	now := monday.Add(24 * time.Hour)
	st := &memStore{
		agents: []model.Agent{{ID: "a", Name: "Alpha"}},
		samples: []model.Sample{
			{AgentID: "a", Timestamp: now.Add(-3 * time.Hour), LatencyMs: model.Float(100)},
			{AgentID: "a", Timestamp: now.Add(-1 * time.Hour), LatencyMs: model.Float(200)},
		},
	}
	svc := newTestService(st, now)
	ctx := context.Background()

	sum, err := svc.AgentSummary(ctx, "a", 1)
	if err != nil {
		t.Fatalf("AgentSummary: %v", err)
	}
	if sum.AgentName != "Alpha" || sum.TotalMetrics != 2 || sum.UptimeHours != 2 {
		t.Errorf("summary = %+v", sum)
	}

	ta, err := svc.TrendAnalysis(ctx, "a", model.MetricLatency, 24)
	if err != nil {
		t.Fatalf("TrendAnalysis: %v", err)
	}
	if ta.Trend != model.TrendIncreasing || !approx(ta.ChangePercent, 100) {
		t.Errorf("trend = %s %v, want increasing 100", ta.Trend, ta.ChangePercent)
	}
}

func TestService_CostAlertsAllAgents(t *testing.T) {
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	var samples []model.Sample
	for i := 0; i < 2; i++ {
		samples = append(samples, costSample("a", now.Add(-30*time.Hour+time.Duration(i)*time.Minute), 1))
	}
	for i := 0; i < 5; i++ {
		samples = append(samples, costSample("a", now.Add(-time.Hour+time.Duration(i)*time.Minute), 1))
	}
	st := &memStore{agents: []model.Agent{{ID: "a"}, {ID: "b"}}, samples: samples}

	alerts, err := newTestService(st, now).CostAlerts(context.Background(), "", 24)
	if err != nil {
		t.Fatalf("CostAlerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].AgentID != "a" || alerts[0].Severity != model.SeverityCritical {
		t.Fatalf("alerts = %+v, want one critical spike for a", alerts)
	}
}
