package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

// SampleStore is the read side of sample persistence the analyses need.
type SampleStore interface {
	// FetchSamples returns samples with start <= timestamp <= end, oldest
	// first. An empty agentID matches every agent.
	FetchSamples(ctx context.Context, agentID string, start, end time.Time) ([]model.Sample, error)
	// GetAgent returns model.ErrNotFound for unknown agents.
	GetAgent(ctx context.Context, agentID string) (*model.Agent, error)
	ListAgents(ctx context.Context, f model.AgentFilter) ([]model.Agent, int, error)
}

// Service binds the engines to a store and a clock.
type Service struct {
	store SampleStore
	now   func() time.Time
}

// NewService returns a Service reading from st with the wall clock.
func NewService(st SampleStore) *Service {
	return &Service{store: st, now: time.Now}
}

// WithClock replaces the clock, for deterministic callers.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func windowLength(name string, v, maximum int) error {
	if v < 1 || v > maximum {
		return fmt.Errorf("%w: %s must be between 1 and %d", model.ErrInvalidArgument, name, maximum)
	}
	return nil
}

// Aggregate buckets samples in [start, end]. Zero bounds default to the
// last 24 hours.
func (s *Service) Aggregate(ctx context.Context, agentID string, start, end time.Time, iv model.Interval) ([]model.Bucket, error) {
	if _, err := model.ParseInterval(string(iv)); err != nil {
		return nil, err
	}
	w := ResolveWindow(start, end, s.now())
	if w.End.Before(w.Start) {
		return nil, fmt.Errorf("%w: end precedes start", model.ErrInvalidArgument)
	}
	samples, err := s.store.FetchSamples(ctx, agentID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("fetching samples: %w", err)
	}
	return Aggregate(samples, agentID, w, iv)
}

// AgentSummary summarizes one registered agent over the last days.
func (s *Service) AgentSummary(ctx context.Context, agentID string, days int) (model.AgentSummary, error) {
	if err := windowLength("days", days, MaxDays); err != nil {
		return model.AgentSummary{}, err
	}
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return model.AgentSummary{}, err
	}
	w := LastDays(s.now(), days)
	samples, err := s.store.FetchSamples(ctx, agentID, w.Start, w.End)
	if err != nil {
		return model.AgentSummary{}, fmt.Errorf("fetching samples: %w", err)
	}
	return Summarize(*agent, samples, w, days), nil
}

// TrendAnalysis classifies the hourly movement of metric over the last hours.
func (s *Service) TrendAnalysis(ctx context.Context, agentID, metric string, hours int) (model.TrendAnalysis, error) {
	if err := windowLength("hours", hours, MaxHours); err != nil {
		return model.TrendAnalysis{}, err
	}
	if !model.IsMetricName(metric) {
		return model.TrendAnalysis{}, fmt.Errorf("%w: unknown metric %q", model.ErrInvalidArgument, metric)
	}
	w := LastHours(s.now(), hours)
	samples, err := s.store.FetchSamples(ctx, agentID, w.Start, w.End)
	if err != nil {
		return model.TrendAnalysis{}, fmt.Errorf("fetching samples: %w", err)
	}
	return AnalyzeTrend(samples, agentID, metric, w, hours)
}

// AnalyzeCosts breaks down spend over the last days. The fetch reaches back
// far enough to cover the period preceding the earliest bucket.
func (s *Service) AnalyzeCosts(ctx context.Context, agentID string, period model.CostPeriod, days int) ([]model.CostBreakdown, error) {
	if err := windowLength("days", days, MaxDays); err != nil {
		return nil, err
	}
	if _, err := model.ParseCostPeriod(string(period)); err != nil {
		return nil, err
	}
	w := LastDays(s.now(), days)
	span := Span(period.Interval())

	samples, err := s.store.FetchSamples(ctx, agentID, w.Start.Add(-2*span-24*time.Hour), w.End.Add(span))
	if err != nil {
		return nil, fmt.Errorf("fetching samples: %w", err)
	}
	names, err := s.agentNames(ctx)
	if err != nil {
		return nil, err
	}
	return AnalyzeCosts(samples, names, agentID, period, w)
}

// CostAlerts evaluates the spike and efficiency rules for every agent, or
// only agentID when set.
func (s *Service) CostAlerts(ctx context.Context, agentID string, hours int) ([]model.CostAlert, error) {
	if err := windowLength("hours", hours, MaxHours); err != nil {
		return nil, err
	}

	var agents []model.Agent
	if agentID != "" {
		agent, err := s.store.GetAgent(ctx, agentID)
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		agents = []model.Agent{*agent}
	} else {
		list, _, err := s.store.ListAgents(ctx, model.AgentFilter{})
		if err != nil {
			return nil, err
		}
		agents = list
	}

	now := s.now()
	from := now.Add(-2 * time.Duration(hours) * time.Hour)
	samples, err := s.store.FetchSamples(ctx, agentID, from, now)
	if err != nil {
		return nil, fmt.Errorf("fetching samples: %w", err)
	}
	return CostAlerts(samples, agents, hours, now), nil
}

// CostRecommendations applies the optimization rules to the last days.
func (s *Service) CostRecommendations(ctx context.Context, agentID string, days int) (model.CostRecommendations, error) {
	if err := windowLength("days", days, MaxDays); err != nil {
		return model.CostRecommendations{}, err
	}
	w := LastDays(s.now(), days)
	samples, err := s.store.FetchSamples(ctx, agentID, w.Start, w.End)
	if err != nil {
		return model.CostRecommendations{}, fmt.Errorf("fetching samples: %w", err)
	}
	return RecommendCosts(samples, agentID, w, days), nil
}

// Diagnose scores a registered agent over the last hours.
func (s *Service) Diagnose(ctx context.Context, agentID string, hours int) (model.PerformanceSummary, []model.PerformanceIssue, error) {
	if err := windowLength("hours", hours, MaxHours); err != nil {
		return model.PerformanceSummary{}, nil, err
	}
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return model.PerformanceSummary{}, nil, err
	}
	now := s.now()
	w := LastHours(now, hours)
	samples, err := s.store.FetchSamples(ctx, agentID, w.Start, w.End)
	if err != nil {
		return model.PerformanceSummary{}, nil, fmt.Errorf("fetching samples: %w", err)
	}
	summary, issues := Diagnose(*agent, samples, w, now)
	return summary, issues, nil
}

// PerformanceRecommendations diagnoses the last days and derives actions.
func (s *Service) PerformanceRecommendations(ctx context.Context, agentID string, days int) ([]model.Recommendation, error) {
	if err := windowLength("days", days, MaxDays); err != nil {
		return nil, err
	}
	summary, issues, err := s.Diagnose(ctx, agentID, days*24)
	if err != nil {
		return nil, err
	}
	return PerformanceRecommendations(summary, issues), nil
}

func (s *Service) agentNames(ctx context.Context) (map[string]string, error) {
	agents, _, err := s.store.ListAgents(ctx, model.AgentFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	names := make(map[string]string, len(agents))
	for _, a := range agents {
		names[a.ID] = a.Name
	}
	return names, nil
}
