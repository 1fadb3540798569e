// Package daemon provides the long-running metrics service: the HTTP API,
// the cost alert and health poll loop, and sample retention.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelai/sentinel/internal/model"
	"github.com/sentinelai/sentinel/internal/pipeline"
)

// retentionInterval is how often old samples are pruned.
const retentionInterval = time.Hour

// Store is the persistence the daemon reads and writes.
type Store interface {
	pipeline.SampleStore
	SaveSample(ctx context.Context, sample model.Sample) (string, error)
	ListSamples(ctx context.Context, f model.SampleFilter) ([]model.Sample, int, error)
	DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
	SampleCount(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// Config controls the daemon runtime behavior.
type Config struct {
	Addr           string
	Driver         string
	Version        string
	Interval       time.Duration
	AlertHours     int
	EventsBuffer   int
	RetentionDays  int
	AllowedOrigins []string
}

// Snapshot is a compact fleet state for status/event payloads.
type Snapshot struct {
	At           time.Time                  `json:"at"`
	Agents       int                        `json:"agents"`
	Samples      int                        `json:"samples"`
	ActiveAlerts int                        `json:"active_alerts"`
	Health       map[model.HealthRating]int `json:"health,omitempty"`
}

// Delta captures snapshot deltas between polls.
type Delta struct {
	Agents       int `json:"agents"`
	Samples      int `json:"samples"`
	ActiveAlerts int `json:"active_alerts"`
}

func (d Delta) isZero() bool {
	return d.Agents == 0 &&
		d.Samples == 0 &&
		d.ActiveAlerts == 0
}

// HealthChange records an agent moving between health ratings.
type HealthChange struct {
	AgentID   string             `json:"agent_id"`
	AgentName string             `json:"agent_name"`
	From      model.HealthRating `json:"from"`
	To        model.HealthRating `json:"to"`
}

// Event types.
const (
	EventSnapshot     = "snapshot"
	EventDelta        = "stats_delta"
	EventCostAlert    = "cost_alert"
	EventHealthChange = "health_change"
)

// Event is emitted when the fleet state changes.
type Event struct {
	ID        int64            `json:"id"`
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Snapshot  Snapshot         `json:"snapshot"`
	Delta     *Delta           `json:"delta,omitempty"`
	Alert     *model.CostAlert `json:"alert,omitempty"`
	Health    *HealthChange    `json:"health,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt        time.Time `json:"started_at"`
	LastPollAt       time.Time `json:"last_poll_at"`
	PollIntervalSec  int       `json:"poll_interval_sec"`
	PollCount        int64     `json:"poll_count"`
	Driver           string    `json:"driver,omitempty"`
	AlertWindowHours int       `json:"alert_window_hours"`
	RetentionDays    int       `json:"retention_days"`
	Summary          Snapshot  `json:"summary"`
	LastError        string    `json:"last_error,omitempty"`
	EventCount       int       `json:"event_count"`
	SubscriberCount  int       `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg      Config
	store    Store
	analysis *pipeline.Service
	log      *zap.Logger
	metrics  *metrics
	now      func() time.Time

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	hasSnapshot bool
	snapshot    Snapshot
	nextEventID int64
	events      []Event
	alertsSeen  map[string]time.Time
	health      map[string]model.HealthRating

	nextSubID int
	subs      map[int]chan Event
}

// New returns a new daemon service with the provided config.
func New(cfg Config, st Store, logger *zap.Logger) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = time.Minute
	}
	if cfg.AlertHours < 1 {
		cfg.AlertHours = 24
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		cfg:        cfg,
		store:      st,
		analysis:   pipeline.NewService(st),
		log:        logger,
		metrics:    newMetrics(),
		now:        time.Now,
		startedAt:  time.Now(),
		alertsSeen: make(map[string]time.Time),
		health:     make(map[string]model.HealthRating),
		subs:       make(map[int]chan Event),
	}
}

// WithClock replaces the clock used for polling, ingestion and analysis.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.analysis.WithClock(now)
	return s
}

// Run serves HTTP and runs the poll and retention loops until ctx is
// canceled or one of them fails.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("listening", zap.String("addr", s.cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("daemon http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		s.pollLoop(gctx)
		return nil
	})
	if s.cfg.RetentionDays > 0 {
		g.Go(func() error {
			s.retentionLoop(gctx)
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) pollLoop(ctx context.Context) {
	// Seed initial snapshot so status is useful immediately.
	s.pollOnce(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pollOnce(ctx)
		}
	}
}

func (s *Service) retentionLoop(ctx context.Context) {
	s.pruneOnce(ctx)

	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneOnce(ctx)
		}
	}
}

func (s *Service) pruneOnce(ctx context.Context) {
	cutoff := s.now().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
	n, err := s.store.DeleteSamplesBefore(ctx, cutoff)
	if err != nil {
		s.log.Warn("retention cleanup failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.metrics.samplesPruned.Add(float64(n))
		s.log.Info("pruned old samples", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	}
}

// pollResult is the state gathered by one poll.
type pollResult struct {
	agents  []model.Agent
	samples int
	alerts  []model.CostAlert
	health  []model.HealthRating // parallel to agents; empty when skipped
}

func (s *Service) pollOnce(ctx context.Context) {
	started := time.Now()
	defer func() { s.metrics.pollDuration.Observe(time.Since(started).Seconds()) }()

	res, err := s.collect(ctx)
	now := s.now()
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = now
		s.pollCount++
		s.mu.Unlock()
		s.metrics.pollErrors.Inc()
		s.log.Warn("poll failed", zap.Error(err))
		return
	}

	snap := Snapshot{
		At:           now,
		Agents:       len(res.agents),
		Samples:      res.samples,
		ActiveAlerts: len(res.alerts),
		Health:       make(map[model.HealthRating]int),
	}
	for _, h := range res.health {
		if h != "" {
			snap.Health[h]++
		}
	}

	var pending []Event
	emit := func(ev Event) {
		s.nextEventID++
		ev.ID = s.nextEventID
		ev.Timestamp = now
		ev.Snapshot = snap
		pending = append(pending, ev)
	}

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""

	if !prevExists {
		emit(Event{Type: EventSnapshot})
	} else if delta := diffSnapshots(prev, snap); !delta.isZero() {
		emit(Event{Type: EventDelta, Delta: &delta})
	}

	window := time.Duration(s.cfg.AlertHours) * time.Hour
	for key, at := range s.alertsSeen {
		if now.Sub(at) > window {
			delete(s.alertsSeen, key)
		}
	}
	for i := range res.alerts {
		a := res.alerts[i]
		key := alertKey(a)
		if _, seen := s.alertsSeen[key]; seen {
			continue
		}
		s.alertsSeen[key] = now
		s.metrics.costAlerts.WithLabelValues(string(a.AlertType), string(a.Severity)).Inc()
		emit(Event{Type: EventCostAlert, Alert: &a})
	}

	for i, agent := range res.agents {
		rating := res.health[i]
		if rating == "" {
			delete(s.health, agent.ID)
			continue
		}
		old, known := s.health[agent.ID]
		s.health[agent.ID] = rating
		if known && old != rating {
			emit(Event{Type: EventHealthChange, Health: &HealthChange{
				AgentID:   agent.ID,
				AgentName: agent.Name,
				From:      old,
				To:        rating,
			}})
		}
	}
	s.mu.Unlock()

	s.metrics.agents.Set(float64(snap.Agents))
	s.metrics.samples.Set(float64(snap.Samples))
	s.metrics.agentHealth.Reset()
	for rating, n := range snap.Health {
		s.metrics.agentHealth.WithLabelValues(string(rating)).Set(float64(n))
	}

	for _, ev := range pending {
		if ev.Type == EventCostAlert {
			s.log.Info("cost alert",
				zap.String("agent_id", ev.Alert.AgentID),
				zap.String("type", string(ev.Alert.AlertType)),
				zap.String("severity", string(ev.Alert.Severity)),
				zap.String("message", ev.Alert.Message))
		}
		s.publishEvent(ev)
	}
}

// collect reads fleet counts, evaluates cost alerts, and diagnoses every
// agent over the alert window on a bounded errgroup.
func (s *Service) collect(ctx context.Context) (pollResult, error) {
	var res pollResult

	agents, _, err := s.store.ListAgents(ctx, model.AgentFilter{})
	if err != nil {
		return res, err
	}
	res.agents = agents

	if res.samples, err = s.store.SampleCount(ctx); err != nil {
		return res, fmt.Errorf("counting samples: %w", err)
	}
	if res.alerts, err = s.analysis.CostAlerts(ctx, "", s.cfg.AlertHours); err != nil {
		return res, fmt.Errorf("evaluating cost alerts: %w", err)
	}

	res.health = make([]model.HealthRating, len(agents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, agent := range agents {
		g.Go(func() error {
			summary, _, err := s.analysis.Diagnose(gctx, agent.ID, s.cfg.AlertHours)
			if errors.Is(err, model.ErrNotFound) {
				// Removed since ListAgents; res.health[i] stays empty.
				s.log.Debug("agent vanished during poll", zap.String("agent_id", agent.ID))
				return nil
			}
			if err != nil {
				return fmt.Errorf("diagnosing %s: %w", agent.ID, err)
			}
			res.health[i] = summary.OverallHealth
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func alertKey(a model.CostAlert) string {
	return a.AgentID + "|" + string(a.AlertType) + "|" + string(a.Severity)
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Agents:       curr.Agents - prev.Agents,
		Samples:      curr.Samples - prev.Samples,
		ActiveAlerts: curr.ActiveAlerts - prev.ActiveAlerts,
	}
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:        s.startedAt,
		LastPollAt:       s.lastPollAt,
		PollIntervalSec:  int(s.cfg.Interval.Seconds()),
		PollCount:        s.pollCount,
		Driver:           s.cfg.Driver,
		AlertWindowHours: s.cfg.AlertHours,
		RetentionDays:    s.cfg.RetentionDays,
		Summary:          s.snapshot,
		LastError:        s.lastError,
		EventCount:       len(s.events),
		SubscriberCount:  len(s.subs),
	}
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
