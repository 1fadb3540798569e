package daemon

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/sentinelai/sentinel/internal/model"
	"github.com/sentinelai/sentinel/internal/pipeline"
	"github.com/sentinelai/sentinel/internal/source"
)

// maxIngestBytes caps the body of one ingested sample.
const maxIngestBytes = 1 << 20

// Error codes carried in the JSON error envelope.
const (
	codeValidation   = "VALIDATION_ERROR"
	codeNoMetrics    = "NO_METRICS_PROVIDED"
	codeNotFound     = "AGENT_NOT_FOUND"
	codeDatabase     = "DATABASE_ERROR"
	codeInternal     = "INTERNAL_ERROR"
	codeUnhealthy    = "SERVICE_UNHEALTHY"
	exportTimeLayout = "20060102_150405"
)

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// Handler returns the daemon HTTP API with logging, recovery and CORS.
func (s *Service) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/v1/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/v1/stream", s.handleStream).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/metrics", s.handleIngest).Methods(http.MethodPost)
	api.HandleFunc("/metrics", s.handleListSamples).Methods(http.MethodGet)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/aggregate", s.handleAggregate).Methods(http.MethodGet)
	api.HandleFunc("/costs", s.handleCosts).Methods(http.MethodGet)
	api.HandleFunc("/costs/alerts", s.handleCostAlerts).Methods(http.MethodGet)
	api.HandleFunc("/agents", s.handleListAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.handleGetAgent).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/summary", s.handleSummary).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/trend", s.handleTrend).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/costs/recommendations", s.handleCostRecommendations).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/diagnosis", s.handleDiagnosis).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}/recommendations", s.handleRecommendations).Methods(http.MethodGet)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// statusRecorder captures the response code. It forwards Flush so the SSE
// stream keeps working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Service) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		s.metrics.observeRequest(route, r.Method, rw.statusCode, elapsed)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", elapsed))
	})
}

func (s *Service) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic in handler",
					zap.Any("panic", rec),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, codeInternal, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg, Code: code})
}

// writeFailure maps engine and store errors onto the error envelope.
func (s *Service) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, model.ErrNoMetrics):
		writeError(w, http.StatusBadRequest, codeNoMetrics, err.Error())
	case errors.Is(err, model.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	default:
		s.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeDatabase, err.Error())
	}
}

// query wraps URL query parsing with typed accessors.
type query struct {
	r *http.Request
}

func (q query) str(name, def string) string {
	if v := q.r.URL.Query().Get(name); v != "" {
		return v
	}
	return def
}

func (q query) intIn(name string, def, lo, hi int) (int, error) {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || (hi > 0 && n > hi) {
		if hi > 0 {
			return 0, fmt.Errorf("%w: %s must be an integer between %d and %d", model.ErrInvalidArgument, name, lo, hi)
		}
		return 0, fmt.Errorf("%w: %s must be an integer >= %d", model.ErrInvalidArgument, name, lo)
	}
	return n, nil
}

func (q query) timestamp(name string) (time.Time, error) {
	raw := q.r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}, nil
	}
	ts, err := source.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: invalid timestamp %q", model.ErrInvalidArgument, name, raw)
	}
	return ts.UTC(), nil
}

func (q query) requiredTime(name string) (time.Time, error) {
	if q.r.URL.Query().Get(name) == "" {
		return time.Time{}, fmt.Errorf("%w: %s is required", model.ErrInvalidArgument, name)
	}
	return q.timestamp(name)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, codeUnhealthy, "Service unhealthy - database connection failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"database_status": "connected",
		"timestamp":       s.now().UTC(),
		"version":         s.cfg.Version,
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send current snapshot immediately.
	current := Event{
		Type:      EventSnapshot,
		Timestamp: s.now(),
		Snapshot:  s.snapshotStatus().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) handleIngest(w http.ResponseWriter, r *http.Request) {
	var raw source.RawSample
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err := dec.Decode(&raw); err != nil {
		s.metrics.ingestRejected.WithLabelValues(codeValidation).Inc()
		writeError(w, http.StatusBadRequest, codeValidation, "invalid JSON body: "+err.Error())
		return
	}

	sample, err := raw.ToSample(s.now())
	if err != nil {
		code := codeValidation
		if errors.Is(err, model.ErrNoMetrics) {
			code = codeNoMetrics
		}
		s.metrics.ingestRejected.WithLabelValues(code).Inc()
		writeError(w, http.StatusBadRequest, code, err.Error())
		return
	}

	id, err := s.store.SaveSample(r.Context(), sample)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.metrics.samplesIngested.Inc()
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"message":   "Metrics recorded successfully",
		"metric_id": id,
	})
}

func (s *Service) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := query{r}
	var f model.AgentFilter
	if raw := q.str("status", ""); raw != "" {
		st, err := model.ParseAgentStatus(raw)
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = q.intIn("limit", 100, 1, 100); err != nil {
		s.writeFailure(w, err)
		return
	}
	if f.Offset, err = q.intIn("offset", 0, 0, 0); err != nil {
		s.writeFailure(w, err)
		return
	}

	agents, total, err := s.store.ListAgents(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if agents == nil {
		agents = []model.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents": agents,
		"total":  total,
		"limit":  f.Limit,
		"offset": f.Offset,
	})
}

func (s *Service) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	agent, err := s.store.GetAgent(r.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("Agent with ID %s not found", id))
			return
		}
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Service) handleListSamples(w http.ResponseWriter, r *http.Request) {
	q := query{r}
	f := model.SampleFilter{AgentID: q.str("agent_id", "")}
	var err error
	if f.Start, err = q.timestamp("start_date"); err != nil {
		s.writeFailure(w, err)
		return
	}
	if f.End, err = q.timestamp("end_date"); err != nil {
		s.writeFailure(w, err)
		return
	}
	if f.Limit, err = q.intIn("limit", 1000, 1, 10000); err != nil {
		s.writeFailure(w, err)
		return
	}

	samples, total, err := s.store.ListSamples(r.Context(), f)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	resp := map[string]any{
		"metrics":     samples,
		"total":       total,
		"aggregation": "raw",
	}
	if !f.Start.IsZero() || !f.End.IsZero() {
		tr := map[string]any{}
		if !f.Start.IsZero() {
			tr["start"] = f.Start
		}
		if !f.End.IsZero() {
			tr["end"] = f.End
		}
		resp["time_range"] = tr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	q := query{r}
	agentID := q.str("agent_id", "")
	if agentID == "" {
		writeError(w, http.StatusBadRequest, codeValidation, "agent_id is required")
		return
	}
	start, err := q.requiredTime("start_date")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	end, err := q.requiredTime("end_date")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	format := q.str("format", "csv")
	if format != "csv" && format != "json" {
		writeError(w, http.StatusBadRequest, codeValidation, "format must be csv or json")
		return
	}

	agent, err := s.store.GetAgent(r.Context(), agentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("Agent with ID %s not found", agentID))
			return
		}
		s.writeFailure(w, err)
		return
	}
	samples, err := s.store.FetchSamples(r.Context(), agentID, start, end)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}

	filename := fmt.Sprintf("metrics_%s_%s.%s",
		unsafeFilename.ReplaceAllString(agent.Name, "_"),
		s.now().UTC().Format(exportTimeLayout),
		format)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if format == "json" {
		writeJSON(w, http.StatusOK, map[string]any{
			"agent_id":   agent.ID,
			"agent_name": agent.Name,
			"start_date": start,
			"end_date":   end,
			"total":      len(samples),
			"metrics":    samples,
		})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	if err := WriteCSV(w, samples); err != nil {
		s.log.Warn("csv export interrupted", zap.Error(err))
	}
}

// CSVHeader is the column order of sample exports.
var CSVHeader = []string{
	"metric_id", "agent_id", "timestamp",
	model.MetricLatency, model.MetricThroughput, model.MetricCost,
	model.MetricCPU, model.MetricGPU, model.MetricMemory,
	"custom_metrics",
}

// WriteCSV writes samples in export column order. Unreported metrics are
// empty cells and custom metrics are a JSON object.
func WriteCSV(w io.Writer, samples []model.Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	cell := func(v *float64) string {
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	for _, smp := range samples {
		custom := ""
		if len(smp.CustomMetrics) > 0 {
			data, err := json.Marshal(smp.CustomMetrics)
			if err != nil {
				return fmt.Errorf("encoding custom metrics of %s: %w", smp.ID, err)
			}
			custom = string(data)
		}
		row := []string{
			smp.ID,
			smp.AgentID,
			smp.Timestamp.UTC().Format(time.RFC3339Nano),
			cell(smp.LatencyMs),
			cell(smp.Throughput),
			cell(smp.CostPerRequest),
			cell(smp.CPUPercent),
			cell(smp.GPUPercent),
			cell(smp.MemoryMB),
			custom,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) handleAggregate(w http.ResponseWriter, r *http.Request) {
	q := query{r}
	agentID := q.str("agent_id", "")
	start, err := q.timestamp("start_date")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	end, err := q.timestamp("end_date")
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	iv, err := model.ParseInterval(q.str("interval", string(model.IntervalHour)))
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	buckets, err := s.analysis.Aggregate(r.Context(), agentID, start, end, iv)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if buckets == nil {
		buckets = []model.Bucket{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":   agentID,
		"interval":   iv,
		"aggregates": buckets,
		"total":      len(buckets),
	})
}

func (s *Service) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, err := query{r}.intIn("days", 7, 1, pipeline.MaxDays)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	summary, err := s.analysis.AgentSummary(r.Context(), mux.Vars(r)["id"], days)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Service) handleTrend(w http.ResponseWriter, r *http.Request) {
	q := query{r}
	hours, err := q.intIn("hours", 24, 1, pipeline.MaxHours)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	trend, err := s.analysis.TrendAnalysis(r.Context(), mux.Vars(r)["id"], q.str("metric", model.MetricLatency), hours)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (s *Service) handleCosts(w http.ResponseWriter, r *http.Request) {
	q := query{r}
	period, err := model.ParseCostPeriod(q.str("period", string(model.CostDaily)))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	days, err := q.intIn("days", 7, 1, pipeline.MaxDays)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	costs, err := s.analysis.AnalyzeCosts(r.Context(), q.str("agent_id", ""), period, days)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if costs == nil {
		costs = []model.CostBreakdown{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period": period,
		"days":   days,
		"costs":  costs,
		"total":  len(costs),
	})
}

func (s *Service) handleCostAlerts(w http.ResponseWriter, r *http.Request) {
	q := query{r}
	hours, err := q.intIn("hours", 24, 1, pipeline.MaxHours)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	alerts, err := s.analysis.CostAlerts(r.Context(), q.str("agent_id", ""), hours)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if alerts == nil {
		alerts = []model.CostAlert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Service) handleCostRecommendations(w http.ResponseWriter, r *http.Request) {
	days, err := query{r}.intIn("days", 7, 1, pipeline.MaxDays)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	recs, err := s.analysis.CostRecommendations(r.Context(), mux.Vars(r)["id"], days)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Service) handleDiagnosis(w http.ResponseWriter, r *http.Request) {
	hours, err := query{r}.intIn("hours", 24, 1, pipeline.MaxHours)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	summary, issues, err := s.analysis.Diagnose(r.Context(), mux.Vars(r)["id"], hours)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if issues == nil {
		issues = []model.PerformanceIssue{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"issues":  issues,
	})
}

func (s *Service) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	days, err := query{r}.intIn("days", 7, 1, pipeline.MaxDays)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	recs, err := s.analysis.PerformanceRecommendations(r.Context(), id, days)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if recs == nil {
		recs = []model.Recommendation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agent_id":        id,
		"recommendations": recs,
	})
}
