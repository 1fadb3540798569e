// Package store persists agents and samples in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // register postgres driver
	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/sentinelai/sentinel/internal/model"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

const sqlitePragmas = "_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)"

// Store provides agent and sample persistence.
type Store struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// Open connects to the database and creates the schema. For SQLite, dsn is
// a file path whose directory is created on demand.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
				return nil, fmt.Errorf("creating database dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqlitePragmas
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", model.ErrInvalidArgument, driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db, driver: driver, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the name of the database driver in use.
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type agentRow struct {
	ID          string         `db:"agent_id"`
	Name        string         `db:"name"`
	Description sql.NullString `db:"description"`
	Status      string         `db:"status"`
	CreatedAt   int64          `db:"created_at"`
	LastSeen    sql.NullInt64  `db:"last_seen"`
	Metadata    sql.NullString `db:"metadata"`
}

func (r agentRow) toModel() model.Agent {
	a := model.Agent{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description.String,
		Status:      model.AgentStatus(r.Status),
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.LastSeen.Valid {
		ls := time.Unix(0, r.LastSeen.Int64).UTC()
		a.LastSeen = &ls
	}
	if r.Metadata.Valid && r.Metadata.String != "" {
		_ = json.Unmarshal([]byte(r.Metadata.String), &a.Metadata)
	}
	return a
}

type sampleRow struct {
	ID          string          `db:"metric_id"`
	AgentID     string          `db:"agent_id"`
	TimestampNs int64           `db:"timestamp_ns"`
	LatencyMs   sql.NullFloat64 `db:"latency_ms"`
	Throughput  sql.NullFloat64 `db:"throughput_req_per_min"`
	Cost        sql.NullFloat64 `db:"cost_per_request"`
	CPU         sql.NullFloat64 `db:"cpu_usage_percent"`
	GPU         sql.NullFloat64 `db:"gpu_usage_percent"`
	Memory      sql.NullFloat64 `db:"memory_usage_mb"`
	Custom      sql.NullString  `db:"custom_metrics"`
	CreatedAt   int64           `db:"created_at"`
}

const sampleColumns = `metric_id, agent_id, timestamp_ns, latency_ms, throughput_req_per_min,
	cost_per_request, cpu_usage_percent, gpu_usage_percent, memory_usage_mb,
	custom_metrics, created_at`

func (r sampleRow) toModel() model.Sample {
	s := model.Sample{
		ID:             r.ID,
		AgentID:        r.AgentID,
		Timestamp:      time.Unix(0, r.TimestampNs).UTC(),
		LatencyMs:      fromNull(r.LatencyMs),
		Throughput:     fromNull(r.Throughput),
		CostPerRequest: fromNull(r.Cost),
		CPUPercent:     fromNull(r.CPU),
		GPUPercent:     fromNull(r.GPU),
		MemoryMB:       fromNull(r.Memory),
		CreatedAt:      time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.Custom.Valid && r.Custom.String != "" {
		_ = json.Unmarshal([]byte(r.Custom.String), &s.CustomMetrics)
	}
	return s
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return model.Float(v.Float64)
}

func toNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func jsonText(v map[string]any) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// SaveSample stores one sample and returns its id.
func (s *Store) SaveSample(ctx context.Context, sample model.Sample) (string, error) {
	ids, err := s.SaveSamples(ctx, []model.Sample{sample})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// SaveSamples stores samples in one transaction. Unknown agents are
// registered as running with a default name; every agent touched has its
// last_seen refreshed. Samples without an id get a new UUID.
func (s *Store) SaveSamples(ctx context.Context, samples []model.Sample) ([]string, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC().UnixNano()
	seen := make(map[string]struct{})
	for _, sample := range samples {
		if _, ok := seen[sample.AgentID]; ok {
			continue
		}
		seen[sample.AgentID] = struct{}{}
		_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO agents (agent_id, name, status, created_at, last_seen)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (agent_id) DO UPDATE SET last_seen = excluded.last_seen, status = excluded.status`),
			sample.AgentID, model.DefaultAgentName(sample.AgentID), string(model.AgentRunning), now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("registering agent %s: %w", sample.AgentID, err)
		}
	}

	insert := tx.Rebind(`INSERT INTO samples (` + sampleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	ids := make([]string, 0, len(samples))
	for _, sample := range samples {
		id := sample.ID
		if id == "" {
			id = uuid.NewString()
		}
		custom, err := jsonText(sample.CustomMetrics)
		if err != nil {
			return nil, fmt.Errorf("encoding custom metrics: %w", err)
		}
		_, err = tx.ExecContext(ctx, insert,
			id, sample.AgentID, sample.Timestamp.UTC().UnixNano(),
			toNull(sample.LatencyMs), toNull(sample.Throughput), toNull(sample.CostPerRequest),
			toNull(sample.CPUPercent), toNull(sample.GPUPercent), toNull(sample.MemoryMB),
			custom, now,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting sample: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// UpsertAgent registers an agent or updates its descriptive fields.
func (s *Store) UpsertAgent(ctx context.Context, a model.Agent) error {
	if a.Status == "" {
		a.Status = model.AgentUnknown
	}
	if a.Name == "" {
		a.Name = model.DefaultAgentName(a.ID)
	}
	meta, err := jsonText(a.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	desc := sql.NullString{String: a.Description, Valid: a.Description != ""}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO agents (agent_id, name, description, status, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET name = excluded.name, description = excluded.description,
			status = excluded.status, metadata = excluded.metadata`),
		a.ID, a.Name, desc, string(a.Status), s.now().UTC().UnixNano(), meta,
	)
	return err
}

// GetAgent returns the agent with id, or model.ErrNotFound.
func (s *Store) GetAgent(ctx context.Context, id string) (*model.Agent, error) {
	var row agentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT agent_id, name, description, status, created_at, last_seen, metadata
		FROM agents WHERE agent_id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting agent: %w", err)
	}
	a := row.toModel()
	return &a, nil
}

// ListAgents returns agents newest first and the total matching count.
// A non-positive limit returns every match.
func (s *Store) ListAgents(ctx context.Context, f model.AgentFilter) ([]model.Agent, int, error) {
	where := ""
	var args []any
	if f.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(f.Status))
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM agents"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("counting agents: %w", err)
	}

	query := `SELECT agent_id, name, description, status, created_at, last_seen, metadata
		FROM agents` + where + ` ORDER BY created_at DESC, agent_id`
	query, args = paginate(query, args, f.Limit, f.Offset)

	var rows []agentRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("listing agents: %w", err)
	}
	agents := make([]model.Agent, len(rows))
	for i, r := range rows {
		agents[i] = r.toModel()
	}
	return agents, total, nil
}

// FetchSamples returns samples with start <= timestamp <= end, oldest first.
// An empty agentID matches every agent.
func (s *Store) FetchSamples(ctx context.Context, agentID string, start, end time.Time) ([]model.Sample, error) {
	where, args := sampleWhere(model.SampleFilter{AgentID: agentID, Start: start, End: end})

	var rows []sampleRow
	err := s.db.SelectContext(ctx, &rows,
		s.db.Rebind("SELECT "+sampleColumns+" FROM samples"+where+" ORDER BY timestamp_ns, metric_id"), args...)
	if err != nil {
		return nil, fmt.Errorf("fetching samples: %w", err)
	}
	return toSamples(rows), nil
}

// ListSamples returns samples newest first and the total matching count.
func (s *Store) ListSamples(ctx context.Context, f model.SampleFilter) ([]model.Sample, int, error) {
	where, args := sampleWhere(f)

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind("SELECT COUNT(*) FROM samples"+where), args...); err != nil {
		return nil, 0, fmt.Errorf("counting samples: %w", err)
	}

	query, args := paginate("SELECT "+sampleColumns+" FROM samples"+where+" ORDER BY timestamp_ns DESC, metric_id",
		args, f.Limit, f.Offset)

	var rows []sampleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("listing samples: %w", err)
	}
	return toSamples(rows), total, nil
}

// DeleteSamplesBefore removes samples older than cutoff and reports how
// many were deleted.
func (s *Store) DeleteSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM samples WHERE timestamp_ns < ?"), cutoff.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("deleting samples: %w", err)
	}
	return res.RowsAffected()
}

// SampleCount returns the number of stored samples.
func (s *Store) SampleCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM samples")
	return count, err
}

// FileInfo holds the tracked mtime and size for an imported file.
type FileInfo struct {
	MtimeNs   int64 `db:"mtime_ns"`
	SizeBytes int64 `db:"size_bytes"`
}

// GetTrackedFiles returns a map of file_path -> FileInfo for all imported files.
func (s *Store) GetTrackedFiles(ctx context.Context) (map[string]FileInfo, error) {
	var rows []struct {
		Path string `db:"file_path"`
		FileInfo
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT file_path, mtime_ns, size_bytes FROM file_tracker"); err != nil {
		return nil, err
	}
	result := make(map[string]FileInfo, len(rows))
	for _, r := range rows {
		result[r.Path] = r.FileInfo
	}
	return result, nil
}

// TrackFile records the state of an imported file.
func (s *Store) TrackFile(ctx context.Context, path string, fi FileInfo) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO file_tracker (file_path, mtime_ns, size_bytes)
		VALUES (?, ?, ?)
		ON CONFLICT (file_path) DO UPDATE SET mtime_ns = excluded.mtime_ns, size_bytes = excluded.size_bytes`),
		path, fi.MtimeNs, fi.SizeBytes)
	return err
}

func sampleWhere(f model.SampleFilter) (string, []any) {
	var conds []string
	var args []any
	if f.AgentID != "" {
		conds = append(conds, "agent_id = ?")
		args = append(args, f.AgentID)
	}
	if !f.Start.IsZero() {
		conds = append(conds, "timestamp_ns >= ?")
		args = append(args, f.Start.UTC().UnixNano())
	}
	if !f.End.IsZero() {
		conds = append(conds, "timestamp_ns <= ?")
		args = append(args, f.End.UTC().UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}
	return query, args
}

func toSamples(rows []sampleRow) []model.Sample {
	samples := make([]model.Sample, len(rows))
	for i, r := range rows {
		samples[i] = r.toModel()
	}
	return samples
}
