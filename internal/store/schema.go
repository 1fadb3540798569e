package store

// schemaSQL is portable across SQLite and PostgreSQL. Timestamps are Unix
// nanoseconds in UTC.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS agents (
    agent_id             TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    description          TEXT,
    status               TEXT NOT NULL DEFAULT 'unknown',
    created_at           BIGINT NOT NULL,
    last_seen            BIGINT,
    metadata             TEXT
);

CREATE TABLE IF NOT EXISTS samples (
    metric_id              TEXT PRIMARY KEY,
    agent_id               TEXT NOT NULL REFERENCES agents(agent_id) ON DELETE CASCADE,
    timestamp_ns           BIGINT NOT NULL,
    latency_ms             DOUBLE PRECISION,
    throughput_req_per_min DOUBLE PRECISION,
    cost_per_request       DOUBLE PRECISION,
    cpu_usage_percent      DOUBLE PRECISION,
    gpu_usage_percent      DOUBLE PRECISION,
    memory_usage_mb        DOUBLE PRECISION,
    custom_metrics         TEXT,
    created_at             BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS file_tracker (
    file_path            TEXT PRIMARY KEY,
    mtime_ns             BIGINT NOT NULL,
    size_bytes           BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_agent_ts ON samples(agent_id, timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
`
