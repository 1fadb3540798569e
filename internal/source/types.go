package source

// RawSample is one sample as it appears on the wire or in a sample file.
// Timestamps stay strings until ToSample so that both zoned and naive
// ISO-8601 forms are accepted.
type RawSample struct {
	AgentID        string         `json:"agent_id" yaml:"agent_id"`
	Timestamp      string         `json:"timestamp" yaml:"timestamp"`
	LatencyMs      *float64       `json:"latency_ms,omitempty" yaml:"latency_ms,omitempty"`
	Throughput     *float64       `json:"throughput_req_per_min,omitempty" yaml:"throughput_req_per_min,omitempty"`
	CostPerRequest *float64       `json:"cost_per_request,omitempty" yaml:"cost_per_request,omitempty"`
	CPUPercent     *float64       `json:"cpu_usage_percent,omitempty" yaml:"cpu_usage_percent,omitempty"`
	GPUPercent     *float64       `json:"gpu_usage_percent,omitempty" yaml:"gpu_usage_percent,omitempty"`
	MemoryMB       *float64       `json:"memory_usage_mb,omitempty" yaml:"memory_usage_mb,omitempty"`
	CustomMetrics  map[string]any `json:"custom_metrics,omitempty" yaml:"custom_metrics,omitempty"`
}

// sampleDocument is the envelope accepted by JSON and YAML sample files.
type sampleDocument struct {
	Samples []RawSample `json:"samples" yaml:"samples"`
}

// Format identifies a sample file encoding.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// DiscoveredFile is a sample file found during directory scanning.
type DiscoveredFile struct {
	Path   string
	Format Format
}
