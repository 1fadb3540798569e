package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoMetrics reports a sample that carries no metric at all.
var ErrNoMetrics = errors.New("at least one metric must be provided")

// Validate checks a sample at ingestion. Samples timestamped after now are
// rejected; the engines themselves never validate.
func (s Sample) Validate(now time.Time) error {
	if _, err := uuid.Parse(s.AgentID); err != nil {
		return fmt.Errorf("%w: agent_id must be a valid UUID", ErrInvalidArgument)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidArgument)
	}
	if s.Timestamp.After(now) {
		return fmt.Errorf("%w: timestamp cannot be in the future", ErrInvalidArgument)
	}
	if !s.HasMetrics() {
		return ErrNoMetrics
	}

	nonNegative := []struct {
		name string
		v    *float64
	}{
		{MetricLatency, s.LatencyMs},
		{MetricThroughput, s.Throughput},
		{MetricCost, s.CostPerRequest},
		{MetricMemory, s.MemoryMB},
	}
	for _, f := range nonNegative {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%w: %s must be >= 0", ErrInvalidArgument, f.name)
		}
	}

	percents := []struct {
		name string
		v    *float64
	}{
		{MetricCPU, s.CPUPercent},
		{MetricGPU, s.GPUPercent},
	}
	for _, f := range percents {
		if f.v != nil && (*f.v < 0 || *f.v > 100) {
			return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidArgument, f.name)
		}
	}

	for k, v := range s.CustomMetrics {
		if !scalar(v) {
			return fmt.Errorf("%w: custom_metrics.%s must be a number, string or boolean", ErrInvalidArgument, k)
		}
	}
	return nil
}

// scalar reports whether v is a custom metric value. JSON decodes numbers
// as float64; YAML also yields the integer kinds.
func scalar(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, uint64, string, bool:
		return true
	}
	return false
}
