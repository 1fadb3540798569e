// Package source discovers and parses agent sample files.
package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentinelai/sentinel/internal/model"
)

// naiveLayouts are accepted timestamp layouts without a zone; they are
// read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 timestamps and zone-less ISO-8601 forms.
func ParseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	for _, layout := range naiveLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid timestamp %q", model.ErrInvalidArgument, s)
}

// ToSample converts and validates a raw sample.
func (r RawSample) ToSample(now time.Time) (model.Sample, error) {
	s := model.Sample{
		AgentID:        r.AgentID,
		LatencyMs:      r.LatencyMs,
		Throughput:     r.Throughput,
		CostPerRequest: r.CostPerRequest,
		CPUPercent:     r.CPUPercent,
		GPUPercent:     r.GPUPercent,
		MemoryMB:       r.MemoryMB,
		CustomMetrics:  r.CustomMetrics,
	}
	if r.Timestamp != "" {
		ts, err := ParseTimestamp(r.Timestamp)
		if err != nil {
			return model.Sample{}, err
		}
		s.Timestamp = ts.UTC()
	}
	if err := s.Validate(now); err != nil {
		return model.Sample{}, err
	}
	return s, nil
}

// ParseResult holds the output of parsing a single sample file.
type ParseResult struct {
	Samples     []model.Sample
	ParseErrors int
	Err         error
}

// ParseFile reads a sample file in its discovered format. Lines or entries
// that fail to decode or validate are counted in ParseErrors and skipped.
func ParseFile(df DiscoveredFile, now time.Time) ParseResult {
	f, err := os.Open(df.Path)
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	switch df.Format {
	case FormatJSONL:
		return parseJSONL(f, now)
	case FormatJSON:
		data, err := io.ReadAll(f)
		if err != nil {
			return ParseResult{Err: err}
		}
		raws, err := decodeJSON(data)
		if err != nil {
			return ParseResult{Err: fmt.Errorf("decoding %s: %w", df.Path, err)}
		}
		return convert(raws, now)
	case FormatYAML:
		raws, err := decodeYAML(f)
		if err != nil {
			return ParseResult{Err: fmt.Errorf("decoding %s: %w", df.Path, err)}
		}
		return convert(raws, now)
	default:
		return ParseResult{Err: fmt.Errorf("unsupported format %q", df.Format)}
	}
}

func parseJSONL(r io.Reader, now time.Time) ParseResult {
	var result ParseResult

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var raw RawSample
		if err := json.Unmarshal(line, &raw); err != nil {
			result.ParseErrors++
			continue
		}
		s, err := raw.ToSample(now)
		if err != nil {
			result.ParseErrors++
			continue
		}
		result.Samples = append(result.Samples, s)
	}
	if err := scanner.Err(); err != nil {
		result.Err = err
	}
	return result
}

// decodeJSON accepts a bare array of samples or a {"samples": [...]} document.
func decodeJSON(data []byte) ([]RawSample, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raws []RawSample
		err := json.Unmarshal(data, &raws)
		return raws, err
	}
	var doc sampleDocument
	err := json.Unmarshal(data, &doc)
	return doc.Samples, err
}

// decodeYAML accepts a sequence of samples or a document with a samples key.
func decodeYAML(r io.Reader) ([]RawSample, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var raws []RawSample
		err := node.Decode(&raws)
		return raws, err
	}
	var doc sampleDocument
	err := node.Decode(&doc)
	return doc.Samples, err
}

func convert(raws []RawSample, now time.Time) ParseResult {
	var result ParseResult
	for _, raw := range raws {
		s, err := raw.ToSample(now)
		if err != nil {
			result.ParseErrors++
			continue
		}
		result.Samples = append(result.Samples, s)
	}
	return result
}
