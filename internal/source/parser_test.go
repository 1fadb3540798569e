package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

const testAgent = "3f2b9c1e-7d4a-4b8e-9c1f-2a3b4c5d6e7f"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// writeSamples creates a temp sample file and returns a DiscoveredFile for it.
func writeSamples(t *testing.T, name string, lines ...string) DiscoveredFile {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	format, ok := FormatFor(path)
	if !ok {
		t.Fatalf("no format for %s", name)
	}
	return DiscoveredFile{Path: path, Format: format}
}

func TestParseFile_JSONL(t *testing.T) {
	df := writeSamples(t, "batch.jsonl",
		`{"agent_id":"`+testAgent+`","timestamp":"2025-06-01T10:00:00Z","latency_ms":120.5,"cost_per_request":0.002}`,
		``,
		`{"agent_id":"`+testAgent+`","timestamp":"2025-06-01T10:05:00","cpu_usage_percent":55,"custom_metrics":{"tokens":812}}`,
	)

	result := ParseFile(df, testNow)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(result.Samples))
	}
	if result.ParseErrors != 0 {
		t.Errorf("ParseErrors = %d, want 0", result.ParseErrors)
	}

	first := result.Samples[0]
	if first.LatencyMs == nil || *first.LatencyMs != 120.5 {
		t.Errorf("LatencyMs = %v, want 120.5", first.LatencyMs)
	}
	if first.CPUPercent != nil {
		t.Errorf("CPUPercent = %v, want nil", *first.CPUPercent)
	}

	second := result.Samples[1]
	want := time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)
	if !second.Timestamp.Equal(want) {
		t.Errorf("naive timestamp = %s, want %s", second.Timestamp, want)
	}
	if second.CustomMetrics["tokens"] != float64(812) {
		t.Errorf("custom_metrics = %v", second.CustomMetrics)
	}
}

func TestParseFile_JSONLBadLines(t *testing.T) {
	df := writeSamples(t, "batch.jsonl",
		`not json`,
		`{"agent_id":"`+testAgent+`","timestamp":"2025-06-01T10:00:00Z"}`,
		`{"agent_id":"`+testAgent+`","timestamp":"2030-01-01T00:00:00Z","latency_ms":1}`,
		`{"agent_id":"`+testAgent+`","timestamp":"2025-06-01T10:00:00Z","cpu_usage_percent":140}`,
		`{"agent_id":"`+testAgent+`","timestamp":"2025-06-01T10:00:00Z","latency_ms":1}`,
	)

	result := ParseFile(df, testNow)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Samples) != 1 {
		t.Errorf("got %d samples, want 1", len(result.Samples))
	}
	if result.ParseErrors != 4 {
		t.Errorf("ParseErrors = %d, want 4", result.ParseErrors)
	}
}

func TestParseFile_JSONArrayAndDocument(t *testing.T) {
	entry := `{"agent_id":"` + testAgent + `","timestamp":"2025-06-01T09:00:00+02:00","memory_usage_mb":256}`

	for name, body := range map[string]string{
		"array.json":    "[" + entry + "]",
		"document.json": `{"samples":[` + entry + `]}`,
	} {
		t.Run(name, func(t *testing.T) {
			result := ParseFile(writeSamples(t, name, body), testNow)
			if result.Err != nil {
				t.Fatalf("unexpected error: %v", result.Err)
			}
			if len(result.Samples) != 1 {
				t.Fatalf("got %d samples, want 1", len(result.Samples))
			}
			want := time.Date(2025, 6, 1, 7, 0, 0, 0, time.UTC)
			if got := result.Samples[0].Timestamp; !got.Equal(want) || got.Location() != time.UTC {
				t.Errorf("timestamp = %s, want %s in UTC", got, want)
			}
		})
	}
}

func TestParseFile_YAML(t *testing.T) {
	df := writeSamples(t, "samples.yml",
		"- agent_id: "+testAgent,
		"  timestamp: \"2025-06-01T11:00:00Z\"",
		"  throughput_req_per_min: 42",
		"- agent_id: "+testAgent,
		"  timestamp: \"2025-06-01T11:01:00Z\"",
	)

	result := ParseFile(df, testNow)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if len(result.Samples) != 1 || result.ParseErrors != 1 {
		t.Fatalf("samples=%d parseErrors=%d, want 1/1", len(result.Samples), result.ParseErrors)
	}
	if tp := result.Samples[0].Throughput; tp == nil || *tp != 42 {
		t.Errorf("Throughput = %v, want 42", tp)
	}
}

func TestParseFile_CustomMetricTypes(t *testing.T) {
	jsonl := writeSamples(t, "custom.jsonl",
		`{"agent_id":"`+testAgent+`","timestamp":"2025-06-01T10:00:00Z","custom_metrics":{"x":{"nested":[1,2]},"y":null}}`,
		`{"agent_id":"`+testAgent+`","timestamp":"2025-06-01T10:01:00Z","custom_metrics":{"tokens":812,"model":"m1","cached":false}}`,
	)
	result := ParseFile(jsonl, testNow)
	if len(result.Samples) != 1 || result.ParseErrors != 1 {
		t.Fatalf("jsonl: samples=%d parseErrors=%d, want 1/1", len(result.Samples), result.ParseErrors)
	}
	if got := result.Samples[0].CustomMetrics["model"]; got != "m1" {
		t.Errorf("custom model = %v, want m1", got)
	}

	yml := writeSamples(t, "custom.yaml",
		"- agent_id: "+testAgent,
		"  timestamp: \"2025-06-01T11:00:00Z\"",
		"  custom_metrics:",
		"    retries: 2",
		"    ratio: 0.5",
	)
	result = ParseFile(yml, testNow)
	if len(result.Samples) != 1 || result.ParseErrors != 0 {
		t.Fatalf("yaml: samples=%d parseErrors=%d, want 1/0", len(result.Samples), result.ParseErrors)
	}
}

func TestParseFile_Malformed(t *testing.T) {
	result := ParseFile(writeSamples(t, "broken.json", `{"samples": [`), testNow)
	if result.Err == nil {
		t.Fatal("expected an error for truncated JSON")
	}

	result = ParseFile(DiscoveredFile{Path: filepath.Join(t.TempDir(), "gone.jsonl"), Format: FormatJSONL}, testNow)
	if result.Err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-06-01T10:00:00Z", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-06-01T10:00:00.250Z", time.Date(2025, 6, 1, 10, 0, 0, 250_000_000, time.UTC)},
		{"2025-06-01T10:00:00", time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"2025-06-01 10:00:00.5", time.Date(2025, 6, 1, 10, 0, 0, 500_000_000, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseTimestamp("yesterday"); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestToSample_NoMetrics(t *testing.T) {
	raw := RawSample{AgentID: testAgent, Timestamp: "2025-06-01T10:00:00Z"}
	if _, err := raw.ToSample(testNow); !errors.Is(err, model.ErrNoMetrics) {
		t.Errorf("err = %v, want ErrNoMetrics", err)
	}
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.jsonl", "b.JSON", "c.yaml", "d.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	hidden := filepath.Join(dir, ".cache")
	if err := os.Mkdir(hidden, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(hidden, "e.jsonl"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	files, err := ScanDir(dir)
	if err != nil {
		t.Fatalf("ScanDir: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("found %d files, want 3: %+v", len(files), files)
	}

	missing, err := ScanDir(filepath.Join(dir, "missing"))
	if err != nil || missing != nil {
		t.Errorf("missing dir = %v, %v; want nil, nil", missing, err)
	}
}
