package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentinelai/sentinel/internal/store"
)

const importAgent = "0b6f4b8a-2d1e-4f3c-8a9b-1c2d3e4f5a6b"

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestImport_SkipsUnchangedFiles(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	dir := t.TempDir()
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(dir, "a.jsonl"),
		`{"agent_id":"`+importAgent+`","timestamp":"2025-06-05T10:00:00Z","latency_ms":120}`+"\n"+
			`{"agent_id":"`+importAgent+`","timestamp":"2025-06-05T11:00:00","cost_per_request":0.004}`+"\n"+
			`{"agent_id":"not-a-uuid","timestamp":"2025-06-05T11:00:00Z","latency_ms":1}`+"\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	var calls int
	first, err := Import(ctx, dir, st, now, func(current, total int) { calls++ })
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if first.TotalFiles != 1 || first.Imported != 1 || first.Skipped != 0 {
		t.Errorf("files: total=%d imported=%d skipped=%d", first.TotalFiles, first.Imported, first.Skipped)
	}
	if first.Stored != 2 || first.ParseErrors != 1 {
		t.Errorf("stored=%d parseErrors=%d, want 2/1", first.Stored, first.ParseErrors)
	}
	if calls != 1 {
		t.Errorf("progress called %d times, want 1", calls)
	}

	second, err := Import(ctx, dir, st, now, nil)
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if second.Skipped != 1 || second.Imported != 0 || second.Stored != 0 {
		t.Errorf("second run: skipped=%d imported=%d stored=%d", second.Skipped, second.Imported, second.Stored)
	}

	count, err := st.SampleCount(ctx)
	if err != nil {
		t.Fatalf("SampleCount: %v", err)
	}
	if count != 2 {
		t.Errorf("store holds %d samples, want 2", count)
	}

	agent, err := st.GetAgent(ctx, importAgent)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if agent.Name != "Agent-0b6f4b8a" {
		t.Errorf("implicit agent name = %q", agent.Name)
	}
}

func TestImport_MissingDir(t *testing.T) {
	st := openTestStore(t)
	result, err := Import(context.Background(), filepath.Join(t.TempDir(), "nope"), st, time.Now(), nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.TotalFiles != 0 || result.Stored != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestLoad_MixedFormats(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)

	writeFile(t, filepath.Join(dir, "one.json"),
		`[{"agent_id":"`+importAgent+`","timestamp":"2025-06-05T09:00:00Z","cpu_usage_percent":40}]`)
	writeFile(t, filepath.Join(dir, "two.yaml"),
		"samples:\n  - agent_id: "+importAgent+"\n    timestamp: \"2025-06-05T09:30:00Z\"\n    memory_usage_mb: 256\n")
	writeFile(t, filepath.Join(dir, "broken.json"), `{"samples": [`)

	result, err := Load(dir, now, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if result.TotalFiles != 3 || result.ParsedFiles != 2 || result.FileErrors != 1 {
		t.Errorf("files: total=%d parsed=%d errors=%d", result.TotalFiles, result.ParsedFiles, result.FileErrors)
	}
	if len(result.Samples) != 2 {
		t.Errorf("got %d samples, want 2", len(result.Samples))
	}
}
