package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sentinelai/sentinel/internal/model"
)

const benchAgent = "6f1c2a8e-3b4d-4c5e-9f60-7a8b9c0d1e2f"

func benchSamples(n int) []model.Sample {
	samples := make([]model.Sample, n)
	for i := range samples {
		samples[i] = model.Sample{
			AgentID:        benchAgent,
			Timestamp:      monday.Add(time.Duration(i) * time.Minute),
			LatencyMs:      model.Float(float64(100 + i%400)),
			Throughput:     model.Float(float64(10 + i%50)),
			CostPerRequest: model.Float(0.002),
			CPUPercent:     model.Float(float64(i % 100)),
			MemoryMB:       model.Float(float64(512 + i%64)),
		}
	}
	return samples
}

func writeBenchFiles(b *testing.B, files, lines int) string {
	b.Helper()
	dir := b.TempDir()
	for f := 0; f < files; f++ {
		var sb strings.Builder
		for i := 0; i < lines; i++ {
			ts := monday.Add(time.Duration(f*lines+i) * time.Second).Format(time.RFC3339)
			fmt.Fprintf(&sb, `{"agent_id":%q,"timestamp":%q,"latency_ms":%d,"cost_per_request":0.003}`+"\n", benchAgent, ts, 100+i%50)
		}
		path := filepath.Join(dir, fmt.Sprintf("batch-%03d.jsonl", f))
		if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return dir
}

func BenchmarkLoad(b *testing.B) {
	dir := writeBenchFiles(b, 32, 500)
	now := monday.Add(30 * 24 * time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := Load(dir, now, nil)
		if err != nil {
			b.Fatal(err)
		}
		_ = result
	}
}

func BenchmarkAggregate(b *testing.B) {
	samples := benchSamples(50_000)
	w := Window{Start: monday, End: monday.Add(60 * 24 * time.Hour)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Aggregate(samples, "", w, model.IntervalHour); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDiagnose(b *testing.B) {
	samples := benchSamples(50_000)
	w := Window{Start: monday, End: monday.Add(60 * 24 * time.Hour)}
	agent := model.Agent{ID: benchAgent}

	b.Logf("Diagnosing %d samples", len(samples))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Diagnose(agent, samples, w, w.End)
	}
}
