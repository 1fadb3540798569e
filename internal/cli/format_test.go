package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/sentinelai/sentinel/internal/model"
)

func TestFormatCost(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0.000"},
		{0.0042, "$0.00420"},
		{0.25, "$0.250"},
		{12.5, "$12.50"},
		{1234.4, "$1,234"},
	}
	for _, tt := range tests {
		if got := FormatCost(tt.in); got != tt.want {
			t.Errorf("FormatCost(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatNumber(1234567); got != "1,234,567" {
		t.Errorf("FormatNumber = %q", got)
	}
	if got := FormatLatency(2500); got != "2,500ms" {
		t.Errorf("FormatLatency(2500) = %q", got)
	}
	if got := FormatLatency(12500); got != "12.5s" {
		t.Errorf("FormatLatency(12500) = %q", got)
	}
	if got := FormatChange(35); got != "+35.0%" {
		t.Errorf("FormatChange(35) = %q", got)
	}
	if got := FormatChange(-4.25); got != "-4.2%" && got != "-4.3%" {
		t.Errorf("FormatChange(-4.25) = %q", got)
	}
	if got := Optional(nil, FormatPercent); got != Placeholder {
		t.Errorf("Optional(nil) = %q", got)
	}
	if got := Optional(model.Float(90), FormatPercent); got != "90.0%" {
		t.Errorf("Optional(90) = %q", got)
	}
	if got := FormatDuration(3725); got != "1h 2m" {
		t.Errorf("FormatDuration = %q", got)
	}

	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	ago := now.Add(-3 * time.Hour)
	if got := FormatAgo(&ago, now); got != "3 hours ago" {
		t.Errorf("FormatAgo = %q", got)
	}
	if got := FormatAgo(nil, now); got != "never" {
		t.Errorf("FormatAgo(nil) = %q", got)
	}
}

func TestRenderTable_AlignsStyledCells(t *testing.T) {
	out := RenderTable(Table{
		Headers: []string{"Agent", "Severity"},
		Rows: [][]string{
			{"a", RenderSeverity(model.SeverityCritical)},
			{"longer-name", "LOW"},
		},
	})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6:\n%s", len(lines), out)
	}
	width := lipgloss.Width(lines[0])
	for i, l := range lines {
		if w := lipgloss.Width(l); w != width {
			t.Errorf("line %d width = %d, want %d", i, w, width)
		}
	}
}

func TestRenderSparkline(t *testing.T) {
	if got := RenderSparkline([]float64{0, 50, 100}); got != "▁▄█" {
		t.Errorf("RenderSparkline = %q", got)
	}
	if RenderSparkline(nil) != "" {
		t.Error("empty series should render nothing")
	}
}

func TestWriteStructured(t *testing.T) {
	v := model.CostAlert{AgentID: "a", AlertType: model.AlertCostSpike, Severity: model.SeverityHigh, CurrentValue: 7.5}

	var js bytes.Buffer
	if err := WriteStructured(&js, FormatJSON, v); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(js.String(), `"alert_type": "cost_spike"`) {
		t.Errorf("json output:\n%s", js.String())
	}

	var ym bytes.Buffer
	if err := WriteStructured(&ym, FormatYAML, v); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(ym.String(), "alert_type: cost_spike") || !strings.Contains(ym.String(), "current_value: 7.5") {
		t.Errorf("yaml output:\n%s", ym.String())
	}

	if err := WriteStructured(&ym, FormatTable, v); err == nil {
		t.Error("table is not a structured format")
	}
	if !ValidFormat("yaml") || ValidFormat("xml") {
		t.Error("ValidFormat mismatch")
	}
}
