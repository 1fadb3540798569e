// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

// Placeholder is shown for metrics an agent did not report.
const Placeholder = "-"

// FormatCost formats a USD cost value. Sub-cent values keep four decimals
// since per-request costs are usually fractions of a cent.
func FormatCost(cost float64) string {
	abs := math.Abs(cost)
	switch {
	case abs >= 1000:
		return "$" + humanize.Comma(int64(math.Round(cost)))
	case abs >= 10:
		return fmt.Sprintf("$%.2f", cost)
	case abs >= 0.01 || abs == 0:
		return fmt.Sprintf("$%.3f", cost)
	default:
		return fmt.Sprintf("$%.5f", cost)
	}
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	return humanize.Comma(n)
}

// FormatFloat formats a value with thousands separators and at most the
// given number of decimals.
func FormatFloat(v float64, decimals int) string {
	return humanize.CommafWithDigits(v, decimals)
}

// FormatLatency formats milliseconds, switching to seconds above 10s.
func FormatLatency(ms float64) string {
	if ms >= 10_000 {
		return fmt.Sprintf("%.1fs", ms/1000)
	}
	return humanize.CommafWithDigits(ms, 1) + "ms"
}

// FormatMemory formats megabytes as a byte size.
func FormatMemory(mb float64) string {
	return humanize.IBytes(uint64(mb * 1024 * 1024))
}

// FormatPercent formats a 0-100 value as a percentage string.
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}

// FormatChange formats a signed percent change.
func FormatChange(pct float64) string {
	if pct > 0 {
		return fmt.Sprintf("+%.1f%%", pct)
	}
	return fmt.Sprintf("%.1f%%", pct)
}

// Optional applies format to v, or returns Placeholder when v is nil.
func Optional(v *float64, format func(float64) string) string {
	if v == nil {
		return Placeholder
	}
	return format(*v)
}

// FormatTime formats a timestamp in UTC at minute resolution.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// FormatAgo formats t relative to now, e.g. "3 hours ago".
func FormatAgo(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

// FormatDuration formats seconds into a human-readable duration.
// e.g., 3725 -> "1h 2m", 125 -> "2m", 45 -> "45s"
func FormatDuration(secs int64) string {
	if secs <= 0 {
		return "0s"
	}

	hours := secs / 3600
	mins := (secs % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}
