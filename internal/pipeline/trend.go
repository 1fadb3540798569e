package pipeline

import (
	"math"
	"sort"

	"github.com/sentinelai/sentinel/internal/model"
)

// stableBand is the absolute percent change below which a series is stable.
const stableBand = 5.0

// ClassifyTrend compares the last value of a series with the first.
func ClassifyTrend(values []float64) (model.TrendDirection, float64) {
	switch len(values) {
	case 0:
		return model.TrendNoData, 0
	case 1:
		return model.TrendInsufficientData, 0
	}

	first, last := values[0], values[len(values)-1]
	if first == 0 {
		return model.TrendStable, 0
	}

	pct := (last - first) / first * 100
	switch {
	case math.Abs(pct) < stableBand:
		return model.TrendStable, pct
	case pct > 0:
		return model.TrendIncreasing, pct
	default:
		return model.TrendDecreasing, pct
	}
}

// thirdsTrend returns the percent change from the mean of the first third
// of values to the mean of the last third. Below three values the first and
// last single values are compared.
func thirdsTrend(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	head := values[:1]
	tail := values[n-1:]
	if n >= 3 {
		head = values[:n/3]
		tail = values[n-(n+2)/3:]
	}

	firstAvg := mean(head)
	if firstAvg == 0 {
		return 0
	}
	return (mean(tail) - firstAvg) / firstAvg * 100
}

// NearestRank returns sorted(values)[floor(p*n)], clamped to the last
// element. values is not modified.
func NearestRank(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
