// Package numeric holds small statistical helpers shared by the insight engines.
package numeric

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Quantile returns the q-th quantile of values using linear interpolation
// between closest ranks (position q*(n-1) in the sorted data). values is not
// modified. It returns NaN for an empty slice.
func Quantile(q float64, values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Round2 rounds to two decimal places, half away from zero
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// ArgMax returns the index of the first maximum, or -1 for an empty slice
func ArgMax(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MaxIdx(values)
}

// ArgMin returns the index of the first minimum, or -1 for an empty slice
func ArgMin(values []float64) int {
	if len(values) == 0 {
		return -1
	}
	return floats.MinIdx(values)
}

// AllFinite reports whether no value is NaN or infinite
func AllFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
