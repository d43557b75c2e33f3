// Package preprocessing implements per-date cross-sectional outlier
// trimming and z-score standardization of a factor series (C3).
package preprocessing

import (
	"math"
	"sort"

	"github.com/aristath/factorlab/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Clean trims outliers and standardizes a factor series date-by-date,
// using method to pick the trimming rule. NaN input values are preserved
// as NaN in the output and take no part in either step's statistics.
func Clean(points []domain.CustomFactorPoint, method domain.ExtremeValueProcessing) []domain.CustomFactorPoint {
	byDate := make(map[string][]int)
	for i, p := range points {
		byDate[p.Date] = append(byDate[p.Date], i)
	}

	out := make([]domain.CustomFactorPoint, len(points))
	copy(out, points)

	for _, idxs := range byDate {
		values := make([]float64, len(idxs))
		for j, i := range idxs {
			values[j] = points[i].Value
		}

		trimmed := trim(values, method)
		standardized := zscore(trimmed)

		for j, i := range idxs {
			out[i].Value = standardized[j]
		}
	}
	return out
}

func trim(values []float64, method domain.ExtremeValueProcessing) []float64 {
	if method == domain.ExtremeMedian {
		return trimMAD(values)
	}
	return trimSigma(values)
}

// trimSigma clips every non-NaN value to within mean ± 3*std.
func trimSigma(values []float64) []float64 {
	clean := nonNaN(values)
	if len(clean) == 0 {
		return append([]float64(nil), values...)
	}
	mean, std := stat.MeanStdDev(clean, nil)
	lo, hi := mean-3*std, mean+3*std
	return clip(values, lo, hi)
}

// trimMAD clips every non-NaN value to within median ± 3*1.4826*MAD.
func trimMAD(values []float64) []float64 {
	clean := nonNaN(values)
	if len(clean) == 0 {
		return append([]float64(nil), values...)
	}
	m := median(clean)
	deviations := make([]float64, len(clean))
	for i, v := range clean {
		deviations[i] = math.Abs(v - m)
	}
	mad := median(deviations)
	lo, hi := m-3*1.4826*mad, m+3*1.4826*mad
	return clip(values, lo, hi)
}

func clip(values []float64, lo, hi float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			out[i] = v
		case v < lo:
			out[i] = lo
		case v > hi:
			out[i] = hi
		default:
			out[i] = v
		}
	}
	return out
}

// zscore standardizes values using mean/std computed over the non-NaN
// entries. If std is zero (a degenerate, all-equal cross-section), every
// non-NaN output is zero rather than dividing by zero.
func zscore(values []float64) []float64 {
	clean := nonNaN(values)
	out := make([]float64, len(values))
	if len(clean) == 0 {
		copy(out, values)
		return out
	}
	mean, std := stat.MeanStdDev(clean, nil)
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = v
			continue
		}
		if std == 0 {
			out[i] = 0
			continue
		}
		out[i] = (v - mean) / std
	}
	return out
}

func nonNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
