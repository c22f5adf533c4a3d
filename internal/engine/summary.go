package engine

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"mixsim/domain/model"
)

// summarize reduces one observation's draws to a point estimate and interval
// bounds. draws is sorted in place. A single draw yields a degenerate but
// well-defined interval with lower = fit = upper.
func summarize(draws []float64, point PointStatistic, level float64) (model.PredictionInterval, error) {
	sort.Float64s(draws)
	alpha := (1 - level) / 2

	var fit float64
	var err error
	switch point {
	case PointMean:
		fit, err = stats.Mean(draws)
	default:
		fit, err = stats.Median(draws)
	}
	if err != nil {
		return model.PredictionInterval{}, err
	}

	return model.PredictionInterval{
		Fit:   fit,
		Lower: quantileType7(draws, alpha),
		Upper: quantileType7(draws, 1-alpha),
	}, nil
}

// quantileType7 computes the linear-interpolation quantile between order
// statistics, the standard "type 7" definition. sorted must be ascending and
// non-empty.
func quantileType7(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
