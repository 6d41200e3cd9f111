package cindex

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
)

// ComputeWindowStats computes the three component scores and their mean for
// one window of flux samples. Non-finite samples are excluded from every
// statistic and reported through a warning on the result; they never fail
// the window unless fewer than two finite samples remain. The returned
// Position is zero, the caller places the window.
func ComputeWindowStats(window []float64) (coherence.WindowStat, error) {
	if len(window) < 2 {
		return coherence.WindowStat{}, core.NewInvalidWindowError(len(window), len(window), "need at least 2 samples")
	}

	finite := make([]float64, 0, len(window))
	for _, v := range window {
		if isFinite(v) {
			finite = append(finite, v)
		}
	}
	excluded := len(window) - len(finite)

	if len(finite) == 0 {
		return coherence.WindowStat{}, core.NewInvalidWindowError(len(window), 0, "all samples non-finite")
	}
	if len(finite) < 2 {
		return coherence.WindowStat{}, core.NewInvalidWindowError(len(window), len(finite), "fewer than 2 finite samples after exclusion")
	}

	smooth := smoothness(finite)
	stable := stability(finite)
	consist := consistency(finite)

	ws := coherence.WindowStat{
		Smoothness:  smooth,
		Stability:   stable,
		Consistency: consist,
		CIndex:      (smooth + stable + consist) / 3.0,
		NValid:      len(finite),
	}
	if excluded > 0 {
		ws.Warnings = append(ws.Warnings, coherence.Warning{
			Code:    coherence.WarningNonFinite,
			Message: fmt.Sprintf("%d non-finite samples excluded", excluded),
			Count:   excluded,
		})
	}
	return ws, nil
}

// smoothness scores the relative roughness of a window: the mean absolute
// first difference normalized by the mean absolute flux. A constant-zero
// window has no relative variation to penalize, so a zero normalizer maps
// to a gradient of 0 and a score of 1.
func smoothness(data []float64) float64 {
	sumDiff := 0.0
	for i := 1; i < len(data); i++ {
		sumDiff += math.Abs(data[i] - data[i-1])
	}
	meanDiff := sumDiff / float64(len(data)-1)

	sumAbs := 0.0
	for _, v := range data {
		sumAbs += math.Abs(v)
	}
	meanAbs := sumAbs / float64(len(data))

	gradient := 0.0
	if meanAbs > 0 {
		gradient = meanDiff / meanAbs
	}
	return clamp01(1.0 / (1.0 + gradient))
}

// stability scores flux dispersion through the coefficient of variation.
// A zero mean makes the cv undefined; it is taken as 0 so a centered
// window scores 1 rather than blowing up.
func stability(data []float64) float64 {
	mean, _ := stats.Mean(data)
	stdDev, _ := stats.StandardDeviation(data)

	cv := 0.0
	if mean != 0 {
		cv = stdDev / math.Abs(mean)
	}
	return clamp01(1.0 / (1.0 + cv))
}

// consistency rescales the lag-1 autocorrelation from [-1,1] into [0,1].
// A zero-variance window has undefined autocorrelation and scores 1, a
// perfectly flat window is maximally self-consistent.
func consistency(data []float64) float64 {
	variance, _ := stats.Variance(data)
	if variance == 0 {
		return 1.0
	}
	r := lagAutocorrelation(data, 1)
	return clamp01((r + 1.0) / 2.0)
}

// lagAutocorrelation computes the autocorrelation of data at the given lag.
func lagAutocorrelation(data []float64, lag int) float64 {
	if len(data) <= lag {
		return 0
	}

	n := len(data) - lag
	mean, _ := stats.Mean(data)

	numerator := 0.0
	denom1 := 0.0
	denom2 := 0.0

	for i := 0; i < n; i++ {
		diff1 := data[i] - mean
		diff2 := data[i+lag] - mean

		numerator += diff1 * diff2
		denom1 += diff1 * diff1
		denom2 += diff2 * diff2
	}

	if denom1 == 0 || denom2 == 0 {
		return 0
	}

	return numerator / math.Sqrt(denom1*denom2)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
