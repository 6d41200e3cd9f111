package cindex

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
)

// Summarize reduces a coherence series to descriptive statistics over its
// c-index values. Std is the sample standard deviation (N-1) since window
// results are themselves noisy samples; a single-window series reports 0.
// An empty series has no defined statistics and fails with ErrEmptySeries.
func Summarize(series coherence.Series) (coherence.Summary, error) {
	if series.Len() == 0 {
		return coherence.Summary{}, core.ErrEmptySeries
	}

	vals := series.CIndexValues()

	mean, _ := stats.Mean(vals)
	minV, _ := stats.Min(vals)
	maxV, _ := stats.Max(vals)

	// Percentile errors (NaN) on series too short for the requested depth;
	// pin those to the extremes so the summary always serializes.
	p25, err := stats.Percentile(vals, 25)
	if err != nil || math.IsNaN(p25) {
		p25 = minV
	}
	p75, err := stats.Percentile(vals, 75)
	if err != nil || math.IsNaN(p75) {
		p75 = maxV
	}

	std := 0.0
	if len(vals) > 1 {
		std, _ = stats.StandardDeviationSample(vals)
	}

	cv := 0.0
	if mean != 0 {
		cv = std / math.Abs(mean)
	}

	return coherence.Summary{
		Mean:               mean,
		Std:                std,
		Min:                minV,
		Max:                maxV,
		CV:                 cv,
		P25:                p25,
		P75:                p75,
		N:                  len(vals),
		SuggestedThreshold: clamp01(mean - 2.0*std),
	}, nil
}

// Histogram bins the series' c-index values into count equal-width bins
// over [0,1] for charting. Returns the bin dividers (count+1 edges) and
// the per-bin counts.
func Histogram(series coherence.Series, bins int) (dividers, counts []float64) {
	if bins < 1 {
		bins = 10
	}
	dividers = make([]float64, bins+1)
	floats.Span(dividers, 0, 1)
	// stat.Histogram requires sorted samples and an inclusive last divider.
	dividers[bins] = math.Nextafter(1, 2)

	vals := series.CIndexValues()
	sort.Float64s(vals)
	counts = stat.Histogram(nil, dividers, vals, nil)

	dividers[bins] = 1
	return dividers, counts
}
