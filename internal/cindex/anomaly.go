package cindex

import (
	"math"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
)

// DetectRegions scans a coherence series for maximal runs of consecutive
// windows whose c-index falls strictly below threshold and reports each run
// as one region. Single-window runs count, one degraded window still flags.
// Regions come back in position order and never overlap.
//
// threshold must lie in [0,1]; both ends are valid (0 can never flag since
// c-index >= 0 and the comparison is strict, 1 flags everything below a
// perfect score). An empty series yields an empty region list, not an error.
func DetectRegions(series coherence.Series, threshold float64) ([]coherence.Region, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, core.NewInvalidThresholdError(threshold)
	}

	regions := make([]coherence.Region, 0)
	runStart := -1

	for i, w := range series {
		below := w.CIndex < threshold
		if below && runStart < 0 {
			runStart = i
		}
		if !below && runStart >= 0 {
			regions = append(regions, buildRegion(series[runStart:i]))
			runStart = -1
		}
	}
	if runStart >= 0 {
		regions = append(regions, buildRegion(series[runStart:]))
	}

	return regions, nil
}

// buildRegion folds one run of flagged windows into a Region. run is never
// empty.
func buildRegion(run coherence.Series) coherence.Region {
	minC := run[0].CIndex
	sum := 0.0
	for _, w := range run {
		if w.CIndex < minC {
			minC = w.CIndex
		}
		sum += w.CIndex
	}
	return coherence.Region{
		Start:       run[0].Position,
		End:         run[len(run)-1].Position,
		WindowCount: len(run),
		MinCIndex:   minC,
		MeanCIndex:  sum / float64(len(run)),
	}
}
