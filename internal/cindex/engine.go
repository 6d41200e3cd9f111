// Package cindex computes the Coherence Index, a windowed [0,1] quality
// metric for one-dimensional spectroscopic flux arrays. Each window scores
// smoothness, stability and consistency; their mean is the c-index. The
// package is pure computation with no state between calls: every function
// is safe for concurrent use on independent inputs.
package cindex

import (
	"fmt"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
)

// Engine slides a fixed-length window across a flux array and collects one
// WindowStat per placement. The zero value is ready to use.
type Engine struct{}

// NewEngine creates a new engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Analyze computes the coherence series for flux under the given parameters.
//
// The window start slides from 0 to len(flux)-Window inclusive, advancing
// by Step; tail samples that cannot fill a window are dropped, never padded.
// Positions in the result are window start indices. When no window fits
// (len(flux) < Window) the series is empty and err is nil, callers must
// handle the empty case downstream.
//
// A window that cannot be computed at all (too few finite samples) is
// skipped and reported in the returned warnings rather than aborting the
// series, so one bad chunk cannot destroy an otherwise usable analysis.
// Identical inputs always produce identical output.
func (e *Engine) Analyze(flux []float64, p coherence.Params) (coherence.Series, []coherence.Warning, error) {
	if p.Window < 2 {
		return nil, nil, core.NewInvalidParameterError("window", p.Window, "must be at least 2")
	}
	if p.Step < 1 {
		return nil, nil, core.NewInvalidParameterError("step", p.Step, "must be at least 1")
	}
	if p.Window > len(flux) {
		return coherence.Series{}, nil, nil
	}

	series := make(coherence.Series, 0, ExpectedWindows(len(flux), p))
	var warnings []coherence.Warning

	for start := 0; start+p.Window <= len(flux); start += p.Step {
		ws, err := ComputeWindowStats(flux[start : start+p.Window])
		if err != nil {
			warnings = append(warnings, coherence.Warning{
				Code:     coherence.WarningWindowSkipped,
				Message:  fmt.Sprintf("window at %d skipped: %v", start, err),
				Position: start,
			})
			continue
		}
		ws.Position = start
		for i := range ws.Warnings {
			ws.Warnings[i].Position = start
		}
		series = append(series, ws)
	}

	return series, warnings, nil
}

// ExpectedWindows returns the number of window placements Analyze makes for
// a flux array of length n: floor((n-Window)/Step)+1 when n >= Window,
// else 0. Skipped windows make the actual series shorter.
func ExpectedWindows(n int, p coherence.Params) int {
	if p.Window < 2 || p.Step < 1 || n < p.Window {
		return 0
	}
	return (n-p.Window)/p.Step + 1
}
