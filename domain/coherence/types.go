package coherence

import (
	"speccoh/domain/core"
)

// ============================================================================
// ANALYSIS PARAMETERS
// ============================================================================

// Params configures a single coherence analysis pass.
// Window and Step are the only engine tunables; defaults belong to the
// caller (CLI/config), not to the engine.
type Params struct {
	Window int `json:"window"` // Samples per window, >= 2
	Step   int `json:"step"`   // Window start advance, >= 1
}

// ============================================================================
// WINDOWED RESULTS
// ============================================================================

// WindowStat holds the component scores for one window of the flux array.
// Position is the window START index into the flux array. The start
// convention is fixed for the whole module; positions never refer to
// window centers.
type WindowStat struct {
	Position    int       `json:"position"`           // Window start index
	Smoothness  float64   `json:"smoothness"`         // 1/(1+normalized gradient), [0,1]
	Stability   float64   `json:"stability"`          // 1/(1+cv), [0,1]
	Consistency float64   `json:"consistency"`        // (lag-1 autocorr+1)/2, [0,1]
	CIndex      float64   `json:"c_index"`            // Mean of the three components, [0,1]
	NValid      int       `json:"n_valid"`            // Finite samples used
	Warnings    []Warning `json:"warnings,omitempty"` // Non-finite exclusions etc.
}

// Series is an ordered sequence of WindowStats, strictly increasing by
// Position. A Series is created once per analysis call and never mutated
// afterwards; callers own their series outright.
type Series []WindowStat

// Len returns the number of windows in the series.
func (s Series) Len() int { return len(s) }

// CIndexValues extracts the c-index column.
func (s Series) CIndexValues() []float64 {
	vals := make([]float64, len(s))
	for i, w := range s {
		vals[i] = w.CIndex
	}
	return vals
}

// Positions extracts the window start positions.
func (s Series) Positions() []int {
	pos := make([]int, len(s))
	for i, w := range s {
		pos[i] = w.Position
	}
	return pos
}

// ============================================================================
// AGGREGATES
// ============================================================================

// Summary holds descriptive statistics over a series' c-index values.
// Std is the sample standard deviation (N-1); a single-window series
// reports Std = 0. Summaries are recomputed on demand, never cached.
type Summary struct {
	Mean               float64 `json:"mean"`
	Std                float64 `json:"std"`
	Min                float64 `json:"min"`
	Max                float64 `json:"max"`
	CV                 float64 `json:"cv"`                  // Std/|Mean|, 0 when Mean is 0
	P25                float64 `json:"p25"`                 // 25th percentile
	P75                float64 `json:"p75"`                 // 75th percentile
	N                  int     `json:"n"`                   // Window count
	SuggestedThreshold float64 `json:"suggested_threshold"` // clamp(Mean-2*Std, 0, 1)
}

// Region is a maximal run of consecutive windows whose c-index falls
// strictly below the detection threshold. Start and End are the positions
// (window start indices) of the first and last flagged window, inclusive.
// Regions never overlap and are reported in position order.
type Region struct {
	Start       int     `json:"start"`
	End         int     `json:"end"`
	WindowCount int     `json:"window_count"`
	MinCIndex   float64 `json:"min_c_index"`
	MeanCIndex  float64 `json:"mean_c_index"`
}

// ============================================================================
// QUALITY GRADES
// ============================================================================

// QualityGrade is the coarse quality band derived from a summary.
type QualityGrade string

const (
	GradeExcellent QualityGrade = "Excellent" // Mean > 0.85 and CV < 0.05
	GradeGood      QualityGrade = "Good"      // Mean > 0.80 and CV < 0.10
	GradeFair      QualityGrade = "Fair"      // Mean > 0.70 and CV < 0.15
	GradePoor      QualityGrade = "Poor"
)

// ============================================================================
// WARNINGS
// ============================================================================

// WarningCode represents structured warning types
type WarningCode string

const (
	WarningNonFinite     WarningCode = "NON_FINITE_SAMPLES" // Samples excluded before computing a window
	WarningWindowSkipped WarningCode = "WINDOW_SKIPPED"     // A window could not be computed at all
)

// Warning surfaces a recoverable data problem alongside results instead of
// aborting an analysis.
type Warning struct {
	Code     WarningCode `json:"code"`
	Message  string      `json:"message"`
	Position int         `json:"position"`        // Window start index the warning refers to
	Count    int         `json:"count,omitempty"` // Affected samples, when meaningful
}

// ============================================================================
// ASSEMBLED REPORT
// ============================================================================

// Report bundles everything one analysis produced. It is read-only output;
// rendering and persistence live outside the core.
type Report struct {
	RunID       core.RunID     `json:"run_id"`
	Target      string         `json:"target,omitempty"`
	Source      string         `json:"source,omitempty"` // File path or synthetic origin
	Instrument  string         `json:"instrument,omitempty"`
	SNR         float64        `json:"snr,omitempty"` // Median flux/error ratio, 0 when no errors
	Params      Params         `json:"params"`
	Threshold   float64        `json:"threshold"`
	Fingerprint core.Hash      `json:"fingerprint"` // Hash of the analyzed flux
	Series      Series         `json:"series"`
	Summary     Summary        `json:"summary"`
	Regions     []Region       `json:"regions"`
	Grade       QualityGrade   `json:"grade"`
	Warnings    []Warning      `json:"warnings,omitempty"`
	CreatedAt   core.Timestamp `json:"created_at"`
}
