package cindex

import (
	"errors"
	"math"
	"testing"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
)

// Deterministic pseudo-random state for reproducible tests
var randState = 42.0

func randNorm() float64 {
	// Update state with linear congruential generator
	randState = math.Mod(randState*1103515245+12345, 2147483648)
	u1 := randState / 2147483648.0

	randState = math.Mod(randState*1103515245+12345, 2147483648)
	u2 := randState / 2147483648.0

	// Box-Muller transform
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func generateNoisySpectrum(n int, level, noise float64) []float64 {
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		data[i] = level + randNorm()*noise
	}
	return data
}

// TestComputeWindowStats_ConstantWindow verifies the degenerate-case policy:
// a flat window scores 1 on every component
func TestComputeWindowStats_ConstantWindow(t *testing.T) {
	for _, level := range []float64{0.0, 1.0, -3.5, 1e6} {
		window := []float64{level, level, level, level, level}
		ws, err := ComputeWindowStats(window)
		if err != nil {
			t.Fatalf("Unexpected error for constant window at %g: %v", level, err)
		}
		if ws.Smoothness != 1.0 {
			t.Errorf("Constant window at %g: expected smoothness 1, got %f", level, ws.Smoothness)
		}
		if ws.Stability != 1.0 {
			t.Errorf("Constant window at %g: expected stability 1, got %f", level, ws.Stability)
		}
		if ws.Consistency != 1.0 {
			t.Errorf("Constant window at %g: expected consistency 1, got %f", level, ws.Consistency)
		}
		if ws.CIndex != 1.0 {
			t.Errorf("Constant window at %g: expected c-index 1, got %f", level, ws.CIndex)
		}
	}
}

// TestComputeWindowStats_AlternatingWindow checks exact component values
// against a hand-computed reference for [1,10,1,10]
func TestComputeWindowStats_AlternatingWindow(t *testing.T) {
	ws, err := ComputeWindowStats([]float64{1, 10, 1, 10})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Mean |diff| = 9, mean |flux| = 5.5, gradient = 18/11
	wantSmoothness := 11.0 / 29.0
	// Population std = 4.5, |mean| = 5.5, cv = 9/11
	wantStability := 11.0 / 20.0
	// Lag-1 autocorrelation of a strict alternation is -1
	wantConsistency := 0.0
	wantCIndex := (wantSmoothness + wantStability + wantConsistency) / 3.0

	const eps = 1e-12
	if math.Abs(ws.Smoothness-wantSmoothness) > eps {
		t.Errorf("Expected smoothness %.12f, got %.12f", wantSmoothness, ws.Smoothness)
	}
	if math.Abs(ws.Stability-wantStability) > eps {
		t.Errorf("Expected stability %.12f, got %.12f", wantStability, ws.Stability)
	}
	if math.Abs(ws.Consistency-wantConsistency) > eps {
		t.Errorf("Expected consistency %.12f, got %.12f", wantConsistency, ws.Consistency)
	}
	if math.Abs(ws.CIndex-wantCIndex) > eps {
		t.Errorf("Expected c-index %.12f, got %.12f", wantCIndex, ws.CIndex)
	}
}

// TestComputeWindowStats_ZeroMeanGuard verifies the cv guard for windows
// centered on zero
func TestComputeWindowStats_ZeroMeanGuard(t *testing.T) {
	ws, err := ComputeWindowStats([]float64{-2, 2, -2, 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Mean is exactly zero, so the cv is defined as 0 and stability is 1
	if ws.Stability != 1.0 {
		t.Errorf("Expected stability 1 for zero-mean window, got %f", ws.Stability)
	}
	// Alternation still shows up in the other components
	if math.Abs(ws.Smoothness-1.0/3.0) > 1e-12 {
		t.Errorf("Expected smoothness 1/3, got %f", ws.Smoothness)
	}
	if ws.Consistency != 0.0 {
		t.Errorf("Expected consistency 0, got %f", ws.Consistency)
	}
}

// TestComputeWindowStats_TooShort verifies the minimum-length contract
func TestComputeWindowStats_TooShort(t *testing.T) {
	for _, window := range [][]float64{nil, {}, {1.0}} {
		_, err := ComputeWindowStats(window)
		if !errors.Is(err, core.ErrInvalidWindow) {
			t.Errorf("Expected ErrInvalidWindow for length %d, got %v", len(window), err)
		}
	}
}

// TestComputeWindowStats_AllNonFinite verifies that a window of only
// NaN/Inf samples is rejected
func TestComputeWindowStats_AllNonFinite(t *testing.T) {
	window := []float64{math.NaN(), math.Inf(1), math.Inf(-1), math.NaN()}
	_, err := ComputeWindowStats(window)
	if !errors.Is(err, core.ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow for all-non-finite window, got %v", err)
	}
}

// TestComputeWindowStats_NonFiniteExcluded verifies bad samples are dropped
// from the statistics and surfaced as a warning, not a failure
func TestComputeWindowStats_NonFiniteExcluded(t *testing.T) {
	dirty := []float64{5, math.NaN(), 5, 5, math.Inf(1), 5}
	ws, err := ComputeWindowStats(dirty)
	if err != nil {
		t.Fatalf("Unexpected error for partially finite window: %v", err)
	}

	if ws.NValid != 4 {
		t.Errorf("Expected 4 valid samples, got %d", ws.NValid)
	}
	if len(ws.Warnings) != 1 {
		t.Fatalf("Expected exactly one warning, got %d", len(ws.Warnings))
	}
	if ws.Warnings[0].Code != coherence.WarningNonFinite {
		t.Errorf("Expected %s warning, got %s", coherence.WarningNonFinite, ws.Warnings[0].Code)
	}
	if ws.Warnings[0].Count != 2 {
		t.Errorf("Expected warning count 2, got %d", ws.Warnings[0].Count)
	}

	// The surviving samples are constant, so the scores match a clean
	// constant window
	if ws.CIndex != 1.0 {
		t.Errorf("Expected c-index 1 after exclusion, got %f", ws.CIndex)
	}
}

// TestComputeWindowStats_SingleFiniteSample verifies exclusion cannot
// silently shrink a window below the minimum
func TestComputeWindowStats_SingleFiniteSample(t *testing.T) {
	_, err := ComputeWindowStats([]float64{math.NaN(), 3.0, math.NaN()})
	if !errors.Is(err, core.ErrInvalidWindow) {
		t.Errorf("Expected ErrInvalidWindow when one finite sample remains, got %v", err)
	}
}

// TestComputeWindowStats_BoundsProperty checks c-index stays in [0,1]
// across random windows of varying roughness
func TestComputeWindowStats_BoundsProperty(t *testing.T) {
	randState = 42.0

	for trial := 0; trial < 200; trial++ {
		n := 2 + trial%64
		window := make([]float64, n)
		for i := range window {
			// Mix of scales, signs and occasional extreme values
			window[i] = randNorm() * math.Pow(10, float64(trial%7-3))
			if trial%11 == 0 && i%5 == 0 {
				window[i] = -window[i] * 1e6
			}
			if !isFinite(window[i]) {
				window[i] = 1.0
			}
		}

		ws, err := ComputeWindowStats(window)
		if err != nil {
			t.Fatalf("Trial %d: unexpected error: %v", trial, err)
		}
		for name, v := range map[string]float64{
			"smoothness":  ws.Smoothness,
			"stability":   ws.Stability,
			"consistency": ws.Consistency,
			"c_index":     ws.CIndex,
		} {
			if v < 0 || v > 1 || math.IsNaN(v) {
				t.Errorf("Trial %d: %s out of [0,1]: %f (window %v)", trial, name, v, window)
			}
		}
	}
}

// TestLagAutocorrelation_KnownSequences sanity-checks the helper directly
func TestLagAutocorrelation_KnownSequences(t *testing.T) {
	// Strict alternation is perfectly anti-correlated at lag 1
	if r := lagAutocorrelation([]float64{1, -1, 1, -1, 1, -1}, 1); math.Abs(r+1) > 1e-12 {
		t.Errorf("Expected lag-1 autocorrelation -1 for alternation, got %f", r)
	}

	// A long smooth ramp is strongly positively correlated at lag 1
	ramp := make([]float64, 100)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	if r := lagAutocorrelation(ramp, 1); r < 0.9 {
		t.Errorf("Expected strong positive autocorrelation for ramp, got %f", r)
	}

	// Degenerate lag
	if r := lagAutocorrelation([]float64{1.0}, 1); r != 0 {
		t.Errorf("Expected 0 for too-short input, got %f", r)
	}
}
