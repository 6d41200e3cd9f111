package cindex

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
)

// TestAnalyze_ConstantFlux verifies the canonical flat-spectrum example:
// six ones with window 3, step 1 produce four windows, all scoring 1.0
func TestAnalyze_ConstantFlux(t *testing.T) {
	engine := NewEngine()
	flux := []float64{1, 1, 1, 1, 1, 1}

	series, warnings, err := engine.Analyze(flux, coherence.Params{Window: 3, Step: 1})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
	if series.Len() != 4 {
		t.Fatalf("Expected 4 windows, got %d", series.Len())
	}
	for i, w := range series {
		if w.Position != i {
			t.Errorf("Window %d: expected position %d, got %d", i, i, w.Position)
		}
		if w.CIndex != 1.0 {
			t.Errorf("Window %d: expected c-index 1.0, got %f", i, w.CIndex)
		}
	}
}

// TestAnalyze_AlternatingFlux verifies window placement and per-window
// values for the alternating reference spectrum
func TestAnalyze_AlternatingFlux(t *testing.T) {
	engine := NewEngine()
	flux := []float64{1, 10, 1, 10, 1, 10, 1, 10}

	series, _, err := engine.Analyze(flux, coherence.Params{Window: 4, Step: 2})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("Expected 3 windows, got %d", series.Len())
	}

	wantPositions := []int{0, 2, 4}
	wantCIndex := (11.0/29.0 + 11.0/20.0 + 0.0) / 3.0

	for i, w := range series {
		if w.Position != wantPositions[i] {
			t.Errorf("Window %d: expected position %d, got %d", i, wantPositions[i], w.Position)
		}
		// Every placement sees the same [1,10,1,10] pattern
		if math.Abs(w.CIndex-wantCIndex) > 1e-12 {
			t.Errorf("Window %d: expected c-index %.12f, got %.12f", i, wantCIndex, w.CIndex)
		}
	}
}

// TestAnalyze_OutputLength checks the window-count formula across
// parameter combinations, including tail-drop behavior
func TestAnalyze_OutputLength(t *testing.T) {
	engine := NewEngine()

	tests := []struct {
		n      int
		window int
		step   int
		want   int
	}{
		{10, 2, 1, 9},
		{10, 10, 1, 1},
		{10, 10, 5, 1},
		{8, 4, 2, 3},
		{100, 7, 3, 32},
		{5, 2, 10, 1},
		{9, 4, 3, 2}, // Starts 0 and 3; samples 7,8 dropped
		{2, 2, 1, 1},
	}

	for _, test := range tests {
		flux := generateNoisySpectrum(test.n, 100.0, 1.0)
		p := coherence.Params{Window: test.window, Step: test.step}

		series, _, err := engine.Analyze(flux, p)
		if err != nil {
			t.Fatalf("n=%d window=%d step=%d: unexpected error: %v", test.n, test.window, test.step, err)
		}
		if series.Len() != test.want {
			t.Errorf("n=%d window=%d step=%d: expected %d windows, got %d",
				test.n, test.window, test.step, test.want, series.Len())
		}
		if got := ExpectedWindows(test.n, p); got != test.want {
			t.Errorf("ExpectedWindows(%d, %+v) = %d, want %d", test.n, p, got, test.want)
		}

		// Ordering invariant: strictly increasing positions
		for i := 1; i < series.Len(); i++ {
			if series[i].Position <= series[i-1].Position {
				t.Errorf("Positions not strictly increasing at index %d", i)
			}
		}
	}
}

// TestAnalyze_NoWindowFits verifies the degenerate case returns an empty
// series, not an error
func TestAnalyze_NoWindowFits(t *testing.T) {
	engine := NewEngine()

	series, warnings, err := engine.Analyze([]float64{1, 2, 3}, coherence.Params{Window: 5, Step: 1})
	if err != nil {
		t.Fatalf("Expected nil error when no window fits, got %v", err)
	}
	if series.Len() != 0 {
		t.Errorf("Expected empty series, got %d windows", series.Len())
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
}

// TestAnalyze_InvalidParameters verifies parameter validation reports the
// offending parameter
func TestAnalyze_InvalidParameters(t *testing.T) {
	engine := NewEngine()
	flux := generateNoisySpectrum(50, 10.0, 0.5)

	tests := []struct {
		name   string
		params coherence.Params
	}{
		{"window too small", coherence.Params{Window: 1, Step: 1}},
		{"window zero", coherence.Params{Window: 0, Step: 1}},
		{"window negative", coherence.Params{Window: -3, Step: 1}},
		{"step zero", coherence.Params{Window: 5, Step: 0}},
		{"step negative", coherence.Params{Window: 5, Step: -1}},
	}

	for _, test := range tests {
		_, _, err := engine.Analyze(flux, test.params)
		if !errors.Is(err, core.ErrInvalidParameters) {
			t.Errorf("%s: expected ErrInvalidParameters, got %v", test.name, err)
		}
	}
}

// TestAnalyze_Idempotence verifies identical inputs yield identical output
func TestAnalyze_Idempotence(t *testing.T) {
	engine := NewEngine()
	randState = 7.0
	flux := generateNoisySpectrum(300, 50.0, 3.0)
	p := coherence.Params{Window: 20, Step: 7}

	first, warn1, err1 := engine.Analyze(flux, p)
	second, warn2, err2 := engine.Analyze(flux, p)

	if err1 != nil || err2 != nil {
		t.Fatalf("Unexpected errors: %v, %v", err1, err2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("Repeated analysis of identical input produced different series")
	}
	if !reflect.DeepEqual(warn1, warn2) {
		t.Error("Repeated analysis of identical input produced different warnings")
	}
}

// TestAnalyze_SkipsUncomputableWindows verifies a fully corrupt chunk is
// skipped with a warning instead of aborting the series
func TestAnalyze_SkipsUncomputableWindows(t *testing.T) {
	engine := NewEngine()
	nan := math.NaN()
	flux := []float64{5, 5, 5, nan, nan, nan, 5, 5, 5}

	series, warnings, err := engine.Analyze(flux, coherence.Params{Window: 3, Step: 3})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("Expected 2 computed windows, got %d", series.Len())
	}
	if series[0].Position != 0 || series[1].Position != 6 {
		t.Errorf("Expected positions 0 and 6, got %d and %d", series[0].Position, series[1].Position)
	}
	if len(warnings) != 1 {
		t.Fatalf("Expected 1 skip warning, got %d", len(warnings))
	}
	if warnings[0].Code != coherence.WarningWindowSkipped {
		t.Errorf("Expected %s, got %s", coherence.WarningWindowSkipped, warnings[0].Code)
	}
	if warnings[0].Position != 3 {
		t.Errorf("Expected skip at position 3, got %d", warnings[0].Position)
	}
}

// TestAnalyze_PartialNonFinitePropagatesWarning verifies window-level
// exclusion warnings carry their position
func TestAnalyze_PartialNonFinitePropagatesWarning(t *testing.T) {
	engine := NewEngine()
	flux := []float64{5, 5, 5, 5, math.NaN(), 5, 5, 5}

	series, _, err := engine.Analyze(flux, coherence.Params{Window: 4, Step: 4})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("Expected 2 windows, got %d", series.Len())
	}

	clean, dirty := series[0], series[1]
	if len(clean.Warnings) != 0 {
		t.Errorf("Clean window should carry no warnings, got %v", clean.Warnings)
	}
	if len(dirty.Warnings) != 1 {
		t.Fatalf("Dirty window should carry one warning, got %d", len(dirty.Warnings))
	}
	if dirty.Warnings[0].Position != 4 {
		t.Errorf("Expected warning position 4, got %d", dirty.Warnings[0].Position)
	}
	if dirty.NValid != 3 {
		t.Errorf("Expected 3 valid samples in dirty window, got %d", dirty.NValid)
	}
}
