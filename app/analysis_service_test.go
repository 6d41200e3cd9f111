package app

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
	"speccoh/domain/spectrum"
	"speccoh/internal"
	"speccoh/internal/cindex"
	"speccoh/models"
)

// MockRunRepository implements ports.RunRepository for service tests
type MockRunRepository struct {
	mock.Mock
	saved []*models.AnalysisRun
}

func (m *MockRunRepository) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	args := m.Called(ctx, run)
	m.saved = append(m.saved, run)
	return args.Error(0)
}

func (m *MockRunRepository) GetRun(ctx context.Context, id core.RunID) (*models.AnalysisRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AnalysisRun), args.Error(1)
}

func (m *MockRunRepository) ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]*models.AnalysisRun), args.Error(1)
}

func (m *MockRunRepository) DeleteRun(ctx context.Context, id core.RunID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func quietLogger() *internal.Logger {
	return internal.NewLogger(internal.LogLevelError)
}

// smoothFlux builds a gently sloped continuum with no noise
func smoothFlux(n int) []float64 {
	flux := make([]float64, n)
	for i := range flux {
		flux[i] = 100.0 + 0.01*float64(i)
	}
	return flux
}

func testSpectrum(n int) spectrum.Spectrum {
	s := spectrum.New(smoothFlux(n))
	s.Target = "HD 100546"
	s.Instrument = "WINERED"
	s.Source = "/data/hd100546.fits"
	return s
}

func TestAnalysisService_Analyze(t *testing.T) {
	svc := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())

	report, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:  testSpectrum(256),
		Params:    coherence.Params{Window: 64, Step: 32},
		Threshold: 0.5,
	})

	assert.NoError(t, err)
	assert.NotNil(t, report)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "HD 100546", report.Target)
	assert.Equal(t, "WINERED", report.Instrument)
	assert.Equal(t, 7, report.Series.Len(), "(256-64)/32+1 window placements")
	assert.Equal(t, 0.5, report.Threshold)
	assert.NotEmpty(t, string(report.Fingerprint))
	assert.Equal(t, report.Series.Len(), report.Summary.N)
	assert.NotEmpty(t, string(report.Grade))
	assert.False(t, report.CreatedAt.IsZero())

	// A clean sloped continuum scores high across the board
	for _, ws := range report.Series {
		assert.Greater(t, ws.CIndex, 0.5)
	}
	assert.Empty(t, report.Regions)
}

func TestAnalysisService_Analyze_AutoThreshold(t *testing.T) {
	svc := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())

	report, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:      testSpectrum(256),
		Params:        coherence.Params{Window: 64, Step: 32},
		Threshold:     0.9, // ignored when auto is on
		AutoThreshold: true,
	})

	assert.NoError(t, err)
	assert.Equal(t, report.Summary.SuggestedThreshold, report.Threshold)
	assert.GreaterOrEqual(t, report.Threshold, 0.0)
	assert.LessOrEqual(t, report.Threshold, 1.0)
}

func TestAnalysisService_Analyze_SavesRun(t *testing.T) {
	repo := &MockRunRepository{}
	repo.On("SaveRun", mock.Anything, mock.AnythingOfType("*models.AnalysisRun")).Return(nil)

	svc := NewAnalysisService(cindex.NewEngine(), repo, quietLogger())

	report, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:  testSpectrum(256),
		Params:    coherence.Params{Window: 64, Step: 32},
		Threshold: 0.5,
		Save:      true,
	})

	assert.NoError(t, err)
	repo.AssertCalled(t, "SaveRun", mock.Anything, mock.AnythingOfType("*models.AnalysisRun"))
	assert.Len(t, repo.saved, 1)
	assert.Equal(t, report.RunID.String(), repo.saved[0].ID.String())
	assert.Equal(t, "HD 100546", repo.saved[0].Target)
}

func TestAnalysisService_Analyze_NoSaveWithoutFlag(t *testing.T) {
	repo := &MockRunRepository{}

	svc := NewAnalysisService(cindex.NewEngine(), repo, quietLogger())

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:  testSpectrum(256),
		Params:    coherence.Params{Window: 64, Step: 32},
		Threshold: 0.5,
	})

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "SaveRun", mock.Anything, mock.Anything)
}

func TestAnalysisService_Analyze_InvalidParams(t *testing.T) {
	svc := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:  testSpectrum(64),
		Params:    coherence.Params{Window: 1, Step: 1},
		Threshold: 0.5,
	})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidParameters),
		"parameter sentinel must survive service wrapping")
}

func TestAnalysisService_Analyze_NoWindowFits(t *testing.T) {
	svc := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:  testSpectrum(10),
		Params:    coherence.Params{Window: 100, Step: 10},
		Threshold: 0.5,
	})

	assert.Error(t, err, "a report needs at least one window")
}

func TestAnalysisService_Analyze_EmptySpectrum(t *testing.T) {
	svc := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())

	_, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:  spectrum.Spectrum{},
		Params:    coherence.Params{Window: 10, Step: 5},
		Threshold: 0.5,
	})

	assert.Error(t, err)
}

func TestAnalysisService_Analyze_CollectsWarnings(t *testing.T) {
	flux := smoothFlux(96)
	flux[40] = 0 // harmless
	for i := 48; i < 56; i++ {
		flux[i] = 0
		if i%2 == 0 {
			flux[i] = 200
		}
	}
	flux[70] = math.NaN()

	s := spectrum.New(flux)
	s.Target = "NOISY"

	svc := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())
	report, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:  s,
		Params:    coherence.Params{Window: 32, Step: 16},
		Threshold: 0.5,
	})

	assert.NoError(t, err)
	found := false
	for _, w := range report.Warnings {
		if w.Code == coherence.WarningNonFinite {
			found = true
		}
	}
	assert.True(t, found, "NaN sample should surface as a report warning")
}

func TestAnalysisService_GetRun_WithoutRepository(t *testing.T) {
	svc := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())

	_, err := svc.GetRun(context.Background(), core.RunID("whatever"))
	assert.Error(t, err)
}

func TestAnalysisService_GetRun_RebuildsSummary(t *testing.T) {
	svc := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())
	report, err := svc.Analyze(context.Background(), AnalyzeRequest{
		Spectrum:  testSpectrum(256),
		Params:    coherence.Params{Window: 64, Step: 32},
		Threshold: 0.5,
	})
	assert.NoError(t, err)

	// Rows store summary columns but not percentiles; serving a stored run
	// must rebuild them from the series.
	stored := models.NewRunFromReport(*report)
	repo := &MockRunRepository{}
	repo.On("GetRun", mock.Anything, report.RunID).Return(stored, nil)

	got, err := NewAnalysisService(cindex.NewEngine(), repo, quietLogger()).
		GetRun(context.Background(), report.RunID)

	assert.NoError(t, err)
	assert.Equal(t, report.Summary.Mean, got.Summary.Mean)
	assert.Equal(t, report.Summary.P25, got.Summary.P25)
	assert.Equal(t, report.Summary.P75, got.Summary.P75)
	assert.Equal(t, report.Summary.SuggestedThreshold, got.Summary.SuggestedThreshold)
}
