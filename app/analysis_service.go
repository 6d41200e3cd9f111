package app

import (
	"context"
	"sort"
	"time"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
	"speccoh/domain/spectrum"
	"speccoh/internal"
	"speccoh/internal/cindex"
	apperrors "speccoh/internal/errors"
	"speccoh/models"
	"speccoh/ports"
)

// AnalysisService runs the full coherence pipeline on one spectrum:
// windowed c-index series, summary statistics, anomaly regions, grade.
// The repository is optional; with none configured the service is a pure
// in-memory pipeline.
type AnalysisService struct {
	engine *cindex.Engine
	runs   ports.RunRepository
	logger *internal.Logger
}

// AnalyzeRequest defines the inputs for one analysis pass
type AnalyzeRequest struct {
	Spectrum      spectrum.Spectrum
	Params        coherence.Params
	Threshold     float64
	AutoThreshold bool // derive the threshold from the series (mean - 2*std)
	Save          bool // persist the run when a repository is configured
}

// NewAnalysisService creates an analysis service. runs may be nil.
func NewAnalysisService(engine *cindex.Engine, runs ports.RunRepository, logger *internal.Logger) *AnalysisService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &AnalysisService{
		engine: engine,
		runs:   runs,
		logger: logger,
	}
}

// Analyze executes the pipeline and assembles the report.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalyzeRequest) (*coherence.Report, error) {
	startTime := time.Now()

	if err := req.Spectrum.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	target := req.Spectrum.Target
	if target == "" {
		target = req.Spectrum.Source
	}

	series, warnings, err := s.engine.Analyze(req.Spectrum.Flux, req.Params)
	if err != nil {
		return nil, apperrors.AnalysisFailed(target, err)
	}
	if series.Len() == 0 {
		return nil, apperrors.AnalysisFailed(target, core.NewValidationError("series",
			"no window placements fit the flux array"))
	}

	summary, err := cindex.Summarize(series)
	if err != nil {
		return nil, apperrors.AnalysisFailed(target, err)
	}

	threshold := req.Threshold
	if req.AutoThreshold {
		threshold = summary.SuggestedThreshold
		s.logger.Debug("[AnalysisService] Auto threshold for %s: %.4f", target, threshold)
	}

	regions, err := cindex.DetectRegions(series, threshold)
	if err != nil {
		return nil, apperrors.AnalysisFailed(target, err)
	}

	report := &coherence.Report{
		RunID:       core.RunID(core.NewID()),
		Target:      req.Spectrum.Target,
		Source:      req.Spectrum.Source,
		Instrument:  req.Spectrum.Instrument,
		SNR:         req.Spectrum.EstimateSNR(),
		Params:      req.Params,
		Threshold:   threshold,
		Fingerprint: req.Spectrum.Fingerprint(),
		Series:      series,
		Summary:     summary,
		Regions:     regions,
		Grade:       cindex.Grade(summary),
		Warnings:    collectWarnings(series, warnings),
		CreatedAt:   core.Now(),
	}

	if req.Save && s.runs != nil {
		if err := s.runs.SaveRun(ctx, models.NewRunFromReport(*report)); err != nil {
			return nil, apperrors.Wrap(err, "failed to save analysis run")
		}
		s.logger.Info("[AnalysisService] Saved run %s for %s", report.RunID, target)
	}

	s.logger.Info("[AnalysisService] Analyzed %s: %d windows, %d regions, grade %s (%v)",
		target, series.Len(), len(regions), report.Grade, time.Since(startTime).Round(time.Millisecond))

	return report, nil
}

// GetRun loads a stored run and rebuilds its report form.
func (s *AnalysisService) GetRun(ctx context.Context, id core.RunID) (*coherence.Report, error) {
	if s.runs == nil {
		return nil, apperrors.NotFound("run")
	}
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	report := run.ToReport()
	// Percentiles and the suggested threshold are not stored as columns;
	// rebuild them from the stored series.
	if report.Series.Len() > 0 {
		if summary, sumErr := cindex.Summarize(report.Series); sumErr == nil {
			report.Summary = summary
		}
	}
	return &report, nil
}

// ListRuns returns the most recent stored runs, newest first.
func (s *AnalysisService) ListRuns(ctx context.Context, limit int) ([]*models.AnalysisRun, error) {
	if s.runs == nil {
		return []*models.AnalysisRun{}, nil
	}
	return s.runs.ListRuns(ctx, limit)
}

// collectWarnings flattens engine-level skip warnings and per-window
// exclusion warnings into one report-level list, ordered by position.
func collectWarnings(series coherence.Series, engineWarnings []coherence.Warning) []coherence.Warning {
	var all []coherence.Warning
	all = append(all, engineWarnings...)
	for _, ws := range series {
		all = append(all, ws.Warnings...)
	}
	if len(all) == 0 {
		return nil
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Position < all[j].Position })
	return all
}
