package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
	"speccoh/domain/spectrum"
	"speccoh/internal"
	apperrors "speccoh/internal/errors"
	"speccoh/ports"
)

// LoaderRegistry dispatches file paths to format loaders by extension. A
// forced loader, when set, claims every path regardless of extension.
type LoaderRegistry struct {
	byExt  map[string]ports.SpectrumLoader
	forced ports.SpectrumLoader
}

// NewLoaderRegistry builds a registry from the given loaders. Later loaders
// win on extension collisions.
func NewLoaderRegistry(loaders ...ports.SpectrumLoader) *LoaderRegistry {
	byExt := make(map[string]ports.SpectrumLoader)
	for _, loader := range loaders {
		for _, ext := range loader.Extensions() {
			byExt[strings.ToLower(ext)] = loader
		}
	}
	return &LoaderRegistry{byExt: byExt}
}

// NewForcedRegistry builds a registry that reads every path with the one
// given loader, ignoring extensions.
func NewForcedRegistry(loader ports.SpectrumLoader) *LoaderRegistry {
	return &LoaderRegistry{forced: loader}
}

// For returns the loader claiming path's extension.
func (r *LoaderRegistry) For(path string) (ports.SpectrumLoader, error) {
	if r.forced != nil {
		return r.forced, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, ext)
	}
	return loader, nil
}

// Load reads path with whichever loader claims its extension.
func (r *LoaderRegistry) Load(ctx context.Context, path string) (spectrum.Spectrum, error) {
	loader, err := r.For(path)
	if err != nil {
		return spectrum.Spectrum{}, err
	}
	return loader.Load(ctx, path)
}

// BatchService analyzes whole directories of spectra with bounded
// concurrency. Items never affect each other: a file that fails to load or
// analyze occupies its result slot with an error while the rest proceed.
type BatchService struct {
	analysis *AnalysisService
	loaders  *LoaderRegistry
	workers  int64
	logger   *internal.Logger
}

// BatchRequest defines the inputs for a directory batch
type BatchRequest struct {
	Dir           string
	Pattern       string // glob relative to Dir, e.g. "*.fits"
	Params        coherence.Params
	Threshold     float64
	AutoThreshold bool
	Save          bool
}

// BatchItem is one result slot, in input order. Exactly one of Report and
// Err is set.
type BatchItem struct {
	Path   string            `json:"path"`
	Report *coherence.Report `json:"report,omitempty"`
	Err    error             `json:"-"`
}

// BatchResult contains the complete output of a batch run
type BatchResult struct {
	Items     []BatchItem `json:"items"`
	Analyzed  int         `json:"analyzed"`
	Failed    int         `json:"failed"`
	RuntimeMs int64       `json:"runtime_ms"`
}

// NewBatchService creates a batch service with the given worker bound.
func NewBatchService(analysis *AnalysisService, loaders *LoaderRegistry, workers int, logger *internal.Logger) *BatchService {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &BatchService{
		analysis: analysis,
		loaders:  loaders,
		workers:  int64(workers),
		logger:   logger,
	}
}

// RunBatch globs Dir/Pattern and analyzes every match. The returned error
// covers setup only (bad glob) or cancellation; per-file failures live in
// the items.
func (s *BatchService) RunBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	startTime := time.Now()

	paths, err := filepath.Glob(filepath.Join(req.Dir, req.Pattern))
	if err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("bad glob pattern %q: %v", req.Pattern, err))
	}
	sort.Strings(paths)

	s.logger.Info("[BatchService] Batch over %s: %d files, %d workers", req.Dir, len(paths), s.workers)

	items := make([]BatchItem, len(paths))
	sem := semaphore.NewWeighted(s.workers)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(idx int, p string) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				items[idx] = BatchItem{Path: p, Err: err}
				return
			}
			defer sem.Release(1)

			items[idx] = s.analyzeOne(ctx, p, req)
		}(i, path)
	}
	wg.Wait()

	result := &BatchResult{
		Items:     items,
		RuntimeMs: time.Since(startTime).Milliseconds(),
	}
	for _, item := range items {
		if item.Err != nil {
			result.Failed++
		} else {
			result.Analyzed++
		}
	}

	s.logger.Info("[BatchService] Batch done: %d analyzed, %d failed in %dms",
		result.Analyzed, result.Failed, result.RuntimeMs)

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// AnalyzeFile loads one file and runs the pipeline on it.
func (s *BatchService) AnalyzeFile(ctx context.Context, path string, req BatchRequest) (*coherence.Report, error) {
	item := s.analyzeOne(ctx, path, req)
	if item.Err != nil {
		return nil, item.Err
	}
	return item.Report, nil
}

func (s *BatchService) analyzeOne(ctx context.Context, path string, req BatchRequest) BatchItem {
	spec, err := s.loaders.Load(ctx, path)
	if err != nil {
		s.logger.Warn("[BatchService] Load failed for %s: %v", path, err)
		return BatchItem{Path: path, Err: apperrors.LoadFailed(path, err)}
	}

	report, err := s.analysis.Analyze(ctx, AnalyzeRequest{
		Spectrum:      spec,
		Params:        req.Params,
		Threshold:     req.Threshold,
		AutoThreshold: req.AutoThreshold,
		Save:          req.Save,
	})
	if err != nil {
		s.logger.Warn("[BatchService] Analysis failed for %s: %v", path, err)
		return BatchItem{Path: path, Err: err}
	}

	return BatchItem{Path: path, Report: report}
}
