package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"speccoh/domain/coherence"
	"speccoh/domain/core"
	"speccoh/domain/spectrum"
	"speccoh/internal/cindex"
)

// fakeLoader serves synthetic spectra for any .spec path and tracks how
// many loads run at once.
type fakeLoader struct {
	inFlight int64
	maxSeen  int64
	delay    time.Duration
}

func (f *fakeLoader) Load(ctx context.Context, path string) (spectrum.Spectrum, error) {
	cur := atomic.AddInt64(&f.inFlight, 1)
	defer atomic.AddInt64(&f.inFlight, -1)
	for {
		seen := atomic.LoadInt64(&f.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt64(&f.maxSeen, seen, cur) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if strings.Contains(filepath.Base(path), "bad") {
		return spectrum.Spectrum{}, fmt.Errorf("corrupt spectrum file")
	}

	s := spectrum.New(smoothFlux(128))
	s.Source = path
	s.Target = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return s, nil
}

func (f *fakeLoader) Extensions() []string { return []string{".spec"} }

func writeBatchDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to seed batch dir: %v", err)
		}
	}
	return dir
}

func newTestBatchService(loader *fakeLoader, workers int) *BatchService {
	analysis := NewAnalysisService(cindex.NewEngine(), nil, quietLogger())
	return NewBatchService(analysis, NewLoaderRegistry(loader), workers, quietLogger())
}

func batchParams() coherence.Params {
	return coherence.Params{Window: 32, Step: 16}
}

func TestBatchService_RunBatch(t *testing.T) {
	dir := writeBatchDir(t, "a.spec", "b.spec", "c.spec")
	svc := newTestBatchService(&fakeLoader{}, 2)

	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Dir:       dir,
		Pattern:   "*.spec",
		Params:    batchParams(),
		Threshold: 0.5,
	})

	assert.NoError(t, err)
	assert.Len(t, result.Items, 3)
	assert.Equal(t, 3, result.Analyzed)
	assert.Equal(t, 0, result.Failed)

	// Results keep sorted path order regardless of completion order
	assert.True(t, strings.HasSuffix(result.Items[0].Path, "a.spec"))
	assert.True(t, strings.HasSuffix(result.Items[1].Path, "b.spec"))
	assert.True(t, strings.HasSuffix(result.Items[2].Path, "c.spec"))

	for _, item := range result.Items {
		assert.NotNil(t, item.Report)
		assert.NoError(t, item.Err)
		assert.Equal(t, item.Path, item.Report.Source)
	}
}

func TestBatchService_RunBatch_FailureIsolation(t *testing.T) {
	dir := writeBatchDir(t, "good1.spec", "bad.spec", "good2.spec")
	svc := newTestBatchService(&fakeLoader{}, 4)

	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Dir:       dir,
		Pattern:   "*.spec",
		Params:    batchParams(),
		Threshold: 0.5,
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, result.Analyzed)
	assert.Equal(t, 1, result.Failed)

	for _, item := range result.Items {
		if strings.Contains(item.Path, "bad") {
			assert.Error(t, item.Err)
			assert.Nil(t, item.Report)
		} else {
			assert.NoError(t, item.Err)
			assert.NotNil(t, item.Report)
		}
	}
}

func TestBatchService_RunBatch_BoundsConcurrency(t *testing.T) {
	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("s%d.spec", i)
	}
	dir := writeBatchDir(t, names...)

	loader := &fakeLoader{delay: 20 * time.Millisecond}
	svc := newTestBatchService(loader, 2)

	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Dir:       dir,
		Pattern:   "*.spec",
		Params:    batchParams(),
		Threshold: 0.5,
	})

	assert.NoError(t, err)
	assert.Equal(t, 8, result.Analyzed)
	assert.LessOrEqual(t, atomic.LoadInt64(&loader.maxSeen), int64(2),
		"no more loads in flight than workers")
}

func TestBatchService_RunBatch_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	svc := newTestBatchService(&fakeLoader{}, 2)

	result, err := svc.RunBatch(context.Background(), BatchRequest{
		Dir:       dir,
		Pattern:   "*.spec",
		Params:    batchParams(),
		Threshold: 0.5,
	})

	assert.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 0, result.Analyzed)
}

func TestBatchService_RunBatch_Cancellation(t *testing.T) {
	dir := writeBatchDir(t, "a.spec", "b.spec", "c.spec")
	svc := newTestBatchService(&fakeLoader{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.RunBatch(ctx, BatchRequest{
		Dir:       dir,
		Pattern:   "*.spec",
		Params:    batchParams(),
		Threshold: 0.5,
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, result)
	assert.Equal(t, 3, result.Failed, "canceled items still occupy their slots")
}

func TestBatchService_AnalyzeFile(t *testing.T) {
	dir := writeBatchDir(t, "single.spec")
	svc := newTestBatchService(&fakeLoader{}, 1)

	report, err := svc.AnalyzeFile(context.Background(), filepath.Join(dir, "single.spec"), BatchRequest{
		Params:    batchParams(),
		Threshold: 0.5,
	})

	assert.NoError(t, err)
	assert.Equal(t, "single", report.Target)
}

func TestLoaderRegistry_UnsupportedExtension(t *testing.T) {
	registry := NewLoaderRegistry(&fakeLoader{})

	_, err := registry.For("/data/spectrum.dat")
	assert.ErrorIs(t, err, core.ErrUnsupportedFormat)

	loader, err := registry.For("/data/spectrum.SPEC")
	assert.NoError(t, err, "extension match is case-insensitive")
	assert.NotNil(t, loader)
}

func TestLoaderRegistry_Forced(t *testing.T) {
	forced := &fakeLoader{}
	registry := NewForcedRegistry(forced)

	for _, path := range []string{"/data/spectrum.dat", "/data/spectrum.fits", "/data/noext"} {
		loader, err := registry.For(path)
		assert.NoError(t, err)
		assert.Same(t, forced, loader)
	}
}
