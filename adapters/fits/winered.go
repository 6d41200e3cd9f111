package fits

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"github.com/astrogo/fitsio"

	"speccoh/domain/core"
	"speccoh/domain/spectrum"
)

// WINERED per-order products: FLUX is the reduced spectrum, FLUX_RAW the
// pre-correction one; MASK flags bad samples.
var (
	wineredFluxColumns = []string{"FLUX", "FLUX_RAW"}
	wineredMaskColumns = []string{"MASK", "FLAG"}
)

// WineredReader loads per-order spectra produced by the WINERED reduction
// pipeline. It prefers the corrected FLUX column over FLUX_RAW and turns
// masked samples into NaN so the analysis excludes them instead of
// scoring instrument artifacts.
type WineredReader struct {
	base *Reader
}

// NewWineredReader creates a WINERED pipeline reader
func NewWineredReader() *WineredReader {
	return &WineredReader{base: NewReader()}
}

// Extensions lists the file extensions this reader claims
func (r *WineredReader) Extensions() []string {
	return r.base.Extensions()
}

// Load reads the file at path into a Spectrum
func (r *WineredReader) Load(ctx context.Context, path string) (spectrum.Spectrum, error) {
	if err := ctx.Err(); err != nil {
		return spectrum.Spectrum{}, err
	}

	startTime := time.Now()

	file, err := os.Open(path)
	if err != nil {
		return spectrum.Spectrum{}, fmt.Errorf("failed to open FITS file: %w", err)
	}
	defer file.Close()

	f, err := fitsio.Open(file)
	if err != nil {
		return spectrum.Spectrum{}, core.NewLoadError(path, err)
	}
	defer f.Close()

	spec, err := r.extract(f)
	if err != nil {
		return spectrum.Spectrum{}, core.NewLoadError(path, err)
	}

	if spec.Instrument == "" {
		spec.Instrument = "WINERED"
	}
	spec.Source = path

	log.Printf("[WineredReader] Loaded %s order %d: %d samples, %d masked (%.2fms)",
		path, spec.Order, len(spec.Flux), len(spec.Flux)-spec.NFinite(),
		float64(time.Since(startTime).Nanoseconds())/1e6)

	return spec, nil
}

func (r *WineredReader) extract(f *fitsio.File) (spectrum.Spectrum, error) {
	if len(f.HDUs()) == 0 {
		return spectrum.Spectrum{}, fmt.Errorf("FITS file has no HDUs")
	}

	spec := spectrum.New(nil)
	applyHeader(&spec, f.HDU(0).Header())

	for _, hdu := range f.HDUs() {
		tbl, ok := hdu.(*fitsio.Table)
		if !ok {
			continue
		}
		if _, ok := findColumn(tbl.Cols(), wineredFluxColumns); !ok {
			continue
		}
		applyHeader(&spec, tbl.Header())
		if err := r.readOrderTable(tbl, &spec); err != nil {
			return spectrum.Spectrum{}, err
		}
		return spec, nil
	}

	// Older pipeline versions write plain image orders
	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return spectrum.Spectrum{}, fmt.Errorf("no WINERED flux table and no primary image")
	}
	if err := r.base.readImage(img, &spec); err != nil {
		return spectrum.Spectrum{}, err
	}
	return spec, nil
}

func (r *WineredReader) readOrderTable(tbl *fitsio.Table, spec *spectrum.Spectrum) error {
	cols := tbl.Cols()

	fluxCol, _ := findColumn(cols, wineredFluxColumns)
	waveCol, hasWave := findColumn(cols, wavelengthColumns)
	errCol, hasErr := findColumn(cols, errorColumns)
	maskCol, hasMask := findColumn(cols, wineredMaskColumns)

	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return fmt.Errorf("failed to read table rows: %w", err)
	}
	defer rows.Close()

	cells := map[string]interface{}{fluxCol: nil}
	if hasWave {
		cells[waveCol] = nil
	}
	if hasErr {
		cells[errCol] = nil
	}
	if hasMask {
		cells[maskCol] = nil
	}

	var mask []float64
	for rows.Next() {
		if err := rows.ScanMap(cells); err != nil {
			return fmt.Errorf("failed to scan table row: %w", err)
		}

		flux, ok := toFloat64s(cells[fluxCol])
		if !ok {
			return fmt.Errorf("flux column %q has unusable type %T", fluxCol, cells[fluxCol])
		}
		spec.Flux = append(spec.Flux, flux...)

		if hasWave {
			if wave, ok := toFloat64s(cells[waveCol]); ok {
				spec.Wavelength = append(spec.Wavelength, wave...)
			}
		}
		if hasErr {
			if ferr, ok := toFloat64s(cells[errCol]); ok {
				spec.FluxErr = append(spec.FluxErr, ferr...)
			}
		}
		if hasMask {
			if m, ok := toFloat64s(cells[maskCol]); ok {
				mask = append(mask, m...)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("table row iteration failed: %w", err)
	}

	if len(spec.Flux) == 0 {
		return core.ErrEmptySpectrum
	}
	if len(spec.Wavelength) > 0 && len(spec.Wavelength) != len(spec.Flux) {
		spec.Wavelength = nil
	}
	if len(spec.FluxErr) > 0 && len(spec.FluxErr) != len(spec.Flux) {
		spec.FluxErr = nil
	}

	applyMask(spec.Flux, mask)
	return nil
}

// applyMask NaNs out samples whose mask value is non-zero.
func applyMask(flux, mask []float64) {
	if len(mask) != len(flux) {
		return
	}
	for i, m := range mask {
		if m != 0 {
			flux[i] = math.NaN()
		}
	}
}
