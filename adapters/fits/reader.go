package fits

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/astrogo/fitsio"

	"speccoh/domain/core"
	"speccoh/domain/spectrum"
)

// Column name candidates, checked case-insensitively in order.
var (
	fluxColumns       = []string{"FLUX", "SPEC", "SPECTRUM", "COUNTS"}
	wavelengthColumns = []string{"WAVELENGTH", "WAVE", "LAMBDA", "AWAV"}
	errorColumns      = []string{"FLUX_ERR", "ERR", "ERROR", "SIGMA", "STDEV"}
)

// Header cards copied into Spectrum.Meta when present.
var metaCards = []string{"OBJECT", "INSTRUME", "TELESCOP", "DATE-OBS", "EXPTIME", "ORDER"}

// Reader loads 1-D spectra from FITS files. It handles the two layouts
// reduced spectra actually ship in: a binary table HDU with labeled flux/
// wavelength/error columns, or a 1-D primary image with linear WCS
// wavelength cards. Table HDUs win when both are present.
type Reader struct{}

// NewReader creates a FITS spectrum reader
func NewReader() *Reader {
	return &Reader{}
}

// Extensions lists the file extensions this reader claims
func (r *Reader) Extensions() []string {
	return []string{".fits", ".fit", ".fts"}
}

// Load reads the file at path into a Spectrum
func (r *Reader) Load(ctx context.Context, path string) (spectrum.Spectrum, error) {
	if err := ctx.Err(); err != nil {
		return spectrum.Spectrum{}, err
	}

	startTime := time.Now()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return spectrum.Spectrum{}, fmt.Errorf("FITS file not found: %s", path)
	}

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

	spec.Source = path
	log.Printf("[FITSReader] Loaded %s: %d samples, %d finite (%.2fms)",
		path, len(spec.Flux), spec.NFinite(), float64(time.Since(startTime).Nanoseconds())/1e6)

	return spec, nil
}

// extract pulls the first usable spectrum out of an opened FITS file.
func (r *Reader) extract(f *fitsio.File) (spectrum.Spectrum, error) {
	if len(f.HDUs()) == 0 {
		return spectrum.Spectrum{}, fmt.Errorf("FITS file has no HDUs")
	}

	spec := spectrum.New(nil)

	// Primary header cards label the spectrum whichever HDU carries the data
	applyHeader(&spec, f.HDU(0).Header())

	// Prefer a table HDU with a recognizable flux column
	for _, hdu := range f.HDUs() {
		tbl, ok := hdu.(*fitsio.Table)
		if !ok {
			continue
		}
		if _, ok := findColumn(tbl.Cols(), fluxColumns); !ok {
			continue
		}
		applyHeader(&spec, tbl.Header())
		if err := r.readTable(tbl, &spec); err != nil {
			return spectrum.Spectrum{}, err
		}
		return spec, nil
	}

	// Fall back to the primary image
	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return spectrum.Spectrum{}, fmt.Errorf("no table with a flux column and no primary image")
	}
	if err := r.readImage(img, &spec); err != nil {
		return spectrum.Spectrum{}, err
	}
	return spec, nil
}

// readTable extracts flux/wavelength/error columns from a binary table.
// Cells are scanned as untyped values and coerced, so scalar-per-row
// tables and single-row vector-cell tables both work.
func (r *Reader) readTable(tbl *fitsio.Table, spec *spectrum.Spectrum) error {
	cols := tbl.Cols()

	fluxCol, _ := findColumn(cols, fluxColumns)
	waveCol, hasWave := findColumn(cols, wavelengthColumns)
	errCol, hasErr := findColumn(cols, errorColumns)

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
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("table row iteration failed: %w", err)
	}

	if len(spec.Flux) == 0 {
		return core.ErrEmptySpectrum
	}
	// Drop partial side arrays rather than hand misaligned data downstream
	if len(spec.Wavelength) > 0 && len(spec.Wavelength) != len(spec.Flux) {
		spec.Wavelength = nil
	}
	if len(spec.FluxErr) > 0 && len(spec.FluxErr) != len(spec.Flux) {
		spec.FluxErr = nil
	}
	return nil
}

// readImage extracts a 1-D primary image as flux, with wavelengths from
// linear WCS cards when present.
func (r *Reader) readImage(img fitsio.Image, spec *spectrum.Spectrum) error {
	hdr := img.Header()
	axes := hdr.Axes()

	n := 0
	switch {
	case len(axes) == 1:
		n = axes[0]
	case len(axes) == 2 && axes[1] == 1:
		n = axes[0]
	case len(axes) == 2 && axes[0] == 1:
		n = axes[1]
	default:
		return fmt.Errorf("%w: image with %d axes is not a 1-D spectrum", core.ErrUnsupportedFormat, len(axes))
	}
	if n == 0 {
		return core.ErrEmptySpectrum
	}

	flux, err := readImageData(img, hdr.Bitpix())
	if err != nil {
		return err
	}
	if len(flux) < n {
		return fmt.Errorf("image data truncated: %d of %d samples", len(flux), n)
	}
	flux = flux[:n]

	// FITS scaling: physical = raw*BSCALE + BZERO
	bscale := cardFloat(hdr, "BSCALE", 1)
	bzero := cardFloat(hdr, "BZERO", 0)
	if bscale != 1 || bzero != 0 {
		for i, v := range flux {
			flux[i] = v*bscale + bzero
		}
	}
	spec.Flux = flux

	// Linear wavelength solution (pixel p is 1-indexed in FITS)
	crval := cardFloat(hdr, "CRVAL1", math.NaN())
	cdelt := cardFloat(hdr, "CDELT1", cardFloat(hdr, "CD1_1", math.NaN()))
	if !math.IsNaN(crval) && !math.IsNaN(cdelt) {
		crpix := cardFloat(hdr, "CRPIX1", 1)
		wave := make([]float64, n)
		for i := range wave {
			wave[i] = crval + (float64(i+1)-crpix)*cdelt
		}
		spec.Wavelength = wave
	}

	return nil
}

// readImageData reads the pixel array at its native bit depth.
func readImageData(img fitsio.Image, bitpix int) ([]float64, error) {
	switch bitpix {
	case -64:
		var raw []float64
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("failed to read float64 image: %w", err)
		}
		return raw, nil
	case -32:
		var raw []float32
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("failed to read float32 image: %w", err)
		}
		return float32sTo64(raw), nil
	case 16:
		var raw []int16
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("failed to read int16 image: %w", err)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	case 32:
		var raw []int32
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("failed to read int32 image: %w", err)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	case 64:
		var raw []int64
		if err := img.Read(&raw); err != nil {
			return nil, fmt.Errorf("failed to read int64 image: %w", err)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: BITPIX %d is not a spectrum pixel type", core.ErrUnsupportedFormat, bitpix)
	}
}

// applyHeader copies identity cards into the spectrum, never overwriting
// values an earlier HDU already set.
func applyHeader(spec *spectrum.Spectrum, hdr *fitsio.Header) {
	if hdr == nil {
		return
	}
	if spec.Target == "" {
		spec.Target = cardString(hdr, "OBJECT")
	}
	if spec.Instrument == "" {
		spec.Instrument = cardString(hdr, "INSTRUME")
	}
	if spec.Order == 0 {
		spec.Order = cardInt(hdr, "ORDER", 0)
	}
	for _, name := range metaCards {
		if v := cardString(hdr, name); v != "" {
			if spec.Meta == nil {
				spec.Meta = make(map[string]string)
			}
			if _, exists := spec.Meta[name]; !exists {
				spec.Meta[name] = v
			}
		}
	}
}

// findColumn returns the exact column name matching any candidate,
// case-insensitively, in candidate priority order.
func findColumn(cols []fitsio.Column, candidates []string) (string, bool) {
	for _, want := range candidates {
		for i := range cols {
			if strings.EqualFold(cols[i].Name, want) {
				return cols[i].Name, true
			}
		}
	}
	return "", false
}

// toFloat64s coerces a scanned table cell to float64 samples. Vector cells
// yield the whole array, scalar cells a single sample.
func toFloat64s(v interface{}) ([]float64, bool) {
	switch x := v.(type) {
	case []float64:
		return x, true
	case []float32:
		return float32sTo64(x), true
	case []int16:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out, true
	case []int32:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out, true
	case []int64:
		out := make([]float64, len(x))
		for i, e := range x {
			out[i] = float64(e)
		}
		return out, true
	case float64:
		return []float64{x}, true
	case float32:
		return []float64{float64(x)}, true
	case int16:
		return []float64{float64(x)}, true
	case int32:
		return []float64{float64(x)}, true
	case int64:
		return []float64{float64(x)}, true
	case int:
		return []float64{float64(x)}, true
	default:
		return nil, false
	}
}

func float32sTo64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// cardFloat reads a numeric header card, tolerating the int/float variants
// FITS writers emit.
func cardFloat(hdr *fitsio.Header, name string, fallback float64) float64 {
	card := hdr.Get(name)
	if card == nil {
		return fallback
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

func cardInt(hdr *fitsio.Header, name string, fallback int) int {
	card := hdr.Get(name)
	if card == nil {
		return fallback
	}
	switch v := card.Value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func cardString(hdr *fitsio.Header, name string) string {
	card := hdr.Get(name)
	if card == nil {
		return ""
	}
	if s, ok := card.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
