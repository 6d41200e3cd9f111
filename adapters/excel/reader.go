package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"speccoh/domain/core"
	"speccoh/domain/spectrum"
)

// Column name candidates, checked case-insensitively in order.
var (
	fluxHeaders       = []string{"flux", "intensity", "counts", "signal"}
	wavelengthHeaders = []string{"wavelength", "wave", "lambda", "wl"}
	errorHeaders      = []string{"flux_err", "err", "error", "sigma", "unc"}
)

// Reader loads spectra from spreadsheet and CSV files. A header row naming
// the columns is preferred; headerless numeric files follow the usual text
// spectrum convention (flux / wavelength,flux / wavelength,flux,err by
// column count). Unparseable flux cells become NaN so row positions stay
// aligned and the analysis can exclude them.
type Reader struct {
	format string // "csv" or "xlsx" forces a parser; empty sniffs the extension
}

// NewReader creates a spreadsheet/CSV spectrum reader
func NewReader() *Reader {
	return &Reader{}
}

// NewFormatReader creates a reader that parses every file as the given
// format ("csv" or "xlsx") regardless of its extension.
func NewFormatReader(format string) *Reader {
	return &Reader{format: strings.ToLower(format)}
}

// Extensions lists the file extensions this reader claims
func (r *Reader) Extensions() []string {
	return []string{".csv", ".xlsx"}
}

// Load reads the file at path into a Spectrum
func (r *Reader) Load(ctx context.Context, path string) (spectrum.Spectrum, error) {
	if err := ctx.Err(); err != nil {
		return spectrum.Spectrum{}, err
	}

	startTime := time.Now()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return spectrum.Spectrum{}, fmt.Errorf("spectrum file not found: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if r.format != "" {
		ext = "." + r.format
	}
	var (
		rows [][]string
		err  error
	)
	switch ext {
	case ".csv":
		rows, err = readCSVRows(path)
	case ".xlsx":
		rows, err = readExcelRows(path)
	default:
		return spectrum.Spectrum{}, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return spectrum.Spectrum{}, core.NewLoadError(path, err)
	}

	spec, err := buildSpectrum(rows)
	if err != nil {
		return spectrum.Spectrum{}, core.NewLoadError(path, err)
	}

	spec.Source = path
	if spec.Target == "" {
		spec.Target = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	log.Printf("[SpectrumReader] Loaded %s: %d samples, %d finite (%.2fms)",
		path, len(spec.Flux), spec.NFinite(), float64(time.Since(startTime).Nanoseconds())/1e6)

	return spec, nil
}

func readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // tolerate ragged rows
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

func readExcelRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

// buildSpectrum turns raw string rows into a spectrum, detecting whether
// the first row is a header.
func buildSpectrum(rows [][]string) (spectrum.Spectrum, error) {
	if len(rows) == 0 {
		return spectrum.Spectrum{}, core.ErrEmptySpectrum
	}

	fluxIdx, waveIdx, errIdx, hasHeader := detectColumns(rows[0])
	data := rows
	if hasHeader {
		data = rows[1:]
	}
	if len(data) == 0 {
		return spectrum.Spectrum{}, core.ErrEmptySpectrum
	}

	spec := spectrum.New(make([]float64, 0, len(data)))
	for _, row := range data {
		spec.Flux = append(spec.Flux, cellFloat(row, fluxIdx))
		if waveIdx >= 0 {
			spec.Wavelength = append(spec.Wavelength, cellFloat(row, waveIdx))
		}
		if errIdx >= 0 {
			spec.FluxErr = append(spec.FluxErr, cellFloat(row, errIdx))
		}
	}

	if spec.NFinite() == 0 {
		return spectrum.Spectrum{}, fmt.Errorf("no numeric flux values found")
	}
	return spec, nil
}

// detectColumns resolves column indices from a header row, or falls back
// to positional convention. An unrecognized non-numeric first row is still
// skipped as a header so label rows never enter the flux array.
func detectColumns(first []string) (fluxIdx, waveIdx, errIdx int, hasHeader bool) {
	fluxIdx, waveIdx, errIdx = -1, -1, -1

	for i, cell := range first {
		name := strings.ToLower(strings.TrimSpace(cell))
		if fluxIdx < 0 && matchesAny(name, fluxHeaders) {
			fluxIdx = i
		}
		if waveIdx < 0 && matchesAny(name, wavelengthHeaders) {
			waveIdx = i
		}
		if errIdx < 0 && matchesAny(name, errorHeaders) {
			errIdx = i
		}
	}
	if fluxIdx >= 0 {
		return fluxIdx, waveIdx, errIdx, true
	}

	// Positional layout by column count
	switch {
	case len(first) >= 3:
		fluxIdx, waveIdx, errIdx = 1, 0, 2
	case len(first) == 2:
		fluxIdx, waveIdx = 1, 0
	default:
		fluxIdx = 0
	}
	return fluxIdx, waveIdx, errIdx, !isNumericRow(first)
}

// isNumericRow reports whether every non-empty cell parses as a number.
func isNumericRow(row []string) bool {
	seen := false
	for _, cell := range row {
		s := strings.TrimSpace(cell)
		if s == "" {
			continue
		}
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

func matchesAny(name string, candidates []string) bool {
	for _, c := range candidates {
		if name == c {
			return true
		}
	}
	return false
}

// cellFloat parses one cell, NaN for anything missing or non-numeric.
func cellFloat(row []string, idx int) float64 {
	if idx < 0 || idx >= len(row) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
