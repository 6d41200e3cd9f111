package spectrum

import (
	"math"

	"github.com/montanaflynn/stats"

	"speccoh/domain/core"
)

// Spectrum is a one-dimensional sampled flux series with optional
// wavelength/uncertainty arrays and pass-through metadata. The coherence
// core reads Flux only; Wavelength, FluxErr and Meta exist for labelling,
// SNR estimation and reporting and are never consumed by the numeric path.
type Spectrum struct {
	ID         core.SpectrumID   `json:"id"`
	Target     string            `json:"target,omitempty"`
	Instrument string            `json:"instrument,omitempty"`
	Source     string            `json:"source,omitempty"` // Originating file, if any
	Order      int               `json:"order,omitempty"`  // Echelle order for instruments that have them
	Wavelength []float64         `json:"wavelength,omitempty"`
	Flux       []float64         `json:"flux"`
	FluxErr    []float64         `json:"flux_err,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// New builds a spectrum around a flux array with a fresh ID.
func New(flux []float64) Spectrum {
	return Spectrum{
		ID:   core.SpectrumID(core.NewID()),
		Flux: flux,
	}
}

// Validate checks structural integrity: flux present, optional arrays
// positionally aligned with it.
func (s Spectrum) Validate() error {
	if len(s.Flux) == 0 {
		return core.ErrEmptySpectrum
	}
	if len(s.Wavelength) > 0 && len(s.Wavelength) != len(s.Flux) {
		return core.NewValidationError("wavelength", "length does not match flux")
	}
	if len(s.FluxErr) > 0 && len(s.FluxErr) != len(s.Flux) {
		return core.NewValidationError("flux_err", "length does not match flux")
	}
	return nil
}

// NFinite counts flux samples that are neither NaN nor infinite.
func (s Spectrum) NFinite() int {
	n := 0
	for _, v := range s.Flux {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			n++
		}
	}
	return n
}

// EstimateSNR returns the median per-sample flux/error ratio, the usual
// quick SNR figure for reduced spectra. Returns 0 when no error array is
// present or no finite pair exists.
func (s Spectrum) EstimateSNR() float64 {
	if len(s.FluxErr) != len(s.Flux) || len(s.Flux) == 0 {
		return 0
	}
	ratios := make([]float64, 0, len(s.Flux))
	for i, f := range s.Flux {
		e := s.FluxErr[i]
		if math.IsNaN(f) || math.IsInf(f, 0) || math.IsNaN(e) || math.IsInf(e, 0) || e <= 0 {
			continue
		}
		ratios = append(ratios, f/e)
	}
	if len(ratios) == 0 {
		return 0
	}
	snr, _ := stats.Median(ratios)
	return snr
}

// Fingerprint hashes the flux bit pattern for run bookkeeping.
func (s Spectrum) Fingerprint() core.Hash {
	return core.FluxFingerprint(s.Flux)
}
