package ports

import (
	"context"

	"speccoh/domain/spectrum"
)

// SpectrumLoader loads one spectrum from a file. Implementations exist per
// on-disk format (FITS, spreadsheet/CSV); the analysis core never sees
// files, only the loaded Spectrum.
type SpectrumLoader interface {
	// Load reads the file at path into a Spectrum. The returned spectrum
	// carries Source=path and any metadata the format provides.
	Load(ctx context.Context, path string) (spectrum.Spectrum, error)

	// Extensions lists the lower-case file extensions (with dot) this
	// loader claims, e.g. ".fits".
	Extensions() []string
}
