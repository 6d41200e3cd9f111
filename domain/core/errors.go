package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrRunNotFound      = fmt.Errorf("%w: analysis run", ErrNotFound)
	ErrSpectrumNotFound = fmt.Errorf("%w: spectrum", ErrNotFound)

	// Analysis errors
	ErrInvalidWindow     = errors.New("invalid window")
	ErrInvalidParameters = errors.New("invalid analysis parameters")
	ErrEmptySeries       = errors.New("empty coherence series")
	ErrInvalidThreshold  = errors.New("anomaly threshold out of range")

	// Ingestion errors
	ErrLoadFailed        = errors.New("spectrum load failed")
	ErrUnsupportedFormat = errors.New("unsupported spectrum format")
	ErrEmptySpectrum     = errors.New("spectrum contains no flux samples")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

func NewInvalidWindowError(length, finite int, reason string) error {
	return fmt.Errorf("%w: length %d, finite samples %d: %s", ErrInvalidWindow, length, finite, reason)
}

func NewInvalidParameterError(name string, value int, reason string) error {
	return fmt.Errorf("%w: %s=%d: %s", ErrInvalidParameters, name, value, reason)
}

func NewInvalidThresholdError(threshold float64) error {
	return fmt.Errorf("%w: %g is outside [0, 1]", ErrInvalidThreshold, threshold)
}

func NewLoadError(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrLoadFailed, path, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAnalysisError(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrInvalidParameters) ||
		errors.Is(err, ErrEmptySeries) ||
		errors.Is(err, ErrInvalidThreshold)
}

func IsLoadError(err error) bool {
	return errors.Is(err, ErrLoadFailed) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptySpectrum)
}
