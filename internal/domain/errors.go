package domain

import "errors"

var (
	// ErrMissingBand is returned when an image lacks a band an operation needs.
	ErrMissingBand = errors.New("missing band")
	// ErrGridMismatch is returned when rasters that must share a grid do not.
	ErrGridMismatch = errors.New("grid mismatch")
	// ErrEmptyComposite is returned when a final composite has no valid pixel.
	ErrEmptyComposite = errors.New("composite has no valid pixels")
	// ErrPixelBudgetExceeded is returned when an export grid exceeds the pixel budget.
	ErrPixelBudgetExceeded = errors.New("pixel budget exceeded")
	// ErrElevationUnavailable is returned when the elevation model does not cover a request.
	ErrElevationUnavailable = errors.New("elevation unavailable")
	// ErrInvalidRegion is returned for unparsable or degenerate export regions.
	ErrInvalidRegion = errors.New("invalid region")
)

// IsPermanent reports whether err can never succeed on retry.
// Elevation and I/O errors are transient; shape and input errors are not.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMissingBand) ||
		errors.Is(err, ErrGridMismatch) ||
		errors.Is(err, ErrInvalidRegion) ||
		errors.Is(err, ErrPixelBudgetExceeded)
}
