package calibration

import (
	"errors"
	"fmt"
)

// ErrNoTransform is matched by every error that means a fit produced no
// usable transform. These are routine while a calibration is incomplete.
var ErrNoTransform = errors.New("no transform")

var (
	// ErrInsufficientSamples is returned when fewer samples than the engine's
	// floor are available.
	ErrInsufficientSamples = fmt.Errorf("%w: insufficient samples", ErrNoTransform)

	// ErrSingularSystem is returned when elimination meets a pivot too small
	// to divide by.
	ErrSingularSystem = fmt.Errorf("%w: singular system", ErrNoTransform)
)

// DimensionError reports a feature vector whose length does not match the
// engine or transform it was passed to. It indicates a programming error such
// as applying a transform fitted under a different feature schema.
type DimensionError struct {
	Want int
	Got  int
	// Sample is the index of the offending sample, or -1 outside a fit.
	Sample int
}

func (e *DimensionError) Error() string {
	if e.Sample >= 0 {
		return fmt.Sprintf("calibration: sample %d has %d features, want %d", e.Sample, e.Got, e.Want)
	}
	return fmt.Sprintf("calibration: feature vector has %d values, want %d", e.Got, e.Want)
}
