// Package filter implements the One Euro adaptive low-pass filter and
// multi-channel compositions of it for gaze points and head pose.
package filter

import (
	"math"
	"time"
)

// Config holds One Euro filter parameters.
type Config struct {
	// MinCutoff is the cutoff frequency in Hz applied when the signal is still.
	// Lower values smooth more and lag more.
	MinCutoff float64 `json:"min_cutoff"`
	// Beta scales how quickly the cutoff rises with signal speed.
	Beta float64 `json:"beta"`
	// DerivativeCutoff is the cutoff frequency in Hz for the derivative estimate.
	DerivativeCutoff float64 `json:"derivative_cutoff"`
}

// DefaultConfig returns a general purpose configuration.
func DefaultConfig() Config {
	return Config{
		MinCutoff:        1.0,
		Beta:             0.007,
		DerivativeCutoff: 1.0,
	}
}

// GazeConfig returns a configuration tuned for screen-space gaze points,
// which jitter by several pixels per frame but also make fast saccades.
func GazeConfig() Config {
	return Config{
		MinCutoff:        0.5,
		Beta:             0.01,
		DerivativeCutoff: 1.0,
	}
}

// PoseConfig returns a configuration tuned for head Euler angles in degrees.
// Single-frame landmark spikes of 10-15 degrees stay well inside the
// looking-away thresholds while a real head turn crosses them within a
// few frames.
func PoseConfig() Config {
	return Config{
		MinCutoff:        0.5,
		Beta:             0.01,
		DerivativeCutoff: 1.0,
	}
}

// OneEuro smooths a single scalar channel. It is not safe for concurrent use.
type OneEuro struct {
	cfg Config

	initialized bool
	lastTime    time.Duration
	lastValue   float64
	lastDeriv   float64
}

// NewOneEuro creates a filter with the given configuration.
func NewOneEuro(cfg Config) *OneEuro {
	return &OneEuro{cfg: cfg}
}

// Config returns the filter configuration.
func (f *OneEuro) Config() Config {
	return f.cfg
}

// Filter smooths value observed at ts, an offset from any fixed origin shared
// by all calls. The first call returns value unchanged. A call whose timestamp
// is not after the previous one returns the previous output.
func (f *OneEuro) Filter(value float64, ts time.Duration) float64 {
	if !f.initialized {
		f.initialized = true
		f.lastTime = ts
		f.lastValue = value
		f.lastDeriv = 0
		return value
	}

	te := (ts - f.lastTime).Seconds()
	if te <= 0 {
		return f.lastValue
	}

	dx := (value - f.lastValue) / te
	dxHat := lowPass(f.lastDeriv, dx, smoothingFactor(te, f.cfg.DerivativeCutoff))

	cutoff := f.cfg.MinCutoff + f.cfg.Beta*math.Abs(dxHat)
	xHat := lowPass(f.lastValue, value, smoothingFactor(te, cutoff))

	f.lastTime = ts
	f.lastValue = xHat
	f.lastDeriv = dxHat
	return xHat
}

// Last returns the most recent output and whether the filter has seen a sample.
func (f *OneEuro) Last() (float64, bool) {
	return f.lastValue, f.initialized
}

// Reset clears the filter so the next call passes through.
func (f *OneEuro) Reset() {
	f.initialized = false
	f.lastTime = 0
	f.lastValue = 0
	f.lastDeriv = 0
}

// smoothingFactor returns alpha = 1/(1 + tau/te) with tau = 1/(2π·fc).
func smoothingFactor(te, cutoff float64) float64 {
	if cutoff <= 0 {
		return 0
	}
	tau := 1 / (2 * math.Pi * cutoff)
	return 1 / (1 + tau/te)
}

func lowPass(prev, value, alpha float64) float64 {
	return alpha*value + (1-alpha)*prev
}
