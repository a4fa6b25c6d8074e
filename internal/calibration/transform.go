// Package calibration fits and applies per-user linear transforms from gaze
// feature vectors to screen coordinates.
package calibration

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Mode identifies how a transform was fitted.
type Mode string

const (
	// ModeRidge is the standardized, L2-regularized fit over any feature count.
	ModeRidge Mode = "ridge"
	// ModeAffine is the unregularized two-feature least-squares fit.
	ModeAffine Mode = "affine"
)

// Point is a screen position in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sample pairs an observed feature vector with the screen target the user was
// looking at.
type Sample struct {
	Features []float64 `json:"features"`
	Screen   Point     `json:"screen"`
}

// Transform maps feature vectors to screen points. It is never modified after
// a fit; Predict standardizes with the stored Mean and Std. Coefficient
// vectors hold FeatureCount weights followed by the bias.
type Transform struct {
	Mode         Mode      `json:"mode"`
	FeatureCount int       `json:"feature_count"`
	Lambda       float64   `json:"lambda"`
	CoefX        []float64 `json:"coef_x"`
	CoefY        []float64 `json:"coef_y"`
	Mean         []float64 `json:"mean"`
	Std          []float64 `json:"std"`
	Samples      int       `json:"samples"`
}

// Predict maps a feature vector to a screen point. The result is not clamped
// to any screen bounds. A malformed transform is reported through Validate's
// error.
func (t *Transform) Predict(features []float64) (Point, error) {
	if err := t.Validate(); err != nil {
		return Point{}, err
	}
	if len(features) != t.FeatureCount {
		return Point{}, &DimensionError{Want: t.FeatureCount, Got: len(features), Sample: -1}
	}

	row := t.row(features)
	return Point{
		X: floats.Dot(row, t.CoefX),
		Y: floats.Dot(row, t.CoefY),
	}, nil
}

// row standardizes features and appends the bias term.
func (t *Transform) row(features []float64) []float64 {
	row := make([]float64, len(features)+1)
	for i, v := range features {
		row[i] = (v - t.Mean[i]) / t.Std[i]
	}
	row[len(features)] = 1
	return row
}

// Validate reports a transform whose vectors do not agree with FeatureCount,
// as can happen with one decoded from outside input.
func (t *Transform) Validate() error {
	switch t.Mode {
	case ModeRidge, ModeAffine:
	default:
		return fmt.Errorf("unknown transform mode %q", t.Mode)
	}
	n := t.FeatureCount
	if n <= 0 {
		return fmt.Errorf("feature count must be positive, got %d", n)
	}
	if len(t.CoefX) != n+1 || len(t.CoefY) != n+1 {
		return &DimensionError{Want: n + 1, Got: len(t.CoefX), Sample: -1}
	}
	if len(t.Mean) != n || len(t.Std) != n {
		return &DimensionError{Want: n, Got: len(t.Mean), Sample: -1}
	}
	for _, s := range t.Std {
		if s == 0 {
			return fmt.Errorf("zero scale in transform")
		}
	}
	return nil
}
