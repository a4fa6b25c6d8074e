package calibration

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Accuracy summarizes prediction error in pixels over a validation pass.
type Accuracy struct {
	Mean    float64 `json:"mean"`
	RMS     float64 `json:"rms"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// Evaluate predicts every sample with t and reports the distance from each
// prediction to its screen target.
func Evaluate(t *Transform, samples []Sample) (Accuracy, error) {
	if len(samples) == 0 {
		return Accuracy{}, nil
	}

	errs := make([]float64, len(samples))
	for i, s := range samples {
		p, err := t.Predict(s.Features)
		if err != nil {
			return Accuracy{}, err
		}
		errs[i] = math.Hypot(p.X-s.Screen.X, p.Y-s.Screen.Y)
	}

	return Accuracy{
		Mean:    stat.Mean(errs, nil),
		RMS:     math.Sqrt(floats.Dot(errs, errs) / float64(len(errs))),
		Max:     floats.Max(errs),
		Samples: len(errs),
	}, nil
}
