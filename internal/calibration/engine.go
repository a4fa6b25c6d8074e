package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minStd is the standard deviation below which a feature is treated as
// constant and left unscaled.
const minStd = 1e-8

// MinAffineSamples is the sample floor for FitAffine.
const MinAffineSamples = 5

// Config configures an Engine.
type Config struct {
	// FeatureCount is the length every sample and prediction vector must have.
	FeatureCount int `json:"feature_count"`
	// Lambda is the ridge penalty added to the diagonal for every feature
	// except the bias.
	Lambda float64 `json:"lambda"`
	// MinSamples is the low end of the sample floor. Zero selects a default
	// from FeatureCount.
	MinSamples int `json:"min_samples"`
	// Mode selects the fit. ModeAffine requires FeatureCount 2.
	Mode Mode `json:"mode"`
}

// DefaultConfig returns a ridge configuration for vectors of featureCount.
func DefaultConfig(featureCount int) Config {
	return Config{
		FeatureCount: featureCount,
		Lambda:       1.0,
		MinSamples:   defaultMinSamples(featureCount),
		Mode:         ModeRidge,
	}
}

// Low-dimensional geometric vectors fit from a short nine-point pass;
// appearance vectors need a longer collection.
func defaultMinSamples(featureCount int) int {
	if featureCount <= 8 {
		return 7
	}
	return 20
}

// Engine fits transforms for one declared feature count. It holds no samples
// and is safe for concurrent use.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine, filling unset fields with defaults.
func NewEngine(cfg Config) *Engine {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = defaultMinSamples(cfg.FeatureCount)
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeRidge
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration with defaults applied.
func (e *Engine) Config() Config {
	return e.cfg
}

// FeatureCount returns the vector length the engine accepts.
func (e *Engine) FeatureCount() int {
	return e.cfg.FeatureCount
}

// MinSamples returns the number of samples Fit needs.
func (e *Engine) MinSamples() int {
	if e.cfg.Mode == ModeAffine {
		return MinAffineSamples
	}
	return max(e.cfg.FeatureCount+1, e.cfg.MinSamples)
}

// Fit builds a transform from samples. It returns an error matching
// ErrNoTransform when there are too few samples or the system is singular,
// and a *DimensionError when a sample has the wrong length.
func (e *Engine) Fit(samples []Sample) (*Transform, error) {
	if err := e.checkDims(samples); err != nil {
		return nil, err
	}
	if e.cfg.Mode == ModeAffine {
		return FitAffine(samples)
	}
	if floor := e.MinSamples(); len(samples) < floor {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(samples), floor)
	}

	d := e.cfg.FeatureCount
	n := len(samples)

	mean := make([]float64, d)
	std := make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i, s := range samples {
			col[i] = s.Features[j]
		}
		mean[j], std[j] = stat.PopMeanStdDev(col, nil)
		if std[j] < minStd || math.IsNaN(std[j]) {
			std[j] = 1
		}
	}

	t := &Transform{
		Mode:         ModeRidge,
		FeatureCount: d,
		Lambda:       e.cfg.Lambda,
		Mean:         mean,
		Std:          std,
		Samples:      n,
	}

	f := mat.NewDense(n, d+1, nil)
	y := mat.NewDense(n, 2, nil)
	for i, s := range samples {
		f.SetRow(i, t.row(s.Features))
		y.Set(i, 0, s.Screen.X)
		y.Set(i, 1, s.Screen.Y)
	}

	var normal mat.Dense
	normal.Mul(f.T(), f)
	for j := 0; j < d; j++ {
		normal.Set(j, j, normal.At(j, j)+e.cfg.Lambda)
	}

	var rhs mat.Dense
	rhs.Mul(f.T(), y)

	coef, err := solve(&normal, &rhs)
	if err != nil {
		return nil, err
	}

	t.CoefX = mat.Col(nil, 0, coef)
	t.CoefY = mat.Col(nil, 1, coef)
	return t, nil
}

func (e *Engine) checkDims(samples []Sample) error {
	for i, s := range samples {
		if len(s.Features) != e.cfg.FeatureCount {
			return &DimensionError{Want: e.cfg.FeatureCount, Got: len(s.Features), Sample: i}
		}
	}
	return nil
}

// FitAffine fits screen = a·f0 + b·f1 + c per axis by plain least squares on
// raw two-feature vectors, solving the 3×3 normal equations in closed form.
func FitAffine(samples []Sample) (*Transform, error) {
	for i, s := range samples {
		if len(s.Features) != 2 {
			return nil, &DimensionError{Want: 2, Got: len(s.Features), Sample: i}
		}
	}
	if len(samples) < MinAffineSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientSamples, len(samples), MinAffineSamples)
	}

	var sxx, sxy, syy, sx, sy, n float64
	var bx, by [3]float64
	for _, s := range samples {
		u, v := s.Features[0], s.Features[1]
		sxx += u * u
		sxy += u * v
		syy += v * v
		sx += u
		sy += v
		n++

		bx[0] += u * s.Screen.X
		bx[1] += v * s.Screen.X
		bx[2] += s.Screen.X
		by[0] += u * s.Screen.Y
		by[1] += v * s.Screen.Y
		by[2] += s.Screen.Y
	}

	m := [3][3]float64{
		{sxx, sxy, sx},
		{sxy, syy, sy},
		{sx, sy, n},
	}
	// The determinant of a Gram matrix is bounded by the product of its
	// diagonal. Their ratio does not change when the features are rescaled.
	det := det3(m)
	if math.Abs(det) <= pivotEpsilon*math.Abs(m[0][0]*m[1][1]*m[2][2]) {
		return nil, ErrSingularSystem
	}

	return &Transform{
		Mode:         ModeAffine,
		FeatureCount: 2,
		CoefX:        cramer(m, bx, det),
		CoefY:        cramer(m, by, det),
		Mean:         []float64{0, 0},
		Std:          []float64{1, 1},
		Samples:      len(samples),
	}, nil
}

func det3(m [3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// cramer solves m·x = b given det(m).
func cramer(m [3][3]float64, b [3]float64, det float64) []float64 {
	x := make([]float64, 3)
	for c := 0; c < 3; c++ {
		mc := m
		for r := 0; r < 3; r++ {
			mc[r][c] = b[r]
		}
		x[c] = det3(mc) / det
	}
	return x
}
