package filter

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"gonum.org/v1/gonum/stat"
)

const frame = 33 * time.Millisecond

func TestOneEuro_FirstCallPassthrough(t *testing.T) {
	f := NewOneEuro(DefaultConfig())

	if got := f.Filter(42.5, 5*time.Second); got != 42.5 {
		t.Errorf("first Filter() = %f, want 42.5", got)
	}
	if v, ok := f.Last(); !ok || v != 42.5 {
		t.Errorf("Last() = (%f, %v), want (42.5, true)", v, ok)
	}
}

func TestOneEuro_ConstantInput(t *testing.T) {
	f := NewOneEuro(DefaultConfig())

	for i := 0; i < 100; i++ {
		got := f.Filter(3.25, time.Duration(i)*frame)
		if math.Abs(got-3.25) > 1e-12 {
			t.Fatalf("Filter() at step %d = %f, want 3.25", i, got)
		}
	}
}

func TestOneEuro_ReducesVariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := NewOneEuro(GazeConfig())

	var raw, smoothed []float64
	for i := 0; i < 300; i++ {
		v := 100 + rng.NormFloat64()*5
		raw = append(raw, v)
		smoothed = append(smoothed, f.Filter(v, time.Duration(i)*frame))
	}

	// Skip the warm-up so the passthrough sample does not dominate.
	rv, sv := stat.Variance(raw[30:], nil), stat.Variance(smoothed[30:], nil)
	if sv >= rv {
		t.Errorf("filtered variance %f not below raw variance %f", sv, rv)
	}
}

func TestOneEuro_NonIncreasingTimestamp(t *testing.T) {
	f := NewOneEuro(DefaultConfig())
	f.Filter(1, time.Second)
	want := f.Filter(2, time.Second+frame)

	tests := []struct {
		name string
		ts   time.Duration
	}{
		{"same timestamp", time.Second + frame},
		{"earlier timestamp", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Filter(1000, tt.ts)
			if math.IsNaN(got) || math.IsInf(got, 0) {
				t.Fatalf("Filter() = %f, want finite", got)
			}
			if got != want {
				t.Errorf("Filter() = %f, want last value %f", got, want)
			}
		})
	}
}

func TestOneEuro_TinyIntervalAndJump(t *testing.T) {
	f := NewOneEuro(PoseConfig())
	f.Filter(0, 0)

	got := f.Filter(1e9, time.Nanosecond)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("Filter() = %f, want finite", got)
	}
	got = f.Filter(-1e9, 2*time.Nanosecond)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("Filter() = %f, want finite", got)
	}
}

func TestOneEuro_BetaReducesLag(t *testing.T) {
	slow := NewOneEuro(Config{MinCutoff: 1, Beta: 0, DerivativeCutoff: 1})
	fast := NewOneEuro(Config{MinCutoff: 1, Beta: 1, DerivativeCutoff: 1})

	var s, q float64
	for i := 0; i < 30; i++ {
		ts := time.Duration(i) * frame
		v := float64(i) * 10
		s = slow.Filter(v, ts)
		q = fast.Filter(v, ts)
	}

	target := 290.0
	if math.Abs(target-q) >= math.Abs(target-s) {
		t.Errorf("beta>0 lag %f not below beta=0 lag %f", target-q, target-s)
	}
}

func TestOneEuro_Reset(t *testing.T) {
	f := NewOneEuro(DefaultConfig())
	f.Filter(10, 0)
	f.Filter(20, frame)

	f.Reset()
	if _, ok := f.Last(); ok {
		t.Error("Last() reports a sample after Reset")
	}
	if got := f.Filter(-5, 0); got != -5 {
		t.Errorf("Filter() after Reset = %f, want passthrough -5", got)
	}
}

func TestPoint(t *testing.T) {
	p := NewPoint(GazeConfig())

	x, y := p.Filter(960, 540, 0)
	if x != 960 || y != 540 {
		t.Errorf("first Filter() = (%f, %f), want (960, 540)", x, y)
	}

	x, y = p.Filter(1000, 500, frame)
	if x <= 960 || x >= 1000 || y >= 540 || y <= 500 {
		t.Errorf("Filter() = (%f, %f), want between previous and new value", x, y)
	}

	p.Reset()
	if x, y = p.Filter(1, 2, frame); x != 1 || y != 2 {
		t.Errorf("Filter() after Reset = (%f, %f), want (1, 2)", x, y)
	}
}

func TestPose(t *testing.T) {
	p := NewPose(PoseConfig())
	p.Filter(0, 0, 0, 0)

	yaw, pitch, roll := p.Filter(30, -10, 5, frame)
	if yaw <= 0 || yaw >= 30 || pitch >= 0 || pitch <= -10 || roll <= 0 || roll >= 5 {
		t.Errorf("Filter() = (%f, %f, %f), want each angle between 0 and its target", yaw, pitch, roll)
	}

	p.Reset()
	yaw, pitch, roll = p.Filter(30, -10, 5, frame)
	if yaw != 30 || pitch != -10 || roll != 5 {
		t.Errorf("Filter() after Reset = (%f, %f, %f), want passthrough", yaw, pitch, roll)
	}
}
