package app

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/drishti/internal/attention"
	"github.com/ayusman/drishti/internal/calibration"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/features"
	"github.com/ayusman/drishti/internal/filter"
	"github.com/ayusman/drishti/internal/store"
	"gocv.io/x/gocv"
)

const step = 100 * time.Millisecond

func newTestApp(t *testing.T, cfg Config) (*App, *detector.MockDetector) {
	t.Helper()
	if cfg.PluginDir == "" {
		cfg.PluginDir = t.TempDir()
	}
	a := New(cfg)
	mock := detector.NewMockDetector()
	a.SetDetector(mock)
	t.Cleanup(func() { a.Close() })
	return a, mock
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// gazeFor is the binocular gaze ratio an ideal eye would produce looking at p.
func gazeFor(p calibration.Point) []float64 {
	return []float64{(p.X - 960) / 3200, (p.Y - 540) / 5400}
}

func observed(gaze []float64) features.Features {
	return features.Features{Gaze: gaze, EAR: 0.3, Valid: true}
}

func linearTransform() *calibration.Transform {
	return &calibration.Transform{
		Mode:         calibration.ModeAffine,
		FeatureCount: 2,
		CoefX:        []float64{3200, 0, 960},
		CoefY:        []float64{0, 5400, 540},
		Mean:         []float64{0, 0},
		Std:          []float64{1, 1},
		Samples:      9,
	}
}

func TestNew_Defaults(t *testing.T) {
	a, _ := newTestApp(t, Config{})

	if a.Schema().Name != features.Geometric.Name {
		t.Errorf("Schema() = %q, want %q", a.Schema().Name, features.Geometric.Name)
	}
	if !a.IsEnabled() {
		t.Error("app should start enabled")
	}
	want := attention.DefaultConfig()
	got := a.config.Attention
	if got.PoseFilter == nil || *got.PoseFilter != filter.PoseConfig() {
		t.Errorf("PoseFilter = %v, want filter.PoseConfig()", got.PoseFilter)
	}
	got.PoseFilter = nil
	if got != want {
		t.Errorf("Attention = %+v, want defaults", got)
	}
	if a.Transform() != nil {
		t.Error("app should start uncalibrated")
	}
	if a.Last().State != attention.Absent {
		t.Errorf("Last().State = %v, want absent", a.Last().State)
	}
}

func TestApp_Observe(t *testing.T) {
	a, _ := newTestApp(t, Config{Schema: features.GazeRatio})

	est := a.Observe(observed([]float64{0.1, -0.1}), 0)
	if est.Gaze != nil {
		t.Errorf("uncalibrated estimate has gaze %+v", est.Gaze)
	}
	if !est.FacePresent || est.State != attention.Absent {
		t.Errorf("first estimate = %+v, want face present and still absent", est)
	}

	a.SetTransform(linearTransform())
	for i := 1; i <= 3; i++ {
		est = a.Observe(observed([]float64{0.1, -0.1}), time.Duration(i)*step)
	}

	if est.State != attention.Attentive {
		t.Errorf("State = %v after 300ms, want attentive", est.State)
	}
	if est.Gaze == nil {
		t.Fatal("calibrated estimate has no gaze")
	}
	if math.Abs(est.Gaze.X-1280) > 1e-6 || math.Abs(est.Gaze.Y-0) > 1e-6 {
		t.Errorf("Gaze = %+v, want (1280, 0)", *est.Gaze)
	}
	if a.Last() != est {
		t.Errorf("Last() = %+v, want %+v", a.Last(), est)
	}
}

func TestApp_Observe_NoFace(t *testing.T) {
	a, _ := newTestApp(t, Config{Schema: features.GazeRatio})
	a.SetTransform(linearTransform())
	a.StartCalibration(calibration.ModeAffine)

	a.Observe(observed([]float64{0.1, -0.1}), 0)
	est := a.Observe(features.Extract(nil, nil, features.GazeRatio), step)

	if est.FacePresent || est.Gaze != nil {
		t.Errorf("estimate = %+v, want no face and no gaze", est)
	}
	if est.State != attention.Absent {
		t.Errorf("State = %v, want absent", est.State)
	}
	if _, err := a.CaptureSample(calibration.Point{X: 1, Y: 1}); !errors.Is(err, ErrNoFace) {
		t.Errorf("CaptureSample() error = %v, want ErrNoFace", err)
	}
}

func TestApp_Process(t *testing.T) {
	a, mock := newTestApp(t, Config{})

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	mock.SetFaces([]detector.FaceLandmarks{detector.NeutralFaceLandmarks()})
	est, err := a.Process(&frame, 0)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if !est.FacePresent {
		t.Error("expected a face")
	}
	if math.Abs(est.Pose.Yaw) > 2 || est.EAR < 0.2 {
		t.Errorf("neutral face gave pose %+v, EAR %.3f", est.Pose, est.EAR)
	}

	mock.SetFaces(nil)
	if est, _ = a.Process(&frame, step); est.FacePresent {
		t.Error("expected no face")
	}

	mock.SetError(errors.New("landmarker crashed"))
	if _, err := a.Process(&frame, 2*step); err == nil {
		t.Error("expected detector error")
	}
	if mock.Calls() != 3 {
		t.Errorf("detector calls = %d, want 3", mock.Calls())
	}
}

func TestApp_Calibration(t *testing.T) {
	a, _ := newTestApp(t, Config{Schema: features.GazeRatio})

	if _, err := a.CaptureSample(calibration.Point{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("CaptureSample() before start error = %v, want ErrNoSession", err)
	}
	if _, err := a.Validate(calibration.Point{}); !errors.Is(err, ErrNotCalibrated) {
		t.Fatalf("Validate() before fit error = %v, want ErrNotCalibrated", err)
	}

	s := a.StartCalibration(calibration.ModeAffine)
	if got, _ := a.Session(); got != s {
		t.Fatal("Session() does not return the started session")
	}

	var ts time.Duration
	n := 0
	for _, x := range []float64{100, 960, 1820} {
		for _, y := range []float64{100, 540, 980} {
			target := calibration.Point{X: x, Y: y}
			a.Observe(observed(gazeFor(target)), ts)
			ts += step

			var err error
			if n, err = a.CaptureSample(target); err != nil {
				t.Fatalf("CaptureSample(%v) error = %v", target, err)
			}
		}
	}
	if n != 9 {
		t.Errorf("session size = %d, want 9", n)
	}

	tr, acc, err := a.FitCalibration(context.Background())
	if err != nil {
		t.Fatalf("FitCalibration() error = %v", err)
	}
	if tr.Mode != calibration.ModeAffine || a.Transform() != tr {
		t.Errorf("fitted transform not active: %+v", tr)
	}
	if acc.Mean > 1 || a.Accuracy() == nil {
		t.Errorf("accuracy = %+v, want sub-pixel", acc)
	}

	target := calibration.Point{X: 500, Y: 300}
	a.Observe(observed(gazeFor(target)), ts)
	v, err := a.Validate(target)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if v.Error > 1 {
		t.Errorf("Validate() error = %.3f px, want < 1", v.Error)
	}

	refined, err := a.RefineCalibration(target)
	if err != nil {
		t.Fatalf("RefineCalibration() error = %v", err)
	}
	if refined.Samples != 10 || a.Transform() != refined {
		t.Errorf("refined transform = %+v, want 10 samples and active", refined)
	}
}

func TestApp_FitCalibration_InsufficientKeepsTransform(t *testing.T) {
	a, _ := newTestApp(t, Config{Schema: features.GazeRatio})
	prev := linearTransform()
	a.SetTransform(prev)
	a.StartCalibration(calibration.ModeRidge)

	a.Observe(observed([]float64{0, 0}), 0)
	a.CaptureSample(calibration.Point{X: 960, Y: 540})

	if _, _, err := a.FitCalibration(context.Background()); !errors.Is(err, calibration.ErrInsufficientSamples) {
		t.Fatalf("FitCalibration() error = %v, want ErrInsufficientSamples", err)
	}
	if a.Transform() != prev {
		t.Error("failed fit replaced the active transform")
	}
}

func TestApp_Subscribe(t *testing.T) {
	a, _ := newTestApp(t, Config{Schema: features.GazeRatio})

	ch, cancel := a.Subscribe()
	a.Observe(observed([]float64{0, 0}), 0)

	select {
	case est := <-ch:
		if !est.FacePresent {
			t.Errorf("received %+v, want face present", est)
		}
	case <-time.After(time.Second):
		t.Fatal("no estimate received")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after unsubscribe")
	}
	a.Observe(observed([]float64{0, 0}), step)
}

func TestApp_ResetAttention(t *testing.T) {
	a, _ := newTestApp(t, Config{Schema: features.GazeRatio})
	for i := 0; i < 10; i++ {
		a.Observe(observed([]float64{0, 0}), time.Duration(i)*step)
	}
	if a.AttentionStats().Total == 0 {
		t.Fatal("expected accounted time")
	}

	a.ResetAttention()
	stats := a.AttentionStats()
	if stats.Total != 0 || stats.State != attention.Absent {
		t.Errorf("stats after reset = %+v", stats)
	}
}

// looking returns a valid observation with the head turned by yaw degrees.
func looking(yaw float64) features.Features {
	f := observed([]float64{0, 0})
	f.Pose = features.EulerAngles{Yaw: yaw}
	return f
}

func TestApp_Observe_SmoothsHeadPose(t *testing.T) {
	a, _ := newTestApp(t, Config{Schema: features.GazeRatio})

	// Yaw jitters across the 25 degree threshold on every third frame.
	var est Estimate
	for i := 0; i < 12; i++ {
		yaw := 15.0
		if i%3 == 2 {
			yaw = 30
		}
		est = a.Observe(looking(yaw), time.Duration(i)*step)
		if est.State == attention.LookingAway {
			t.Fatalf("frame %d (yaw %.0f): committed looking_away on a single-frame spike", i, yaw)
		}
	}
	if est.State != attention.Attentive {
		t.Errorf("State = %v, want attentive for a smoothed yaw below threshold", est.State)
	}

	// A sustained turn still gets through.
	for i := 12; i < 20; i++ {
		est = a.Observe(looking(45), time.Duration(i)*step)
	}
	if est.State != attention.LookingAway {
		t.Errorf("State = %v after a sustained turn, want looking_away", est.State)
	}
}

func TestApp_ResetAttention_ClearsPoseFilter(t *testing.T) {
	a, _ := newTestApp(t, Config{Schema: features.GazeRatio})
	for i := 0; i < 10; i++ {
		a.Observe(looking(0), time.Duration(i)*step)
	}

	a.ResetAttention()

	// A cleared filter passes the first turned frame through, so looking_away
	// is proposed at once and committed one debounce window later. A filter
	// still holding yaw 0 would lag a frame behind.
	start := 10 * step
	var est Estimate
	for i := 0; i <= 3; i++ {
		est = a.Observe(looking(40), start+time.Duration(i)*step)
	}
	if est.State != attention.LookingAway {
		t.Errorf("State = %v 300ms after reset, want looking_away", est.State)
	}
}

func TestApp_ActiveProfile(t *testing.T) {
	s := newTestStore(t)
	a, _ := newTestApp(t, Config{Store: s, Schema: features.GazeRatio})

	if err := a.LoadActiveProfile(); err != nil {
		t.Fatalf("LoadActiveProfile() without profile error = %v", err)
	}

	p := &store.Profile{ID: "p1", Name: "desk", Schema: features.GazeRatio.Name, Transform: linearTransform()}
	if err := s.Profiles().Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.SetActiveProfile(p.ID); err != nil {
		t.Fatalf("SetActiveProfile() error = %v", err)
	}
	if err := a.LoadActiveProfile(); err != nil {
		t.Fatalf("LoadActiveProfile() error = %v", err)
	}
	if a.Transform() == nil || a.Transform().FeatureCount != 2 {
		t.Errorf("Transform() = %+v, want the stored transform", a.Transform())
	}

	other := &store.Profile{ID: "p2", Name: "laptop", Schema: features.Geometric.Name, Transform: &calibration.Transform{FeatureCount: 6}}
	var dimErr *calibration.DimensionError
	if err := a.ActivateProfile(other); !errors.As(err, &dimErr) {
		t.Errorf("ActivateProfile(mismatch) error = %v, want DimensionError", err)
	}
}

func TestApp_ActiveProfile_RejectsMalformedTransform(t *testing.T) {
	s := newTestStore(t)
	a, _ := newTestApp(t, Config{Store: s, Schema: features.GazeRatio})

	// Coefficients without the standardization vectors.
	broken := &calibration.Transform{
		Mode:         calibration.ModeRidge,
		FeatureCount: 2,
		CoefX:        []float64{1, 2, 3},
		CoefY:        []float64{1, 2, 3},
	}
	p := &store.Profile{ID: "p1", Name: "broken", Schema: features.GazeRatio.Name, Transform: broken}
	if err := s.Profiles().Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.SetActiveProfile(p.ID); err != nil {
		t.Fatalf("SetActiveProfile() error = %v", err)
	}

	if err := a.LoadActiveProfile(); err == nil {
		t.Fatal("LoadActiveProfile() accepted a transform without mean and std")
	}
	if a.Transform() != nil {
		t.Fatalf("Transform() = %+v, want none installed", a.Transform())
	}

	// Installed directly, the transform degrades to a gaze-less estimate.
	a.SetTransform(broken)
	est := a.Observe(observed([]float64{0.1, 0.2}), 0)
	if est.Gaze != nil || !est.FacePresent {
		t.Errorf("estimate = %+v, want face present without gaze", est)
	}
}
