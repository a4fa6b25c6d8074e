// Package app wires the camera, the face landmark detector, feature
// extraction, smoothing, calibration and attention classification into one
// running pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/ayusman/drishti/internal/attention"
	"github.com/ayusman/drishti/internal/calibration"
	"github.com/ayusman/drishti/internal/capture"
	"github.com/ayusman/drishti/internal/detector"
	"github.com/ayusman/drishti/internal/features"
	"github.com/ayusman/drishti/internal/filter"
	"github.com/ayusman/drishti/internal/log"
	"github.com/ayusman/drishti/internal/plugin"
	"github.com/ayusman/drishti/internal/store"
	"gocv.io/x/gocv"
)

// Pipeline timing constants.
const (
	// IdleTimeout is how long nobody must be present before the camera drops
	// back to the idle frame rate.
	IdleTimeout = 2 * time.Second
	// DefaultGateEvery forces a detector call after this many motionless frames
	// while absent.
	DefaultGateEvery = 10
	// DefaultHookTimeoutMs bounds a single plugin invocation.
	DefaultHookTimeoutMs = 5000
	// NotifyAction is sent to plugins that subscribe to an event through their
	// manifest rather than through a stored hook.
	NotifyAction = "notify"

	subscriberBuffer = 8
)

var (
	// ErrNoSession is returned by calibration calls before StartCalibration.
	ErrNoSession = errors.New("no calibration session")
	// ErrNoFace is returned when a sample is requested while no face is tracked.
	ErrNoFace = errors.New("no face in view")
	// ErrNotCalibrated is returned when a gaze point is needed but no transform
	// is active.
	ErrNotCalibrated = errors.New("not calibrated")
)

// Config holds configuration options for the application.
type Config struct {
	Store     *store.Store
	PluginDir string
	Camera    capture.Config
	Schema    features.Schema
	// Lambda is the ridge penalty for calibration fits.
	Lambda     float64
	// Attention configures the classifier. A nil PoseFilter is filled with
	// filter.PoseConfig.
	Attention  attention.Config
	GazeFilter filter.Config
	// MotionThresh is the percentage of changed pixels that wakes the detector
	// while nobody is present.
	MotionThresh  float64
	GateEvery     int
	HookTimeoutMs int
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Camera:        capture.DefaultConfig(),
		Schema:        features.Geometric,
		Lambda:        1,
		Attention:     defaultAttention(),
		GazeFilter:    filter.GazeConfig(),
		MotionThresh:  1.0,
		GateEvery:     DefaultGateEvery,
		HookTimeoutMs: DefaultHookTimeoutMs,
	}
}

// defaultAttention is attention.DefaultConfig with head pose smoothing.
func defaultAttention() attention.Config {
	cfg := attention.DefaultConfig()
	pose := filter.PoseConfig()
	cfg.PoseFilter = &pose
	return cfg
}

// Estimate is the result of one processed frame.
type Estimate struct {
	Timestamp   time.Duration        `json:"timestamp"`
	FacePresent bool                 `json:"face_present"`
	Gaze        *calibration.Point   `json:"gaze,omitempty"`
	Pose        features.EulerAngles `json:"pose"`
	EAR         float64              `json:"ear"`
	State       attention.State      `json:"state"`
	Stats       attention.Stats      `json:"stats"`
}

// App is the main application that turns camera frames into gaze estimates
// and attention transitions.
type App struct {
	config     Config
	camera     capture.Camera
	gate       *capture.MotionGate
	detector   detector.Detector
	classifier *attention.Classifier
	gaze       *filter.Point
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor

	mu        sync.RWMutex
	enabled   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
	epoch     time.Time
	transform *calibration.Transform
	accuracy  *calibration.Accuracy
	session   *calibration.Session
	latest    []float64
	last      Estimate

	subMu       sync.Mutex
	subscribers map[chan Estimate]struct{}

	hooks sync.WaitGroup
}

// New creates a new App instance with the given configuration. Zero fields
// take their defaults.
func New(config Config) *App {
	def := DefaultConfig()
	if config.Schema.Name == "" {
		config.Schema = def.Schema
	}
	if config.Attention == (attention.Config{}) {
		config.Attention = def.Attention
	}
	if config.Attention.PoseFilter == nil {
		config.Attention.PoseFilter = def.Attention.PoseFilter
	}
	if config.GazeFilter == (filter.Config{}) {
		config.GazeFilter = def.GazeFilter
	}
	if config.MotionThresh <= 0 {
		config.MotionThresh = def.MotionThresh
	}
	if config.GateEvery <= 0 {
		config.GateEvery = def.GateEvery
	}
	if config.HookTimeoutMs <= 0 {
		config.HookTimeoutMs = def.HookTimeoutMs
	}

	a := &App{
		config:      config,
		camera:      capture.NewCamera(config.Camera),
		gate:        capture.NewMotionGate(config.MotionThresh, config.GateEvery),
		classifier:  attention.NewClassifier(config.Attention),
		gaze:        filter.NewPoint(config.GazeFilter),
		pluginMgr:   plugin.NewManager(config.PluginDir),
		pluginExec:  plugin.NewExecutor(config.HookTimeoutMs),
		enabled:     true,
		epoch:       time.Now(),
		subscribers: make(map[chan Estimate]struct{}),
	}
	a.classifier.OnTransition(a.dispatchHooks)

	// Try MediaPipe first, fall back to mock detector
	if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig()); err == nil {
		a.detector = mp
		log.Info("using MediaPipe face landmarker")
	} else {
		log.Warn("MediaPipe not available, using mock detector", "error", err)
		a.detector = detector.NewMockDetector()
	}

	return a
}

// Schema returns the feature schema frames are reduced with.
func (a *App) Schema() features.Schema {
	return a.config.Schema
}

// SetEnabled pauses or resumes frame processing.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether frame processing is active.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector sets the face detector implementation to use.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// Detector returns the face detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// SetCamera replaces the camera. It must be called before Start.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.camera
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	return a.pluginMgr.Discover()
}

// LoadActiveProfile installs the transform of the stored active profile. A
// profile fitted with another schema is left inactive.
func (a *App) LoadActiveProfile() error {
	if a.config.Store == nil {
		return nil
	}
	p, err := a.config.Store.ActiveProfile()
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return a.ActivateProfile(p)
}

// ActivateProfile installs p's transform if it matches the running schema
// and is well formed.
func (a *App) ActivateProfile(p *store.Profile) error {
	if p.Transform == nil {
		return fmt.Errorf("profile %s has no transform", p.Name)
	}
	if p.Schema != a.config.Schema.Name || p.Transform.FeatureCount != a.config.Schema.Dim() {
		return &calibration.DimensionError{Want: a.config.Schema.Dim(), Got: p.Transform.FeatureCount, Sample: -1}
	}
	if err := p.Transform.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", p.Name, err)
	}
	a.SetTransform(p.Transform)
	log.Info("calibration profile loaded", "profile", p.Name, "mode", p.Transform.Mode)
	return nil
}

// Start opens the camera and begins the pipeline.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(capture.IdleFPS)

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.camera, a.stopCh, a.doneCh)

	log.Info("pipeline started", "schema", a.config.Schema.Name)
	return nil
}

// Stop halts the pipeline and closes the camera.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh

	if err := a.Camera().Close(); err != nil {
		log.Error("closing camera", "error", err)
	}
	log.Info("pipeline stopped")
}

// Close stops the pipeline, waits for running hooks and releases the
// detector and the motion gate.
func (a *App) Close() error {
	a.Stop()
	a.hooks.Wait()
	a.gate.Close()
	if d := a.Detector(); d != nil {
		return d.Close()
	}
	return nil
}

// Process runs one frame through detection and Observe.
func (a *App) Process(frame *gocv.Mat, ts time.Duration) (Estimate, error) {
	faces, err := a.Detector().Detect(frame)
	if err != nil {
		return Estimate{}, err
	}
	face := detector.Primary(faces)

	var img image.Image
	if face != nil && a.config.Schema.UsesFrame() {
		if img, err = capture.ToImage(frame); err != nil {
			log.Debug("frame conversion failed", "error", err)
			img = nil
		}
	}
	return a.Observe(features.Extract(face, img, a.config.Schema), ts), nil
}

// Observe classifies f, maps its gaze vector through the active transform,
// smooths the resulting point and publishes the estimate.
func (a *App) Observe(f features.Features, ts time.Duration) Estimate {
	a.mu.Lock()

	state := a.classifier.Update(attention.Observation{
		Timestamp:   ts,
		FacePresent: f.Valid,
		Yaw:         f.Pose.Yaw,
		Pitch:       f.Pose.Pitch,
		EAR:         f.EAR,
	})

	est := Estimate{
		Timestamp:   ts,
		FacePresent: f.Valid,
		Pose:        f.Pose,
		EAR:         f.EAR,
		State:       state,
		Stats:       a.classifier.Stats(),
	}

	if f.Valid {
		a.latest = append(a.latest[:0], f.Gaze...)
		if a.transform != nil {
			if p, err := a.transform.Predict(f.Gaze); err == nil {
				x, y := a.gaze.Filter(p.X, p.Y, ts)
				est.Gaze = &calibration.Point{X: x, Y: y}
			} else {
				log.Warn("gaze prediction failed", "error", err)
			}
		}
	} else {
		a.latest = a.latest[:0]
		a.gaze.Reset()
	}
	a.last = est
	a.mu.Unlock()

	a.publish(est)
	return est
}

// Last returns the most recent estimate.
func (a *App) Last() Estimate {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// Subscribe returns a channel receiving every estimate and a function that
// unsubscribes it. Estimates are dropped for subscribers that fall behind.
func (a *App) Subscribe() (<-chan Estimate, func()) {
	ch := make(chan Estimate, subscriberBuffer)

	a.subMu.Lock()
	a.subscribers[ch] = struct{}{}
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subscribers, ch)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *App) publish(est Estimate) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for ch := range a.subscribers {
		select {
		case ch <- est:
		default:
		}
	}
}

// AttentionStats returns the session accounting.
func (a *App) AttentionStats() attention.Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.classifier.Stats()
}

// ResetAttention clears the attention session and the gaze smoothing.
func (a *App) ResetAttention() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.classifier.Reset()
	a.gaze.Reset()
}

// SetTransform installs t as the active transform. nil disables gaze output.
func (a *App) SetTransform(t *calibration.Transform) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transform = t
	a.gaze.Reset()
}

// Transform returns the active transform, or nil when uncalibrated.
func (a *App) Transform() *calibration.Transform {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.transform
}

// Accuracy returns the in-sample accuracy of the last calibration fit.
func (a *App) Accuracy() *calibration.Accuracy {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accuracy
}

// StartCalibration discards any running session and starts a new one for the
// running schema.
func (a *App) StartCalibration(mode calibration.Mode) *calibration.Session {
	cfg := calibration.DefaultConfig(a.config.Schema.Dim())
	cfg.Lambda = a.config.Lambda
	cfg.Mode = mode

	s := calibration.NewSession(calibration.NewEngine(cfg))

	a.mu.Lock()
	a.session = s
	a.mu.Unlock()

	log.Info("calibration started", "session", s.ID(), "mode", mode, "features", cfg.FeatureCount)
	return s
}

// Session returns the running calibration session.
func (a *App) Session() (*calibration.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil, ErrNoSession
	}
	return a.session, nil
}

// latestFeatures copies the feature vector of the last frame with a face.
func (a *App) latestFeatures() ([]float64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.latest) == 0 {
		return nil, ErrNoFace
	}
	return append([]float64(nil), a.latest...), nil
}

// CaptureSample pairs the latest feature vector with target in the running
// session and returns the session size.
func (a *App) CaptureSample(target calibration.Point) (int, error) {
	s, err := a.Session()
	if err != nil {
		return 0, err
	}
	f, err := a.latestFeatures()
	if err != nil {
		return 0, err
	}
	if err := s.Add(f, target); err != nil {
		return 0, err
	}
	return s.Len(), nil
}

// FitCalibration fits the running session, activates the result and records
// its in-sample accuracy.
func (a *App) FitCalibration(ctx context.Context) (*calibration.Transform, calibration.Accuracy, error) {
	s, err := a.Session()
	if err != nil {
		return nil, calibration.Accuracy{}, err
	}
	t, err := s.FitAsync(ctx)
	if err != nil {
		return nil, calibration.Accuracy{}, err
	}
	acc, err := calibration.Evaluate(t, s.Snapshot())
	if err != nil {
		return nil, calibration.Accuracy{}, err
	}

	a.SetTransform(t)
	a.mu.Lock()
	a.accuracy = &acc
	a.mu.Unlock()

	log.Info("calibration fitted", "session", s.ID(), "samples", t.Samples, "mean_error", acc.Mean)
	return t, acc, nil
}

// RefineCalibration adds the latest features at target to the session and
// refits. On failure the previous transform stays active.
func (a *App) RefineCalibration(target calibration.Point) (*calibration.Transform, error) {
	s, err := a.Session()
	if err != nil {
		return nil, err
	}
	f, err := a.latestFeatures()
	if err != nil {
		return nil, err
	}
	t, err := s.Refine(f, target)
	if err != nil {
		return t, err
	}
	a.SetTransform(t)
	return t, nil
}

// Validation is the outcome of checking one known target.
type Validation struct {
	Target    calibration.Point `json:"target"`
	Predicted calibration.Point `json:"predicted"`
	Error     float64           `json:"error"`
}

// Validate predicts the latest features with the active transform and
// measures the distance to target.
func (a *App) Validate(target calibration.Point) (Validation, error) {
	t := a.Transform()
	if t == nil {
		return Validation{}, ErrNotCalibrated
	}
	f, err := a.latestFeatures()
	if err != nil {
		return Validation{}, err
	}
	acc, err := calibration.Evaluate(t, []calibration.Sample{{Features: f, Screen: target}})
	if err != nil {
		return Validation{}, err
	}
	p, _ := t.Predict(f)
	return Validation{Target: target, Predicted: p, Error: acc.Mean}, nil
}
