package detector

import (
	"math"
	"sync"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r3"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	faces []FaceLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetFaces sets the faces that will be returned by Detect.
func (m *MockDetector) SetFaces(faces []FaceLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faces = faces
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been invoked.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured faces or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]FaceLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.faces, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// Pose describes a synthetic face: head rotation in degrees, gaze offset as a
// fraction of the eye span, and whether the eyelids are closed.
type Pose struct {
	Yaw, Pitch, Roll float64
	GazeX, GazeY     float64
	EyesClosed       bool
}

// Canonical head-frame geometry in face-width units: x to the subject's left
// (image right), y up, z toward the camera.
var canonicalFace = map[int]r3.Vec{
	NoseTip:       {X: 0, Y: -0.03, Z: 0.1},
	Forehead:      {X: 0, Y: 0.10, Z: 0},
	Chin:          {X: 0, Y: -0.12, Z: 0},
	RightCheek:    {X: -0.08, Y: 0, Z: -0.05},
	LeftCheek:     {X: 0.08, Y: 0, Z: -0.05},
	RightEyeOuter: {X: -0.075, Y: 0.03, Z: -0.01},
	RightEyeInner: {X: -0.025, Y: 0.03, Z: -0.01},
	LeftEyeInner:  {X: 0.025, Y: 0.03, Z: -0.01},
	LeftEyeOuter:  {X: 0.075, Y: 0.03, Z: -0.01},
}

const (
	eyeSpan     = 0.05
	openLidGap  = 0.016
	shutLidGap  = 0.004
	faceCenterX = 0.5
	faceCenterY = 0.5
)

// SyntheticFace builds a complete landmark set for the given pose together
// with its column-major transformation matrix. Rotations are applied as
// R = Rz(roll)·Ry(yaw)·Rx(pitch), the ZYX order the matrix decomposition expects.
func SyntheticFace(p Pose) FaceLandmarks {
	head := make(map[int]r3.Vec, len(canonicalFace)+6)
	for idx, v := range canonicalFace {
		head[idx] = v
	}

	gap := openLidGap
	if p.EyesClosed {
		gap = shutLidGap
	}
	for _, eye := range []struct{ upper, lower, iris, inner, outer int }{
		{RightEyeUpper, RightEyeLower, RightIris, RightEyeInner, RightEyeOuter},
		{LeftEyeUpper, LeftEyeLower, LeftIris, LeftEyeInner, LeftEyeOuter},
	} {
		mid := r3.Scale(0.5, r3.Add(head[eye.inner], head[eye.outer]))
		head[eye.upper] = r3.Add(mid, r3.Vec{Y: gap / 2})
		head[eye.lower] = r3.Sub(mid, r3.Vec{Y: gap / 2})
		// Image y grows downward, head-frame y grows upward.
		head[eye.iris] = r3.Add(mid, r3.Vec{X: p.GazeX * eyeSpan, Y: -p.GazeY * eyeSpan})
	}

	rot := headRotation(p.Yaw, p.Pitch, p.Roll)

	face := FaceLandmarks{
		Points: make([]Point3D, NumLandmarks),
		Score:  0.98,
	}
	center := project(rot(r3.Vec{}))
	for i := range face.Points {
		face.Points[i] = center
	}
	for idx, v := range head {
		face.Points[idx] = project(rot(v))
	}

	var m [16]float64
	for j, axis := range []r3.Vec{{X: 1}, {Y: 1}, {Z: 1}} {
		col := rot(axis)
		m[j*4+0] = col.X
		m[j*4+1] = col.Y
		m[j*4+2] = col.Z
	}
	m[15] = 1
	face.Matrix = &m

	return face
}

func headRotation(yaw, pitch, roll float64) func(r3.Vec) r3.Vec {
	rx := r3.NewRotation(pitch*math.Pi/180, r3.Vec{X: 1})
	ry := r3.NewRotation(yaw*math.Pi/180, r3.Vec{Y: 1})
	rz := r3.NewRotation(roll*math.Pi/180, r3.Vec{Z: 1})
	return func(v r3.Vec) r3.Vec {
		return rz.Rotate(ry.Rotate(rx.Rotate(v)))
	}
}

// project maps a head-frame point to normalized image coordinates.
func project(v r3.Vec) Point3D {
	return Point3D{X: faceCenterX + v.X, Y: faceCenterY - v.Y, Z: -v.Z}
}

// NeutralFaceLandmarks returns a frontal face looking straight ahead.
func NeutralFaceLandmarks() FaceLandmarks {
	return SyntheticFace(Pose{})
}

// LookingAwayLandmarks returns a face turned well past typical attention thresholds.
func LookingAwayLandmarks() FaceLandmarks {
	return SyntheticFace(Pose{Yaw: 40})
}

// ClosedEyesLandmarks returns a frontal face with both eyes shut.
func ClosedEyesLandmarks() FaceLandmarks {
	return SyntheticFace(Pose{EyesClosed: true})
}

// TruncatedLandmarks returns a degraded landmark set that is too short to use.
func TruncatedLandmarks() FaceLandmarks {
	full := NeutralFaceLandmarks()
	return FaceLandmarks{Points: full.Points[:NumLandmarks/2], Score: 0.3}
}
