// Package detector provides face landmark detection interfaces and types for gaze tracking.
package detector

import "math"

// Face landmark indices following the MediaPipe Face Mesh convention with
// refined iris landmarks. "Right" and "Left" are the subject's sides, so the
// right eye appears on the left of a non-mirrored image.
// See: https://developers.google.com/mediapipe/solutions/vision/face_landmarker
const (
	NoseTip  = 1
	Forehead = 10
	Chin     = 152

	RightCheek = 234
	LeftCheek  = 454

	RightEyeOuter = 33
	RightEyeInner = 133
	RightEyeUpper = 159
	RightEyeLower = 145

	LeftEyeInner = 362
	LeftEyeOuter = 263
	LeftEyeUpper = 386
	LeftEyeLower = 374

	RightIris = 468
	LeftIris  = 473

	NumLandmarks = 478
)

// Point3D represents a landmark position. X and Y are normalized image
// coordinates in [0,1]; Z is a relative depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// FaceLandmarks represents one tracked face as returned by the landmark model.
// Points may be shorter than NumLandmarks when the model output is degraded;
// consumers treat that as "no usable data".
type FaceLandmarks struct {
	Points []Point3D `json:"points"`
	// Matrix is the optional 4x4 facial transformation matrix in column-major order.
	Matrix *[16]float64 `json:"matrix,omitempty"`
	Score  float64      `json:"score"`
}

// Complete reports whether the face carries the full landmark set.
func (f *FaceLandmarks) Complete() bool {
	return f != nil && len(f.Points) >= NumLandmarks
}

// distance2D calculates the Euclidean distance between two points in image space.
func distance2D(a, b Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Bounds returns the axis-aligned bounding box of the face in normalized
// image coordinates. ok is false for incomplete faces.
func (f *FaceLandmarks) Bounds() (minX, minY, maxX, maxY float64, ok bool) {
	if !f.Complete() {
		return 0, 0, 0, 0, false
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range f.Points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY, true
}

// FaceWidth returns the cheek-to-cheek span, or 0 for incomplete faces.
func (f *FaceLandmarks) FaceWidth() float64 {
	if !f.Complete() {
		return 0
	}
	return distance2D(f.Points[RightCheek], f.Points[LeftCheek])
}
