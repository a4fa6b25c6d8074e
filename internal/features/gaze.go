package features

import (
	"image"
	"math"

	"github.com/ayusman/drishti/internal/detector"
)

// EyeOffset is the iris position relative to the eye-corner midpoint,
// normalized by the corner span. Nominally in [-1,1] but not clamped.
type EyeOffset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type eyeIndices struct {
	inner, outer, upper, lower, iris int
}

var (
	rightEye = eyeIndices{detector.RightEyeInner, detector.RightEyeOuter, detector.RightEyeUpper, detector.RightEyeLower, detector.RightIris}
	leftEye  = eyeIndices{detector.LeftEyeInner, detector.LeftEyeOuter, detector.LeftEyeUpper, detector.LeftEyeLower, detector.LeftIris}
)

func irisOffset(points []detector.Point3D, eye eyeIndices) EyeOffset {
	inner, outer := points[eye.inner], points[eye.outer]
	mid := midpoint(inner, outer)
	span := math.Max(distance(inner, outer), minSpan)
	iris := points[eye.iris]
	return EyeOffset{
		X: (iris.X - mid.X) / span,
		Y: (iris.Y - mid.Y) / span,
	}
}

// IrisOffsets returns the per-eye iris offsets. Incomplete landmark sets yield
// zero offsets.
func IrisOffsets(points []detector.Point3D) (right, left EyeOffset) {
	if len(points) < detector.NumLandmarks {
		return EyeOffset{}, EyeOffset{}
	}
	return irisOffset(points, rightEye), irisOffset(points, leftEye)
}

// EyeAspectRatio returns the eyelid span over the corner span, averaged across
// both eyes. Low values indicate closed eyes. Incomplete landmark sets yield 0.
func EyeAspectRatio(points []detector.Point3D) float64 {
	if len(points) < detector.NumLandmarks {
		return 0
	}
	ear := func(eye eyeIndices) float64 {
		vertical := distance(points[eye.upper], points[eye.lower])
		horizontal := math.Max(distance(points[eye.inner], points[eye.outer]), minSpan)
		return vertical / horizontal
	}
	return (ear(rightEye) + ear(leftEye)) / 2
}

// FaceCenter returns the midpoint between the cheeks in normalized image space.
func FaceCenter(points []detector.Point3D) (x, y float64) {
	if len(points) < detector.NumLandmarks {
		return 0, 0
	}
	c := midpoint(points[detector.RightCheek], points[detector.LeftCheek])
	return c.X, c.Y
}

// Features is the per-observation output of Extract.
type Features struct {
	Gaze  []float64   `json:"gaze"`
	Pose  EulerAngles `json:"pose"`
	EAR   float64     `json:"ear"`
	Valid bool        `json:"valid"`
}

// Extract derives the gaze vector for schema, the head pose and the eye aspect
// ratio from one face. A nil or incomplete face yields a zero vector of
// schema.Dim(), zero angles and Valid=false. frame is only consulted by
// schemas with eye patches and may be nil.
func Extract(face *detector.FaceLandmarks, frame image.Image, schema Schema) Features {
	if !face.Complete() {
		return Features{Gaze: make([]float64, schema.Dim())}
	}
	return Features{
		Gaze:  schema.Vector(face.Points, frame),
		Pose:  HeadPose(face),
		EAR:   EyeAspectRatio(face.Points),
		Valid: true,
	}
}
