// Package features derives head-invariant gaze and head-pose features from
// face landmark geometry.
package features

import (
	"math"

	"github.com/ayusman/drishti/internal/detector"
)

// Geometric pose approximation constants. Each ratio is the landmark
// displacement per unit tangent of the rotation for an average adult face.
const (
	yawDepthRatio     = 0.94
	neutralPitchRatio = 0.27
	pitchDepthRatio   = 0.5
)

// minSpan floors every denominator taken from landmark geometry.
const minSpan = 0.001

// EulerAngles is a head orientation in degrees. Positive yaw means the head is
// turned toward the viewer's right; positive pitch means the head is tilted down.
type EulerAngles struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// EulerFromMatrix extracts ZYX Tait-Bryan angles from the rotation block of a
// column-major 4x4 transform.
func EulerFromMatrix(m [16]float64) EulerAngles {
	r := func(i, j int) float64 { return m[j*4+i] }

	// Floating error can push the sine past ±1 and make asin return NaN.
	yaw := math.Asin(clamp(-r(2, 0), -1, 1))
	pitch := math.Atan2(r(2, 1), r(2, 2))
	roll := math.Atan2(r(1, 0), r(0, 0))

	return EulerAngles{
		Yaw:   degrees(yaw),
		Pitch: degrees(pitch),
		Roll:  degrees(roll),
	}
}

// HeadPoseRatios returns the normalized nose offsets used as head-pose proxies.
// yaw is the nose offset from the cheek midline over the cheek span; pitch is the
// nose offset below the inter-eye line over the forehead-to-chin span.
// Both are zero for incomplete landmark sets.
func HeadPoseRatios(points []detector.Point3D) (yaw, pitch float64) {
	if len(points) < detector.NumLandmarks {
		return 0, 0
	}

	nose := points[detector.NoseTip]
	rc, lc := points[detector.RightCheek], points[detector.LeftCheek]
	cheekMidX := (rc.X + lc.X) / 2
	cheekSpan := math.Max(distance(rc, lc), minSpan)
	yaw = (nose.X - cheekMidX) / cheekSpan

	rightMid := midpoint(points[detector.RightEyeInner], points[detector.RightEyeOuter])
	leftMid := midpoint(points[detector.LeftEyeInner], points[detector.LeftEyeOuter])
	eyeLineY := (rightMid.Y + leftMid.Y) / 2
	faceHeight := math.Max(distance(points[detector.Forehead], points[detector.Chin]), minSpan)
	pitch = (nose.Y - eyeLineY) / faceHeight

	return yaw, pitch
}

// EulerFromLandmarks approximates head orientation from landmark ratios when no
// transformation matrix is available. It follows the same sign convention as
// EulerFromMatrix. Incomplete landmark sets yield zero angles.
func EulerFromLandmarks(points []detector.Point3D) EulerAngles {
	if len(points) < detector.NumLandmarks {
		return EulerAngles{}
	}

	yawRatio, pitchRatio := HeadPoseRatios(points)

	outerR, outerL := points[detector.RightEyeOuter], points[detector.LeftEyeOuter]
	roll := math.Atan2(-(outerL.Y - outerR.Y), outerL.X-outerR.X)

	return EulerAngles{
		Yaw:   degrees(math.Atan(yawRatio / yawDepthRatio)),
		Pitch: degrees(math.Atan((pitchRatio - neutralPitchRatio) / pitchDepthRatio)),
		Roll:  degrees(roll),
	}
}

// HeadPose returns the matrix-derived angles when a matrix is supplied and the
// geometric approximation otherwise.
func HeadPose(face *detector.FaceLandmarks) EulerAngles {
	if face == nil {
		return EulerAngles{}
	}
	if face.Matrix != nil {
		return EulerFromMatrix(*face.Matrix)
	}
	return EulerFromLandmarks(face.Points)
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func distance(a, b detector.Point3D) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func midpoint(a, b detector.Point3D) detector.Point3D {
	return detector.Point3D{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2, Z: (a.Z + b.Z) / 2}
}
