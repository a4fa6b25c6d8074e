package features

import (
	"fmt"
	"image"

	"github.com/ayusman/drishti/internal/detector"
)

// Schema declares the composition of a gaze feature vector. The calibration
// engine is keyed by Schema.Dim(), so a transform fitted with one schema must
// only be applied to vectors built with the same schema.
type Schema struct {
	Name string `json:"name"`
	// PerEye keeps the two eyes separate (4 values); otherwise the binocular
	// mean offset is used (2 values).
	PerEye      bool `json:"per_eye"`
	HeadPose    bool `json:"head_pose"`
	FaceCenter  bool `json:"face_center"`
	PatchWidth  int  `json:"patch_width,omitempty"`
	PatchHeight int  `json:"patch_height,omitempty"`
}

// Built-in schemas.
var (
	// GazeRatio is the raw binocular gaze ratio, suited to the affine fit.
	GazeRatio = Schema{Name: "gaze-ratio"}

	// Geometric is the head-invariant per-eye offsets plus head-pose proxies.
	Geometric = Schema{Name: "geometric", PerEye: true, HeadPose: true}

	// GeometricFace adds the face center to Geometric.
	GeometricFace = Schema{Name: "geometric-face", PerEye: true, HeadPose: true, FaceCenter: true}

	// Appearance adds low-resolution grayscale eye patches to GeometricFace.
	Appearance = Schema{Name: "appearance", PerEye: true, HeadPose: true, FaceCenter: true, PatchWidth: 10, PatchHeight: 6}
)

var schemas = map[string]Schema{
	GazeRatio.Name:     GazeRatio,
	Geometric.Name:     Geometric,
	GeometricFace.Name: GeometricFace,
	Appearance.Name:    Appearance,
}

// SchemaByName looks up a built-in schema.
func SchemaByName(name string) (Schema, error) {
	s, ok := schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("unknown feature schema %q", name)
	}
	return s, nil
}

// Dim returns the feature vector length produced by the schema.
func (s Schema) Dim() int {
	n := 2
	if s.PerEye {
		n = 4
	}
	if s.HeadPose {
		n += 2
	}
	if s.FaceCenter {
		n += 2
	}
	return n + 2*s.patchSize()
}

// UsesFrame reports whether the schema needs the camera frame.
func (s Schema) UsesFrame() bool {
	return s.patchSize() > 0
}

func (s Schema) patchSize() int {
	if s.PatchWidth <= 0 || s.PatchHeight <= 0 {
		return 0
	}
	return s.PatchWidth * s.PatchHeight
}

// Vector builds the feature vector for points. Incomplete landmark sets yield
// a zero vector of length Dim().
func (s Schema) Vector(points []detector.Point3D, frame image.Image) []float64 {
	v := make([]float64, 0, s.Dim())
	if len(points) < detector.NumLandmarks {
		return v[:s.Dim()]
	}

	right, left := IrisOffsets(points)
	if s.PerEye {
		v = append(v, right.X, right.Y, left.X, left.Y)
	} else {
		v = append(v, (right.X+left.X)/2, (right.Y+left.Y)/2)
	}

	if s.HeadPose {
		yaw, pitch := HeadPoseRatios(points)
		v = append(v, yaw, pitch)
	}

	if s.FaceCenter {
		x, y := FaceCenter(points)
		v = append(v, x, y)
	}

	if n := s.patchSize(); n > 0 {
		v = append(v, EyePatch(frame, points, rightEye, s.PatchWidth, s.PatchHeight)...)
		v = append(v, EyePatch(frame, points, leftEye, s.PatchWidth, s.PatchHeight)...)
	}

	return v
}
