package detector

import "gocv.io/x/gocv"

// Detector defines the interface for face landmark detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected face landmarks.
	// Returns an empty slice if no face is detected.
	Detect(frame *gocv.Mat) ([]FaceLandmarks, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for face landmark detection.
type Config struct {
	// MaxFaces is the maximum number of faces to detect (default: 1).
	MaxFaces int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64

	// OutputMatrix requests the facial transformation matrix with each face.
	OutputMatrix bool
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MaxFaces:        1,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
		OutputMatrix:    true,
	}
}

// Primary returns the face with the highest score, or nil when faces is empty.
// Only one face is tracked at a time.
func Primary(faces []FaceLandmarks) *FaceLandmarks {
	if len(faces) == 0 {
		return nil
	}
	best := &faces[0]
	for i := 1; i < len(faces); i++ {
		if faces[i].Score > best.Score {
			best = &faces[i]
		}
	}
	return best
}
