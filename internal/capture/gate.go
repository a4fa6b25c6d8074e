package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	gateBlurSize      = 21
	gateDiffThreshold = 25
)

// MotionGate decides, while nobody is in front of the camera, which frames
// are worth sending to the landmark detector. A frame passes when enough
// pixels changed since the previous one, or when Every frames have been
// skipped so a motionless person is still found eventually.
type MotionGate struct {
	// Threshold is the percentage of pixels that must change.
	Threshold float64
	// Every forces a pass after this many consecutive rejections; 0 disables it.
	Every int

	mu          sync.Mutex
	prev        gocv.Mat
	initialized bool
	skipped     int
}

// NewMotionGate creates a gate with the given change threshold in percent.
func NewMotionGate(threshold float64, every int) *MotionGate {
	return &MotionGate{
		Threshold: threshold,
		Every:     every,
		prev:      gocv.NewMat(),
	}
}

// Allow reports whether frame should be processed.
func (g *MotionGate) Allow(frame *gocv.Mat) bool {
	moved, _ := g.Changed(frame)

	g.mu.Lock()
	defer g.mu.Unlock()

	if moved {
		g.skipped = 0
		return true
	}
	g.skipped++
	if g.Every > 0 && g.skipped >= g.Every {
		g.skipped = 0
		return true
	}
	return false
}

// Changed compares frame with the previous one after grayscale conversion and
// a Gaussian blur. It returns whether the changed share exceeds Threshold and
// the share itself in percent. The first frame only sets the baseline.
func (g *MotionGate) Changed(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: gateBlurSize, Y: gateBlurSize}, 0, 0, gocv.BorderDefault)

	if !g.initialized || g.prev.Rows() != blurred.Rows() || g.prev.Cols() != blurred.Cols() {
		blurred.CopyTo(&g.prev)
		g.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, gateDiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(mask)) / float64(mask.Rows()*mask.Cols()) * 100

	blurred.CopyTo(&g.prev)
	return changed > g.Threshold, changed
}

// Reset drops the baseline frame.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prev.Close()
	g.prev = gocv.NewMat()
	g.initialized = false
	g.skipped = 0
}

// Close releases the baseline frame.
func (g *MotionGate) Close() {
	g.Reset()
}
