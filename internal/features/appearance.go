package features

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/ayusman/drishti/internal/detector"
)

// eyePatchPadding widens the corner-to-corner box so the lids stay inside the crop.
const eyePatchPadding = 0.2

// EyePatch samples a w×h grayscale patch around one eye and returns the
// intensities in [0,1] with the patch mean removed, row-major. A nil frame or
// an empty crop yields zeros.
func EyePatch(frame image.Image, points []detector.Point3D, eye eyeIndices, w, h int) []float64 {
	out := make([]float64, w*h)
	if frame == nil || len(points) < detector.NumLandmarks {
		return out
	}

	rect := eyeRect(frame.Bounds(), points, eye, w, h)
	if rect.Empty() {
		return out
	}

	patch := imaging.Resize(imaging.Grayscale(imaging.Crop(frame, rect)), w, h, imaging.Linear)

	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Grayscale output has equal channels; R is enough.
			v := float64(patch.Pix[y*patch.Stride+x*4]) / 255
			out[y*w+x] = v
			sum += v
		}
	}
	mean := sum / float64(len(out))
	for i := range out {
		out[i] -= mean
	}
	return out
}

// eyeRect returns the pixel rectangle around one eye, keeping the w:h aspect.
func eyeRect(bounds image.Rectangle, points []detector.Point3D, eye eyeIndices, w, h int) image.Rectangle {
	fw, fh := float64(bounds.Dx()), float64(bounds.Dy())
	inner, outer := points[eye.inner], points[eye.outer]

	cx := (inner.X + outer.X) / 2 * fw
	cy := (inner.Y + outer.Y) / 2 * fh
	width := math.Abs(outer.X-inner.X) * fw * (1 + 2*eyePatchPadding)
	height := width * float64(h) / float64(w)

	r := image.Rect(
		bounds.Min.X+int(math.Floor(cx-width/2)),
		bounds.Min.Y+int(math.Floor(cy-height/2)),
		bounds.Min.X+int(math.Ceil(cx+width/2)),
		bounds.Min.Y+int(math.Ceil(cy+height/2)),
	)
	return r.Intersect(bounds)
}
