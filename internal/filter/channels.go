package filter

import "time"

// Point filters a two-dimensional signal such as a gaze point.
type Point struct {
	x, y *OneEuro
}

// NewPoint creates a point filter with the same configuration on both axes.
func NewPoint(cfg Config) *Point {
	return &Point{x: NewOneEuro(cfg), y: NewOneEuro(cfg)}
}

// Filter smooths (x, y) observed at ts.
func (p *Point) Filter(x, y float64, ts time.Duration) (float64, float64) {
	return p.x.Filter(x, ts), p.y.Filter(y, ts)
}

// Reset clears both axes.
func (p *Point) Reset() {
	p.x.Reset()
	p.y.Reset()
}

// Pose filters head yaw, pitch and roll.
type Pose struct {
	yaw, pitch, roll *OneEuro
}

// NewPose creates a pose filter with the same configuration on every angle.
func NewPose(cfg Config) *Pose {
	return &Pose{yaw: NewOneEuro(cfg), pitch: NewOneEuro(cfg), roll: NewOneEuro(cfg)}
}

// Filter smooths one head orientation observed at ts.
func (p *Pose) Filter(yaw, pitch, roll float64, ts time.Duration) (float64, float64, float64) {
	return p.yaw.Filter(yaw, ts), p.pitch.Filter(pitch, ts), p.roll.Filter(roll, ts)
}

// Reset clears all three angles.
func (p *Pose) Reset() {
	p.yaw.Reset()
	p.pitch.Reset()
	p.roll.Reset()
}
