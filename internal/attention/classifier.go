package attention

import (
	"math"
	"time"

	"github.com/ayusman/drishti/internal/filter"
)

// Config holds classifier thresholds and timers.
type Config struct {
	// YawThreshold and PitchThreshold are absolute angles in degrees beyond
	// which the user is looking away.
	YawThreshold   float64 `json:"yaw_threshold"`
	PitchThreshold float64 `json:"pitch_threshold"`
	// ClosedEAR is the eye aspect ratio below which the eyes count as closed.
	ClosedEAR float64 `json:"closed_ear"`
	// DrowsyHold is how long eyes must stay closed before drowsiness is proposed.
	DrowsyHold time.Duration `json:"drowsy_hold"`
	// Debounce is how long a new state must be proposed before it is committed.
	// Absence commits immediately.
	Debounce time.Duration `json:"debounce"`
	// MaxDelta bounds the observation gap credited to session time.
	MaxDelta time.Duration `json:"max_delta"`
	// PoseFilter, when set, smooths yaw and pitch inside the classifier.
	PoseFilter *filter.Config `json:"pose_filter,omitempty"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		YawThreshold:   25,
		PitchThreshold: 20,
		ClosedEAR:      0.2,
		DrowsyHold:     2 * time.Second,
		Debounce:       300 * time.Millisecond,
		MaxDelta:       time.Second,
	}
}

// Observation is one tracking result. Yaw and Pitch are in degrees.
type Observation struct {
	Timestamp   time.Duration
	FacePresent bool
	Yaw         float64
	Pitch       float64
	EAR         float64
}

// Stats is the session accounting.
type Stats struct {
	State        State         `json:"state"`
	Total        time.Duration `json:"total"`
	Attentive    time.Duration `json:"attentive"`
	Streak       time.Duration `json:"streak"`
	Distractions int           `json:"distractions"`
}

// FocusRatio returns attentive time over total time, or 0 before any time
// has been accounted.
func (s Stats) FocusRatio() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Attentive) / float64(s.Total)
}

// Transition describes a committed state change.
type Transition struct {
	From  State         `json:"from"`
	To    State         `json:"to"`
	At    time.Duration `json:"at"`
	Stats Stats         `json:"stats"`
}

// Classifier is the attention state machine. It must be driven by a single
// goroutine with non-decreasing timestamps.
type Classifier struct {
	cfg  Config
	pose *filter.Pose

	state State

	pending      State
	pendingSince time.Duration
	hasPending   bool

	eyesClosed  bool
	closedSince time.Duration

	lastTS  time.Duration
	hasLast bool

	total        time.Duration
	attentive    time.Duration
	streak       time.Duration
	distractions int

	onTransition []func(Transition)
}

// NewClassifier creates a classifier in the Absent state.
func NewClassifier(cfg Config) *Classifier {
	c := &Classifier{cfg: cfg, state: Absent}
	if cfg.PoseFilter != nil {
		c.pose = filter.NewPose(*cfg.PoseFilter)
	}
	return c
}

// OnTransition registers fn to be called synchronously for every committed
// transition.
func (c *Classifier) OnTransition(fn func(Transition)) {
	c.onTransition = append(c.onTransition, fn)
}

// State returns the committed state.
func (c *Classifier) State() State {
	return c.state
}

// Stats returns the session accounting.
func (c *Classifier) Stats() Stats {
	return Stats{
		State:        c.state,
		Total:        c.total,
		Attentive:    c.attentive,
		Streak:       c.streak,
		Distractions: c.distractions,
	}
}

// Update feeds one observation and returns the committed state.
func (c *Classifier) Update(obs Observation) State {
	c.account(obs.Timestamp)
	c.propose(c.candidate(obs), obs.Timestamp)
	return c.state
}

// account credits the gap since the previous observation to the state that
// was committed during it.
func (c *Classifier) account(ts time.Duration) {
	if !c.hasLast {
		c.hasLast = true
		c.lastTS = ts
		return
	}

	dt := ts - c.lastTS
	if dt <= 0 {
		return
	}
	c.lastTS = ts
	if dt >= c.cfg.MaxDelta {
		return
	}

	c.total += dt
	if c.state == Attentive {
		c.attentive += dt
		c.streak += dt
	}
}

func (c *Classifier) candidate(obs Observation) State {
	if !obs.FacePresent {
		c.eyesClosed = false
		if c.pose != nil {
			c.pose.Reset()
		}
		return Absent
	}

	yaw, pitch := obs.Yaw, obs.Pitch
	if c.pose != nil {
		yaw, pitch, _ = c.pose.Filter(yaw, pitch, 0, obs.Timestamp)
	}

	closed := obs.EAR < c.cfg.ClosedEAR
	if closed && !c.eyesClosed {
		c.closedSince = obs.Timestamp
	}
	c.eyesClosed = closed

	switch {
	case math.Abs(yaw) > c.cfg.YawThreshold || math.Abs(pitch) > c.cfg.PitchThreshold:
		return LookingAway
	case closed && obs.Timestamp-c.closedSince >= c.cfg.DrowsyHold:
		return Drowsy
	default:
		return Attentive
	}
}

func (c *Classifier) propose(next State, ts time.Duration) {
	if next == c.state {
		c.hasPending = false
		return
	}
	if next == Absent {
		c.commit(next, ts)
		return
	}
	if !c.hasPending || c.pending != next {
		c.pending = next
		c.pendingSince = ts
		c.hasPending = true
	}
	if ts-c.pendingSince >= c.cfg.Debounce {
		c.commit(next, ts)
	}
}

func (c *Classifier) commit(next State, ts time.Duration) {
	from := c.state
	if from == Attentive {
		c.distractions++
		c.streak = 0
	}
	if next == Attentive {
		c.streak = 0
	}
	c.state = next
	c.hasPending = false

	tr := Transition{From: from, To: next, At: ts, Stats: c.Stats()}
	for _, fn := range c.onTransition {
		fn(tr)
	}
}

// Reset clears counters, timers and pose filters and returns to Absent.
// Registered callbacks are kept.
func (c *Classifier) Reset() {
	c.state = Absent
	c.hasPending = false
	c.pending = Absent
	c.pendingSince = 0
	c.eyesClosed = false
	c.closedSince = 0
	c.hasLast = false
	c.lastTS = 0
	c.total = 0
	c.attentive = 0
	c.streak = 0
	c.distractions = 0
	if c.pose != nil {
		c.pose.Reset()
	}
}
