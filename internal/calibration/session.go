package calibration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Session accumulates the samples of one calibration run and keeps the
// successful transform fitted on the most samples. It is safe for concurrent
// use; fits run on a snapshot outside the lock, so overlapping fits may
// finish in any order.
type Session struct {
	id     string
	engine *Engine

	mu        sync.Mutex
	samples   []Sample
	transform *Transform
	// gen counts resets; a fit started before a reset is not installed.
	gen uint64
}

// NewSession starts an empty session fitting with engine.
func NewSession(engine *Engine) *Session {
	return &Session{
		id:     uuid.NewString(),
		engine: engine,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Engine returns the engine the session fits with.
func (s *Session) Engine() *Engine {
	return s.engine
}

// Add records that features were observed while the user looked at target.
func (s *Session) Add(features []float64, target Point) error {
	if len(features) != s.engine.FeatureCount() {
		return &DimensionError{Want: s.engine.FeatureCount(), Got: len(features), Sample: -1}
	}

	sample := Sample{Features: append([]float64(nil), features...), Screen: target}

	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
	return nil
}

// Len returns the number of collected samples.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

// Snapshot returns a copy of the collected samples.
func (s *Session) Snapshot() []Sample {
	samples, _ := s.snapshot()
	return samples
}

func (s *Session) snapshot() ([]Sample, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Sample, len(s.samples))
	for i, smp := range s.samples {
		out[i] = Sample{Features: append([]float64(nil), smp.Features...), Screen: smp.Screen}
	}
	return out, s.gen
}

// Transform returns the most recent successful fit, or nil.
func (s *Session) Transform() *Transform {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transform
}

// Fit fits all collected samples. On success it returns the session
// transform, which is the new fit unless a concurrent fit over more samples
// has already been installed. On failure the previous transform is left in
// place.
func (s *Session) Fit() (*Transform, error) {
	samples, gen := s.snapshot()
	t, err := s.engine.Fit(samples)
	if err != nil {
		return nil, err
	}
	return s.install(t, gen), nil
}

// install makes t the session transform unless the session was reset since
// gen or already holds a fit over more samples, and returns the transform
// the caller should use.
func (s *Session) install(t *Transform, gen uint64) *Transform {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return t
	}
	if s.transform != nil && s.transform.Samples > t.Samples {
		return s.transform
	}
	s.transform = t
	return t
}

// Refine adds a correction sample and refits. If the refit fails the previous
// transform is returned along with the error.
func (s *Session) Refine(features []float64, target Point) (*Transform, error) {
	if err := s.Add(features, target); err != nil {
		return s.Transform(), err
	}
	t, err := s.Fit()
	if err != nil {
		return s.Transform(), fmt.Errorf("refine: %w", err)
	}
	return t, nil
}

// FitAsync runs Fit on another goroutine and waits for it or for ctx.
// A fit abandoned by ctx still completes and may update the session.
func (s *Session) FitAsync(ctx context.Context) (*Transform, error) {
	type result struct {
		t   *Transform
		err error
	}
	done := make(chan result, 1)

	go func() {
		t, err := s.Fit()
		done <- result{t, err}
	}()

	select {
	case r := <-done:
		return r.t, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("calibration fit abandoned: %w", ctx.Err())
	}
}

// Reset discards all samples and the current transform.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = nil
	s.transform = nil
	s.gen++
}
