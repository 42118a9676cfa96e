package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoFix is returned by SimSource.CurrentPosition before tracking starts or
// when the fixture list is empty.
var ErrNoFix = errors.New("location: no position fix available")

// SimSource is a fixture-driven Source for dev mode and tests. It walks a
// fixed list of samples, advancing one sample per CurrentPosition call, and
// never touches platform APIs.
type SimSource struct {
	mu       sync.Mutex
	fixtures []Sample
	idx      int
	tracking bool
	denied   bool
	subs     map[string]func(Sample)
}

// NewSimSource creates a SimSource that serves the given samples in order,
// wrapping around at the end.
func NewSimSource(fixtures []Sample) *SimSource {
	return &SimSource{
		fixtures: fixtures,
		subs:     make(map[string]func(Sample)),
	}
}

// DenyPermission makes subsequent RequestPermission calls report denial.
func (s *SimSource) DenyPermission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = true
}

// RequestPermission reports the simulated permission state.
func (s *SimSource) RequestPermission(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.denied, nil
}

// CurrentPosition returns the next fixture sample.
func (s *SimSource) CurrentPosition(ctx context.Context) (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracking || len(s.fixtures) == 0 {
		return Sample{}, ErrNoFix
	}
	sample := s.fixtures[s.idx%len(s.fixtures)]
	s.idx++
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	return sample, nil
}

// StartTracking marks the source as tracking. Permission denial fails the
// start, mirroring the platform behavior.
func (s *SimSource) StartTracking(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied {
		return errors.New("location: permission denied")
	}
	s.tracking = true
	return nil
}

// StopTracking halts the simulated sampling.
func (s *SimSource) StopTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracking = false
}

// Subscribe registers fn for pushed updates. Emit delivers to subscribers.
func (s *SimSource) Subscribe(fn func(Sample)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.subs[token] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, token)
	}
}

// Emit pushes a sample to every subscriber. Used by dev mode to simulate
// continuous updates.
func (s *SimSource) Emit(sample Sample) {
	s.mu.Lock()
	fns := make([]func(Sample), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(sample)
	}
}

// Tracking reports whether the source is currently sampling.
func (s *SimSource) Tracking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracking
}
