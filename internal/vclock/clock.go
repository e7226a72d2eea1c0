// Package vclock provides the virtual time source used by rate limiters
// and dither ticks. Everything time-dependent in the data plane reads a
// Clock so tests and the simulation harness stay deterministic.
package vclock

import (
	"sync"
	"time"
)

// Clock reports monotonic elapsed time since an arbitrary epoch.
type Clock interface {
	Now() time.Duration
}

// Sim is a manually advanced clock for tests and simulation.
type Sim struct {
	mu  sync.Mutex
	now time.Duration
}

// NewSim returns a simulated clock starting at zero.
func NewSim() *Sim { return &Sim{} }

func (s *Sim) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Advance moves the clock forward. Negative deltas are ignored; the
// clock is monotonic by contract.
func (s *Sim) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.now += d
	s.mu.Unlock()
}

// Set jumps the clock to an absolute instant, never backwards.
func (s *Sim) Set(t time.Duration) {
	s.mu.Lock()
	if t > s.now {
		s.now = t
	}
	s.mu.Unlock()
}

// Wall is the real monotonic clock.
type Wall struct {
	epoch time.Time
}

// NewWall returns a wall clock with its epoch at the call instant.
func NewWall() *Wall { return &Wall{epoch: time.Now()} }

func (w *Wall) Now() time.Duration { return time.Since(w.epoch) }
