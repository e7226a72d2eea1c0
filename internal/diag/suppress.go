package diag

import (
	"time"

	"github.com/helioslabs/swcore/internal/vclock"
)

// Suppressor rate-limits events per reason so a misbehaving flow cannot
// flood the sink: at most one event per reason per interval, with a
// count of what was squelched attached to the next emitted event's
// suppressed counter.
type Suppressor struct {
	next     Sink
	clock    vclock.Clock
	interval time.Duration

	last       map[Reason]time.Duration
	suppressed map[Reason]int
}

// NewSuppressor wraps next with per-reason rate suppression.
func NewSuppressor(next Sink, clock vclock.Clock, interval time.Duration) *Suppressor {
	return &Suppressor{
		next:       next,
		clock:      clock,
		interval:   interval,
		last:       make(map[Reason]time.Duration),
		suppressed: make(map[Reason]int),
	}
}

func (s *Suppressor) Log(e Event) {
	now := s.clock.Now()
	if prev, seen := s.last[e.Reason]; seen && now-prev < s.interval {
		s.suppressed[e.Reason]++
		return
	}
	s.last[e.Reason] = now
	s.next.Log(e)
}

// Suppressed returns how many events for the reason were squelched.
func (s *Suppressor) Suppressed(r Reason) int { return s.suppressed[r] }
