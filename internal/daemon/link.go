package daemon

import "github.com/helioslabs/swcore/internal/core"

// defaultLinkBytes is the egress buffer per in-memory link.
const defaultLinkBytes = 64 * 1024

// memLink is an in-memory port transport with a byte-counted egress
// buffer. It backs configured ports until a real device is bound; tests
// use it to observe egress traffic.
type memLink struct {
	capacity int
	buffered int
	frames   [][]byte
}

func newMemLink(capacity int) *memLink {
	if capacity <= 0 {
		capacity = defaultLinkBytes
	}
	return &memLink{capacity: capacity}
}

// WriteSpace implements eth.Link.
func (l *memLink) WriteSpace() int { return l.capacity - l.buffered }

// Write implements eth.Link.
func (l *memLink) Write(frame []byte) error {
	if len(frame) > l.WriteSpace() {
		return core.ErrLinkFull
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	l.frames = append(l.frames, cp)
	l.buffered += len(cp)
	return nil
}

// ReadReady implements eth.Link. memLink is push-driven.
func (l *memLink) ReadReady() int { return 0 }

// Drain removes and returns all buffered egress frames.
func (l *memLink) Drain() [][]byte {
	out := l.frames
	l.frames = nil
	l.buffered = 0
	return out
}
