// Package mbuf implements the shared packet buffer pool. Packets are
// reference counted so a single ingress frame can be held by several
// egress queues and plugins at once; the backing bytes return to the
// pool when the last reference is released.
package mbuf

import (
	"github.com/helioslabs/swcore/internal/core"
)

// Packet is one pooled Ethernet frame. Data holds the raw frame bytes
// (header + payload). Priority is the egress drain priority assigned
// during ingress processing. User carries per-packet metadata words the
// forwarding engine owns; the pool never interprets them.
type Packet struct {
	Data     []byte
	Priority uint8
	User     [2]uint32

	pool *Pool
	refs int
	cap  int
}

// Retain adds a reference. Each Retain needs a matching Free.
func (p *Packet) Retain() {
	p.refs++
}

// Refs returns the current reference count.
func (p *Packet) Refs() int { return p.refs }

// Cap returns the allocated buffer capacity in bytes.
func (p *Packet) Cap() int { return p.cap }

// Resize changes the visible frame length within the allocated
// capacity. Returns false when n does not fit.
func (p *Packet) Resize(n int) bool {
	if n < 0 || n > p.cap {
		return false
	}
	p.Data = p.Data[:n]
	return true
}

// Free releases one reference, returning the buffer to the pool when
// the count reaches zero. Freeing a dead packet is a caller bug and
// reported as ErrDoubleFree.
func (p *Packet) Free() error {
	if p.refs <= 0 {
		return core.ErrDoubleFree
	}
	p.refs--
	if p.refs == 0 {
		p.pool.release(p)
	}
	return nil
}

// Pool hands out packets against a fixed byte budget. Exhaustion is a
// normal data-plane condition: Alloc fails with ErrOutOfMemory and the
// caller drops the frame.
type Pool struct {
	capacity int
	used     int
	packets  int
}

// NewPool creates a pool with the given byte capacity.
func NewPool(capacityBytes int) *Pool {
	return &Pool{capacity: capacityBytes}
}

// Alloc returns a packet able to hold size bytes, with one reference
// held by the caller. Data has length size.
func (p *Pool) Alloc(size int) (*Packet, error) {
	if size <= 0 {
		return nil, core.ErrOutOfMemory
	}
	if p.used+size > p.capacity {
		return nil, core.ErrOutOfMemory
	}
	p.used += size
	p.packets++
	return &Packet{
		Data: make([]byte, size),
		pool: p,
		refs: 1,
		cap:  size,
	}, nil
}

// Copy allocates a packet holding a copy of the given frame bytes.
func (p *Pool) Copy(frame []byte) (*Packet, error) {
	pkt, err := p.Alloc(len(frame))
	if err != nil {
		return nil, err
	}
	copy(pkt.Data, frame)
	return pkt, nil
}

func (p *Pool) release(pkt *Packet) {
	p.used -= pkt.cap
	p.packets--
	pkt.Data = nil
}

// InUse returns the bytes currently allocated.
func (p *Pool) InUse() int { return p.used }

// Capacity returns the pool's byte budget.
func (p *Pool) Capacity() int { return p.capacity }

// Outstanding returns the number of live packets.
func (p *Pool) Outstanding() int { return p.packets }
