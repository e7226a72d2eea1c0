package eth

import (
	"container/heap"

	"github.com/helioslabs/swcore/internal/core"
	"github.com/helioslabs/swcore/internal/diag"
	"github.com/helioslabs/swcore/internal/mbuf"
)

// Link is the transport under a port: a byte-oriented device with
// explicit backpressure. The core never writes more than WriteSpace
// reports.
type Link interface {
	// WriteSpace returns how many bytes a Write may carry right now.
	WriteSpace() int
	// Write emits one complete egress frame.
	Write(frame []byte) error
	// ReadReady returns how many ingress bytes are pending, for
	// poll-driven adapters. Push-driven adapters return 0.
	ReadReady() int
}

// PortCounters are the per-port traffic totals.
type PortCounters struct {
	RxFrames uint64
	RxBytes  uint64
	TxFrames uint64
	TxBytes  uint64
	Dropped  uint64
}

// egressEntry is one queued frame: a shared packet reference plus the
// per-destination header, since egress plugins may retag each copy
// differently.
type egressEntry struct {
	pkt        *mbuf.Packet
	hdr        core.Header
	payloadOff int
	prio       uint8
	seq        uint64
}

// egressQueue drains strictly by priority class, FIFO within a class.
type egressQueue []egressEntry

func (q egressQueue) Len() int { return len(q) }
func (q egressQueue) Less(i, j int) bool {
	if q[i].prio != q[j].prio {
		return q[i].prio > q[j].prio
	}
	return q[i].seq < q[j].seq
}
func (q egressQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *egressQueue) Push(x interface{}) { *q = append(*q, x.(egressEntry)) }
func (q *egressQueue) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	*q = old[:n-1]
	return e
}

// Port is one attached switch port.
type Port struct {
	sw      *Switch
	idx     int
	link    Link
	enabled bool
	promisc bool
	vtag    core.PortVtag

	queue   egressQueue
	nextSeq uint64
	scratch []byte

	counters PortCounters
}

// Index returns the port's index in the switch port table.
func (p *Port) Index() int { return p.idx }

// Mask returns the port's single-bit mask.
func (p *Port) Mask() core.PortMask { return core.MaskFor(p.idx) }

// Counters returns a snapshot of the port's traffic totals.
func (p *Port) Counters() PortCounters { return p.counters }

// Vtag returns the port's VLAN configuration.
func (p *Port) Vtag() core.PortVtag { return p.vtag }

// SetVtag sets the port's default tag and admission policy.
func (p *Port) SetVtag(v core.PortVtag) { p.vtag = v }

// Promiscuous reports whether the port receives all unicast traffic.
func (p *Port) Promiscuous() bool { return p.promisc }

// SetPromiscuous flags the port to additionally receive unicast
// traffic not addressed to it.
func (p *Port) SetPromiscuous(on bool) { p.promisc = on }

// Enabled reports whether the port passes traffic.
func (p *Port) Enabled() bool { return p.enabled }

// Enable gates both directions. Disabling discards the egress backlog
// immediately; a disabled port must not accumulate queued frames.
func (p *Port) Enable(on bool) {
	p.enabled = on
	if !on {
		p.Flush()
	}
}

// Write submits one ingress frame to the switch. It reports whether
// the frame was accepted for processing; drops are counted and logged
// through the diagnostic sink.
func (p *Port) Write(frame []byte) bool {
	if p.sw == nil {
		return false
	}
	if !p.enabled {
		p.counters.Dropped++
		p.sw.logDrop(diag.ReasonDisabled, p.idx, frame)
		return false
	}
	p.counters.RxFrames++
	p.counters.RxBytes += uint64(len(frame))
	return p.sw.deliver(p, frame)
}

// Flush discards all pending egress frames without emitting them.
func (p *Port) Flush() {
	for _, e := range p.queue {
		e.pkt.Free()
	}
	p.queue = p.queue[:0]
}

// Detach removes the port from the switch. Pending egress frames are
// discarded; the port index becomes available again.
func (p *Port) Detach() {
	if p.sw == nil {
		return
	}
	p.Flush()
	p.sw.detach(p)
	p.sw = nil
}

// accept enqueues one frame for egress. The caller has already
// retained the packet on the port's behalf.
func (p *Port) accept(pkt *mbuf.Packet, hdr core.Header, payloadOff int, prio uint8) {
	if !p.enabled {
		pkt.Free()
		p.counters.Dropped++
		return
	}
	heap.Push(&p.queue, egressEntry{
		pkt:        pkt,
		hdr:        hdr,
		payloadOff: payloadOff,
		prio:       prio,
		seq:        p.nextSeq,
	})
	p.nextSeq++
}

// Pending returns the number of queued egress frames.
func (p *Port) Pending() int { return len(p.queue) }

// Service drains queued egress frames to the link, highest priority
// first, stopping when the link's write space runs out. Returns the
// number of frames emitted.
func (p *Port) Service() int {
	sent := 0
	for len(p.queue) > 0 {
		e := p.queue[0]
		frameLen := e.hdr.Len() + len(e.pkt.Data) - e.payloadOff
		if p.link == nil || p.link.WriteSpace() < frameLen {
			break
		}
		heap.Pop(&p.queue)
		if cap(p.scratch) < frameLen {
			p.scratch = make([]byte, frameLen)
		}
		frame := p.scratch[:frameLen]
		core.EncodeHeader(&e.hdr, frame)
		copy(frame[e.hdr.Len():], e.pkt.Data[e.payloadOff:])
		if err := p.link.Write(frame); err == nil {
			p.counters.TxFrames++
			p.counters.TxBytes += uint64(frameLen)
			sent++
		} else {
			p.counters.Dropped++
		}
		e.pkt.Free()
	}
	return sent
}

// Consistency verifies the egress queue's internal ordering invariant.
// The test harness calls this after priority-reordering scenarios.
func (p *Port) Consistency() bool {
	q := p.queue
	for i := range q {
		l, r := 2*i+1, 2*i+2
		if l < len(q) && q.Less(l, i) {
			return false
		}
		if r < len(q) && q.Less(r, i) {
			return false
		}
		if q[i].seq >= p.nextSeq {
			return false
		}
		if q[i].pkt == nil || q[i].pkt.Refs() <= 0 {
			return false
		}
	}
	return true
}
