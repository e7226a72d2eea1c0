package eth

import (
	"github.com/helioslabs/swcore/internal/core"
	"github.com/helioslabs/swcore/internal/diag"
	"github.com/helioslabs/swcore/internal/mbuf"
)

// Switch is the forwarding engine. It owns the port registry and the
// plugin chain; packets flow through deliver() synchronously within
// the caller's service tick.
type Switch struct {
	pool    *mbuf.Pool
	ports   [core.MaxPorts]*Port
	used    core.PortMask
	plugins []Plugin
	sink    diag.Sink
	tap     Tap

	trafficType  uint16
	trafficAll   bool
	trafficCount uint64
}

// New creates a switch backed by the given packet pool. Diagnostics
// default to the no-op sink.
func New(pool *mbuf.Pool) *Switch {
	return &Switch{pool: pool, sink: diag.Noop{}, trafficAll: true}
}

// SetDiag attaches a diagnostic sink. Passing nil restores the no-op
// sink; forwarding behavior is identical either way.
func (sw *Switch) SetDiag(s diag.Sink) {
	if s == nil {
		s = diag.Noop{}
	}
	sw.sink = s
}

// SetTap attaches a capture tap receiving a copy of every processed
// frame. Passing nil removes the tap.
func (sw *Switch) SetTap(t Tap) { sw.tap = t }

// AddPlugin appends a plugin to the chain. Chain order is invocation
// order.
func (sw *Switch) AddPlugin(p Plugin) {
	sw.plugins = append(sw.plugins, p)
}

// AttachPort registers a new port over the given link, taking the
// lowest free index. Fails with ErrPortOverflow once all 32 indices
// are taken; existing ports are unaffected.
func (sw *Switch) AttachPort(link Link) (*Port, error) {
	for idx := 0; idx < core.MaxPorts; idx++ {
		if sw.used.Contains(idx) {
			continue
		}
		p := &Port{sw: sw, idx: idx, link: link, enabled: true}
		sw.ports[idx] = p
		sw.used |= core.MaskFor(idx)
		return p, nil
	}
	sw.sink.Log(diag.Event{Verdict: diag.Dropped, Reason: diag.ReasonOverflow, SrcPort: -1})
	return nil, core.ErrPortOverflow
}

func (sw *Switch) detach(p *Port) {
	if sw.ports[p.idx] == p {
		sw.ports[p.idx] = nil
		sw.used &^= core.MaskFor(p.idx)
	}
}

// PortCount returns the number of attached ports.
func (sw *Switch) PortCount() int { return sw.used.Count() }

// Port returns the port at the given index, or nil.
func (sw *Switch) Port(idx int) *Port {
	if idx < 0 || idx >= core.MaxPorts {
		return nil
	}
	return sw.ports[idx]
}

// PromiscuousMask returns the mask of ports flagged promiscuous.
func (sw *Switch) PromiscuousMask() core.PortMask {
	var m core.PortMask
	for idx := 0; idx < core.MaxPorts; idx++ {
		if p := sw.ports[idx]; p != nil && p.promisc {
			m |= p.Mask()
		}
	}
	return m
}

// EnabledMask returns the mask of enabled ports.
func (sw *Switch) EnabledMask() core.PortMask {
	var m core.PortMask
	for idx := 0; idx < core.MaxPorts; idx++ {
		if p := sw.ports[idx]; p != nil && p.enabled {
			m |= p.Mask()
		}
	}
	return m
}

// SetTrafficFilter restricts the global traffic counter to one
// EtherType. Zero counts every frame.
func (sw *Switch) SetTrafficFilter(etherType uint16) {
	sw.trafficType = etherType
	sw.trafficAll = etherType == 0
	sw.trafficCount = 0
}

// TrafficFilter returns the configured EtherType filter (zero = all).
func (sw *Switch) TrafficFilter() uint16 { return sw.trafficType }

// TrafficCount returns frames counted since the filter was last set.
func (sw *Switch) TrafficCount() uint64 { return sw.trafficCount }

// ServicePorts drains every port's egress queue. Returns total frames
// emitted.
func (sw *Switch) ServicePorts() int {
	sent := 0
	for idx := 0; idx < core.MaxPorts; idx++ {
		if p := sw.ports[idx]; p != nil {
			sent += p.Service()
		}
	}
	return sent
}

// deliver runs the full per-packet state machine: header parse, stats,
// plugin ingress chain, mask resolution, per-destination egress chain,
// and fan-out. Returns true when the frame reached at least one port
// or was diverted.
func (sw *Switch) deliver(src *Port, frame []byte) bool {
	hdr, err := core.DecodeHeader(frame)
	if err != nil {
		src.counters.Dropped++
		sw.logDrop(diag.ReasonBadFrame, src.idx, frame)
		return false
	}
	if sw.tap != nil {
		sw.tap.Frame(frame)
	}
	if sw.trafficAll || hdr.Type == sw.trafficType {
		sw.trafficCount++
	}

	pkt, err := sw.pool.Copy(frame)
	if err != nil {
		src.counters.Dropped++
		sw.logDrop(diag.ReasonOverflow, src.idx, frame)
		return false
	}
	if hdr.Tagged {
		pkt.Priority = hdr.Tag.PCP()
	}
	pkt.User[0] = uint32(src.idx)
	pkt.User[1] = src.vtag.Pack()

	pp := PluginPacket{
		Pkt:     pkt,
		Header:  hdr,
		SrcPort: src.idx,
		DstPort: -1,
		dstMask: core.MaskAll,
		phase:   phaseIngress,
	}
	hdrLen := hdr.Len()
	for _, plugin := range sw.plugins {
		plugin.Query(&pp)
		if pp.diverted {
			// Ownership transfers to the plugin, reference included.
			return true
		}
	}
	if pp.Header.Len() != hdrLen {
		pkt.Free()
		src.counters.Dropped++
		sw.logDrop(diag.ReasonHeaderLen, src.idx, frame)
		return false
	}

	mask := pp.dstMask
	if hdr.Dst.IsUnicast() {
		mask |= sw.PromiscuousMask()
	}
	mask &^= src.Mask()
	mask &= sw.EnabledMask()
	if mask == core.MaskNone {
		reason := pp.dropped
		if reason == diag.ReasonNone {
			reason = diag.ReasonNoRoute
		}
		pkt.Free()
		src.counters.Dropped++
		sw.logDrop(reason, src.idx, frame)
		return false
	}

	delivered := sw.fanOut(&pp, mask)
	pkt.Free()
	if delivered == 0 {
		src.counters.Dropped++
		return false
	}
	sw.sink.Log(diag.Event{
		Verdict:   diag.Delivered,
		SrcPort:   src.idx,
		Src:       hdr.Src,
		Dst:       hdr.Dst,
		EtherType: hdr.Type,
		Length:    len(frame),
	})
	return true
}

// fanOut runs the egress chain per destination and enqueues one copy
// per surviving port. Each destination gets its own header so egress
// plugins can retag ports independently.
func (sw *Switch) fanOut(pp *PluginPacket, mask core.PortMask) int {
	payloadOff := pp.Header.Len()
	delivered := 0
	for idx := 0; idx < core.MaxPorts; idx++ {
		if !mask.Contains(idx) {
			continue
		}
		dst := sw.ports[idx]
		if dst == nil {
			continue
		}
		epp := PluginPacket{
			Pkt:     pp.Pkt,
			Header:  pp.Header,
			SrcPort: pp.SrcPort,
			DstPort: idx,
			dstMask: core.MaskFor(idx),
			phase:   phaseEgress,
		}
		for _, plugin := range sw.plugins {
			if ep, ok := plugin.(EgressPlugin); ok {
				ep.Egress(&epp)
			}
		}
		if !epp.dstMask.Contains(idx) {
			dst.counters.Dropped++
			continue
		}
		pp.Pkt.Retain()
		dst.accept(pp.Pkt, epp.Header, payloadOff, pp.Pkt.Priority)
		delivered++
	}
	return delivered
}

// logDrop emits a drop event, decoding addresses best-effort.
func (sw *Switch) logDrop(reason diag.Reason, srcPort int, frame []byte) {
	e := diag.Event{
		Verdict: diag.Dropped,
		Reason:  reason,
		SrcPort: srcPort,
		Length:  len(frame),
	}
	if h, err := core.DecodeHeader(frame); err == nil {
		e.Dst, e.Src, e.EtherType = h.Dst, h.Src, h.Type
	}
	sw.sink.Log(e)
}
