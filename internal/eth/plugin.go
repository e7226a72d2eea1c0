// Package eth implements the switch core: port registry, forwarding
// engine, plugin pipeline, MAC address cache, and the capture tap.
package eth

import (
	"github.com/helioslabs/swcore/internal/core"
	"github.com/helioslabs/swcore/internal/diag"
	"github.com/helioslabs/swcore/internal/mbuf"
)

type pluginPhase uint8

const (
	phaseIngress pluginPhase = iota
	phaseEgress
)

// PluginPacket is the transient view handed to each plugin: the pooled
// packet plus the routing metadata the chain is allowed to mutate.
// Plugins narrow the destination mask, divert, drop, or (egress only)
// adjust the header; they never widen the mask or touch payload bytes.
type PluginPacket struct {
	Pkt    *mbuf.Packet
	Header core.Header

	// SrcPort is the ingress port index.
	SrcPort int
	// DstPort is the egress port index during the egress phase, -1 on
	// ingress.
	DstPort int

	dstMask  core.PortMask
	phase    pluginPhase
	diverted bool
	dropped  diag.Reason
}

// DstMask returns the pending destination port mask.
func (pp *PluginPacket) DstMask() core.PortMask { return pp.dstMask }

// KeepPorts intersects the destination mask with the given mask.
// Plugins can only remove destinations, never add them.
func (pp *PluginPacket) KeepPorts(mask core.PortMask) {
	pp.dstMask &= mask
}

// Drop clears the destination mask and records the reason for the
// diagnostic log.
func (pp *PluginPacket) Drop(reason diag.Reason) {
	pp.dstMask = core.MaskNone
	pp.dropped = reason
}

// Divert claims exclusive ownership of the packet. The chain stops,
// the core forgoes forwarding and freeing, and the diverting plugin
// must eventually free the packet itself.
func (pp *PluginPacket) Divert() {
	pp.diverted = true
}

// Diverted reports whether a plugin has claimed the packet.
func (pp *PluginPacket) Diverted() bool { return pp.diverted }

// Adjust replaces the frame header. Header-length changes (inserting
// or removing a VLAN tag) are legal only during the egress phase;
// elsewhere they return ErrHeaderLength and leave the header alone.
func (pp *PluginPacket) Adjust(h core.Header) error {
	if pp.phase != phaseEgress && h.Len() != pp.Header.Len() {
		return core.ErrHeaderLength
	}
	pp.Header = h
	return nil
}

// Plugin inspects every ingress frame, in registration order.
type Plugin interface {
	Query(pp *PluginPacket)
}

// EgressPlugin additionally runs once per destination port after the
// mask is final; this is the only place header length may change.
type EgressPlugin interface {
	Egress(pp *PluginPacket)
}

// Tap receives a copy of every frame the core accepts for processing.
// Diagnostics only; taps cannot influence forwarding.
type Tap interface {
	Frame(data []byte)
}
