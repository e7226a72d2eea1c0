// Package vlan implements 802.1Q handling as a switch plugin:
// per-VID membership masks, per-port tag policy enforcement, and a
// token-bucket rate limiter with strict-drop and demote policies.
package vlan

import (
	"time"

	"github.com/helioslabs/swcore/internal/core"
	"github.com/helioslabs/swcore/internal/diag"
	"github.com/helioslabs/swcore/internal/eth"
	"github.com/helioslabs/swcore/internal/vclock"
)

// RatePolicy selects what happens to a frame that exceeds its VLAN's
// token budget.
type RatePolicy uint8

const (
	// RateUnlimited disables accounting for the VLAN.
	RateUnlimited RatePolicy = iota
	// RateStrict drops frames over budget.
	RateStrict
	// RateDemote forwards frames over budget at priority zero.
	RateDemote
	// RateAuto drops drop-eligible (DEI) frames over budget and
	// demotes the rest.
	RateAuto
)

func (p RatePolicy) String() string {
	switch p {
	case RateUnlimited:
		return "UNLIMITED"
	case RateStrict:
		return "STRICT"
	case RateDemote:
		return "DEMOTE"
	case RateAuto:
		return "AUTO"
	}
	return "UNKNOWN"
}

// RateConfig is one VLAN's token-bucket setting. Tokens are bytes;
// the bucket starts full.
type RateConfig struct {
	Policy     RatePolicy
	RateBits   uint64 // refill rate, bits per second
	BurstBytes uint64 // bucket depth
}

const bitNanosPerByte = 8 * uint64(time.Second)

type vlanState struct {
	mask   core.PortMask
	rate   RateConfig
	tokens uint64
	frac   uint64 // sub-byte refill remainder, in bit-nanoseconds
	last   time.Duration
}

// refill tops the bucket up for the time elapsed since the last call.
// Replenishment is continuous: computed lazily from elapsed virtual
// time, never from a polling tick.
func (s *vlanState) refill(now time.Duration) {
	elapsed := now - s.last
	s.last = now
	if s.rate.RateBits == 0 || elapsed <= 0 {
		return
	}
	// Past this interval the bucket is full from empty regardless.
	full := time.Duration(s.rate.BurstBytes*bitNanosPerByte/s.rate.RateBits) + 1
	if elapsed >= full {
		s.tokens = s.rate.BurstBytes
		s.frac = 0
		return
	}
	s.frac += uint64(elapsed) * s.rate.RateBits
	s.tokens += s.frac / bitNanosPerByte
	s.frac %= bitNanosPerByte
	if s.tokens >= s.rate.BurstBytes {
		s.tokens = s.rate.BurstBytes
		s.frac = 0
	}
}

// Vlan is the VLAN plugin. Membership and rate state are keyed by VID;
// a never-before-seen VID defaults to all-ports membership, or to
// empty membership when the switch runs locked down.
type Vlan struct {
	sw     *eth.Switch
	clock  vclock.Clock
	locked bool
	table  map[uint16]*vlanState
}

// New creates the VLAN plugin. With locked set, unknown VIDs admit no
// ports until configured.
func New(sw *eth.Switch, clock vclock.Clock, locked bool) *Vlan {
	return &Vlan{
		sw:     sw,
		clock:  clock,
		locked: locked,
		table:  make(map[uint16]*vlanState),
	}
}

func (v *Vlan) state(vid uint16) *vlanState {
	if s, ok := v.table[vid]; ok {
		return s
	}
	mask := core.MaskAll
	if v.locked {
		mask = core.MaskNone
	}
	s := &vlanState{mask: mask, last: v.clock.Now()}
	v.table[vid] = s
	return s
}

// Join adds a port to the VLAN's membership mask.
func (v *Vlan) Join(vid uint16, port int) {
	v.state(vid).mask |= core.MaskFor(port)
}

// Leave removes a port from the VLAN's membership mask.
func (v *Vlan) Leave(vid uint16, port int) {
	v.state(vid).mask &^= core.MaskFor(port)
}

// SetMask replaces the VLAN's membership mask outright.
func (v *Vlan) SetMask(vid uint16, mask core.PortMask) {
	v.state(vid).mask = mask
}

// Mask returns the VLAN's current membership mask.
func (v *Vlan) Mask(vid uint16) core.PortMask {
	return v.state(vid).mask
}

// SetRate configures the VLAN's token bucket. The bucket starts full.
func (v *Vlan) SetRate(vid uint16, cfg RateConfig) {
	s := v.state(vid)
	s.rate = cfg
	s.tokens = cfg.BurstBytes
	s.frac = 0
	s.last = v.clock.Now()
}

// Rate returns the VLAN's rate configuration.
func (v *Vlan) Rate(vid uint16) RateConfig {
	return v.state(vid).rate
}

// Reset drops all VLAN state and sets the lockdown mode for VIDs seen
// afterwards.
func (v *Vlan) Reset(locked bool) {
	v.locked = locked
	v.table = make(map[uint16]*vlanState)
}

// Query implements the ingress phase: admission policy, membership
// restriction, priority assignment, and rate accounting.
func (v *Vlan) Query(pp *eth.PluginPacket) {
	vt := core.UnpackPortVtag(pp.Pkt.User[1])
	if !vt.Admits(pp.Header.Tagged, pp.Header.Tag) {
		pp.Drop(diag.ReasonVlan)
		return
	}

	// Effective VID: the frame's own tag unless the port policy makes
	// the VID implicit; untagged frames use the port default.
	vid := vt.Tag.VID()
	if pp.Header.Tagged && vt.Policy != core.TagPriority && pp.Header.Tag.VID() != 0 {
		vid = pp.Header.Tag.VID()
	}
	if pp.Header.Tagged {
		pp.Pkt.Priority = pp.Header.Tag.PCP()
	} else {
		pp.Pkt.Priority = vt.Tag.PCP()
	}
	if vid == 0 {
		return // no VLAN: nothing to restrict or account
	}

	s := v.state(vid)
	pp.KeepPorts(s.mask)
	if !s.mask.Contains(pp.SrcPort) {
		pp.Drop(diag.ReasonVlan)
		return
	}

	if s.rate.Policy == RateUnlimited {
		return
	}
	s.refill(v.clock.Now())
	cost := uint64(len(pp.Pkt.Data))
	if s.tokens >= cost {
		s.tokens -= cost
		return
	}
	dei := pp.Header.Tagged && pp.Header.Tag.DEI()
	switch s.rate.Policy {
	case RateStrict:
		pp.Drop(diag.ReasonVlanRate)
	case RateDemote:
		pp.Pkt.Priority = 0
	case RateAuto:
		if dei {
			pp.Drop(diag.ReasonVlanRate)
		} else {
			pp.Pkt.Priority = 0
		}
	}
}

// Egress implements the adjust phase: the destination port's policy
// decides whether the frame leaves tagged, priority-tagged, or bare.
func (v *Vlan) Egress(pp *eth.PluginPacket) {
	port := v.sw.Port(pp.DstPort)
	if port == nil {
		return
	}
	h := pp.Header
	vid := h.Tag.VID()
	if !h.Tagged || vid == 0 {
		vid = core.UnpackPortVtag(pp.Pkt.User[1]).Tag.VID()
	}
	dei := uint8(0)
	if h.Tagged && h.Tag.DEI() {
		dei = 1
	}
	switch port.Vtag().Policy {
	case core.TagMandatory:
		h.Tagged = true
		h.Tag = core.NewVlanTag(vid, pp.Pkt.Priority, dei)
	case core.TagPriority:
		h.Tagged = true
		h.Tag = core.NewVlanTag(0, pp.Pkt.Priority, dei)
	default:
		h.Tagged = false
		h.Tag = 0
	}
	if h.Len() == pp.Header.Len() && h == pp.Header {
		return
	}
	pp.Adjust(h)
}
