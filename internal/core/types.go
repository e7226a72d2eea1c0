// Package core defines core data structures with zero external dependencies.
package core

import (
	"encoding/binary"
	"fmt"
)

// MAC is a 48-bit Ethernet hardware address.
type MAC [6]byte

// Well-known addresses.
var (
	MACNone      = MAC{}
	MACBroadcast = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
)

// IsBroadcast reports whether the address is the all-ones broadcast address.
func (m MAC) IsBroadcast() bool { return m == MACBroadcast }

// IsMulticast reports whether the I/G bit is set (includes broadcast).
func (m MAC) IsMulticast() bool { return m[0]&0x01 != 0 }

// IsUnicast reports whether the address is a valid unicast address.
func (m MAC) IsUnicast() bool { return m != MACNone && !m.IsMulticast() }

// Uint64 packs the address into the low 48 bits of a uint64, for map keys.
func (m MAC) Uint64() uint64 {
	var buf [8]byte
	copy(buf[2:], m[:])
	return binary.BigEndian.Uint64(buf[:])
}

// MACFromUint64 is the inverse of MAC.Uint64.
func MACFromUint64(v uint64) MAC {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	var m MAC
	copy(m[:], buf[2:])
	return m
}

func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// EtherType values handled by the switch. Everything else is opaque payload.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
	EtherTypeVLAN uint16 = 0x8100
	EtherTypeQinQ uint16 = 0x88A8
	EtherTypePTP  uint16 = 0x88F7
)

// PortMask is a bitmask with one bit per switch port. Its width sets the
// hard limit on the number of ports (32).
type PortMask uint32

const (
	// MaskAll addresses every port (broadcast).
	MaskAll PortMask = 0xFFFFFFFF
	// MaskNone addresses no ports (drop).
	MaskNone PortMask = 0
	// MaxPorts is the hard port-count limit implied by the mask width.
	MaxPorts = 32
)

// MaskFor converts a port index to a single-bit mask.
// Out-of-range indices yield MaskNone.
func MaskFor(idx int) PortMask {
	if idx < 0 || idx >= MaxPorts {
		return MaskNone
	}
	return PortMask(1) << uint(idx)
}

// Contains reports whether the bit for the given port index is set.
func (pm PortMask) Contains(idx int) bool { return pm&MaskFor(idx) != 0 }

// Count returns the number of set bits.
func (pm PortMask) Count() int {
	n := 0
	for v := uint32(pm); v != 0; v &= v - 1 {
		n++
	}
	return n
}

// VlanTag is the 16-bit 802.1Q tag control information field:
// 3-bit priority (PCP), 1-bit drop-eligible (DEI), 12-bit VID.
type VlanTag uint16

// NewVlanTag assembles a tag from its fields. Out-of-range inputs are masked.
func NewVlanTag(vid uint16, pcp, dei uint8) VlanTag {
	return VlanTag(uint16(pcp&0x7)<<13 | uint16(dei&0x1)<<12 | vid&0x0FFF)
}

func (t VlanTag) VID() uint16 { return uint16(t) & 0x0FFF }
func (t VlanTag) PCP() uint8  { return uint8(t >> 13) }
func (t VlanTag) DEI() bool   { return t&0x1000 != 0 }
