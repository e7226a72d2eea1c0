package core

import "encoding/binary"

const (
	// HeaderLen is the untagged Ethernet header length (dst + src + type).
	HeaderLen = 14
	// VlanHeaderLen is the extra length added by one 802.1Q tag.
	VlanHeaderLen = 4
	// MaxHeaderLen is the longest header the switch rewrites in place.
	MaxHeaderLen = HeaderLen + VlanHeaderLen
)

// Header holds the decoded Ethernet frame header. The switch treats the
// payload as opaque; only these fields are ever rewritten.
type Header struct {
	Dst  MAC
	Src  MAC
	Type uint16
	Tag  VlanTag // zero when the frame is untagged
	// Tagged records whether an 802.1Q tag was present on the wire.
	// A tag of zero with Tagged set is a valid priority-only tag.
	Tagged bool
}

// Len returns the encoded header length in bytes.
func (h *Header) Len() int {
	if h.Tagged {
		return HeaderLen + VlanHeaderLen
	}
	return HeaderLen
}

// DecodeHeader parses an Ethernet header (with at most one 802.1Q tag)
// from the start of a frame. Returns ErrFrameTooRunt if the frame cannot
// hold the headers it declares.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderLen {
		return Header{}, ErrFrameTooRunt
	}
	var h Header
	copy(h.Dst[:], data[0:6])
	copy(h.Src[:], data[6:12])
	etherType := binary.BigEndian.Uint16(data[12:14])
	if etherType == EtherTypeVLAN || etherType == EtherTypeQinQ {
		if len(data) < HeaderLen+VlanHeaderLen {
			return Header{}, ErrFrameTooRunt
		}
		h.Tagged = true
		h.Tag = VlanTag(binary.BigEndian.Uint16(data[14:16]))
		etherType = binary.BigEndian.Uint16(data[16:18])
	}
	h.Type = etherType
	return h, nil
}

// EncodeHeader writes the header back to the start of a frame buffer.
// The buffer must be at least h.Len() bytes long.
func EncodeHeader(h *Header, data []byte) {
	copy(data[0:6], h.Dst[:])
	copy(data[6:12], h.Src[:])
	if h.Tagged {
		binary.BigEndian.PutUint16(data[12:14], EtherTypeVLAN)
		binary.BigEndian.PutUint16(data[14:16], uint16(h.Tag))
		binary.BigEndian.PutUint16(data[16:18], h.Type)
	} else {
		binary.BigEndian.PutUint16(data[12:14], h.Type)
	}
}
