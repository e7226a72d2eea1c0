package core

// TagPolicy is a port's 802.1Q admission policy.
type TagPolicy uint8

const (
	// TagAdmitAll accepts tagged and untagged frames alike.
	TagAdmitAll TagPolicy = iota
	// TagRestrict accepts untagged frames and priority-only tags
	// (VID zero); frames carrying a real VID are rejected.
	TagRestrict
	// TagPriority treats tags as priority-only; the VID is always the
	// port default regardless of what the frame carries.
	TagPriority
	// TagMandatory rejects any frame arriving without a tag.
	TagMandatory
)

func (p TagPolicy) String() string {
	switch p {
	case TagAdmitAll:
		return "ADMIT_ALL"
	case TagRestrict:
		return "RESTRICT"
	case TagPriority:
		return "PRIORITY"
	case TagMandatory:
		return "MANDATORY"
	}
	return "UNKNOWN"
}

// PortVtag is a port's VLAN configuration: the default tag applied to
// untagged ingress frames and the admission policy.
type PortVtag struct {
	Tag    VlanTag
	Policy TagPolicy
}

// Admits reports whether a frame with the given tag state passes the
// port's ingress admission policy.
func (v PortVtag) Admits(tagged bool, tag VlanTag) bool {
	switch v.Policy {
	case TagRestrict:
		return !tagged || tag.VID() == 0
	case TagMandatory:
		return tagged
	default:
		return true
	}
}

// Pack encodes the configuration into one metadata word.
func (v PortVtag) Pack() uint32 {
	return uint32(v.Tag) | uint32(v.Policy)<<16
}

// UnpackPortVtag is the inverse of Pack.
func UnpackPortVtag(w uint32) PortVtag {
	return PortVtag{
		Tag:    VlanTag(w & 0xFFFF),
		Policy: TagPolicy(w >> 16),
	}
}
