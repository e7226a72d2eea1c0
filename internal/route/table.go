// Package route implements the IPv4 forwarding table: static routes,
// a default route, MAC-learned cache entries, and longest-prefix-match
// lookup. The table is configured exclusively through this operation
// set; it never infers policy on its own.
package route

import (
	"fmt"
	"net/netip"

	"github.com/helioslabs/swcore/internal/core"
)

// DefaultTableSize is the table capacity when none is given.
const DefaultTableSize = 8

// Flags annotate a route entry.
type Flags uint8

// FlagMACFixed marks a user-provided MAC address; such entries are
// never updated or cleared by the cache machinery.
const FlagMACFixed Flags = 0x01

// Local is the sentinel gateway meaning "deliver directly": lookups
// through a local route return the destination itself as next hop.
var Local = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// DefaultSubnet matches every address.
var DefaultSubnet = netip.PrefixFrom(netip.AddrFrom4([4]byte{}), 0)

// Route is one forwarding entry.
type Route struct {
	Subnet  netip.Prefix
	Gateway netip.Addr
	MAC     core.MAC
	Port    uint8
	Flags   Flags
}

// IsLocal reports whether the route delivers directly on-link.
func (r Route) IsLocal() bool { return r.Gateway == Local }

func (r Route) String() string {
	s := r.Subnet.String()
	if r.IsLocal() {
		s += " is Local"
	} else if r.Gateway.IsValid() {
		s += " to " + r.Gateway.String()
	}
	if r.MAC != core.MACNone {
		s += " = " + r.MAC.String()
	}
	if r.Port != 0 {
		s += fmt.Sprintf(", p%d", r.Port)
	}
	if r.Flags != 0 {
		s += fmt.Sprintf(", f%02X", uint8(r.Flags))
	}
	return s
}

func hostRoute(addr netip.Addr, mac core.MAC, port uint8, flags Flags) Route {
	return Route{
		Subnet:  netip.PrefixFrom(addr, 32),
		Gateway: addr,
		MAC:     mac,
		Port:    port,
		Flags:   flags,
	}
}

// Table is the routing table. Static entries fill from the front of
// the array, ephemeral cache entries from the back; the search always
// covers both.
type Table struct {
	entries  []Route
	defRoute Route
	// wrStatic is one past the last static entry; wrEphemeral is the
	// next back-fill slot for cache entries.
	wrStatic    int
	wrEphemeral int
}

// NewTable creates a table with the given capacity (static plus cache
// entries combined). Out of the box every destination is local.
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		capacity = DefaultTableSize
	}
	t := &Table{entries: make([]Route, capacity)}
	t.RouteClear(false)
	return t
}

// Len returns the number of occupied entries.
func (t *Table) Len() int {
	n := 0
	for _, r := range t.entries {
		if r.Subnet.IsValid() {
			n++
		}
	}
	return n
}

// Default returns the default route.
func (t *Table) Default() Route { return t.defRoute }

// Static returns the static entries, front of table first.
func (t *Table) Static() []Route {
	out := make([]Route, t.wrStatic)
	copy(out, t.entries[:t.wrStatic])
	return out
}

// RouteClear empties the table. With lockdown set the default route
// becomes unreachable instead of local, so unconfigured destinations
// resolve to nothing.
func (t *Table) RouteClear(lockdown bool) {
	t.wrStatic = 0
	t.wrEphemeral = len(t.entries) - 1
	for i := range t.entries {
		t.entries[i] = Route{}
	}
	if lockdown {
		t.RouteDefault(netip.Addr{}, core.MACNone, 0, 0)
	} else {
		t.RouteDefault(Local, core.MACNone, 0, 0)
	}
}

// RouteFlush removes cache entries and clears learned MAC addresses
// from static routes. Entries with a user-provided MAC are left as-is.
// Calling it twice is the same as calling it once.
func (t *Table) RouteFlush() {
	t.wrEphemeral = len(t.entries) - 1
	for i := range t.entries {
		if t.entries[i].Flags&FlagMACFixed != 0 {
			continue
		}
		if i < t.wrStatic {
			t.entries[i].MAC = core.MACNone
		} else {
			t.entries[i] = Route{}
		}
	}
}

// RouteDefault sets the route used when nothing else matches.
func (t *Table) RouteDefault(gateway netip.Addr, mac core.MAC, port uint8, flags Flags) {
	if mac != core.MACNone {
		flags |= FlagMACFixed
	}
	t.defRoute = Route{Subnet: DefaultSubnet, Gateway: gateway, MAC: mac, Port: port, Flags: flags}
}

// RouteSimple is the one-step home-network setup: wipe the table,
// route everything through the gateway, and keep the local subnet
// on-link.
func (t *Table) RouteSimple(gateway netip.Addr, subnet netip.Prefix) error {
	t.RouteClear(false)
	t.RouteDefault(gateway, core.MACNone, 0, 0)
	return t.RouteStatic(subnet, Local, core.MACNone, 0, 0)
}

// RouteStatic installs or updates a static route. A user-provided MAC
// pins the entry against cache updates and flush.
func (t *Table) RouteStatic(subnet netip.Prefix, gateway netip.Addr, mac core.MAC, port uint8, flags Flags) error {
	if mac != core.MACNone {
		flags |= FlagMACFixed
	}
	subnet = subnet.Masked()
	if subnet == DefaultSubnet {
		t.RouteDefault(gateway, mac, port, flags)
		return nil
	}
	r := Route{Subnet: subnet, Gateway: gateway, MAC: mac, Port: port, Flags: flags}
	for i := 0; i < t.wrStatic; i++ {
		if t.entries[i].Subnet == subnet {
			t.entries[i] = r
			return nil
		}
	}
	if t.wrStatic >= len(t.entries) {
		return core.ErrRouteTableFull
	}
	// May overwrite an ephemeral entry sitting in this slot.
	t.entries[t.wrStatic] = r
	t.wrStatic++
	return nil
}

// RouteCache records a gateway's learned MAC address (typically from
// an ARP reply). Matching cache-eligible entries are updated in place;
// if no existing route covers the gateway itself, a host entry is
// added, evicting the oldest cache entry when full.
func (t *Table) RouteCache(gateway netip.Addr, mac core.MAC, port uint8) bool {
	if !gateway.IsValid() || gateway.IsMulticast() || !mac.IsUnicast() {
		return false
	}
	selfMatch := false
	for i := range t.entries {
		e := &t.entries[i]
		if e.Gateway != gateway {
			continue
		}
		if e.Subnet.IsValid() && e.Subnet.Contains(gateway) {
			selfMatch = true
		}
		if e.Flags&FlagMACFixed == 0 {
			e.MAC = mac
		}
	}
	if selfMatch {
		return true
	}
	if t.wrStatic >= len(t.entries) {
		return false // pinned full by static routes
	}
	if t.wrEphemeral < t.wrStatic || t.wrEphemeral >= len(t.entries) {
		t.wrEphemeral = len(t.entries) - 1 // wrap to the oldest slot
	}
	t.entries[t.wrEphemeral] = hostRoute(gateway, mac, port, 0)
	t.wrEphemeral--
	return true
}

// RouteRemove deletes the entry with exactly the given subnet.
// Reports whether anything was removed.
func (t *Table) RouteRemove(subnet netip.Prefix) bool {
	subnet = subnet.Masked()
	// Static region: swap with the last static entry to avoid a gap.
	for i := 0; i < t.wrStatic; i++ {
		if t.entries[i].Subnet == subnet {
			t.wrStatic--
			last := t.wrStatic
			if i != last {
				t.entries[i] = t.entries[last]
			}
			t.entries[last] = Route{}
			return true
		}
	}
	// Ephemeral region: nullify in place.
	for i := t.wrStatic; i < len(t.entries); i++ {
		if t.entries[i].Subnet == subnet {
			t.entries[i] = Route{}
			return true
		}
	}
	return false
}

// Lookup resolves a destination address to its route by longest
// prefix match, falling back to the default route. Multicast resolves
// to the Ethernet broadcast address.
func (t *Table) Lookup(dst netip.Addr) Route {
	if dst.IsMulticast() {
		return hostRoute(dst, core.MACBroadcast, 0, 0)
	}
	if !dst.IsValid() || dst.IsUnspecified() {
		return Route{}
	}
	best := t.defRoute
	for _, e := range t.entries {
		if !e.Subnet.IsValid() {
			continue
		}
		if e.Subnet.Bits() > best.Subnet.Bits() && e.Subnet.Contains(dst) {
			best = e
		}
	}
	// Local routes hand the packet straight to its final hop.
	if best.IsLocal() {
		best.Gateway = dst
	}
	return best
}
