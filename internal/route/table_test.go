package route

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioslabs/swcore/internal/core"
)

var (
	gw1  = netip.MustParseAddr("192.168.1.1")
	gw2  = netip.MustParseAddr("192.168.0.1")
	macX = core.MAC{0x02, 0, 0, 0, 0, 0x11}
	macY = core.MAC{0x02, 0, 0, 0, 0, 0x22}
)

func TestLongestPrefixMatch(t *testing.T) {
	tbl := NewTable(8)
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("192.168.1.0/24"), gw1, core.MACNone, 0, 0))
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("192.168.0.0/16"), gw2, core.MACNone, 0, 0))

	assert.Equal(t, gw1, tbl.Lookup(netip.MustParseAddr("192.168.1.5")).Gateway)
	assert.Equal(t, gw2, tbl.Lookup(netip.MustParseAddr("192.168.5.5")).Gateway)

	// Insertion order must not matter.
	tbl2 := NewTable(8)
	require.NoError(t, tbl2.RouteStatic(netip.MustParsePrefix("192.168.0.0/16"), gw2, core.MACNone, 0, 0))
	require.NoError(t, tbl2.RouteStatic(netip.MustParsePrefix("192.168.1.0/24"), gw1, core.MACNone, 0, 0))
	assert.Equal(t, gw1, tbl2.Lookup(netip.MustParseAddr("192.168.1.5")).Gateway)
}

func TestDefaultRoute(t *testing.T) {
	tbl := NewTable(8)

	// Out of the box everything is local: next hop is the target.
	dst := netip.MustParseAddr("10.1.2.3")
	assert.Equal(t, dst, tbl.Lookup(dst).Gateway)

	tbl.RouteDefault(gw1, core.MACNone, 0, 0)
	assert.Equal(t, gw1, tbl.Lookup(dst).Gateway)

	// A /0 static route is the default route by another name.
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("0.0.0.0/0"), gw2, core.MACNone, 0, 0))
	assert.Equal(t, gw2, tbl.Default().Gateway)
	assert.Equal(t, 0, tbl.Len(), "default route occupies no table slot")
}

func TestFlushIdempotent(t *testing.T) {
	tbl := NewTable(8)
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("192.168.1.0/24"), gw1, core.MACNone, 0, 0))
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("10.0.0.0/8"), gw2, macY, 0, 0))
	require.True(t, tbl.RouteCache(gw1, macX, 0))

	// Learned MAC lands on the static route for gw1.
	assert.Equal(t, macX, tbl.Lookup(netip.MustParseAddr("192.168.1.9")).MAC)

	tbl.RouteFlush()
	after1 := tbl.Static()
	assert.Equal(t, core.MACNone, after1[0].MAC, "learned MAC cleared")
	assert.Equal(t, macY, after1[1].MAC, "user-provided MAC survives flush")
	assert.Equal(t, 2, tbl.Len(), "static routes intact, cache gone")

	tbl.RouteFlush()
	assert.Equal(t, after1, tbl.Static())
	assert.Equal(t, 2, tbl.Len())
}

func TestRouteCacheHostEntry(t *testing.T) {
	tbl := NewTable(8)
	peer := netip.MustParseAddr("172.16.0.9")
	require.True(t, tbl.RouteCache(peer, macX, 3))

	got := tbl.Lookup(peer)
	assert.Equal(t, macX, got.MAC)
	assert.EqualValues(t, 3, got.Port)
	assert.Equal(t, peer, got.Gateway)

	// Invalid inputs are rejected.
	assert.False(t, tbl.RouteCache(netip.Addr{}, macX, 0))
	assert.False(t, tbl.RouteCache(netip.MustParseAddr("224.0.0.1"), macX, 0))
	assert.False(t, tbl.RouteCache(peer, core.MACBroadcast, 0))
}

func TestRouteCacheEvictsOldest(t *testing.T) {
	tbl := NewTable(4)
	addrs := []netip.Addr{
		netip.MustParseAddr("10.0.0.1"),
		netip.MustParseAddr("10.0.0.2"),
		netip.MustParseAddr("10.0.0.3"),
		netip.MustParseAddr("10.0.0.4"),
		netip.MustParseAddr("10.0.0.5"),
	}
	for _, a := range addrs {
		require.True(t, tbl.RouteCache(a, macX, 0))
	}
	// Five entries into four slots: the first one got evicted.
	first := tbl.Lookup(addrs[0])
	assert.NotEqual(t, netip.PrefixFrom(addrs[0], 32), first.Subnet)
	assert.Equal(t, macX, tbl.Lookup(addrs[4]).MAC)
}

func TestStaticTableFull(t *testing.T) {
	tbl := NewTable(2)
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("10.1.0.0/16"), gw1, core.MACNone, 0, 0))
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("10.2.0.0/16"), gw1, core.MACNone, 0, 0))

	err := tbl.RouteStatic(netip.MustParsePrefix("10.3.0.0/16"), gw1, core.MACNone, 0, 0)
	assert.ErrorIs(t, err, core.ErrRouteTableFull)

	// Updating an existing subnet still works.
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("10.2.0.0/16"), gw2, core.MACNone, 0, 0))
	assert.Equal(t, gw2, tbl.Lookup(netip.MustParseAddr("10.2.3.4")).Gateway)

	// A table pinned full of static routes refuses new cache entries.
	assert.False(t, tbl.RouteCache(netip.MustParseAddr("172.16.0.1"), macX, 0))
}

func TestRouteRemove(t *testing.T) {
	tbl := NewTable(8)
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("10.1.0.0/16"), gw1, core.MACNone, 0, 0))
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("10.2.0.0/16"), gw2, core.MACNone, 0, 0))
	peer := netip.MustParseAddr("172.16.0.9")
	require.True(t, tbl.RouteCache(peer, macX, 0))

	assert.True(t, tbl.RouteRemove(netip.MustParsePrefix("10.1.0.0/16")))
	assert.False(t, tbl.RouteRemove(netip.MustParsePrefix("10.1.0.0/16")), "already gone")
	assert.Equal(t, gw2, tbl.Lookup(netip.MustParseAddr("10.2.3.4")).Gateway,
		"surviving static route unaffected by swap-delete")

	assert.True(t, tbl.RouteRemove(netip.PrefixFrom(peer, 32)))
	assert.Equal(t, 1, tbl.Len())
}

func TestRouteSimple(t *testing.T) {
	tbl := NewTable(8)
	require.NoError(t, tbl.RouteSimple(gw1, netip.MustParsePrefix("192.168.1.0/24")))

	// On-subnet traffic goes direct, everything else via the gateway.
	local := netip.MustParseAddr("192.168.1.50")
	assert.Equal(t, local, tbl.Lookup(local).Gateway)
	assert.Equal(t, gw1, tbl.Lookup(netip.MustParseAddr("8.8.8.8")).Gateway)
}

func TestRouteClearLockdown(t *testing.T) {
	tbl := NewTable(8)
	require.NoError(t, tbl.RouteStatic(netip.MustParsePrefix("10.0.0.0/8"), gw1, core.MACNone, 0, 0))

	tbl.RouteClear(true)
	assert.Equal(t, 0, tbl.Len())
	got := tbl.Lookup(netip.MustParseAddr("10.1.2.3"))
	assert.False(t, got.Gateway.IsValid(), "lockdown leaves no reachable default")
}

func TestLookupSpecialAddresses(t *testing.T) {
	tbl := NewTable(8)

	mc := tbl.Lookup(netip.MustParseAddr("239.1.2.3"))
	assert.Equal(t, core.MACBroadcast, mc.MAC)
	assert.Equal(t, netip.MustParseAddr("239.1.2.3"), mc.Gateway)

	zero := tbl.Lookup(netip.MustParseAddr("0.0.0.0"))
	assert.False(t, zero.Gateway.IsValid())
}

func TestRouteString(t *testing.T) {
	r := Route{Subnet: netip.MustParsePrefix("192.168.1.0/24"), Gateway: Local}
	assert.Equal(t, "192.168.1.0/24 is Local", r.String())

	r = Route{Subnet: netip.MustParsePrefix("10.0.0.0/8"), Gateway: gw1, MAC: macX, Port: 2, Flags: FlagMACFixed}
	assert.Equal(t, "10.0.0.0/8 to 192.168.1.1 = 02:00:00:00:00:11, p2, f01", r.String())
}
