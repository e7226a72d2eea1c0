package eth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helioslabs/swcore/internal/core"
	"github.com/helioslabs/swcore/internal/diag"
	"github.com/helioslabs/swcore/internal/mbuf"
)

func newTestSwitch(t *testing.T, nports int) (*Switch, []*Port, []*testLink, *diag.Recorder) {
	t.Helper()
	sw := New(mbuf.NewPool(1 << 16))
	rec := &diag.Recorder{}
	sw.SetDiag(rec)
	ports, links := attachN(t, sw, nports)
	return sw, ports, links, rec
}

func TestUnicastForwarding(t *testing.T) {
	sw, ports, links, _ := newTestSwitch(t, 3)
	sw.AddPlugin(NewCache(16))

	// B announces itself so the cache learns its port.
	require.True(t, ports[1].Write(buildFrame(t, core.MACBroadcast, macB, core.EtherTypeARP, []byte("hi"))))
	sw.ServicePorts()
	links[0].frames, links[2].frames = nil, nil

	// A unicast frame to B lands only on B's port.
	require.True(t, ports[0].Write(buildFrame(t, macB, macA, core.EtherTypeIPv4, []byte("data"))))
	sw.ServicePorts()

	assert.Empty(t, links[0].frames)
	assert.Len(t, links[1].frames, 1)
	assert.Empty(t, links[2].frames)
}

func TestBroadcastFanOut(t *testing.T) {
	sw, ports, links, _ := newTestSwitch(t, 3)
	sw.AddPlugin(NewCache(16))

	frame := buildFrame(t, core.MACBroadcast, macA, core.EtherTypeARP, []byte("who-has"))
	require.True(t, ports[0].Write(frame))
	sw.ServicePorts()

	assert.Empty(t, links[0].frames, "never reflected to the source")
	assert.Len(t, links[1].frames, 1)
	assert.Len(t, links[2].frames, 1)
	assert.Equal(t, frame, links[1].frames[0])
}

func TestPromiscuousReceivesForeignUnicast(t *testing.T) {
	sw, ports, links, _ := newTestSwitch(t, 3)
	sw.AddPlugin(NewCache(16))
	ports[1].Write(buildFrame(t, core.MACBroadcast, macB, core.EtherTypeARP, nil))
	sw.ServicePorts()
	for _, l := range links {
		l.frames = nil
	}

	ports[2].SetPromiscuous(true)
	ports[0].Write(buildFrame(t, macB, macA, core.EtherTypeIPv4, []byte("x")))
	sw.ServicePorts()

	assert.Len(t, links[1].frames, 1)
	assert.Len(t, links[2].frames, 1, "promiscuous port sees unicast not addressed to it")
	assert.Empty(t, links[0].frames)
	assert.Equal(t, core.MaskFor(2), sw.PromiscuousMask())
}

func TestPortLimitEnforced(t *testing.T) {
	sw := New(mbuf.NewPool(1 << 16))
	rec := &diag.Recorder{}
	sw.SetDiag(rec)

	for i := 0; i < core.MaxPorts; i++ {
		_, err := sw.AttachPort(newTestLink())
		require.NoError(t, err)
	}
	_, err := sw.AttachPort(newTestLink())
	assert.ErrorIs(t, err, core.ErrPortOverflow)
	assert.Equal(t, core.MaxPorts, sw.PortCount())
	assert.Equal(t, 1, rec.Count(diag.ReasonOverflow))
}

func TestDetachReleasesIndex(t *testing.T) {
	sw, ports, _, _ := newTestSwitch(t, 3)

	ports[1].Detach()
	assert.Equal(t, 2, sw.PortCount())
	assert.Nil(t, sw.Port(1))

	p, err := sw.AttachPort(newTestLink())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Index(), "lowest free index is reused")
}

func TestRuntFrameDropped(t *testing.T) {
	sw, ports, links, rec := newTestSwitch(t, 2)

	assert.False(t, ports[0].Write([]byte{1, 2, 3, 4, 5}))
	sw.ServicePorts()

	assert.Empty(t, links[1].frames)
	assert.Equal(t, 1, rec.Count(diag.ReasonBadFrame))
}

func TestPoolOverflowDropsNewIngress(t *testing.T) {
	sw := New(mbuf.NewPool(100))
	rec := &diag.Recorder{}
	sw.SetDiag(rec)
	ports, links := attachN(t, sw, 2)

	// First frame fits and stays queued (not yet serviced).
	links[1].space = 0
	big := buildFrame(t, core.MACBroadcast, macA, core.EtherTypeIPv4, make([]byte, 60))
	require.True(t, ports[0].Write(big))
	assert.Equal(t, 1, ports[1].Pending())

	// Pool is now too full for a second copy; the new frame drops and
	// the in-flight one is untouched.
	assert.False(t, ports[0].Write(big))
	assert.Equal(t, 1, rec.Count(diag.ReasonOverflow))
	assert.Equal(t, 1, ports[1].Pending())

	links[1].space = 1 << 20
	assert.Equal(t, 1, sw.ServicePorts())
	assert.Len(t, links[1].frames, 1)
}

// lengthMangler illegally toggles the VLAN tag outside the egress
// adjust phase.
type lengthMangler struct{}

func (lengthMangler) Query(pp *PluginPacket) {
	pp.Header.Tagged = !pp.Header.Tagged
}

func TestHeaderLengthViolationDropped(t *testing.T) {
	sw, ports, links, rec := newTestSwitch(t, 2)
	sw.AddPlugin(lengthMangler{})

	assert.False(t, ports[0].Write(buildFrame(t, core.MACBroadcast, macA, core.EtherTypeIPv4, []byte("x"))))
	sw.ServicePorts()

	assert.Empty(t, links[1].frames)
	assert.Equal(t, 1, rec.Count(diag.ReasonHeaderLen))
}

func TestAdjustRejectedOnIngress(t *testing.T) {
	pp := PluginPacket{Header: core.Header{Type: core.EtherTypeIPv4}, phase: phaseIngress}
	grown := pp.Header
	grown.Tagged = true
	assert.ErrorIs(t, pp.Adjust(grown), core.ErrHeaderLength)
	assert.False(t, pp.Header.Tagged, "header unchanged after rejected adjust")

	pp.phase = phaseEgress
	assert.NoError(t, pp.Adjust(grown))
	assert.True(t, pp.Header.Tagged)
}

// diverter claims every packet and records it.
type diverter struct {
	got []*mbuf.Packet
}

func (d *diverter) Query(pp *PluginPacket) {
	pp.Divert()
	d.got = append(d.got, pp.Pkt)
}

// counter tallies chain invocations.
type counter struct{ calls int }

func (c *counter) Query(pp *PluginPacket) { c.calls++ }

func TestDivertExclusivity(t *testing.T) {
	pool := mbuf.NewPool(1 << 16)
	sw := New(pool)
	ports, links := attachN(t, sw, 2)

	div := &diverter{}
	after := &counter{}
	sw.AddPlugin(div)
	sw.AddPlugin(after)

	require.True(t, ports[0].Write(buildFrame(t, macB, macA, core.EtherTypeIPv4, []byte("x"))))
	sw.ServicePorts()

	assert.Empty(t, links[1].frames, "diverted packet is not forwarded")
	assert.Equal(t, 0, after.calls, "chain stops at the diverting plugin")
	require.Len(t, div.got, 1)
	assert.Equal(t, 1, pool.Outstanding(), "diverting plugin holds the only reference")

	require.NoError(t, div.got[0].Free())
	assert.Equal(t, 0, pool.Outstanding())
}

func TestDisabledPortDropsBothDirections(t *testing.T) {
	sw, ports, links, rec := newTestSwitch(t, 3)

	ports[2].Enable(false)
	require.True(t, ports[0].Write(buildFrame(t, core.MACBroadcast, macA, core.EtherTypeARP, nil)))
	sw.ServicePorts()
	assert.Len(t, links[1].frames, 1)
	assert.Empty(t, links[2].frames)
	assert.Equal(t, 0, ports[2].Pending(), "disabled port holds no backlog")

	// Ingress on a disabled port drops at the door.
	assert.False(t, ports[2].Write(buildFrame(t, core.MACBroadcast, macC, core.EtherTypeARP, nil)))
	assert.Equal(t, 1, rec.Count(diag.ReasonDisabled))
}

func TestFlushDiscardsPending(t *testing.T) {
	pool := mbuf.NewPool(1 << 16)
	sw := New(pool)
	ports, links := attachN(t, sw, 2)

	links[1].space = 0
	ports[0].Write(buildFrame(t, core.MACBroadcast, macA, core.EtherTypeARP, nil))
	require.Equal(t, 1, ports[1].Pending())

	ports[1].Flush()
	assert.Equal(t, 0, ports[1].Pending())
	assert.Equal(t, 0, pool.Outstanding(), "flushed frames return to the pool")

	links[1].space = 1 << 20
	assert.Equal(t, 0, sw.ServicePorts())
}

func TestPriorityEgressOrdering(t *testing.T) {
	sw, ports, links, _ := newTestSwitch(t, 2)

	// Hold egress back so admission order and drain order differ.
	links[1].space = 0
	payloads := []struct {
		pcp  uint8
		body string
	}{{1, "low"}, {7, "urgent"}, {3, "mid"}, {7, "urgent2"}}
	for _, f := range payloads {
		tag := core.NewVlanTag(5, f.pcp, 0)
		require.True(t, ports[0].Write(buildTaggedFrame(t, core.MACBroadcast, macA, tag, core.EtherTypeIPv4, []byte(f.body))))
	}
	require.Equal(t, 4, ports[1].Pending())
	assert.True(t, ports[1].Consistency())

	links[1].space = 1 << 20
	sw.ServicePorts()
	require.Len(t, links[1].frames, 4)
	assert.True(t, ports[1].Consistency())

	var order []string
	for _, f := range links[1].frames {
		order = append(order, string(f[core.HeaderLen+core.VlanHeaderLen:]))
	}
	// Strict priority, FIFO within a class.
	assert.Equal(t, []string{"urgent", "urgent2", "mid", "low"}, order)
}

func TestTrafficFilterCounting(t *testing.T) {
	sw, ports, _, _ := newTestSwitch(t, 2)

	sw.SetTrafficFilter(core.EtherTypePTP)
	ports[0].Write(buildFrame(t, core.MACBroadcast, macA, core.EtherTypeIPv4, nil))
	ports[0].Write(buildFrame(t, core.MACBroadcast, macA, core.EtherTypePTP, nil))
	ports[0].Write(buildFrame(t, core.MACBroadcast, macA, core.EtherTypePTP, nil))
	assert.EqualValues(t, 2, sw.TrafficCount())
	assert.Equal(t, core.EtherTypePTP, sw.TrafficFilter())

	// Zero filter counts everything and resets the tally.
	sw.SetTrafficFilter(0)
	assert.EqualValues(t, 0, sw.TrafficCount())
	ports[0].Write(buildFrame(t, core.MACBroadcast, macA, core.EtherTypeARP, nil))
	assert.EqualValues(t, 1, sw.TrafficCount())
}

func TestPortCountersAccumulate(t *testing.T) {
	sw, ports, _, _ := newTestSwitch(t, 2)

	frame := buildFrame(t, core.MACBroadcast, macA, core.EtherTypeIPv4, []byte("abcd"))
	ports[0].Write(frame)
	sw.ServicePorts()

	rx := ports[0].Counters()
	assert.EqualValues(t, 1, rx.RxFrames)
	assert.EqualValues(t, len(frame), rx.RxBytes)
	tx := ports[1].Counters()
	assert.EqualValues(t, 1, tx.TxFrames)
	assert.EqualValues(t, len(frame), tx.TxBytes)
}

func TestPoolDrainedAfterDelivery(t *testing.T) {
	pool := mbuf.NewPool(1 << 16)
	sw := New(pool)
	ports, _ := attachN(t, sw, 4)

	for i := 0; i < 10; i++ {
		ports[0].Write(buildFrame(t, core.MACBroadcast, macA, core.EtherTypeARP, nil))
	}
	sw.ServicePorts()
	assert.Equal(t, 0, pool.Outstanding(), "all references released after fan-out")
	assert.Equal(t, 0, pool.InUse())
}
