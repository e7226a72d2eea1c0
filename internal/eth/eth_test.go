package eth

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"

	"github.com/helioslabs/swcore/internal/core"
)

// testLink records emitted frames and exposes a settable write space.
type testLink struct {
	space  int
	frames [][]byte
}

func newTestLink() *testLink { return &testLink{space: 1 << 20} }

func (l *testLink) WriteSpace() int { return l.space }
func (l *testLink) ReadReady() int  { return 0 }

func (l *testLink) Write(frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	l.frames = append(l.frames, cp)
	return nil
}

var (
	macA = core.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x0A}
	macB = core.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x0B}
	macC = core.MAC{0x02, 0x00, 0x00, 0x00, 0x00, 0x0C}
)

func buildFrame(t *testing.T, dst, src core.MAC, etherType uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		DstMAC:       net.HardwareAddr(dst[:]),
		SrcMAC:       net.HardwareAddr(src[:]),
		EthernetType: layers.EthernetType(etherType),
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(payload))
	require.NoError(t, err)
	return buf.Bytes()
}

func buildTaggedFrame(t *testing.T, dst, src core.MAC, tag core.VlanTag, etherType uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		DstMAC:       net.HardwareAddr(dst[:]),
		SrcMAC:       net.HardwareAddr(src[:]),
		EthernetType: layers.EthernetTypeDot1Q,
	}
	dot1q := &layers.Dot1Q{
		Priority:       tag.PCP(),
		DropEligible:   tag.DEI(),
		VLANIdentifier: tag.VID(),
		Type:           layers.EthernetType(etherType),
	}
	buf := gopacket.NewSerializeBuffer()
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, dot1q, gopacket.Payload(payload))
	require.NoError(t, err)
	return buf.Bytes()
}

// attachN attaches n ports over fresh test links.
func attachN(t *testing.T, sw *Switch, n int) ([]*Port, []*testLink) {
	t.Helper()
	ports := make([]*Port, n)
	links := make([]*testLink, n)
	for i := range ports {
		links[i] = newTestLink()
		p, err := sw.AttachPort(links[i])
		require.NoError(t, err)
		ports[i] = p
	}
	return ports, links
}
