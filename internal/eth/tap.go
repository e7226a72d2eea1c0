package eth

import (
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/helioslabs/swcore/internal/vclock"
)

// PcapTap records every processed frame to a pcap stream for offline
// inspection. Capture is best-effort: write errors are counted, never
// surfaced into the forwarding path.
type PcapTap struct {
	w      *pcapgo.Writer
	clock  vclock.Clock
	frames uint64
	errors uint64
}

// NewPcapTap writes a pcap file header to w and returns the tap.
// Timestamps come from the virtual clock so captures line up with
// simulated time.
func NewPcapTap(w io.Writer, clock vclock.Clock) (*PcapTap, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("pcap header: %w", err)
	}
	return &PcapTap{w: pw, clock: clock}, nil
}

// Frame implements Tap.
func (t *PcapTap) Frame(data []byte) {
	ci := gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, 0).Add(t.clock.Now()),
		CaptureLength: len(data),
		Length:        len(data),
	}
	if err := t.w.WritePacket(ci, data); err != nil {
		t.errors++
		return
	}
	t.frames++
}

// Frames returns the number of frames captured so far.
func (t *PcapTap) Frames() uint64 { return t.frames }

// Errors returns the number of failed capture writes.
func (t *PcapTap) Errors() uint64 { return t.errors }
