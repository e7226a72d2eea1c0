package diag

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/helioslabs/swcore/internal/core"
	"github.com/helioslabs/swcore/internal/vclock"
)

func TestEventString(t *testing.T) {
	e := Event{
		Verdict:   Dropped,
		Reason:    ReasonOverflow,
		SrcPort:   3,
		Src:       core.MAC{0xAA, 0, 0, 0, 0, 0x01},
		Dst:       core.MACBroadcast,
		EtherType: core.EtherTypeIPv4,
		Length:    64,
	}
	assert.Equal(t,
		"Dropped: Overflow from port 3 (AA:00:00:00:00:01 -> FF:FF:FF:FF:FF:FF, type 0x0800, 64 bytes)",
		e.String())
}

func TestRecorderCount(t *testing.T) {
	var rec Recorder
	rec.Log(Event{Verdict: Dropped, Reason: ReasonVlan})
	rec.Log(Event{Verdict: Dropped, Reason: ReasonVlan})
	rec.Log(Event{Verdict: Dropped, Reason: ReasonOverflow})

	assert.Equal(t, 2, rec.Count(ReasonVlan))
	assert.Equal(t, 1, rec.Count(ReasonOverflow))
	assert.Equal(t, 0, rec.Count(ReasonBadFrame))

	rec.Reset()
	assert.Empty(t, rec.Events)
}

func TestMultiFanOut(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, &b}
	m.Log(Event{Verdict: Dropped, Reason: ReasonDisabled})

	assert.Len(t, a.Events, 1)
	assert.Len(t, b.Events, 1)
}

func TestSuppressorPerReason(t *testing.T) {
	clk := vclock.NewSim()
	var rec Recorder
	sup := NewSuppressor(&rec, clk, time.Second)

	// Burst of identical drops: only the first one passes.
	for i := 0; i < 5; i++ {
		sup.Log(Event{Verdict: Dropped, Reason: ReasonOverflow})
	}
	assert.Equal(t, 1, rec.Count(ReasonOverflow))
	assert.Equal(t, 4, sup.Suppressed(ReasonOverflow))

	// A different reason is not affected by the overflow budget.
	sup.Log(Event{Verdict: Dropped, Reason: ReasonVlanRate})
	assert.Equal(t, 1, rec.Count(ReasonVlanRate))

	// After the interval the reason may log again.
	clk.Advance(time.Second)
	sup.Log(Event{Verdict: Dropped, Reason: ReasonOverflow})
	assert.Equal(t, 2, rec.Count(ReasonOverflow))
}
