// Package diag is the switch diagnostic event log. The forwarding path
// reports keep/drop decisions to an attached Sink; with no sink
// attached diagnostics are suppressed and forwarding is unaffected.
package diag

import (
	"fmt"

	"github.com/helioslabs/swcore/internal/core"
)

// Verdict is the disposition of a processed frame.
type Verdict uint8

const (
	Delivered Verdict = iota
	Dropped
)

func (v Verdict) String() string {
	if v == Delivered {
		return "Delivered"
	}
	return "Dropped"
}

// Reason qualifies a drop verdict.
type Reason uint8

const (
	ReasonNone      Reason = iota
	ReasonOverflow         // packet pool or port table exhausted
	ReasonBadFrame         // runt or unparseable header
	ReasonDisabled         // ingress or egress port disabled
	ReasonVlan             // VLAN membership or tag-policy rejection
	ReasonVlanRate         // token-bucket limit exceeded
	ReasonHeaderLen        // plugin changed header length outside adjust
	ReasonNoRoute          // destination mask resolved empty
)

var reasonNames = map[Reason]string{
	ReasonNone:      "None",
	ReasonOverflow:  "Overflow",
	ReasonBadFrame:  "BadFrame",
	ReasonDisabled:  "Disabled",
	ReasonVlan:      "Vlan",
	ReasonVlanRate:  "VlanRate",
	ReasonHeaderLen: "HeaderLen",
	ReasonNoRoute:   "NoRoute",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Reason(%d)", r)
}

// Event is one keep/drop record from the forwarding path.
type Event struct {
	Verdict   Verdict
	Reason    Reason
	SrcPort   int
	Dst       core.MAC
	Src       core.MAC
	EtherType uint16
	Length    int
}

// String renders the event the way the switch console prints it,
// e.g. "Dropped: Overflow from port 3 (FF:FF:...)".
func (e Event) String() string {
	if e.Verdict == Delivered {
		return fmt.Sprintf("Delivered from port %d (%s -> %s, type 0x%04X, %d bytes)",
			e.SrcPort, e.Src, e.Dst, e.EtherType, e.Length)
	}
	return fmt.Sprintf("Dropped: %s from port %d (%s -> %s, type 0x%04X, %d bytes)",
		e.Reason, e.SrcPort, e.Src, e.Dst, e.EtherType, e.Length)
}

// Sink receives diagnostic events. Implementations must be cheap; the
// data plane calls Log inline.
type Sink interface {
	Log(Event)
}

// Noop discards all events. It is the default sink.
type Noop struct{}

func (Noop) Log(Event) {}

// Multi fans an event out to several sinks.
type Multi []Sink

func (m Multi) Log(e Event) {
	for _, s := range m {
		s.Log(e)
	}
}

// Recorder keeps every event for test inspection.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Log(e Event) { r.Events = append(r.Events, e) }

// Count returns how many recorded events carry the given reason.
func (r *Recorder) Count(reason Reason) int {
	n := 0
	for _, e := range r.Events {
		if e.Reason == reason {
			n++
		}
	}
	return n
}

// Reset clears the recorded events.
func (r *Recorder) Reset() { r.Events = nil }
