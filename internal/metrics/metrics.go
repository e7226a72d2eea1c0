// Package metrics implements Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/helioslabs/swcore/internal/diag"
)

var (
	// ForwardedFramesTotal counts frames delivered by the switch core
	ForwardedFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcore_switch_forwarded_frames_total",
			Help: "Total number of frames forwarded",
		},
		[]string{"src_port"},
	)

	// DroppedFramesTotal counts dropped frames by reason
	DroppedFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcore_switch_dropped_frames_total",
			Help: "Total number of frames dropped",
		},
		[]string{"reason"},
	)

	// ForwardedBytesTotal counts payload bytes delivered by the switch core
	ForwardedBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swcore_switch_forwarded_bytes_total",
			Help: "Total number of bytes forwarded",
		},
		[]string{"src_port"},
	)

	// PoolBytesInUse tracks current packet-pool allocation
	PoolBytesInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swcore_pool_bytes_in_use",
			Help: "Bytes currently allocated from the packet pool",
		},
	)

	// PortsAttached tracks the number of attached switch ports
	PortsAttached = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swcore_switch_ports_attached",
			Help: "Number of ports currently attached to the switch",
		},
	)

	// PtpCoarseAdjustTotal counts coarse clock steps by the tracking loop
	PtpCoarseAdjustTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "swcore_ptp_coarse_adjust_total",
			Help: "Total number of coarse clock adjustments",
		},
	)

	// PtpClockRate tracks the last commanded clock-rate offset in NCO LSBs
	PtpClockRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "swcore_ptp_clock_rate",
			Help: "Most recent clock-rate command, in NCO LSBs",
		},
	)
)

// Sink bridges switch diagnostic events into the Prometheus counters.
// Register it on the switch alongside any other sinks.
type Sink struct{}

func (Sink) Log(e diag.Event) {
	port := strconv.Itoa(e.SrcPort)
	if e.Verdict == diag.Delivered {
		ForwardedFramesTotal.WithLabelValues(port).Inc()
		ForwardedBytesTotal.WithLabelValues(port).Add(float64(e.Length))
		return
	}
	DroppedFramesTotal.WithLabelValues(e.Reason.String()).Inc()
}
