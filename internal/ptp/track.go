package ptp

// Thresholds for the outer tracking loop.
const (
	// MaxFineAdjust is the largest offset corrected by rate steering
	// alone; anything larger gets a coarse clock step first.
	MaxFineAdjust = Time(2000 * SubnsPerMs)
	// MaxElapsed bounds the assumed interval between measurements.
	MaxElapsed = Time(1000 * SubnsPerMs)
)

// TrackingController drives a TrackingClock from a stream of measured
// clock offsets. Small offsets run through the filter chain and steer
// the clock rate; offsets beyond MaxFineAdjust reset the chain and
// step the clock outright.
type TrackingController struct {
	clk      TrackingClock
	filters  []Filter
	lastRcvd Time
	coarse   uint64
	log      Logger
}

// NewTrackingController creates a controller over the given filter
// chain, applied in order. The chain usually ends in one of the
// controller stages (PI, PII, or LR).
func NewTrackingController(clk TrackingClock, lg Logger, filters ...Filter) *TrackingController {
	t := &TrackingController{clk: clk, log: lg, filters: filters}
	t.Reset()
	return t
}

// AddFilter appends a stage to the end of the chain.
func (t *TrackingController) AddFilter(f Filter) {
	t.filters = append(t.filters, f)
}

// Reset zeroes the clock-rate command and all filter state.
func (t *TrackingController) Reset() {
	t.clk.ClockRate(0)
	for _, f := range t.filters {
		f.Reset()
	}
}

// CoarseCount returns the number of coarse steps applied so far.
func (t *TrackingController) CoarseCount() uint64 { return t.coarse }

// Rate feeds an externally measured frequency offset into every stage
// for fast acquisition.
func (t *TrackingController) Rate(delta Time, elapsed Time) {
	eu := uint32(elapsed.Usec())
	for _, f := range t.filters {
		f.Rate(delta.Subns(), eu)
	}
}

// Update processes one offset measurement. rxtime is the local receive
// timestamp of the measurement; delta the measured clock offset
// (remote minus local).
func (t *TrackingController) Update(rxtime, delta Time) {
	// Time since the previous measurement, as a proxy for the current
	// sample interval.
	elapsed := (rxtime - t.lastRcvd).Abs()
	if elapsed > MaxElapsed {
		elapsed = MaxElapsed
	}
	t.lastRcvd = rxtime

	// Large offsets get a coarse step; the residual reported by the
	// clock seeds the fine loop, and the local timeline moves with the
	// step.
	filterInput := delta
	if delta.Abs() > MaxFineAdjust {
		if t.log != nil {
			t.log.Infof("PTP-Track: Coarse update (%d sec, %d nsec)",
				delta.Secs(), delta.Nsec())
		}
		t.coarse++
		t.Reset()
		filterInput = t.clk.ClockAdjust(delta)
		t.lastRcvd += delta
	}

	out := filterInput.Subns()
	eu := uint32(elapsed.Usec())
	for _, f := range t.filters {
		out = f.Update(out, eu)
		if out == Discard {
			return
		}
	}
	t.clk.ClockRate(out)
}
