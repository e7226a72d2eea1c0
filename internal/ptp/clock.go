package ptp

// TrackingClock is the abstract clock being steered. Implementations
// wrap hardware NCO registers or software clocks.
type TrackingClock interface {
	// ClockAdjust applies a one-time coarse step of the given size and
	// returns the residual error, which is fed back into the fine loop.
	ClockAdjust(amount Time) Time
	// ClockRate sets the frequency offset in NCO LSBs. Zero runs the
	// clock at its nominal rate.
	ClockRate(offset int64)
}

// TrackingClockDebug wraps another clock and records the most recent
// rate command for inspection.
type TrackingClockDebug struct {
	target TrackingClock
	rate   int64
}

func NewTrackingClockDebug(target TrackingClock) *TrackingClockDebug {
	return &TrackingClockDebug{target: target}
}

func (d *TrackingClockDebug) ClockAdjust(amount Time) Time {
	return d.target.ClockAdjust(amount)
}

func (d *TrackingClockDebug) ClockRate(offset int64) {
	d.rate = offset
	d.target.ClockRate(offset)
}

// Rate returns the last commanded rate.
func (d *TrackingClockDebug) Rate() int64 { return d.rate }

// TrackingDither adds first-order delta-sigma dither between the
// control loop and a clock with a coarser rate register: the wrapped
// clock sees rate commands divided by 65536, with the remainder carried
// as running disparity so it averages out over successive ticks.
type TrackingDither struct {
	clk       TrackingClock
	disparity uint16
	offset    int64
}

func NewTrackingDither(clk TrackingClock) *TrackingDither {
	return &TrackingDither{clk: clk}
}

// ClockAdjust passes coarse adjustments straight through.
func (d *TrackingDither) ClockAdjust(amount Time) Time {
	return d.clk.ClockAdjust(amount)
}

// ClockRate stores the target rate and regenerates dither immediately.
func (d *TrackingDither) ClockRate(offset int64) {
	d.offset = offset
	d.Tick()
}

// Tick advances the dither state. Call it on a steady timer, typically
// every millisecond, so the disparity keeps cycling between rate
// updates.
func (d *TrackingDither) Tick() {
	sum := d.offset + int64(d.disparity)
	div := floorDiv(sum, 65536)
	d.clk.ClockRate(div)
	d.disparity = uint16(sum - div*65536)
}

// floorDiv rounds toward negative infinity, so the remainder is always
// in [0, den).
func floorDiv(num, den int64) int64 {
	q := num / den
	if num%den != 0 && (num < 0) != (den < 0) {
		q--
	}
	return q
}
