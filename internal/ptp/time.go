// Package ptp implements the time-tracking control loop: a chain of
// fixed-point filters (median, boxcar, PI, PII, linear regression)
// that consumes clock-offset measurements and steers an abstract
// numerically-controlled clock through fine rate adjustments and
// occasional coarse steps.
package ptp

import (
	"fmt"
	"time"
)

// Internal time scaling. One nanosecond is 65536 sub-nanoseconds; all
// offsets and measurements are carried as int64 sub-nanoseconds.
const (
	NsecPerSec  = int64(1_000_000_000)
	UsecPerSec  = int64(1_000_000)
	SubnsPerNs  = int64(65536)
	SubnsPerUs  = SubnsPerNs * 1000
	SubnsPerMs  = SubnsPerNs * 1_000_000
	SubnsPerSec = SubnsPerNs * NsecPerSec
)

// Time is a signed time offset in sub-nanoseconds.
type Time int64

// Handy constants.
const (
	OneNanosecond  Time = Time(SubnsPerNs)
	OneMicrosecond Time = Time(SubnsPerUs)
	OneMillisecond Time = Time(SubnsPerMs)
	OneSecond      Time = Time(SubnsPerSec)
)

// FromDuration converts a standard-library duration.
func FromDuration(d time.Duration) Time {
	return Time(d.Nanoseconds() * SubnsPerNs)
}

// FromSeconds converts a floating-point second count, rounding to the
// nearest sub-nanosecond. Configuration only; the data path never
// touches floats.
func FromSeconds(s float64) Time {
	return Time(roundS64(s * float64(SubnsPerSec)))
}

// Subns returns the raw sub-nanosecond count.
func (t Time) Subns() int64 { return int64(t) }

// Nsec returns the offset rounded to nanoseconds.
func (t Time) Nsec() int64 {
	return divRound(int64(t), SubnsPerNs)
}

// Usec returns the offset rounded to microseconds.
func (t Time) Usec() int64 {
	return divRound(int64(t), SubnsPerUs)
}

// Msec returns the offset rounded to milliseconds.
func (t Time) Msec() int64 {
	return divRound(int64(t), SubnsPerMs)
}

// Secs returns the whole-second part, truncated toward zero.
func (t Time) Secs() int64 { return int64(t) / SubnsPerSec }

// Abs returns the magnitude.
func (t Time) Abs() Time {
	if t < 0 {
		return -t
	}
	return t
}

func (t Time) String() string {
	return fmt.Sprintf("%.3fus", float64(t)/float64(SubnsPerUs))
}

// divRound divides with round-half-away-from-zero semantics.
func divRound(num, den int64) int64 {
	if num >= 0 {
		return (num + den/2) / den
	}
	return (num - den/2) / den
}

func roundS64(x float64) int64 {
	if x >= 0 {
		return int64(x + 0.5)
	}
	return int64(x - 0.5)
}

// roundU64 rounds a non-negative float to uint64, saturating at zero
// for values that would overflow. Oversized coefficients therefore
// fail the Ok predicate instead of wrapping.
func roundU64(x float64) uint64 {
	if x < 0 || x >= float64(^uint64(0)) {
		return 0
	}
	return uint64(x + 0.5)
}
