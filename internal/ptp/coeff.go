package ptp

import "math"

// Slew limits for the control loops: at most 10 msec of correction per
// second of elapsed time, applied on both input deltas and rate output.
const (
	slewMaxIn  = int64(10) * SubnsPerMs
	slewMaxOut = uint64(10) * uint64(SubnsPerMs)
)

// freqGain converts a measured frequency offset (sub-ns per usec) to
// clock-rate units. refScale is the NCO resolution in seconds per
// second per LSB.
func freqGain(refScale float64) float64 {
	return 1.0 / (float64(SubnsPerUs) * refScale)
}

// slewLimit is the 10 msec/sec slew bound in clock-rate LSBs.
func slewLimit(refScale float64) float64 {
	return 0.010 / refScale
}

func pow2d(n uint) float64 {
	return math.Ldexp(1, int(n))
}

// CoeffPI holds fixed-point gains for the PI controller, derived from
// the NCO resolution, the loop time constant, and the damping ratio.
// Gain derivation follows Stephens & Thomas, "Controlled-root
// formulation for digital phase-locked loops", IEEE TAES 1995.
type CoeffPI struct {
	Kp   uint64 // proportional gain (LSB per subns)
	Ki   uint64 // integral gain (LSB per subns)
	Kf   uint64 // coarse frequency adjustment (LSB per subns/usec)
	Ymax uint64 // maximum steady-state output (LSB)
}

// ScalePI is the fixed-point shift applied to PI controller outputs.
// Sized for time constants circa 1-3600 seconds.
const ScalePI = 60

// DefaultDamping is slightly underdamped for reduced settling time.
const DefaultDamping = 0.707

// NewCoeffPI derives PI gains. tauSecs is the loop time constant;
// a value around 5.0 seconds is typical.
func NewCoeffPI(refScale, tauSecs, damping float64) CoeffPI {
	alpha := 0.25 / (damping * damping)
	k1 := 1.273239545 / (tauSecs * (1.0 + alpha))
	k2 := alpha * k1 * k1
	// End-to-end loop gain: one second of offset is SubnsPerSec LSBs
	// on input, the NCO applies refScale sec/sec per LSB, cycles to
	// radians costs 1/2pi, and the output is shifted down by ScalePI.
	fw := float64(SubnsPerSec) * float64(UsecPerSec) * refScale /
		6.28318530717958647693 / pow2d(ScalePI)
	return CoeffPI{
		Kp:   roundU64(k1 / fw),
		Ki:   roundU64(k2 / fw),
		Kf:   roundU64(freqGain(refScale)),
		Ymax: roundU64(slewLimit(refScale)),
	}
}

// Ok reports whether every gain is large enough that fixed-point
// rounding error stays negligible.
func (c CoeffPI) Ok() bool {
	return c.Kp > 7 && c.Ki > 7 && c.Kf > 7
}

// CoeffPII holds fixed-point gains for the third-order PII controller,
// which also tracks a steady frequency chirp.
type CoeffPII struct {
	Kp   uint64 // proportional gain (LSB per subns)
	Ki   uint64 // integral gain (LSB per subns)
	Kr   uint64 // double-integral ratio (K3 / K2)
	Kf   uint64 // coarse frequency adjustment (LSB per subns/usec)
	Ymax uint64 // maximum steady-state output (LSB)
}

// Fixed-point shifts for the PII controller's nested accumulators.
const (
	ScalePII1 = 70
	ScalePII2 = 64
	ScalePII  = ScalePII1 + ScalePII2
)

// NewCoeffPII derives PII gains for the "standard underdamped"
// third-order loop (Stephens & Thomas Table III).
func NewCoeffPII(refScale, tauSecs float64) CoeffPII {
	k1 := 0.830373616 / tauSecs // 60 / 23pi
	k2 := (4.0 / 9.0) * k1 * k1
	k3 := (2.0 / 27.0) * k1 * k1 * k1
	fw := float64(SubnsPerSec) * float64(UsecPerSec) * refScale /
		6.28318530717958647693 / pow2d(ScalePII1)
	kr := k3 / k2 * pow2d(ScalePII2) / float64(UsecPerSec)
	return CoeffPII{
		Kp:   roundU64(k1 / fw),
		Ki:   roundU64(k2 / fw),
		Kr:   roundU64(kr),
		Kf:   roundU64(freqGain(refScale)),
		Ymax: roundU64(slewLimit(refScale)),
	}
}

// Ok reports whether every gain is large enough that fixed-point
// rounding error stays negligible.
func (c CoeffPII) Ok() bool {
	return c.Kp > 7 && c.Ki > 7 && c.Kr > 7 && c.Kf > 7
}

// CoeffLR holds fixed-point gains for the linear-regression controller.
type CoeffLR struct {
	Ki   uint64 // integral gain (LSB per subns)
	Kf   uint64 // coarse frequency adjustment (LSB per subns/usec)
	Kw   uint64 // intercept scaling factor (LSB per usec)
	Ymax uint64 // maximum steady-state output (LSB)
}

// ScaleLR is the fixed-point shift shared by the regression slope and
// the LR accumulator.
const ScaleLR = 32

// NewCoeffLR derives LR gains.
func NewCoeffLR(refScale, tauSecs float64) CoeffLR {
	kiGain := pow2d(ScaleLR) / float64(SubnsPerUs) / refScale
	kwGain := pow2d(2*ScaleLR) / float64(UsecPerSec)
	return CoeffLR{
		Ki:   roundU64(kiGain / tauSecs),
		Kf:   roundU64(kiGain),
		Kw:   roundU64(kwGain * 2.0 / tauSecs),
		Ymax: roundU64(slewLimit(refScale)),
	}
}

// Ok reports whether every gain is large enough that fixed-point
// rounding error stays negligible.
func (c CoeffLR) Ok() bool {
	return c.Ki > 7 && c.Kf > 7 && c.Kw > 7
}
