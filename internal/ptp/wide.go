package ptp

import "math/big"

// Accumulator arithmetic runs on math/big: intermediate products reach
// well past 64 bits (up to roughly 2^209 in the PII loop) before the
// final shift brings them back into int64 range.

func bigS64(x int64) *big.Int  { return new(big.Int).SetInt64(x) }
func bigU64(x uint64) *big.Int { return new(big.Int).SetUint64(x) }

// bigClamp limits x to [-limit, +limit] in place.
func bigClamp(x, limit *big.Int) {
	if x.CmpAbs(limit) > 0 {
		if x.Sign() < 0 {
			x.Neg(limit)
		} else {
			x.Set(limit)
		}
	}
}

// bigDivRound divides with round-half-away-from-zero semantics.
func bigDivRound(num, den *big.Int) *big.Int {
	half := new(big.Int).Rsh(new(big.Int).Abs(den), 1)
	if num.Sign() < 0 {
		half.Neg(half)
	}
	out := new(big.Int).Add(num, half)
	return out.Quo(out, den)
}

// bigDither returns a 32-bit uniform value aligned to the given
// fixed-point scale.
func bigDither(scale uint, rng *prng) *big.Int {
	d := bigU64(uint64(rng.next()))
	if scale > 32 {
		d.Lsh(d, scale-32)
	} else if scale < 32 {
		d.Rsh(d, 32-scale)
	}
	return d
}

// wideOutput converts a scaled accumulator value to int64 clock-rate
// units: add dither for sub-LSB averaging, then arithmetic shift.
func wideOutput(x *big.Int, scale uint, rng *prng) int64 {
	out := new(big.Int).Add(x, bigDither(scale, rng))
	out.Rsh(out, scale)
	return out.Int64()
}

func clampS64(x, limit int64) int64 {
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}
