package ptp

// prng is a small deterministic generator used for dither. Dither only
// needs uniform bits, not cryptographic quality, and a fixed seed keeps
// control-loop runs reproducible.
type prng struct {
	state uint64
}

const prngSeed = 0xDEADBEEF

func newPrng() *prng {
	return &prng{state: prngSeed}
}

// next returns 32 uniform bits.
func (p *prng) next() uint32 {
	p.state = p.state*6364136223846793005 + 1442695040888963407
	return uint32(p.state >> 32)
}
