package ptp

import "math/big"

// Logger receives control-loop diagnostics.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// ControllerPI is the second-order proportional-integral loop filter.
// It accurately tracks a steady-state frequency offset and is the
// recommended option for most users.
type ControllerPI struct {
	coeff CoeffPI
	accum *big.Int
	slew  uint64
	rng   *prng
	log   Logger
}

// NewControllerPI creates a PI controller. An invalid coefficient set
// is reported immediately through the logger.
func NewControllerPI(coeff CoeffPI, lg Logger) *ControllerPI {
	c := &ControllerPI{
		accum: new(big.Int),
		slew:  slewMaxOut,
		rng:   newPrng(),
		log:   lg,
	}
	c.SetCoeff(coeff)
	return c
}

// SetCoeff changes the tracking-loop bandwidth. The accumulator is
// preserved, so the output stays continuous across the change.
func (c *ControllerPI) SetCoeff(coeff CoeffPI) {
	c.coeff = coeff
	if !coeff.Ok() && c.log != nil {
		c.log.Errorf("ControllerPI: Bad config.")
	}
}

// Reset clears the integrator.
func (c *ControllerPI) Reset() {
	c.accum.SetInt64(0)
}

// Rate preloads the integrator from an externally measured frequency
// offset, for fast acquisition after a coarse step.
func (c *ControllerPI) Rate(deltaSubns int64, elapsedUsec uint32) {
	if elapsedUsec == 0 {
		return
	}
	deltaSubns = clampS64(deltaSubns, slewMaxIn)
	rate := bigS64(deltaSubns)
	rate.Lsh(rate, ScalePI)
	rate.Mul(rate, bigS64(UsecPerSec))
	rate.Quo(rate, bigU64(uint64(elapsedUsec)))
	bigClamp(rate, new(big.Int).Lsh(bigU64(c.slew), ScalePI))
	c.accum.Add(c.accum, rate)
}

// Update runs one loop iteration and returns the clock-rate command.
func (c *ControllerPI) Update(deltaSubns int64, elapsedUsec uint32) int64 {
	if deltaSubns == Discard {
		return Discard
	}
	deltaSubns = clampS64(deltaSubns, slewMaxIn)

	deltaI := bigS64(deltaSubns)
	deltaP := bigS64(deltaSubns)
	deltaI.Mul(deltaI, bigU64(c.coeff.Ki))
	deltaP.Mul(deltaP, bigU64(c.coeff.Kp))

	// Compensate for the effective sample interval T0, using the most
	// recent elapsed time as a proxy for future intervals. The NCO
	// holds the rate for T0 seconds, so outputs scale by 1/T0: the I
	// gain is missing an implicit T0^2 for a net scaling of T0, the P
	// gain is missing an implicit T0 for a net scaling of one.
	deltaI.Mul(deltaI, bigU64(uint64(elapsedUsec)))
	deltaP.Mul(deltaP, bigS64(UsecPerSec))

	// Accumulating sum(Ki * phi) instead of Ki * sum(phi) keeps the
	// output continuous across bandwidth changes.
	c.accum.Add(c.accum, deltaI)

	// Clamp the integrator to mitigate windup.
	limit := new(big.Int).Lsh(bigU64(c.slew), ScalePI)
	bigClamp(c.accum, limit)

	ysum := new(big.Int).Add(c.accum, deltaP)
	bigClamp(ysum, limit)
	return wideOutput(ysum, ScalePI, c.rng)
}

// ControllerPII is the third-order loop filter. The extra integrator
// also tracks a steady frequency chirp, which helps with some
// oscillators.
type ControllerPII struct {
	coeff  CoeffPII
	accum1 *big.Int
	accum2 *big.Int
	slew   uint64
	rng    *prng
	log    Logger
}

// NewControllerPII creates a PII controller.
func NewControllerPII(coeff CoeffPII, lg Logger) *ControllerPII {
	c := &ControllerPII{
		accum1: new(big.Int),
		accum2: new(big.Int),
		slew:   slewMaxOut,
		rng:    newPrng(),
		log:    lg,
	}
	c.SetCoeff(coeff)
	return c
}

// SetCoeff changes the tracking-loop bandwidth.
func (c *ControllerPII) SetCoeff(coeff CoeffPII) {
	c.coeff = coeff
	if !coeff.Ok() && c.log != nil {
		c.log.Errorf("ControllerPII: Bad config.")
	}
}

// Reset clears both integrators.
func (c *ControllerPII) Reset() {
	c.accum1.SetInt64(0)
	c.accum2.SetInt64(0)
}

// Rate preloads the secondary integrator from an externally measured
// frequency offset.
func (c *ControllerPII) Rate(deltaSubns int64, elapsedUsec uint32) {
	if elapsedUsec == 0 {
		return
	}
	deltaSubns = clampS64(deltaSubns, slewMaxIn)
	rate := bigS64(deltaSubns)
	rate.Lsh(rate, ScalePII)
	rate.Mul(rate, bigS64(UsecPerSec))
	rate.Quo(rate, bigU64(uint64(elapsedUsec)))
	bigClamp(rate, new(big.Int).Lsh(bigU64(slewMaxOut), ScalePII))
	c.accum2.Add(c.accum2, rate)
}

// Update runs one loop iteration and returns the clock-rate command.
func (c *ControllerPII) Update(deltaSubns int64, elapsedUsec uint32) int64 {
	if deltaSubns == Discard {
		return Discard
	}
	deltaSubns = clampS64(deltaSubns, slewMaxIn)

	deltaI := bigS64(deltaSubns)
	deltaP := bigS64(deltaSubns)
	deltaI.Mul(deltaI, bigU64(c.coeff.Ki))
	deltaP.Mul(deltaP, bigU64(c.coeff.Kp))

	// T0 compensation as in the PI loop; the J gain is missing an
	// implicit T0^3 for a net scaling of T0^2.
	deltaI.Mul(deltaI, bigU64(uint64(elapsedUsec)))
	deltaP.Mul(deltaP, bigS64(UsecPerSec))

	// Primary accumulator, sum(K2 * phi).
	limit1 := new(big.Int).Lsh(bigU64(c.slew), ScalePII1)
	c.accum1.Add(c.accum1, deltaI)
	bigClamp(c.accum1, limit1)

	// Secondary accumulator, sum(sum(K3 * phi)). Re-scaling the
	// primary by K3/K2 avoids carrying a third accumulator.
	deltaR := new(big.Int).Set(c.accum1)
	deltaR.Mul(deltaR, bigU64(c.coeff.Kr))
	deltaR.Mul(deltaR, bigU64(uint64(elapsedUsec)))
	c.accum2.Add(c.accum2, deltaR)
	bigClamp(c.accum2, new(big.Int).Lsh(bigU64(c.slew), ScalePII))

	ysum := new(big.Int).Add(c.accum2, bigDither(ScalePII2, c.rng))
	ysum.Rsh(ysum, ScalePII2)
	ysum.Add(ysum, c.accum1)
	ysum.Add(ysum, deltaP)
	bigClamp(ysum, limit1)
	return wideOutput(ysum, ScalePII1, c.rng)
}

// linearFit is a least-squares line through the sample window. beta is
// the slope scaled by 2^ScaleLR; alpha the intercept at x = 0.
type linearFit struct {
	alpha *big.Int
	beta  *big.Int
}

func linearRegression(x, y []int64, rng *prng) linearFit {
	win := len(x)
	sumX, sumY := new(big.Int), new(big.Int)
	for n := 0; n < win; n++ {
		sumX.Add(sumX, bigS64(x[n]))
		sumY.Add(sumY, bigS64(y[n]))
	}

	// Covariance terms without dividing by the window size: using
	// dx' = N*x - sum(x) keeps everything integral, scaling cov by N^2.
	winBig := bigS64(int64(win))
	covXX, covXY := new(big.Int), new(big.Int)
	dx, dy := new(big.Int), new(big.Int)
	for n := 0; n < win; n++ {
		dx.Mul(bigS64(x[n]), winBig)
		dx.Sub(dx, sumX)
		dy.Mul(bigS64(y[n]), winBig)
		dy.Sub(dy, sumY)
		covXY.Add(covXY, new(big.Int).Mul(dx, dy))
		covXX.Add(covXX, new(big.Int).Mul(dx, dx))
	}

	beta := bigDivRound(new(big.Int).Lsh(covXY, ScaleLR), covXX)
	xbeta := new(big.Int).Mul(beta, sumX)
	xbeta.Add(xbeta, bigDither(ScaleLR, rng))
	xbeta.Rsh(xbeta, ScaleLR)
	alpha := bigDivRound(new(big.Int).Sub(sumY, xbeta), winBig)
	return linearFit{alpha: alpha, beta: beta}
}

// ControllerLR estimates phase and frequency offsets by linear
// regression over a short sample window, then applies an IIR filter to
// track that piecewise-linear estimate with a controlled time constant.
type ControllerLR struct {
	coeff   CoeffLR
	accum   *big.Int
	window  int
	elapsed uint32
	count   int
	dly     *window
	dat     *window
	rng     *prng
	log     Logger
}

// NewControllerLR creates an LR controller over the given window size
// (at least two samples).
func NewControllerLR(coeff CoeffLR, windowSize int, lg Logger) *ControllerLR {
	if windowSize < 2 {
		windowSize = 2
	}
	c := &ControllerLR{
		accum:  new(big.Int),
		window: windowSize,
		dly:    newWindow(windowSize),
		dat:    newWindow(windowSize),
		rng:    newPrng(),
		log:    lg,
	}
	c.SetCoeff(coeff)
	return c
}

// SetCoeff changes the tracking-loop bandwidth.
func (c *ControllerLR) SetCoeff(coeff CoeffLR) {
	c.coeff = coeff
	if !coeff.Ok() && c.log != nil {
		c.log.Errorf("ControllerLR: Bad config.")
	}
}

// Reset clears the sample window and the accumulator.
func (c *ControllerLR) Reset() {
	c.dly.reset()
	c.dat.reset()
	c.accum.SetInt64(0)
	c.count = 0
	c.elapsed = 0
}

// Rate preloads the accumulator from an externally measured frequency
// offset.
func (c *ControllerLR) Rate(deltaSubns int64, elapsedUsec uint32) {
	if elapsedUsec == 0 {
		return
	}
	deltaSubns = clampS64(deltaSubns, slewMaxIn)
	rate := bigS64(deltaSubns)
	rate.Lsh(rate, ScaleLR)
	rate.Mul(rate, bigS64(UsecPerSec))
	rate.Quo(rate, bigU64(uint64(elapsedUsec)))
	c.accum.Add(c.accum, rate)
}

// Update pushes one sample and, once the window is full, returns the
// clock-rate command from the regression step.
func (c *ControllerLR) Update(next int64, elapsedUsec uint32) int64 {
	// Elapsed time still accrues while samples are being discarded.
	c.elapsed += elapsedUsec
	if next == Discard {
		return Discard
	}
	c.dly.push(int64(c.elapsed))
	c.dat.push(next)
	c.elapsed = 0
	if c.count < c.window {
		c.count++
	}
	if c.count < c.window {
		return Discard
	}

	dt := make([]int64, c.window)
	y := make([]int64, c.window)
	c.dly.read(dt, c.window)
	c.dat.read(y, c.window)
	return c.updateInner(dt, y)
}

func (c *ControllerLR) updateInner(dt, y []int64) int64 {
	// Convert incremental timesteps to cumulative time, with t = 0 at
	// the most recent sample.
	x := make([]int64, c.window)
	for n := c.window - 1; n != 0; n-- {
		x[n-1] = x[n] - dt[n]
	}

	// Timestamps too close together make the fit degenerate.
	if span := -x[0]; span < 2000 {
		return Discard
	}

	fit := linearRegression(x, y, c.rng)

	// Change in slope required for an intercept at t = tau/2, then
	// steer gradually toward that target slope.
	delta := new(big.Int).Mul(fit.alpha, bigU64(c.coeff.Kw))
	delta.Add(delta, fit.beta)
	c.accum.Add(c.accum, delta.Mul(delta, bigU64(c.coeff.Ki)))
	bigClamp(c.accum, new(big.Int).Lsh(bigU64(slewMaxOut), ScaleLR))
	return wideOutput(c.accum, ScaleLR, c.rng)
}
