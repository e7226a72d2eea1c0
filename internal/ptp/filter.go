package ptp

import "math"

// Discard is the in-band sentinel for a rejected sample. A filter that
// returns Discard stops the chain for this measurement; no rate update
// reaches the clock.
const Discard = int64(math.MaxInt64)

// Filter is one stage in the tracking chain. Update consumes the next
// offset measurement in sub-nanoseconds together with the elapsed time
// since the previous measurement and returns either a filtered value
// for the next stage or Discard. For controller stages the returned
// value is the clock rate command instead.
type Filter interface {
	// Update processes one measurement interval.
	Update(next int64, elapsedUsec uint32) int64
	// Rate feeds an externally measured frequency offset for fast
	// acquisition. Stages without frequency state ignore it.
	Rate(deltaSubns int64, elapsedUsec uint32)
	// Reset restores initial state.
	Reset()
}

// window is a fixed-depth circular sample buffer, zero-filled at
// start, reading the N most recent pushes.
type window struct {
	buf []int64
	idx int
}

func newWindow(depth int) *window {
	return &window{buf: make([]int64, depth)}
}

func (w *window) push(x int64) {
	w.buf[w.idx] = x
	w.idx++
	if w.idx >= len(w.buf) {
		w.idx = 0
	}
}

// read copies the n most recent samples into dst, oldest first.
func (w *window) read(dst []int64, n int) {
	pos := w.idx - n
	for pos < 0 {
		pos += len(w.buf)
	}
	for i := 0; i < n; i++ {
		dst[i] = w.buf[pos]
		pos++
		if pos >= len(w.buf) {
			pos = 0
		}
	}
}

func (w *window) reset() {
	for i := range w.buf {
		w.buf[i] = 0
	}
	w.idx = 0
}

// Median rejects outliers by taking the median of the most recent
// samples. The effective order is always odd so the median is a
// sample, never an average.
type Median struct {
	win     *window
	order   int
	scratch []int64
}

// NewMedian creates a median filter over the given window size,
// rounded up to the next odd count.
func NewMedian(order int) *Median {
	if order < 1 {
		order = 1
	}
	order |= 1
	return &Median{
		win:     newWindow(order),
		order:   order,
		scratch: make([]int64, order),
	}
}

// SetOrder changes the window size, up to the allocated maximum.
func (m *Median) SetOrder(order int) {
	order |= 1
	if order < 1 {
		order = 1
	}
	if order > len(m.win.buf) {
		order = len(m.win.buf) | 1
		if order > len(m.win.buf) {
			order -= 2
		}
	}
	m.order = order
}

func (m *Median) Update(next int64, _ uint32) int64 {
	if next == Discard {
		return Discard
	}
	m.win.push(next)
	m.win.read(m.scratch[:m.order], m.order)
	s := m.scratch[:m.order]
	// Insertion sort; windows are small.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
	return s[m.order/2]
}

func (m *Median) Rate(int64, uint32) {}

func (m *Median) Reset() { m.win.reset() }

// Boxcar averages the last 2^order samples. The divide adds uniform
// dither so quantization error averages out instead of biasing low.
type Boxcar struct {
	win   *window
	order uint
	rng   *prng
}

// NewBoxcar creates a boxcar filter over 2^order samples.
func NewBoxcar(order uint) *Boxcar {
	return &Boxcar{
		win:   newWindow(1 << order),
		order: order,
		rng:   newPrng(),
	}
}

func (b *Boxcar) Update(next int64, _ uint32) int64 {
	if next == Discard {
		return Discard
	}
	b.win.push(next)
	var sum int64
	for _, x := range b.buf() {
		sum += x
	}
	samps := int64(1) << b.order
	dither := int64(b.rng.next()) & (samps - 1)
	return (sum + dither) >> b.order
}

func (b *Boxcar) buf() []int64 { return b.win.buf }

func (b *Boxcar) Rate(int64, uint32) {}

func (b *Boxcar) Reset() { b.win.reset() }
