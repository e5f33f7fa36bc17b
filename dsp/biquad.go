package dsp

import "math"

// Biquad is a second-order IIR filter section in direct form I, with
// coefficients normalized by a0. Designed with the RBJ audio EQ cookbook
// formulas.
type Biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// DefaultQ is the Butterworth quality factor used for lowpass/highpass
// sections when the caller has no reason to choose otherwise.
const DefaultQ = math.Sqrt2 / 2

// NewLowPass designs a second-order lowpass biquad with the given cutoff.
func NewLowPass(cutoffHz, sampleRate, q float64) *Biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := (1 - cosW0) / 2
	b1 := 1 - cosW0
	b2 := (1 - cosW0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return &Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// NewHighPass designs a second-order highpass biquad with the given cutoff.
func NewHighPass(cutoffHz, sampleRate, q float64) *Biquad {
	w0 := 2 * math.Pi * cutoffHz / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := (1 + cosW0) / 2
	b1 := -(1 + cosW0)
	b2 := (1 + cosW0) / 2
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return &Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// NewNotch designs a second-order band-reject biquad centered on f0. A high Q
// (30 is typical for mains suppression) keeps the rejection band narrow.
func NewNotch(f0, sampleRate, q float64) *Biquad {
	w0 := 2 * math.Pi * f0 / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := 1.0
	b1 := -2 * cosW0
	b2 := 1.0
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha

	return &Biquad{b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

// Filter applies the section causally with zero initial state and returns a
// new slice. Each call is independent; the filter carries no state between
// calls, which keeps tick recomputation idempotent.
func (bq *Biquad) Filter(x []float64) []float64 {
	out := make([]float64, len(x))
	var x1, x2, y1, y2 float64
	for i, v := range x {
		y := bq.b0*v + bq.b1*x1 + bq.b2*x2 - bq.a1*y1 - bq.a2*y2
		x2, x1 = x1, v
		y2, y1 = y1, y
		out[i] = y
	}
	return out
}

// Cascade applies sections in order, feeding each section's output to the
// next.
func Cascade(x []float64, sections ...*Biquad) []float64 {
	out := x
	for _, s := range sections {
		out = s.Filter(out)
	}
	return out
}

// LowPass4 applies a fourth-order lowpass built from two cascaded
// second-order sections. Used to isolate the slow DC component of a PPG
// channel.
func LowPass4(x []float64, cutoffHz, sampleRate float64) []float64 {
	return Cascade(x,
		NewLowPass(cutoffHz, sampleRate, DefaultQ),
		NewLowPass(cutoffHz, sampleRate, DefaultQ))
}

// BandPass applies a highpass followed by a lowpass section, passing
// [lowHz, highHz]. Used to isolate the pulsatile AC component of a PPG
// channel.
func BandPass(x []float64, lowHz, highHz, sampleRate float64) []float64 {
	hp := NewHighPass(lowHz, sampleRate, DefaultQ)
	lp := NewLowPass(highHz, sampleRate, DefaultQ)
	return Cascade(x, hp, lp)
}
