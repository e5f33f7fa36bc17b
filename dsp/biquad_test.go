package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rms over the second half of x, past the filter's settling transient.
func settledRMS(x []float64) float64 {
	tail := x[len(x)/2:]
	sum := 0.0
	for _, v := range tail {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(tail)))
}

func TestLowPassResponse(t *testing.T) {
	const fs = 64.0
	n := int(fs * 8)

	lp := NewLowPass(2, fs, DefaultQ)

	passed := settledRMS(lp.Filter(sine(0.5, fs, n)))
	stopped := settledRMS(lp.Filter(sine(20, fs, n)))

	ref := settledRMS(sine(0.5, fs, n))
	assert.Greater(t, passed, 0.8*ref, "0.5 Hz should pass a 2 Hz lowpass")
	assert.Less(t, stopped, 0.05*ref, "20 Hz should be strongly attenuated")
}

func TestHighPassResponse(t *testing.T) {
	const fs = 64.0
	n := int(fs * 16)

	hp := NewHighPass(0.5, fs, DefaultQ)

	passed := settledRMS(hp.Filter(sine(4, fs, n)))
	stopped := settledRMS(hp.Filter(sine(0.05, fs, n)))

	ref := settledRMS(sine(4, fs, n))
	assert.Greater(t, passed, 0.8*ref)
	assert.Less(t, stopped, 0.2*ref)
}

func TestNotchResponse(t *testing.T) {
	const fs = 256.0
	n := int(fs * 4)

	notch := NewNotch(60, fs, 30)

	suppressed := settledRMS(notch.Filter(sine(60, fs, n)))
	passed := settledRMS(notch.Filter(sine(10, fs, n)))

	ref := settledRMS(sine(10, fs, n))
	assert.Less(t, suppressed, 0.1*ref, "60 Hz should be rejected by the notch")
	assert.Greater(t, passed, 0.9*ref, "10 Hz should pass the notch unchanged")
}

func TestBandPassResponse(t *testing.T) {
	const fs = 64.0
	n := int(fs * 16)

	ref := settledRMS(sine(1.2, fs, n))
	inBand := settledRMS(BandPass(sine(1.2, fs, n), 0.5, 4, fs))
	above := settledRMS(BandPass(sine(20, fs, n), 0.5, 4, fs))

	assert.Greater(t, inBand, 0.7*ref, "a pulse-rate sinusoid should pass the AC band")
	assert.Less(t, above, 0.1*ref)
}

func TestLowPass4StrongerRolloff(t *testing.T) {
	const fs = 64.0
	n := int(fs * 8)
	x := sine(10, fs, n)

	second := settledRMS(NewLowPass(0.5, fs, DefaultQ).Filter(x))
	fourth := settledRMS(LowPass4(x, 0.5, fs))

	assert.Less(t, fourth, second, "two cascaded sections attenuate more than one")
}

func TestCascadeOrderIndependentOutputLength(t *testing.T) {
	x := sine(1, 64, 256)
	out := Cascade(x, NewHighPass(0.5, 64, DefaultQ), NewLowPass(4, 64, DefaultQ))
	require.Len(t, out, len(x))
}
