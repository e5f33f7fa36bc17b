package dsp

import (
	"math"
	"sync"
)

// hannCache caches Hann windows by length since the pipeline reuses a small
// number of fixed frame sizes (FFT window, spectrogram frames).
var hannCache = struct {
	mu      sync.Mutex
	windows map[int][]float64
}{windows: make(map[int][]float64)}

// HannWindow returns a Hann window of length n:
// w[i] = 0.5 * (1 - cos(2*pi*i/(n-1)))
// The returned slice is shared; callers must not modify it.
func HannWindow(n int) []float64 {
	if n <= 0 {
		return nil
	}

	hannCache.mu.Lock()
	defer hannCache.mu.Unlock()

	if w, ok := hannCache.windows[n]; ok {
		return w
	}

	w := make([]float64, n)
	if n == 1 {
		w[0] = 1.0
	} else {
		for i := 0; i < n; i++ {
			w[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(n-1)))
		}
	}

	hannCache.windows[n] = w
	return w
}

// MeanWindowPower returns sum(w[i]^2) / len(w), the normalization term for
// converting a windowed FFT to a power spectral density.
func MeanWindowPower(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w {
		sum += v * v
	}
	return sum / float64(len(w))
}

// Detrend returns a copy of x with its mean removed.
func Detrend(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	m := Mean(x)
	for i, v := range x {
		out[i] = v - m
	}
	return out
}

// Mean returns the arithmetic mean of x, or 0 for an empty slice.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}
