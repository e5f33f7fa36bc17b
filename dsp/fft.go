package dsp

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// fftCache caches FFT plans by length. Plan construction is cheap but the
// pipeline calls the same sizes every tick.
var fftCache = struct {
	mu    sync.Mutex
	plans map[int]*fourier.FFT
}{plans: make(map[int]*fourier.FFT)}

func fftPlan(n int) *fourier.FFT {
	fftCache.mu.Lock()
	defer fftCache.mu.Unlock()

	if p, ok := fftCache.plans[n]; ok {
		return p
	}
	p := fourier.NewFFT(n)
	fftCache.plans[n] = p
	return p
}

// PSD computes a one-sided power spectral density estimate of a single frame.
// The frame is multiplied by a Hann window and zero-padded to nfft samples
// (nfft <= len(frame) means no padding). Normalization follows the standard
// density scaling:
//
//	psd[i] = |X[i]|^2 / (fs * N * meanWindowPower)
//
// where N is the unpadded frame length and meanWindowPower = sum(w^2)/len(w)
// over the window, so N * meanWindowPower is the window energy. Zero padding
// refines the frequency grid without changing total power; normalizing by the
// padded length instead would shrink the estimate by nfft/N. All bins except
// DC and Nyquist are doubled so that integrating the one-sided estimate
// conserves total power.
//
// The caller is expected to detrend and filter the frame beforehand; PSD does
// neither. Returns nil slices for an empty frame.
func PSD(frame []float64, fs float64, nfft int) (freqs, psd []float64) {
	n := len(frame)
	if n == 0 || fs <= 0 {
		return nil, nil
	}
	if nfft < n {
		nfft = n
	}

	w := HannWindow(n)
	meanPower := MeanWindowPower(w)
	if meanPower == 0 {
		return nil, nil
	}

	padded := make([]float64, nfft)
	for i := 0; i < n; i++ {
		padded[i] = frame[i] * w[i]
	}

	coeffs := fftPlan(nfft).Coefficients(nil, padded)

	numBins := nfft/2 + 1
	freqs = make([]float64, numBins)
	psd = make([]float64, numBins)
	scale := 1.0 / (fs * float64(n) * meanPower)
	for i := 0; i < numBins; i++ {
		re := real(coeffs[i])
		im := imag(coeffs[i])
		p := (re*re + im*im) * scale
		// Double everything except DC and Nyquist to conserve power in the
		// one-sided spectrum.
		if i != 0 && i != numBins-1 {
			p *= 2
		}
		freqs[i] = float64(i) * fs / float64(nfft)
		psd[i] = p
	}

	return freqs, psd
}

// ToDB converts linear power values to decibels in place-safe copy form:
// 10 * log10(max(p, floor)). The floor avoids -Inf on silent bins.
func ToDB(power []float64, floor float64) []float64 {
	out := make([]float64, len(power))
	for i, p := range power {
		if p < floor {
			p = floor
		}
		out[i] = 10.0 * math.Log10(p)
	}
	return out
}

// NextPowerOf2 returns the smallest power of two >= n.
func NextPowerOf2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}
