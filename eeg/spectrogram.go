package eeg

import (
	"math"
	"time"

	"github.com/mtippett/meditrain-sub000/dsp"
)

// SpectrogramSlice is one STFT frame: a one-sided spectrum in dB with the
// frame's center time.
type SpectrogramSlice struct {
	Freqs []float64 `json:"freqs"`
	DB    []float64 `json:"db"`
	T     time.Time `json:"t"`
}

// dbFloor avoids -Inf on silent bins when converting power to dB.
const dbFloor = 1e-12

// Fallback color-scale limits when the percentile domain is degenerate.
const (
	fallbackVMin = -120.0
	fallbackVMax = -40.0
)

// SpectrogramBuilder computes short-time Fourier transforms over a channel's
// recent samples, preferring already-computed per-tick periodogram slices
// when enough of them cover the requested window.
type SpectrogramBuilder struct {
	maxHz     float64
	stftCount int
}

// NewSpectrogramBuilder creates a builder restricted to frequencies <= maxHz.
func NewSpectrogramBuilder(maxHz float64) *SpectrogramBuilder {
	return &SpectrogramBuilder{maxHz: maxHz}
}

// STFTCount returns how many fresh STFT passes the builder has run. Exposed
// so cache-reuse behavior is observable.
func (sb *SpectrogramBuilder) STFTCount() int {
	return sb.stftCount
}

// Build returns the spectrogram slices for the window ending at end. If at
// least two cached per-tick slices fall inside the window they are reused
// as-is (the FFT work was already paid for); otherwise a fresh STFT runs over
// the raw samples, whose last sample is taken to coincide with end.
func (sb *SpectrogramBuilder) Build(samples []float64, sampleRate float64, end time.Time, window time.Duration, cached []SpectrogramSlice) []SpectrogramSlice {
	start := end.Add(-window)

	inWindow := make([]SpectrogramSlice, 0, len(cached))
	for _, s := range cached {
		if !s.T.Before(start) && !s.T.After(end) {
			inWindow = append(inWindow, s)
		}
	}
	if len(inWindow) >= 2 {
		return inWindow
	}

	return sb.stft(samples, sampleRate, end)
}

// stft runs a fresh short-time Fourier transform: overlapping Hann-windowed
// frames zero-padded to a large FFT length for fine frequency resolution.
func (sb *SpectrogramBuilder) stft(samples []float64, sampleRate float64, end time.Time) []SpectrogramSlice {
	if sampleRate <= 0 || len(samples) == 0 {
		return nil
	}

	nperseg := len(samples)
	if nperseg > 2048 {
		nperseg = 2048
	}
	if nperseg < 256 {
		return nil
	}

	timeStep := nperseg / 16
	if timeStep < 32 {
		timeStep = 32
	}

	nfft := dsp.NextPowerOf2(4 * nperseg)
	if nfft < 8192 {
		nfft = 8192
	}

	sb.stftCount++

	// Detrend the whole signal once with its global mean; per-frame windows
	// then see a consistent baseline.
	x := dsp.Detrend(samples)

	duration := time.Duration(float64(len(x)) / sampleRate * float64(time.Second))
	t0 := end.Add(-duration)

	var out []SpectrogramSlice
	for off := 0; off+nperseg <= len(x); off += timeStep {
		frame := x[off : off+nperseg]
		freqs, psd := dsp.PSD(frame, sampleRate, nfft)
		if freqs == nil {
			continue
		}

		cut := len(freqs)
		for i, f := range freqs {
			if f > sb.maxHz {
				cut = i
				break
			}
		}

		center := float64(off) + float64(nperseg)/2
		out = append(out, SpectrogramSlice{
			Freqs: freqs[:cut],
			DB:    dsp.ToDB(psd[:cut], dbFloor),
			T:     t0.Add(time.Duration(center / sampleRate * float64(time.Second))),
		})
	}

	return out
}

// ColorDomain derives a robust [vmin, vmax] clamp from the 5th and 95th
// percentiles of all dB values across every channel being rendered, falling
// back to a fixed range when the percentiles are degenerate or non-finite.
func ColorDomain(slices []SpectrogramSlice) (vmin, vmax float64) {
	var all []float64
	for _, s := range slices {
		all = append(all, s.DB...)
	}
	if len(all) == 0 {
		return fallbackVMin, fallbackVMax
	}

	vmin = dsp.Percentile(all, 5)
	vmax = dsp.Percentile(all, 95)
	if !isFinite(vmin) || !isFinite(vmax) || vmin >= vmax {
		return fallbackVMin, fallbackVMax
	}
	return vmin, vmax
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ColorIndex maps a dB value linearly into the 256-entry palette, clamping
// at the domain edges.
func ColorIndex(db, vmin, vmax float64) int {
	if vmax <= vmin {
		return 0
	}
	idx := int((db - vmin) / (vmax - vmin) * 255.0)
	if idx < 0 {
		idx = 0
	}
	if idx > 255 {
		idx = 255
	}
	return idx
}

// turboPalette is a 256-entry approximation of the perceptually-uniform
// "turbo" colormap, evaluated from its published polynomial fit.
var turboPalette = buildTurboPalette()

// Palette returns the 256-entry RGB lookup used for rasterizing spectrogram
// slices.
func Palette() [256][3]uint8 {
	return turboPalette
}

func buildTurboPalette() [256][3]uint8 {
	var p [256][3]uint8
	for i := 0; i < 256; i++ {
		t := float64(i) / 255.0
		r := 0.13572138 + t*(4.61539260+t*(-42.66032258+t*(132.13108234+t*(-152.94239396+t*59.28637943))))
		g := 0.09140261 + t*(2.19418839+t*(4.84296658+t*(-14.18503333+t*(4.27729857+t*2.82956604))))
		b := 0.10667330 + t*(12.64194608+t*(-60.58204836+t*(110.36276771+t*(-89.90310912+t*27.34824973))))
		p[i] = [3]uint8{clampByte(r), clampByte(g), clampByte(b)}
	}
	return p
}

func clampByte(v float64) uint8 {
	s := v * 255.0
	if s < 0 {
		return 0
	}
	if s > 255 {
		return 255
	}
	return uint8(s)
}
