package eeg

import (
	"github.com/mtippett/meditrain-sub000/dsp"
)

// Periodogram is a one-sided power spectral density estimate. Frequencies are
// strictly increasing and magnitudes has the same length.
type Periodogram struct {
	Freqs []float64 `json:"freqs"`
	PSD   []float64 `json:"psd"`
}

// notchQ keeps the mains rejection band narrow; the standard choice for a
// 50/60 Hz notch.
const notchQ = 30.0

// ComputePeriodogram estimates the PSD of one fixed-length slice of raw
// samples: detrend, optional mains notch (notchHz <= 0 disables it), Hann
// window, FFT, one-sided density normalization, truncated to maxHz.
//
// Callers guarantee the slice holds exactly the configured FFT window; this
// stage uses whatever it is given and does not re-validate length.
func ComputePeriodogram(samples []float64, sampleRate, notchHz, maxHz float64) *Periodogram {
	if len(samples) == 0 || sampleRate <= 0 {
		return nil
	}

	x := dsp.Detrend(samples)
	if notchHz > 0 {
		x = dsp.NewNotch(notchHz, sampleRate, notchQ).Filter(x)
	}

	freqs, psd := dsp.PSD(x, sampleRate, len(x))
	if freqs == nil {
		return nil
	}

	if maxHz > 0 {
		cut := len(freqs)
		for i, f := range freqs {
			if f > maxHz {
				cut = i
				break
			}
		}
		freqs = freqs[:cut]
		psd = psd[:cut]
	}

	return &Periodogram{Freqs: freqs, PSD: psd}
}

// BinWidth returns the spacing between consecutive frequency samples, taken
// from the first gap (the axis is uniform by construction).
func (p *Periodogram) BinWidth() float64 {
	if p == nil || len(p.Freqs) < 2 {
		return 0
	}
	return p.Freqs[1] - p.Freqs[0]
}

// Clone returns a deep copy, so snapshots never alias live estimator state.
func (p *Periodogram) Clone() *Periodogram {
	if p == nil {
		return nil
	}
	out := &Periodogram{
		Freqs: make([]float64, len(p.Freqs)),
		PSD:   make([]float64, len(p.PSD)),
	}
	copy(out.Freqs, p.Freqs)
	copy(out.PSD, p.PSD)
	return out
}
