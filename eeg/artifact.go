package eeg

import (
	"github.com/mtippett/meditrain-sub000/dsp"
)

// ArtifactWindow describes one stepped scan window over the trailing trace:
// its sample extent, the two quality measurements, and their flags.
type ArtifactWindow struct {
	StartSample       int     `json:"start_sample"`
	EndSample         int     `json:"end_sample"`
	AmplitudeRange    float64 `json:"amplitude_range"`
	LineNoiseRatio    float64 `json:"line_noise_ratio"`
	AmplitudeArtifact bool    `json:"amplitude_artifact"`
	LineNoiseArtifact bool    `json:"line_noise_artifact"`
}

// ArtifactConfig holds the detector's window geometry and thresholds.
type ArtifactConfig struct {
	WindowSec          float64 // scan window length in seconds
	StepSec            float64 // scan step in seconds
	AmplitudeThreshold float64 // flag when max-min exceeds this
	LineNoiseHz        float64 // mains frequency to measure
	LineNoiseBandHz    float64 // width of the band centered on LineNoiseHz
	LineNoiseThreshold float64 // flag when the power ratio exceeds this
	MaxHz              float64 // upper bound of the total-power denominator
}

// DetectArtifacts scans fixed-size stepped windows of raw samples for
// amplitude-range and mains-line-noise anomalies. The line-noise ratio is
// measured on an unfiltered periodogram (no notch) so the notch filter
// cannot mask the very interference being detected. The whole scan is
// recomputed from scratch each tick; the trace window is short relative to
// the tick interval so incremental state is not worth carrying.
func DetectArtifacts(samples []float64, sampleRate float64, cfg ArtifactConfig) []ArtifactWindow {
	windowSamples := int(cfg.WindowSec*sampleRate + 0.5)
	stepSamples := int(cfg.StepSec*sampleRate + 0.5)
	if windowSamples <= 0 || stepSamples <= 0 || len(samples) < windowSamples {
		return nil
	}

	var out []ArtifactWindow
	for start := 0; start+windowSamples <= len(samples); start += stepSamples {
		win := samples[start : start+windowSamples]

		min, max := dsp.MinMax(win)
		w := ArtifactWindow{
			StartSample:    start,
			EndSample:      start + windowSamples,
			AmplitudeRange: max - min,
		}
		w.AmplitudeArtifact = w.AmplitudeRange > cfg.AmplitudeThreshold

		w.LineNoiseRatio = lineNoiseRatio(win, sampleRate, cfg)
		w.LineNoiseArtifact = w.LineNoiseRatio > cfg.LineNoiseThreshold

		out = append(out, w)
	}
	return out
}

// lineNoiseRatio returns power within +-band/2 of the mains frequency divided
// by total power in [0.5, MaxHz], from a notch-free periodogram of the
// window.
func lineNoiseRatio(win []float64, sampleRate float64, cfg ArtifactConfig) float64 {
	lo := cfg.LineNoiseHz - cfg.LineNoiseBandHz/2
	hi := cfg.LineNoiseHz + cfg.LineNoiseBandHz/2

	// The mains band may sit above the display ceiling; the measurement
	// spectrum must still cover it.
	ceil := cfg.MaxHz
	if hi > ceil {
		ceil = hi
	}
	p := ComputePeriodogram(win, sampleRate, 0, ceil)
	if p == nil {
		return 0
	}

	var linePower, totalPower float64
	for i, f := range p.Freqs {
		if f >= lo && f <= hi {
			linePower += p.PSD[i]
		}
		if f >= 0.5 && f <= cfg.MaxHz {
			totalPower += p.PSD[i]
		}
	}
	if totalPower <= 0 {
		return 0
	}
	return linePower / totalPower
}
