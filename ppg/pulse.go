package ppg

import (
	"github.com/mtippett/meditrain-sub000/dsp"
)

// madScale sets the adaptive peak threshold at median + 1.25 * MAD of the
// band-passed window.
const madScale = 1.25

// DetectPeaks finds pulse peaks in a band-passed, detrended window using an
// adaptive threshold. Peaks closer than minSpacingSec to the previously
// accepted peak replace it when they are larger local maxima; otherwise they
// are discarded. Returned indices are strictly increasing.
func DetectPeaks(x []float64, sampleRate, minSpacingSec float64) []int {
	if len(x) < 3 || sampleRate <= 0 {
		return nil
	}

	threshold := dsp.Median(x) + madScale*dsp.MAD(x)
	minSpacing := int(minSpacingSec * sampleRate)
	if minSpacing < 1 {
		minSpacing = 1
	}

	var peaks []int
	for i := 1; i < len(x)-1; i++ {
		if x[i] <= threshold {
			continue
		}
		if x[i] <= x[i-1] || x[i] < x[i+1] {
			continue
		}

		if n := len(peaks); n > 0 && i-peaks[n-1] < minSpacing {
			// Inside the spacing window: keep whichever local maximum is
			// larger.
			if x[i] > x[peaks[n-1]] {
				peaks[n-1] = i
			}
			continue
		}
		peaks = append(peaks, i)
	}
	return peaks
}

// HeartRate derives beats per minute from detected peaks as 60 over the
// median inter-peak interval. Returns nil (unavailable, not an error) with
// fewer than 2 peaks or when the result falls outside [minBpm, maxBpm].
func HeartRate(peaks []int, sampleRate float64, minBpm, maxBpm int) *int {
	if len(peaks) < 2 || sampleRate <= 0 {
		return nil
	}

	intervals := make([]float64, 0, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		intervals = append(intervals, float64(peaks[i]-peaks[i-1])/sampleRate)
	}

	medianInterval := dsp.Median(intervals)
	if medianInterval <= 0 {
		return nil
	}

	bpm := int(60.0/medianInterval + 0.5)
	if bpm < minBpm || bpm > maxBpm {
		return nil
	}
	return &bpm
}

// Cardiogram concatenates the band-passed signal between consecutive
// detected peaks into a short display trace, keeping the last maxBeats
// beat-to-beat segments.
func Cardiogram(band []float64, peaks []int, maxBeats int) []float64 {
	if len(peaks) < 2 || maxBeats < 1 {
		return nil
	}

	firstPeak := 0
	if segments := len(peaks) - 1; segments > maxBeats {
		firstPeak = segments - maxBeats
	}

	var out []float64
	for i := firstPeak; i < len(peaks)-1; i++ {
		start, end := peaks[i], peaks[i+1]
		if start < 0 || end > len(band) || start >= end {
			continue
		}
		out = append(out, band[start:end]...)
	}
	return out
}

// CombinedWaveform averages the trailing samples of all supplied channels
// into a single display waveform. Channels are aligned at their most recent
// sample; the result length is the shortest channel's length.
func CombinedWaveform(channels [][]float64) []float64 {
	minLen := 0
	for _, ch := range channels {
		if len(ch) == 0 {
			continue
		}
		if minLen == 0 || len(ch) < minLen {
			minLen = len(ch)
		}
	}
	if minLen == 0 {
		return nil
	}

	out := make([]float64, minLen)
	count := 0
	for _, ch := range channels {
		if len(ch) == 0 {
			continue
		}
		tail := ch[len(ch)-minLen:]
		for i, v := range tail {
			out[i] += v
		}
		count++
	}
	for i := range out {
		out[i] /= float64(count)
	}
	return out
}
