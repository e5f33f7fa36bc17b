package eeg

import (
	"time"
)

// BandPower holds the absolute and relative power of one band. Relative is 0
// when the snapshot's total power is 0; it is never NaN.
type BandPower struct {
	Absolute float64 `json:"absolute"`
	Relative float64 `json:"relative"`
}

// BandPowerSnapshot maps each band to its power for one channel at one tick.
// When total power is positive the relative values sum to 1 within floating
// error.
type BandPowerSnapshot [NumBands]BandPower

// IntegrateBands integrates an averaged periodogram into per-band power.
// Absolute power is the rectangle sum psd[i] * binWidth over bins whose
// frequency falls inside the band's half-open interval; relative power is
// absolute/total with an explicit zero-total guard.
func IntegrateBands(p *Periodogram) BandPowerSnapshot {
	var snap BandPowerSnapshot
	if p == nil || len(p.Freqs) < 2 {
		return snap
	}

	binWidth := p.BinWidth()
	total := 0.0
	for i, f := range p.Freqs {
		for _, b := range AllBands {
			if b.Contains(f) {
				snap[b].Absolute += p.PSD[i] * binWidth
				break
			}
		}
	}
	for _, b := range AllBands {
		total += snap[b].Absolute
	}
	if total > 0 {
		for _, b := range AllBands {
			snap[b].Relative = snap[b].Absolute / total
		}
	}
	return snap
}

// AggregateSnapshots derives a synthetic channel-group snapshot by summing
// the members' absolute power per band and recomputing relative shares from
// the summed totals. Summing absolute power (rather than averaging relative
// shares) keeps low-power channels from dominating the aggregate.
func AggregateSnapshots(members []BandPowerSnapshot) BandPowerSnapshot {
	var agg BandPowerSnapshot
	for _, m := range members {
		for _, b := range AllBands {
			agg[b].Absolute += m[b].Absolute
		}
	}
	total := 0.0
	for _, b := range AllBands {
		total += agg[b].Absolute
	}
	if total > 0 {
		for _, b := range AllBands {
			agg[b].Relative = agg[b].Absolute / total
		}
	}
	return agg
}

// Signature returns the relative-power vector used for change detection.
// When no channel's signature moved since the previous tick the aggregator
// skips recomputation and re-emission.
func (s BandPowerSnapshot) Signature() [NumBands]float64 {
	var sig [NumBands]float64
	for _, b := range AllBands {
		sig[b] = s[b].Relative
	}
	return sig
}

// HistoryPoint is one time-stamped band-power value.
type HistoryPoint struct {
	T time.Time `json:"t"`
	V float64   `json:"v"`
}

// BandHistory is a rolling, time-ordered sequence of relative-power points
// for one (channel, band) pair, with a moving-average smoothed value derived
// from the most recent smoothing window.
type BandHistory struct {
	Points   []HistoryPoint `json:"points"`
	Smoothed float64        `json:"smoothed"`
}

// Append adds a point, evicts entries older than window relative to the new
// point, and recomputes the smoothed average over the smoothing window.
// Timestamps must be non-decreasing; out-of-order points are dropped.
func (h *BandHistory) Append(t time.Time, v float64, window, smoothing time.Duration) {
	if n := len(h.Points); n > 0 && t.Before(h.Points[n-1].T) {
		return
	}

	h.Points = append(h.Points, HistoryPoint{T: t, V: v})

	// Trim from the front: oldest retained point is always >= t - window.
	cutoff := t.Add(-window)
	firstValid := 0
	for firstValid < len(h.Points) && h.Points[firstValid].T.Before(cutoff) {
		firstValid++
	}
	if firstValid > 0 {
		h.Points = h.Points[firstValid:]
	}

	h.Smoothed = h.smoothedAverage(t, smoothing)
}

// smoothedAverage is the simple moving average of points within the trailing
// smoothing window.
func (h *BandHistory) smoothedAverage(now time.Time, smoothing time.Duration) float64 {
	if smoothing <= 0 || len(h.Points) == 0 {
		if n := len(h.Points); n > 0 {
			return h.Points[n-1].V
		}
		return 0
	}

	cutoff := now.Add(-smoothing)
	sum := 0.0
	count := 0
	for i := len(h.Points) - 1; i >= 0; i-- {
		if h.Points[i].T.Before(cutoff) {
			break
		}
		sum += h.Points[i].V
		count++
	}
	if count == 0 {
		return h.Points[len(h.Points)-1].V
	}
	return sum / float64(count)
}

// Clone returns a deep copy for snapshot publication.
func (h *BandHistory) Clone() *BandHistory {
	out := &BandHistory{
		Points:   make([]HistoryPoint, len(h.Points)),
		Smoothed: h.Smoothed,
	}
	copy(out.Points, h.Points)
	return out
}
