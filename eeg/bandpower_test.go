package eeg

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegrateBandsRelativeSumsToOne(t *testing.T) {
	p := ComputePeriodogram(sine(10, 256, 1024), 256, 0, 50)
	require.NotNil(t, p)

	snap := IntegrateBands(p)

	sum := 0.0
	for _, b := range AllBands {
		assert.GreaterOrEqual(t, snap[b].Relative, 0.0)
		sum += snap[b].Relative
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	// A 10 Hz sinusoid is alpha-band energy.
	assert.Greater(t, snap[Alpha].Relative, 0.9)
}

func TestIntegrateBandsZeroTotal(t *testing.T) {
	p := ComputePeriodogram(make([]float64, 1024), 256, 0, 50)
	require.NotNil(t, p)

	snap := IntegrateBands(p)
	for _, b := range AllBands {
		assert.Equal(t, 0.0, snap[b].Absolute)
		assert.Equal(t, 0.0, snap[b].Relative)
		assert.False(t, math.IsNaN(snap[b].Relative))
	}

	assert.Equal(t, BandPowerSnapshot{}, IntegrateBands(nil))
}

func TestAggregateSnapshotsSumsAbsolute(t *testing.T) {
	var a, b BandPowerSnapshot
	a[Alpha] = BandPower{Absolute: 3, Relative: 0.75}
	a[Beta] = BandPower{Absolute: 1, Relative: 0.25}
	b[Alpha] = BandPower{Absolute: 1, Relative: 0.1}
	b[Beta] = BandPower{Absolute: 9, Relative: 0.9}

	agg := AggregateSnapshots([]BandPowerSnapshot{a, b})
	assert.Equal(t, 4.0, agg[Alpha].Absolute)
	assert.Equal(t, 10.0, agg[Beta].Absolute)
	// Relative comes from the summed totals, not from averaging members'
	// relative shares.
	assert.InDelta(t, 4.0/14.0, agg[Alpha].Relative, 1e-12)
	assert.InDelta(t, 10.0/14.0, agg[Beta].Relative, 1e-12)
}

func TestBandHistoryEviction(t *testing.T) {
	h := &BandHistory{}
	base := time.Unix(1000, 0)
	window := 120 * time.Second

	for i := 0; i < 200; i++ {
		h.Append(base.Add(time.Duration(i)*time.Second), float64(i), window, 10*time.Second)
	}

	latest := h.Points[len(h.Points)-1].T
	oldest := h.Points[0].T
	assert.False(t, oldest.Before(latest.Add(-window)), "oldest retained point must be within the window")
}

func TestBandHistorySmoothing(t *testing.T) {
	h := &BandHistory{}
	base := time.Unix(1000, 0)

	// 30 s of zeros, then 10 s of ones: the 10 s moving average settles at 1.
	for i := 0; i < 30; i++ {
		h.Append(base.Add(time.Duration(i)*time.Second), 0, 120*time.Second, 10*time.Second)
	}
	for i := 30; i < 41; i++ {
		h.Append(base.Add(time.Duration(i)*time.Second), 1, 120*time.Second, 10*time.Second)
	}
	assert.InDelta(t, 1.0, h.Smoothed, 1e-12)
}

func TestBandHistoryDropsOutOfOrder(t *testing.T) {
	h := &BandHistory{}
	base := time.Unix(1000, 0)
	h.Append(base, 1, time.Minute, 10*time.Second)
	h.Append(base.Add(-time.Second), 2, time.Minute, 10*time.Second)
	require.Len(t, h.Points, 1)
	assert.Equal(t, 1.0, h.Points[0].V)
}

func TestSignatureTracksRelative(t *testing.T) {
	var s BandPowerSnapshot
	s[Delta] = BandPower{Relative: 0.5}
	s[Gamma] = BandPower{Relative: 0.5}
	sig := s.Signature()
	assert.Equal(t, 0.5, sig[Delta])
	assert.Equal(t, 0.0, sig[Theta])
}
