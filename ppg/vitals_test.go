package ppg

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ppgWave synthesizes a plausible PPG channel: a DC baseline plus a pulsatile
// component at beatHz.
func ppgWave(dc, amp, beatHz, rate, seconds float64) []float64 {
	n := int(rate * seconds)
	out := make([]float64, n)
	for i := range out {
		out[i] = dc + amp*math.Sin(2*math.Pi*beatHz*float64(i)/rate)
	}
	return out
}

func newTestEstimator() *Estimator {
	return NewEstimator(Config{SampleRate: 64})
}

func TestComputePerfusionGuards(t *testing.T) {
	e := newTestEstimator()

	// Under 3 seconds of samples.
	p := e.ComputePerfusion(make([]float64, 100))
	assert.False(t, p.OK)
	assert.Equal(t, ReasonNoSignal, p.Reason)

	// All zeros: no DC component.
	p = e.ComputePerfusion(make([]float64, 64*8))
	assert.False(t, p.OK)
	assert.Equal(t, ReasonDCZero, p.Reason)

	// Pure DC: no pulsatile amplitude at all.
	p = e.ComputePerfusion(ppgWave(1000, 0, 0, 64, 8))
	assert.False(t, p.OK)
	assert.Equal(t, ReasonACZero, p.Reason)

	// Tiny pulse over a huge baseline: measurable AC, but perfusion below
	// the viability floor.
	p = e.ComputePerfusion(ppgWave(1e6, 1, 1.2, 64, 8))
	assert.False(t, p.OK)
	assert.Equal(t, ReasonPILow, p.Reason)
	assert.Greater(t, p.PI, 0.0)
	assert.LessOrEqual(t, p.PI, 0.005)

	// Corrupt samples poison both components; the non-finite ratio is its
	// own reason, not a crash.
	bad := make([]float64, 64*8)
	for i := range bad {
		bad[i] = math.NaN()
	}
	p = e.ComputePerfusion(bad)
	assert.False(t, p.OK)
	assert.Equal(t, ReasonPINaN, p.Reason)

	// Strong pulse on a DC baseline.
	p = e.ComputePerfusion(ppgWave(1000, 50, 1.2, 64, 8))
	require.True(t, p.OK, "reason: %s", p.Reason)
	assert.Greater(t, p.PI, 0.005)
	assert.Greater(t, p.DC, 500.0)
	assert.Less(t, p.DC, 1100.0)
}

func TestUpdateReportsRatioOnGuardedSpO2(t *testing.T) {
	e := newTestEstimator()

	// IR passes the guards; red's perfusion is below the floor. SpO2 must
	// stay unavailable with the red channel's reason, but the ratio that
	// failed is still reported for diagnostics.
	res := e.Update(time.Unix(3000, 0), []ChannelWindow{
		{ID: 1, Label: "ir", Role: RoleIR, Samples: ppgWave(1000, 50, 1.2, 64, 8)},
		{ID: 2, Label: "red", Role: RoleRed, Samples: ppgWave(1e6, 1, 1.2, 64, 8)},
	})

	assert.False(t, res.Vitals.OK)
	assert.Equal(t, ReasonPILow, res.Vitals.Reason)
	assert.Nil(t, res.Vitals.SpO2)
	assert.Nil(t, res.Vitals.SpO2Quadratic)
	assert.Greater(t, res.Vitals.Ratio, 0.0)
	assert.Greater(t, res.Vitals.PerfusionIR, 0.0)
	assert.Greater(t, res.Vitals.PerfusionRed, 0.0)
}

func TestUpdateHeartRateAndSpO2(t *testing.T) {
	e := newTestEstimator()
	now := time.Unix(3000, 0)

	ir := ppgWave(1000, 50, 1.2, 64, 8)
	red := ppgWave(800, 30, 1.2, 64, 8)

	res := e.Update(now, []ChannelWindow{
		{ID: 0, Label: "ambient", Role: RoleAmbient, Samples: ppgWave(100, 1, 1.2, 64, 8)},
		{ID: 1, Label: "ir", Role: RoleIR, Samples: ir},
		{ID: 2, Label: "red", Role: RoleRed, Samples: red},
	})

	require.NotNil(t, res.Vitals.HeartRateBpm)
	assert.InDelta(t, 72, *res.Vitals.HeartRateBpm, 2)

	require.True(t, res.Vitals.OK)
	require.NotNil(t, res.Vitals.SpO2)
	assert.GreaterOrEqual(t, *res.Vitals.SpO2, 80.0)
	assert.LessOrEqual(t, *res.Vitals.SpO2, 100.0)
	require.NotNil(t, res.Vitals.SpO2Quadratic)
	assert.GreaterOrEqual(t, *res.Vitals.SpO2Quadratic, 80.0)
	assert.LessOrEqual(t, *res.Vitals.SpO2Quadratic, 100.0)
	assert.Greater(t, res.Vitals.Ratio, 0.0)

	// IR has the larger pulsatile amplitude, so it wins selection; ambient is
	// never eligible.
	require.NotNil(t, res.Selection)
	assert.Equal(t, 1, res.Selection.ChannelID)

	assert.NotEmpty(t, res.Cardiogram)
	assert.NotEmpty(t, res.Combined)
}

func TestUpdateNoData(t *testing.T) {
	e := newTestEstimator()
	res := e.Update(time.Unix(3000, 0), nil)

	assert.Nil(t, res.Vitals.HeartRateBpm)
	assert.Nil(t, res.Vitals.SpO2)
	assert.False(t, res.Vitals.OK)
	assert.Equal(t, ReasonNoData, res.Vitals.Reason)
	assert.Nil(t, res.Selection)
}

func TestSelectionSticky(t *testing.T) {
	e := newTestEstimator()
	base := time.Unix(3000, 0)

	strong := ppgWave(1000, 50, 1.2, 64, 8)
	weak := ppgWave(1000, 10, 1.2, 64, 8)

	res := e.Update(base, []ChannelWindow{
		{ID: 1, Label: "ir", Role: RoleIR, Samples: strong},
		{ID: 2, Label: "red", Role: RoleRed, Samples: weak},
	})
	require.NotNil(t, res.Selection)
	assert.Equal(t, 1, res.Selection.ChannelID)

	// Red briefly outperforms inside the debounce: selection must not flip.
	res = e.Update(base.Add(3*time.Second), []ChannelWindow{
		{ID: 1, Label: "ir", Role: RoleIR, Samples: weak},
		{ID: 2, Label: "red", Role: RoleRed, Samples: strong},
	})
	require.NotNil(t, res.Selection)
	assert.Equal(t, 1, res.Selection.ChannelID, "sticky inside debounce")

	// After the debounce interval the better channel takes over.
	res = e.Update(base.Add(11*time.Second), []ChannelWindow{
		{ID: 1, Label: "ir", Role: RoleIR, Samples: weak},
		{ID: 2, Label: "red", Role: RoleRed, Samples: strong},
	})
	require.NotNil(t, res.Selection)
	assert.Equal(t, 2, res.Selection.ChannelID)
	assert.Equal(t, base.Add(11*time.Second), res.Selection.SelectedAt)
}

func TestSelectionTakeoverWhenStale(t *testing.T) {
	e := newTestEstimator()
	base := time.Unix(3000, 0)

	strong := ppgWave(1000, 50, 1.2, 64, 8)
	e.Update(base, []ChannelWindow{
		{ID: 1, Label: "ir", Role: RoleIR, Samples: strong},
	})
	require.NotNil(t, e.Selection())
	require.Equal(t, 1, e.Selection().ChannelID)

	// The selected channel disappears: another takes over immediately, before
	// any debounce.
	res := e.Update(base.Add(time.Second), []ChannelWindow{
		{ID: 2, Label: "red", Role: RoleRed, Samples: strong},
	})
	require.NotNil(t, res.Selection)
	assert.Equal(t, 2, res.Selection.ChannelID)
}

func TestSpO2EMA(t *testing.T) {
	e := newTestEstimator()
	base := time.Unix(3000, 0)

	windows := func() []ChannelWindow {
		return []ChannelWindow{
			{ID: 1, Label: "ir", Role: RoleIR, Samples: ppgWave(1000, 50, 1.2, 64, 8)},
			{ID: 2, Label: "red", Role: RoleRed, Samples: ppgWave(800, 30, 1.2, 64, 8)},
		}
	}

	first := e.Update(base, windows())
	require.NotNil(t, first.Vitals.SpO2)

	// Identical input: the EMA converges, values stay equal.
	second := e.Update(base.Add(time.Second), windows())
	require.NotNil(t, second.Vitals.SpO2)
	assert.InDelta(t, *first.Vitals.SpO2, *second.Vitals.SpO2, 1e-9)

	// A NO_DATA tick resets the EMA.
	gap := e.Update(base.Add(2*time.Second), nil)
	assert.Equal(t, ReasonNoData, gap.Vitals.Reason)

	third := e.Update(base.Add(3*time.Second), windows())
	require.NotNil(t, third.Vitals.SpO2)
	assert.InDelta(t, *first.Vitals.SpO2, *third.Vitals.SpO2, 1e-9, "fresh EMA after reset")
}

func TestSpO2Clamped(t *testing.T) {
	e := newTestEstimator()

	// Red far stronger than IR pushes the linear model below 80; the clamp
	// holds.
	res := e.Update(time.Unix(3000, 0), []ChannelWindow{
		{ID: 1, Label: "ir", Role: RoleIR, Samples: ppgWave(1000, 20, 1.2, 64, 8)},
		{ID: 2, Label: "red", Role: RoleRed, Samples: ppgWave(1000, 100, 1.2, 64, 8)},
	})
	require.True(t, res.Vitals.OK)
	require.NotNil(t, res.Vitals.SpO2)
	assert.Equal(t, 80.0, *res.Vitals.SpO2)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "ambient", RoleAmbient.String())
	assert.Equal(t, "ir", RoleIR.String())
	assert.Equal(t, "red", RoleRed.String())
}
