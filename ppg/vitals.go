package ppg

import (
	"math"
	"time"

	"github.com/mtippett/meditrain-sub000/dsp"
)

// Reason enumerates why a vitals estimate is unavailable. These are data
// conditions, not errors; the caller renders a waiting state.
type Reason string

const (
	ReasonDCZero   Reason = "DC_ZERO"   // near-zero DC component
	ReasonACZero   Reason = "AC_ZERO"   // no measurable pulsatile amplitude
	ReasonPINaN    Reason = "PI_NAN"    // non-finite perfusion ratio
	ReasonPILow    Reason = "PI_LOW"    // perfusion below the minimum threshold
	ReasonNoSignal Reason = "NO_SIGNAL" // too few samples buffered
	ReasonNoData   Reason = "NO_DATA"   // required channel absent
)

// Role distinguishes the device's PPG channel assignments. The transport
// layer resolves the hardware variant to roles before packets reach the
// core.
type Role int

const (
	RoleAmbient Role = iota // ambient/DC reference, excluded from vitals
	RoleIR
	RoleRed
)

func (r Role) String() string {
	switch r {
	case RoleIR:
		return "ir"
	case RoleRed:
		return "red"
	default:
		return "ambient"
	}
}

// Config holds the vitals estimator's tunables. Zero values are replaced by
// defaults in NewEstimator.
type Config struct {
	SampleRate        float64       // PPG sample rate in Hz
	WindowSec         float64       // analysis window (default 8 s)
	DCLowpassHz       float64       // lowpass cutoff for the DC component (default 0.5)
	BandLowHz         float64       // AC passband low edge (default 0.5)
	BandHighHz        float64       // AC passband high edge (default 4)
	MinPI             float64       // minimum viable perfusion index (default 0.005)
	SpO2Intercept     float64       // linear model intercept (default 110)
	SpO2Slope         float64       // linear model slope (default 25)
	EMAAlpha          float64       // SpO2 smoothing factor (default 0.2)
	Debounce          time.Duration // pulse-selection debounce (default 10 s)
	MinPeakSpacingSec float64       // minimum inter-peak spacing (default 0.4)
	MinBpm            int           // default 35
	MaxBpm            int           // default 220
	CardiogramBeats   int           // beat segments kept for display (default 5)
}

func (c *Config) applyDefaults() {
	if c.WindowSec <= 0 {
		c.WindowSec = 8
	}
	if c.DCLowpassHz <= 0 {
		c.DCLowpassHz = 0.5
	}
	if c.BandLowHz <= 0 {
		c.BandLowHz = 0.5
	}
	if c.BandHighHz <= 0 {
		c.BandHighHz = 4
	}
	if c.MinPI <= 0 {
		c.MinPI = 0.005
	}
	if c.SpO2Intercept == 0 {
		c.SpO2Intercept = 110
	}
	if c.SpO2Slope == 0 {
		c.SpO2Slope = 25
	}
	if c.EMAAlpha <= 0 {
		c.EMAAlpha = 0.2
	}
	if c.Debounce <= 0 {
		c.Debounce = 10 * time.Second
	}
	if c.MinPeakSpacingSec <= 0 {
		c.MinPeakSpacingSec = 0.4
	}
	if c.MinBpm <= 0 {
		c.MinBpm = 35
	}
	if c.MaxBpm <= 0 {
		c.MaxBpm = 220
	}
	if c.CardiogramBeats <= 0 {
		c.CardiogramBeats = 5
	}
}

// Perfusion is the per-channel perfusion-index measurement with its guard
// outcome.
type Perfusion struct {
	PI     float64 `json:"pi"`
	AC     float64 `json:"ac"`
	DC     float64 `json:"dc"`
	OK     bool    `json:"ok"`
	Reason Reason  `json:"reason,omitempty"`
}

// ChannelWindow is the trailing analysis window of one PPG channel.
type ChannelWindow struct {
	ID      int
	Label   string
	Role    Role
	Samples []float64
}

// Selection is the currently favored PPG channel for heart-rate purposes.
type Selection struct {
	ChannelID  int       `json:"channel_id"`
	Label      string    `json:"label"`
	Quality    float64   `json:"quality"`
	SelectedAt time.Time `json:"selected_at"`
}

// Vitals is one tick's cardiovascular estimate. Nil pointers mean
// unavailable.
type Vitals struct {
	HeartRateBpm  *int     `json:"heart_rate_bpm"`
	SpO2          *float64 `json:"spo2"`
	SpO2Quadratic *float64 `json:"spo2_quadratic"`
	Ratio         float64  `json:"ratio"`
	PerfusionIR   float64  `json:"perfusion_index_ir"`
	PerfusionRed  float64  `json:"perfusion_index_red"`
	OK            bool     `json:"ok"`
	Reason        Reason   `json:"reason,omitempty"`
}

// Result bundles everything the estimator produces per tick.
type Result struct {
	Vitals     Vitals
	Selection  *Selection
	Cardiogram []float64
	Combined   []float64
}

// Estimator computes heart rate and SpO2 from PPG channel windows. The only
// cross-tick state is the SpO2 EMA and the sticky pulse-channel selection,
// both owned here so each Update is a pure function of (state, input).
type Estimator struct {
	cfg     Config
	emaSpO2 *float64
	sel     *Selection
}

// NewEstimator creates an estimator with defaults applied.
func NewEstimator(cfg Config) *Estimator {
	cfg.applyDefaults()
	return &Estimator{cfg: cfg}
}

// Selection returns the current sticky channel selection, or nil.
func (e *Estimator) Selection() *Selection {
	return e.sel
}

// WindowSamples is the analysis window length in samples.
func (e *Estimator) WindowSamples() int {
	return int(e.cfg.WindowSec * e.cfg.SampleRate)
}

// Reset drops all cross-tick state. Used on sensor disconnect.
func (e *Estimator) Reset() {
	e.emaSpO2 = nil
	e.sel = nil
}

// ComputePerfusion measures the perfusion index of one channel window:
// AC amplitude of the band-passed detrended signal over the absolute mean of
// the low-passed signal. Each guard yields its own reason so callers can
// distinguish sensor-off from low-quality contact.
func (e *Estimator) ComputePerfusion(samples []float64) Perfusion {
	fs := e.cfg.SampleRate
	if float64(len(samples)) < fs*3 {
		return Perfusion{Reason: ReasonNoSignal}
	}

	dcMean := math.Abs(dsp.Mean(dsp.LowPass4(samples, e.cfg.DCLowpassHz, fs)))
	if dcMean <= 1e-9 {
		return Perfusion{Reason: ReasonDCZero}
	}

	ac := dsp.PercentileAmplitude(dsp.BandPass(dsp.Detrend(samples), e.cfg.BandLowHz, e.cfg.BandHighHz, fs))
	if ac <= 0 {
		return Perfusion{AC: ac, DC: dcMean, Reason: ReasonACZero}
	}

	pi := ac / dcMean
	if math.IsNaN(pi) || math.IsInf(pi, 0) {
		return Perfusion{AC: ac, DC: dcMean, Reason: ReasonPINaN}
	}
	if pi <= e.cfg.MinPI {
		return Perfusion{PI: pi, AC: ac, DC: dcMean, Reason: ReasonPILow}
	}

	return Perfusion{PI: pi, AC: ac, DC: dcMean, OK: true}
}

type scoredChannel struct {
	ch      ChannelWindow
	band    []float64
	quality float64
}

// Update recomputes vitals from the supplied channel windows. Ambient
// channels are excluded from quality scoring, heart rate, and the combined
// waveform.
func (e *Estimator) Update(now time.Time, channels []ChannelWindow) Result {
	fs := e.cfg.SampleRate

	// Band-pass every eligible channel once; quality is the AC amplitude of
	// the result.
	var eligible []scoredChannel
	for _, ch := range channels {
		if ch.Role == RoleAmbient || len(ch.Samples) == 0 {
			continue
		}
		band := dsp.BandPass(dsp.Detrend(ch.Samples), e.cfg.BandLowHz, e.cfg.BandHighHz, fs)
		eligible = append(eligible, scoredChannel{
			ch:      ch,
			band:    band,
			quality: dsp.PercentileAmplitude(band),
		})
	}

	e.updateSelection(now, eligible)

	res := Result{Selection: e.sel}

	// Heart rate from the selected channel's band-passed window, or from the
	// combined signal when nothing is selected.
	var hrSource []float64
	if e.sel != nil {
		for _, s := range eligible {
			if s.ch.ID == e.sel.ChannelID {
				hrSource = s.band
				break
			}
		}
	}
	var raws [][]float64
	for _, s := range eligible {
		raws = append(raws, s.ch.Samples)
	}
	res.Combined = CombinedWaveform(raws)
	if hrSource == nil && res.Combined != nil {
		hrSource = dsp.BandPass(dsp.Detrend(res.Combined), e.cfg.BandLowHz, e.cfg.BandHighHz, fs)
	}

	if hrSource != nil {
		peaks := DetectPeaks(hrSource, fs, e.cfg.MinPeakSpacingSec)
		res.Vitals.HeartRateBpm = HeartRate(peaks, fs, e.cfg.MinBpm, e.cfg.MaxBpm)
		res.Cardiogram = Cardiogram(hrSource, peaks, e.cfg.CardiogramBeats)
	}

	e.updateSpO2(channels, &res.Vitals)

	return res
}

// updateSelection applies the sticky pulse-channel selection: once chosen, a
// channel is only displaced when it has gone stale (no buffered samples) or
// the debounce interval has elapsed since the last change. Momentary quality
// wins by another channel inside the debounce do not flip the selection.
func (e *Estimator) updateSelection(now time.Time, eligible []scoredChannel) {
	if len(eligible) == 0 {
		e.sel = nil
		return
	}

	best := eligible[0]
	for _, s := range eligible[1:] {
		if s.quality > best.quality {
			best = s
		}
	}

	if e.sel == nil {
		e.sel = &Selection{ChannelID: best.ch.ID, Label: best.ch.Label, Quality: best.quality, SelectedAt: now}
		return
	}

	// Is the previous selection still alive this tick?
	var current *scoredChannel
	for i := range eligible {
		if eligible[i].ch.ID == e.sel.ChannelID {
			current = &eligible[i]
			break
		}
	}

	if current != nil {
		e.sel.Quality = current.quality
	}

	if best.ch.ID == e.sel.ChannelID {
		return
	}

	stale := current == nil
	debounced := now.Sub(e.sel.SelectedAt) >= e.cfg.Debounce
	if stale || debounced {
		e.sel = &Selection{ChannelID: best.ch.ID, Label: best.ch.Label, Quality: best.quality, SelectedAt: now}
	}
}

// updateSpO2 computes the ratio-of-ratios estimate from the IR and red
// channels, smoothing the linear model with a persistent EMA. The EMA resets
// whenever no usable channel data exists so a reconnect starts fresh.
func (e *Estimator) updateSpO2(channels []ChannelWindow, v *Vitals) {
	var ir, red *ChannelWindow
	for i := range channels {
		switch channels[i].Role {
		case RoleIR:
			ir = &channels[i]
		case RoleRed:
			red = &channels[i]
		}
	}
	if ir == nil || red == nil || len(ir.Samples) == 0 || len(red.Samples) == 0 {
		v.Reason = ReasonNoData
		e.emaSpO2 = nil
		return
	}

	pIR := e.ComputePerfusion(ir.Samples)
	pRed := e.ComputePerfusion(red.Samples)
	v.PerfusionIR = pIR.PI
	v.PerfusionRed = pRed.PI

	if !pIR.OK || !pRed.OK {
		reason := pIR.Reason
		if pIR.OK {
			reason = pRed.Reason
		}
		v.Reason = reason
		if reason == ReasonNoSignal {
			e.emaSpO2 = nil
		}
		if pIR.PI > 0 {
			v.Ratio = pRed.PI / pIR.PI
		}
		return
	}

	ratio := pRed.PI / pIR.PI
	v.Ratio = ratio
	v.OK = true

	linear := clamp(e.cfg.SpO2Intercept-e.cfg.SpO2Slope*ratio, 80, 100)
	quadratic := clamp(-45.06*ratio*ratio+30.354*ratio+94.845, 80, 100)
	v.SpO2Quadratic = &quadratic

	smoothed := linear
	if e.emaSpO2 != nil {
		smoothed = e.cfg.EMAAlpha*linear + (1-e.cfg.EMAAlpha)*(*e.emaSpO2)
	}
	e.emaSpO2 = &smoothed
	v.SpO2 = &smoothed
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
