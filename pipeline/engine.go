package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mtippett/meditrain-sub000/dsp"
	"github.com/mtippett/meditrain-sub000/eeg"
	"github.com/mtippett/meditrain-sub000/ppg"
)

// PacketType discriminates ingest packets.
type PacketType string

const (
	PacketEEG        PacketType = "eeg"
	PacketPPG        PacketType = "ppg"
	PacketTelemetry  PacketType = "telemetry"
	PacketMotion     PacketType = "motion"
	PacketChannelMap PacketType = "channels"
)

// Packet is one unit of ingested data. The transport layer fills the fields
// relevant to the packet type and stamps arrival time.
type Packet struct {
	Type       PacketType
	Timestamp  time.Time
	Electrode  int
	PPGChannel int
	Label      string
	Samples    []float64
	Labels     []string // channel-map packet
	Telemetry  *TelemetryReading
	Motion     *MotionReading
}

// SignalKind distinguishes channel classes in the channel table.
type SignalKind string

const (
	KindEEG SignalKind = "eeg"
	KindPPG SignalKind = "ppg"
)

// ChannelInfo is one row of the session's channel table.
type ChannelInfo struct {
	ID    int        `json:"id"`
	Label string     `json:"label"`
	Kind  SignalKind `json:"kind"`
	Role  string     `json:"role,omitempty"`
}

// Config holds the engine's tunables. Zero values take defaults.
type Config struct {
	EEGSampleRate     float64 // default 256
	PPGSampleRate     float64 // default 64
	FFTWindow         int     // periodogram frame length, default 1024
	NotchHz           float64 // 0 disables the notch
	MaxHz             float64 // spectral ceiling, default 50
	AveragerDepth     int     // default 4
	HistoryWindow     time.Duration
	SmoothingWindow   time.Duration
	SpectrogramWindow time.Duration
	TraceWindow       time.Duration // artifact scan window
	TelemetryWindow   time.Duration
	Artifact          eeg.ArtifactConfig
	Vitals            ppg.Config
	PPGRoles          []ppg.Role // role per PPG channel index
}

func (c *Config) applyDefaults() {
	if c.EEGSampleRate <= 0 {
		c.EEGSampleRate = 256
	}
	if c.PPGSampleRate <= 0 {
		c.PPGSampleRate = 64
	}
	if c.FFTWindow <= 0 {
		c.FFTWindow = 1024
	}
	if c.MaxHz <= 0 {
		c.MaxHz = 50
	}
	if c.AveragerDepth <= 0 {
		c.AveragerDepth = eeg.DefaultAveragerDepth
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 120 * time.Second
	}
	if c.SmoothingWindow <= 0 {
		c.SmoothingWindow = 10 * time.Second
	}
	if c.SpectrogramWindow <= 0 {
		c.SpectrogramWindow = 300 * time.Second
	}
	if c.TraceWindow <= 0 {
		c.TraceWindow = 10 * time.Second
	}
	if c.TelemetryWindow <= 0 {
		c.TelemetryWindow = 120 * time.Second
	}
	if c.Artifact.WindowSec <= 0 {
		c.Artifact.WindowSec = 1
	}
	if c.Artifact.StepSec <= 0 {
		c.Artifact.StepSec = 0.5
	}
	if c.Artifact.AmplitudeThreshold <= 0 {
		c.Artifact.AmplitudeThreshold = 800
	}
	if c.Artifact.LineNoiseHz <= 0 {
		c.Artifact.LineNoiseHz = 60
	}
	if c.Artifact.LineNoiseBandHz <= 0 {
		c.Artifact.LineNoiseBandHz = 2
	}
	if c.Artifact.LineNoiseThreshold <= 0 {
		c.Artifact.LineNoiseThreshold = 0.3
	}
	if c.Artifact.MaxHz <= 0 {
		c.Artifact.MaxHz = c.MaxHz
	}
	c.Vitals.SampleRate = c.PPGSampleRate
	if len(c.PPGRoles) == 0 {
		c.PPGRoles = []ppg.Role{ppg.RoleAmbient, ppg.RoleIR, ppg.RoleRed}
	}
}

// Validate rejects configurations that would starve the pipeline. A buffer
// sized below its largest consumer is a configuration error, not a runtime
// condition.
func (c *Config) Validate() error {
	if c.FFTWindow < 256 {
		return fmt.Errorf("fft window %d too short for spectral estimation (minimum 256)", c.FFTWindow)
	}
	if c.MaxHz > c.EEGSampleRate/2 {
		return fmt.Errorf("max frequency %.1f Hz exceeds EEG Nyquist %.1f Hz", c.MaxHz, c.EEGSampleRate/2)
	}
	if c.Artifact.LineNoiseHz > c.EEGSampleRate/2 {
		return fmt.Errorf("line-noise frequency %.1f Hz exceeds EEG Nyquist %.1f Hz", c.Artifact.LineNoiseHz, c.EEGSampleRate/2)
	}
	if c.SpectrogramWindow < 2*time.Duration(float64(c.FFTWindow)/c.EEGSampleRate*float64(time.Second)) {
		return fmt.Errorf("spectrogram window %s shorter than two FFT frames", c.SpectrogramWindow)
	}
	return nil
}

type eegChannel struct {
	id        int
	label     string
	buf       *eeg.SampleBuffer
	avg       *eeg.Averager
	spec      *eeg.SpectrogramBuilder
	pending   int // raw samples appended since last periodogram
	averaged  *eeg.Periodogram
	bands     eeg.BandPowerSnapshot
	lastSig   [eeg.NumBands]float64
	hasSig    bool
	changed   bool // signature moved this tick
	histories [eeg.NumBands]*eeg.BandHistory
	slices    []eeg.SpectrogramSlice // per-tick periodogram slices, dB, ≤ window
	artifacts []eeg.ArtifactWindow
}

type ppgChannel struct {
	id    int
	label string
	role  ppg.Role
	buf   *eeg.SampleBuffer
}

type channelGroup struct {
	name      string
	members   []int
	bands     eeg.BandPowerSnapshot
	hasBands  bool
	histories [eeg.NumBands]*eeg.BandHistory
}

// Engine is the processing core. It exposes exactly two entry points,
// Ingest and Tick, and owns every per-channel buffer and all cross-tick
// state. It is not safe for concurrent use; the daemon serializes both
// entry points through a single goroutine.
type Engine struct {
	cfg       Config
	eegCap    int
	ppgCap    int
	eegByID   map[int]*eegChannel
	eegOrder  []int
	ppgByID   map[int]*ppgChannel
	ppgOrder  []int
	groups    map[string]*channelGroup
	groupSeq  []string
	vitals    *ppg.Estimator
	telemetry *Telemetry
	last      ppg.Result
}

// NewEngine validates the configuration and builds an empty engine;
// channels appear as packets arrive.
func NewEngine(cfg Config) (*Engine, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	est := ppg.NewEstimator(cfg.Vitals)

	eegCap := 2 * cfg.FFTWindow
	if n := int(cfg.SpectrogramWindow.Seconds() * cfg.EEGSampleRate); n > eegCap {
		eegCap = n
	}
	if n := int(cfg.TraceWindow.Seconds() * cfg.EEGSampleRate); n > eegCap {
		eegCap = n
	}
	ppgCap := 2 * est.WindowSamples()
	if n := int(cfg.TraceWindow.Seconds() * cfg.PPGSampleRate); n > ppgCap {
		ppgCap = n
	}

	return &Engine{
		cfg:       cfg,
		eegCap:    eegCap,
		ppgCap:    ppgCap,
		eegByID:   make(map[int]*eegChannel),
		ppgByID:   make(map[int]*ppgChannel),
		groups:    make(map[string]*channelGroup),
		vitals:    est,
		telemetry: newTelemetry(cfg.TelemetryWindow),
	}, nil
}

// Ingest appends one packet's data to the owning buffer. It never blocks
// and never fails; malformed packets are dropped.
func (e *Engine) Ingest(p Packet) {
	switch p.Type {
	case PacketChannelMap:
		e.applyChannelMap(p.Labels)
	case PacketEEG:
		if len(p.Samples) == 0 {
			return
		}
		ch := e.eegChannel(p.Electrode)
		ch.buf.Append(p.Samples)
		ch.pending += len(p.Samples)
	case PacketPPG:
		if len(p.Samples) == 0 {
			return
		}
		e.ppgChannel(p.PPGChannel, p.Label).buf.Append(p.Samples)
	case PacketTelemetry:
		if p.Telemetry != nil {
			e.telemetry.Record(p.Timestamp, *p.Telemetry)
		}
	case PacketMotion:
		if p.Motion != nil {
			e.telemetry.RecordMotion(p.Timestamp, *p.Motion)
		}
	}
}

// Disconnect clears all sample buffers and estimator state while keeping
// the channel table and accumulated histories. Called when the sensor
// drops.
func (e *Engine) Disconnect() {
	for _, ch := range e.eegByID {
		ch.buf.Clear()
		ch.avg.Reset()
		ch.pending = 0
		ch.averaged = nil
	}
	for _, ch := range e.ppgByID {
		ch.buf.Clear()
	}
	e.vitals.Reset()
	e.last = ppg.Result{}
}

// Tick runs one recomputation pass over everything currently buffered and
// returns an immutable snapshot. All stages are synchronous transforms;
// a tick holds no partial state that would need rolling back.
func (e *Engine) Tick(now time.Time) *Snapshot {
	anyChanged := false
	for _, id := range e.eegOrder {
		if e.tickEEG(e.eegByID[id], now) {
			anyChanged = true
		}
	}
	if anyChanged {
		e.tickGroups(now)
	}
	e.last = e.vitals.Update(now, e.ppgWindows())
	return e.snapshot(now)
}

// tickEEG recomputes one channel's spectral outputs. Reports whether the
// channel's band-power signature moved.
func (e *Engine) tickEEG(ch *eegChannel, now time.Time) bool {
	ch.changed = false

	if ch.pending > 0 && ch.buf.Len() >= e.cfg.FFTWindow {
		frame := ch.buf.Tail(e.cfg.FFTWindow)
		p := eeg.ComputePeriodogram(frame, e.cfg.EEGSampleRate, e.cfg.NotchHz, e.cfg.MaxHz)
		if p != nil {
			ch.pending = 0
			ch.avg.Add(p)
			ch.averaged = ch.avg.Average()
			ch.slices = trimSlices(append(ch.slices, eeg.SpectrogramSlice{
				Freqs: p.Freqs,
				DB:    dsp.ToDB(p.PSD, 1e-12),
				T:     now,
			}), now.Add(-e.cfg.SpectrogramWindow))

			bands := eeg.IntegrateBands(ch.averaged)
			sig := bands.Signature()
			if !ch.hasSig || sig != ch.lastSig {
				ch.bands = bands
				ch.lastSig = sig
				ch.hasSig = true
				ch.changed = true
				for _, b := range eeg.AllBands {
					ch.histories[b].Append(now, bands[b].Relative, e.cfg.HistoryWindow, e.cfg.SmoothingWindow)
				}
			}
		}
	}

	// Artifacts are cheap enough to recompute whole each tick.
	traceN := int(e.cfg.TraceWindow.Seconds() * e.cfg.EEGSampleRate)
	if ch.buf.Len() < traceN {
		traceN = ch.buf.Len()
	}
	if traceN > 0 {
		ch.artifacts = eeg.DetectArtifacts(ch.buf.Tail(traceN), e.cfg.EEGSampleRate, e.cfg.Artifact)
	}

	return ch.changed
}

// tickGroups rebuilds every aggregate whose members have a signature
// change, summing absolute power across members before re-deriving the
// relative fractions.
func (e *Engine) tickGroups(now time.Time) {
	for _, name := range e.groupSeq {
		g := e.groups[name]
		changed := false
		members := make([]eeg.BandPowerSnapshot, 0, len(g.members))
		for _, id := range g.members {
			ch := e.eegByID[id]
			if !ch.hasSig {
				continue
			}
			members = append(members, ch.bands)
			if ch.changed {
				changed = true
			}
		}
		if !changed || len(members) == 0 {
			continue
		}
		g.bands = eeg.AggregateSnapshots(members)
		g.hasBands = true
		for _, b := range eeg.AllBands {
			g.histories[b].Append(now, g.bands[b].Relative, e.cfg.HistoryWindow, e.cfg.SmoothingWindow)
		}
	}
}

func (e *Engine) ppgWindows() []ppg.ChannelWindow {
	win := e.vitals.WindowSamples()
	var out []ppg.ChannelWindow
	for _, id := range e.ppgOrder {
		ch := e.ppgByID[id]
		var samples []float64
		if ch.buf.Len() >= win {
			samples = ch.buf.Tail(win)
		} else {
			samples = ch.buf.Samples()
		}
		out = append(out, ppg.ChannelWindow{ID: ch.id, Label: ch.label, Role: ch.role, Samples: samples})
	}
	return out
}

func (e *Engine) eegChannel(id int) *eegChannel {
	if ch, ok := e.eegByID[id]; ok {
		return ch
	}
	ch := &eegChannel{
		id:    id,
		label: fmt.Sprintf("ch%d", id),
		buf:   eeg.NewSampleBuffer(e.eegCap),
		avg:   eeg.NewAverager(e.cfg.AveragerDepth),
		spec:  eeg.NewSpectrogramBuilder(e.cfg.MaxHz),
	}
	for _, b := range eeg.AllBands {
		ch.histories[b] = &eeg.BandHistory{}
	}
	e.eegByID[id] = ch
	e.eegOrder = append(e.eegOrder, id)
	sort.Ints(e.eegOrder)
	e.rebuildGroups()
	return ch
}

func (e *Engine) ppgChannel(id int, label string) *ppgChannel {
	if ch, ok := e.ppgByID[id]; ok {
		if label != "" {
			ch.label = label
		}
		return ch
	}
	role := ppg.RoleAmbient
	if id >= 0 && id < len(e.cfg.PPGRoles) {
		role = e.cfg.PPGRoles[id]
	}
	if label == "" {
		label = role.String()
	}
	ch := &ppgChannel{id: id, label: label, role: role, buf: eeg.NewSampleBuffer(e.ppgCap)}
	e.ppgByID[id] = ch
	e.ppgOrder = append(e.ppgOrder, id)
	sort.Ints(e.ppgOrder)
	return ch
}

// applyChannelMap binds electrode indices to the device-reported labels.
// Indices are stable for the session; labels drive hemisphere and site
// grouping.
func (e *Engine) applyChannelMap(labels []string) {
	for i, label := range labels {
		if label == "" {
			continue
		}
		e.eegChannel(i).label = label
	}
	e.rebuildGroups()
}

// rebuildGroups derives the aggregate channel groups from the current
// labels: all channels, each hemisphere, and each electrode site prefix
// with at least two members. Existing group histories survive a rebuild
// when the group keeps its name.
func (e *Engine) rebuildGroups() {
	order := []string{"all"}
	members := map[string][]int{"all": append([]int(nil), e.eegOrder...)}

	addTo := func(name string, id int) {
		if _, ok := members[name]; !ok {
			order = append(order, name)
		}
		members[name] = append(members[name], id)
	}

	var prefixes []string
	seen := map[string]bool{}
	for _, id := range e.eegOrder {
		label := e.eegByID[id].label
		switch hemisphere(label) {
		case "left":
			addTo("left", id)
		case "right":
			addTo("right", id)
		}
		if p := sitePrefix(label); p != "" && !seen[p] {
			seen[p] = true
			prefixes = append(prefixes, p)
		}
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		for _, id := range e.eegOrder {
			if sitePrefix(e.eegByID[id].label) == p {
				addTo(p, id)
			}
		}
		if len(members[p]) < 2 {
			delete(members, p)
			order = order[:len(order)-1]
		}
	}

	groups := make(map[string]*channelGroup, len(order))
	for _, name := range order {
		if old, ok := e.groups[name]; ok {
			old.members = members[name]
			groups[name] = old
			continue
		}
		g := &channelGroup{name: name, members: members[name]}
		for _, b := range eeg.AllBands {
			g.histories[b] = &eeg.BandHistory{}
		}
		groups[name] = g
	}
	e.groups = groups
	e.groupSeq = order
}

// hemisphere infers laterality from an electrode label per the 10-20
// convention: odd trailing digits are left, even are right, z is midline.
func hemisphere(label string) string {
	s := strings.TrimSpace(label)
	if s == "" {
		return ""
	}
	switch last := s[len(s)-1]; {
	case last == 'z' || last == 'Z':
		return "midline"
	case last >= '0' && last <= '9':
		if (last-'0')%2 == 1 {
			return "left"
		}
		return "right"
	case last == 'l' || last == 'L':
		return "left"
	case last == 'r' || last == 'R':
		return "right"
	}
	return ""
}

// sitePrefix returns the leading letters of an electrode label ("TP9" →
// "TP"), empty when the label has no letter prefix.
func sitePrefix(label string) string {
	s := strings.TrimSpace(label)
	i := 0
	for i < len(s) {
		c := s[i]
		if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			i++
			continue
		}
		break
	}
	if i == 0 || i == len(s) {
		return ""
	}
	return strings.ToUpper(s[:i])
}

func trimSlices(slices []eeg.SpectrogramSlice, cutoff time.Time) []eeg.SpectrogramSlice {
	i := 0
	for i < len(slices) && slices[i].T.Before(cutoff) {
		i++
	}
	return slices[i:]
}
