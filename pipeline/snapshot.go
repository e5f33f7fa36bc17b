package pipeline

import (
	"time"

	"github.com/mtippett/meditrain-sub000/eeg"
	"github.com/mtippett/meditrain-sub000/ppg"
)

// EEGChannelSnapshot is one channel's computed outputs at a tick.
type EEGChannelSnapshot struct {
	ID             int                         `json:"id"`
	Label          string                      `json:"label"`
	Periodogram    *eeg.Periodogram            `json:"periodogram,omitempty"`
	BandPower      eeg.BandPowerSnapshot       `json:"band_power"`
	Histories      map[string]*eeg.BandHistory `json:"histories"`
	Spectrogram    []eeg.SpectrogramSlice      `json:"spectrogram,omitempty"`
	Artifacts      []eeg.ArtifactWindow        `json:"artifacts,omitempty"`
	ArtifactLatest *eeg.ArtifactWindow         `json:"artifact_latest,omitempty"`
}

// GroupSnapshot is one synthetic aggregate channel's computed outputs.
type GroupSnapshot struct {
	Name      string                      `json:"name"`
	Members   []string                    `json:"members"`
	BandPower eeg.BandPowerSnapshot       `json:"band_power"`
	Histories map[string]*eeg.BandHistory `json:"histories"`
}

// Snapshot is the immutable per-tick view handed to consumers. Nothing in
// it aliases the engine's live buffers.
type Snapshot struct {
	T               time.Time            `json:"t"`
	Channels        []ChannelInfo        `json:"channels"`
	EEG             []EEGChannelSnapshot `json:"eeg"`
	Groups          []GroupSnapshot      `json:"groups"`
	SpectrogramVMin float64              `json:"spectrogram_vmin"`
	SpectrogramVMax float64              `json:"spectrogram_vmax"`
	Vitals          ppg.Vitals           `json:"vitals"`
	Selection       *ppg.Selection       `json:"selection,omitempty"`
	Cardiogram      []float64            `json:"cardiogram,omitempty"`
	CombinedPPG     []float64            `json:"combined_ppg,omitempty"`
	Telemetry       TelemetrySnapshot    `json:"telemetry"`
}

func (e *Engine) snapshot(now time.Time) *Snapshot {
	snap := &Snapshot{
		T:           now,
		Channels:    e.channelTable(),
		Vitals:      e.last.Vitals,
		Cardiogram:  append([]float64(nil), e.last.Cardiogram...),
		CombinedPPG: append([]float64(nil), e.last.Combined...),
		Telemetry:   e.telemetry.Snapshot(),
	}
	if e.last.Selection != nil {
		sel := *e.last.Selection
		snap.Selection = &sel
	}

	var allSlices []eeg.SpectrogramSlice
	for _, id := range e.eegOrder {
		ch := e.eegByID[id]
		cs := EEGChannelSnapshot{
			ID:        ch.id,
			Label:     ch.label,
			BandPower: ch.bands,
			Histories: cloneHistories(ch.histories),
		}
		if ch.averaged != nil {
			cs.Periodogram = ch.averaged.Clone()
		}
		cs.Spectrogram = ch.spec.Build(ch.buf.Samples(), e.cfg.EEGSampleRate, now, e.cfg.SpectrogramWindow, ch.slices)
		if len(ch.artifacts) > 0 {
			cs.Artifacts = append([]eeg.ArtifactWindow(nil), ch.artifacts...)
			latest := cs.Artifacts[len(cs.Artifacts)-1]
			cs.ArtifactLatest = &latest
		}
		allSlices = append(allSlices, cs.Spectrogram...)
		snap.EEG = append(snap.EEG, cs)
	}
	snap.SpectrogramVMin, snap.SpectrogramVMax = eeg.ColorDomain(allSlices)

	for _, name := range e.groupSeq {
		g := e.groups[name]
		if !g.hasBands {
			continue
		}
		labels := make([]string, 0, len(g.members))
		for _, id := range g.members {
			labels = append(labels, e.eegByID[id].label)
		}
		snap.Groups = append(snap.Groups, GroupSnapshot{
			Name:      g.name,
			Members:   labels,
			BandPower: g.bands,
			Histories: cloneHistories(g.histories),
		})
	}

	return snap
}

func (e *Engine) channelTable() []ChannelInfo {
	var out []ChannelInfo
	for _, id := range e.eegOrder {
		ch := e.eegByID[id]
		out = append(out, ChannelInfo{ID: ch.id, Label: ch.label, Kind: KindEEG})
	}
	for _, id := range e.ppgOrder {
		ch := e.ppgByID[id]
		out = append(out, ChannelInfo{ID: ch.id, Label: ch.label, Kind: KindPPG, Role: ch.role.String()})
	}
	return out
}

func cloneHistories(h [eeg.NumBands]*eeg.BandHistory) map[string]*eeg.BandHistory {
	out := make(map[string]*eeg.BandHistory, eeg.NumBands)
	for _, b := range eeg.AllBands {
		out[b.Key()] = h[b].Clone()
	}
	return out
}
