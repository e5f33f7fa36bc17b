package main

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mtippett/meditrain-sub000/eeg"
	"github.com/mtippett/meditrain-sub000/pipeline"
)

// gzipResponseWriter wraps http.ResponseWriter to provide gzip compression
type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// gzipHandler wraps an http.HandlerFunc with gzip compression
func gzipHandler(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			fn(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Vary", "Accept-Encoding")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		gzipW := gzipResponseWriter{Writer: gz, ResponseWriter: w}
		fn(gzipW, r)
	}
}

// corsMiddleware adds CORS headers to all responses if enabled in config
func corsMiddleware(config *Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Server.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// APIHandler serves the computed pipeline outputs as JSON.
type APIHandler struct {
	processor *Processor
	config    *Config
}

// NewAPIHandler creates the JSON API handler.
func NewAPIHandler(processor *Processor, config *Config) *APIHandler {
	return &APIHandler{processor: processor, config: config}
}

// Register attaches all API routes to the mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/channels", gzipHandler(h.handleChannels))
	mux.HandleFunc("/api/periodogram", gzipHandler(h.handlePeriodogram))
	mux.HandleFunc("/api/bandpower", gzipHandler(h.handleBandPower))
	mux.HandleFunc("/api/spectrogram", gzipHandler(h.handleSpectrogram))
	mux.HandleFunc("/api/artifacts", gzipHandler(h.handleArtifacts))
	mux.HandleFunc("/api/vitals", gzipHandler(h.handleVitals))
	mux.HandleFunc("/api/telemetry", gzipHandler(h.handleTelemetry))
	mux.HandleFunc("/health", h.handleHealth)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("API: failed to encode response: %v", err)
	}
}

// snapshotOr503 returns the latest snapshot, answering 503 before the
// first tick has produced one.
func (h *APIHandler) snapshotOr503(w http.ResponseWriter) *pipeline.Snapshot {
	snap := h.processor.Snapshot()
	if snap == nil {
		http.Error(w, `{"error":"no data yet"}`, http.StatusServiceUnavailable)
		return nil
	}
	return snap
}

// eegChannel resolves the ?channel= query against a snapshot. Answers 400
// or 404 itself on failure.
func eegChannel(w http.ResponseWriter, r *http.Request, snap *pipeline.Snapshot) *pipeline.EEGChannelSnapshot {
	raw := r.URL.Query().Get("channel")
	if raw == "" {
		http.Error(w, `{"error":"missing channel parameter"}`, http.StatusBadRequest)
		return nil
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		// Fall back to label match
		for i := range snap.EEG {
			if strings.EqualFold(snap.EEG[i].Label, raw) {
				return &snap.EEG[i]
			}
		}
		http.Error(w, `{"error":"unknown channel"}`, http.StatusNotFound)
		return nil
	}
	for i := range snap.EEG {
		if snap.EEG[i].ID == id {
			return &snap.EEG[i]
		}
	}
	http.Error(w, `{"error":"unknown channel"}`, http.StatusNotFound)
	return nil
}

func (h *APIHandler) handleChannels(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeJSON(w, map[string]interface{}{
		"t":        snap.T,
		"channels": snap.Channels,
	})
}

func (h *APIHandler) handlePeriodogram(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshotOr503(w)
	if snap == nil {
		return
	}
	ch := eegChannel(w, r, snap)
	if ch == nil {
		return
	}
	writeJSON(w, map[string]interface{}{
		"t":           snap.T,
		"id":          ch.ID,
		"label":       ch.Label,
		"periodogram": ch.Periodogram,
	})
}

func (h *APIHandler) handleBandPower(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshotOr503(w)
	if snap == nil {
		return
	}

	type channelBands struct {
		ID        int                         `json:"id"`
		Label     string                      `json:"label"`
		BandPower eeg.BandPowerSnapshot       `json:"band_power"`
		Histories map[string]*eeg.BandHistory `json:"histories"`
	}
	channels := make([]channelBands, 0, len(snap.EEG))
	for _, ch := range snap.EEG {
		channels = append(channels, channelBands{ID: ch.ID, Label: ch.Label, BandPower: ch.BandPower, Histories: ch.Histories})
	}

	writeJSON(w, map[string]interface{}{
		"t":        snap.T,
		"bands":    bandTable(),
		"channels": channels,
		"groups":   snap.Groups,
	})
}

func (h *APIHandler) handleSpectrogram(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshotOr503(w)
	if snap == nil {
		return
	}
	ch := eegChannel(w, r, snap)
	if ch == nil {
		return
	}
	writeJSON(w, map[string]interface{}{
		"t":       snap.T,
		"id":      ch.ID,
		"label":   ch.Label,
		"slices":  ch.Spectrogram,
		"vmin":    snap.SpectrogramVMin,
		"vmax":    snap.SpectrogramVMax,
		"palette": eeg.Palette(),
	})
}

func (h *APIHandler) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshotOr503(w)
	if snap == nil {
		return
	}
	ch := eegChannel(w, r, snap)
	if ch == nil {
		return
	}
	writeJSON(w, map[string]interface{}{
		"t":       snap.T,
		"id":      ch.ID,
		"label":   ch.Label,
		"windows": ch.Artifacts,
		"latest":  ch.ArtifactLatest,
	})
}

func (h *APIHandler) handleVitals(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeJSON(w, map[string]interface{}{
		"t":          snap.T,
		"vitals":     snap.Vitals,
		"selection":  snap.Selection,
		"cardiogram": snap.Cardiogram,
		"combined":   snap.CombinedPPG,
	})
}

func (h *APIHandler) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	snap := h.snapshotOr503(w)
	if snap == nil {
		return
	}
	writeJSON(w, map[string]interface{}{
		"t":         snap.T,
		"telemetry": snap.Telemetry,
	})
}

func (h *APIHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(StartTime).Seconds(),
	}
	if snap := h.processor.Snapshot(); snap != nil {
		status["last_tick"] = snap.T
		status["channels"] = len(snap.Channels)
	}
	writeJSON(w, status)
}

// bandTable describes the fixed band layout for API consumers.
func bandTable() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, eeg.NumBands)
	for _, b := range eeg.AllBands {
		minHz, maxHz := b.Range()
		out = append(out, map[string]interface{}{
			"key":    b.Key(),
			"label":  b.Label(),
			"min_hz": minHz,
			"max_hz": maxHz,
		})
	}
	return out
}
