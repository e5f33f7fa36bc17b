package main

import (
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mtippett/meditrain-sub000/eeg"
	"github.com/mtippett/meditrain-sub000/pipeline"
)

// PrometheusMetrics holds all Prometheus metric collectors for pipeline
// outputs and system metrics
type PrometheusMetrics struct {
	// Band power metrics (with 'channel' and 'band' labels)
	bandPowerAbsolute *prometheus.GaugeVec // Absolute band power
	bandPowerRelative *prometheus.GaugeVec // Relative band power (0-1)
	bandPowerSmoothed *prometheus.GaugeVec // Smoothed relative band power

	// Vitals metrics
	heartRateBpm    prometheus.Gauge     // Latest heart rate estimate
	spo2Percent     prometheus.Gauge     // Latest smoothed SpO2 estimate
	perfusionIndex  *prometheus.GaugeVec // Perfusion index (by wavelength: ir, red)
	spo2Ratio       prometheus.Gauge     // Red/IR perfusion ratio
	vitalsAvailable prometheus.Gauge     // 1 when vitals pass all guards
	pulseQuality    prometheus.Gauge     // Selected pulse channel quality score

	// Artifact metrics (with 'channel' label)
	amplitudeArtifacts *prometheus.GaugeVec // Windows flagged for amplitude in last scan
	lineNoiseArtifacts *prometheus.GaugeVec // Windows flagged for line noise in last scan

	// Spectral metrics
	spectrogramSlices *prometheus.GaugeVec // Cached spectrogram slices per channel
	lastTick          prometheus.Gauge     // Unix timestamp of last processing tick

	// Ingest metrics
	ingestConnections      prometheus.Gauge       // Currently connected sensor bridges
	ingestConnectionsTotal prometheus.Counter     // Total sensor bridge connections
	ingestPacketsTotal     *prometheus.CounterVec // Packets received (by type)

	// Resource metrics
	goroutineCount   prometheus.Gauge // Current number of goroutines
	memoryAllocBytes prometheus.Gauge // Current memory allocated in bytes
	memoryHeapBytes  prometheus.Gauge // Current heap memory in bytes
	cpuPercent       prometheus.Gauge // Process host CPU utilization percent
	memUsedPercent   prometheus.Gauge // Host memory utilization percent

	stopChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	pm := &PrometheusMetrics{
		bandPowerAbsolute: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bandpower_absolute",
				Help: "Absolute band power integrated from the averaged periodogram",
			},
			[]string{"channel", "band"},
		),
		bandPowerRelative: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bandpower_relative",
				Help: "Relative band power (fraction of total in-band power)",
			},
			[]string{"channel", "band"},
		),
		bandPowerSmoothed: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bandpower_relative_smoothed",
				Help: "Moving-average smoothed relative band power",
			},
			[]string{"channel", "band"},
		),
		heartRateBpm: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vitals_heart_rate_bpm",
			Help: "Heart rate estimate in beats per minute (0 when unavailable)",
		}),
		spo2Percent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vitals_spo2_percent",
			Help: "Smoothed SpO2 estimate in percent (0 when unavailable)",
		}),
		perfusionIndex: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vitals_perfusion_index",
				Help: "Perfusion index per PPG wavelength",
			},
			[]string{"wavelength"},
		),
		spo2Ratio: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vitals_spo2_ratio",
			Help: "Red/IR perfusion ratio feeding the SpO2 model",
		}),
		vitalsAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vitals_available",
			Help: "1 when the vitals estimate passed all guard conditions",
		}),
		pulseQuality: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vitals_pulse_quality",
			Help: "AC amplitude quality score of the selected pulse channel",
		}),
		amplitudeArtifacts: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "artifact_amplitude_windows",
				Help: "Windows flagged for amplitude range in the last artifact scan",
			},
			[]string{"channel"},
		),
		lineNoiseArtifacts: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "artifact_line_noise_windows",
				Help: "Windows flagged for line noise in the last artifact scan",
			},
			[]string{"channel"},
		),
		spectrogramSlices: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spectrogram_slices",
				Help: "Spectrogram slices currently cached per channel",
			},
			[]string{"channel"},
		),
		lastTick: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pipeline_last_tick_timestamp",
			Help: "Unix timestamp of the last processing tick",
		}),
		ingestConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_connections",
			Help: "Currently connected sensor bridge WebSockets",
		}),
		ingestConnectionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "ingest_connections_total",
			Help: "Total sensor bridge WebSocket connections established",
		}),
		ingestPacketsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_packets_total",
				Help: "Total packets received by type",
			},
			[]string{"type"},
		),
		goroutineCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "process_goroutines",
			Help: "Current number of goroutines",
		}),
		memoryAllocBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "process_memory_alloc_bytes",
			Help: "Current memory allocated in bytes",
		}),
		memoryHeapBytes: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "process_memory_heap_bytes",
			Help: "Current heap memory in bytes",
		}),
		cpuPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "system_cpu_percent",
			Help: "Host CPU utilization percent",
		}),
		memUsedPercent: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "system_memory_used_percent",
			Help: "Host memory utilization percent",
		}),
		stopChan: make(chan struct{}),
	}

	return pm
}

// UpdateFromSnapshot pushes one tick's outputs into the gauges. Called once
// per processing tick.
func (pm *PrometheusMetrics) UpdateFromSnapshot(snap *pipeline.Snapshot) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, ch := range snap.EEG {
		for _, b := range eeg.AllBands {
			pm.bandPowerAbsolute.WithLabelValues(ch.Label, b.Key()).Set(ch.BandPower[b].Absolute)
			pm.bandPowerRelative.WithLabelValues(ch.Label, b.Key()).Set(ch.BandPower[b].Relative)
			if h := ch.Histories[b.Key()]; h != nil {
				pm.bandPowerSmoothed.WithLabelValues(ch.Label, b.Key()).Set(h.Smoothed)
			}
		}
		amp, line := 0, 0
		for _, win := range ch.Artifacts {
			if win.AmplitudeArtifact {
				amp++
			}
			if win.LineNoiseArtifact {
				line++
			}
		}
		pm.amplitudeArtifacts.WithLabelValues(ch.Label).Set(float64(amp))
		pm.lineNoiseArtifacts.WithLabelValues(ch.Label).Set(float64(line))
		pm.spectrogramSlices.WithLabelValues(ch.Label).Set(float64(len(ch.Spectrogram)))
	}
	for _, g := range snap.Groups {
		for _, b := range eeg.AllBands {
			pm.bandPowerAbsolute.WithLabelValues(g.Name, b.Key()).Set(g.BandPower[b].Absolute)
			pm.bandPowerRelative.WithLabelValues(g.Name, b.Key()).Set(g.BandPower[b].Relative)
			if h := g.Histories[b.Key()]; h != nil {
				pm.bandPowerSmoothed.WithLabelValues(g.Name, b.Key()).Set(h.Smoothed)
			}
		}
	}

	if snap.Vitals.HeartRateBpm != nil {
		pm.heartRateBpm.Set(float64(*snap.Vitals.HeartRateBpm))
	} else {
		pm.heartRateBpm.Set(0)
	}
	if snap.Vitals.SpO2 != nil {
		pm.spo2Percent.Set(*snap.Vitals.SpO2)
	} else {
		pm.spo2Percent.Set(0)
	}
	pm.perfusionIndex.WithLabelValues("ir").Set(snap.Vitals.PerfusionIR)
	pm.perfusionIndex.WithLabelValues("red").Set(snap.Vitals.PerfusionRed)
	pm.spo2Ratio.Set(snap.Vitals.Ratio)
	if snap.Vitals.OK {
		pm.vitalsAvailable.Set(1)
	} else {
		pm.vitalsAvailable.Set(0)
	}
	if snap.Selection != nil {
		pm.pulseQuality.Set(snap.Selection.Quality)
	} else {
		pm.pulseQuality.Set(0)
	}

	pm.lastTick.Set(float64(snap.T.Unix()))
}

// IngestConnected records a new sensor bridge connection
func (pm *PrometheusMetrics) IngestConnected() {
	pm.ingestConnections.Inc()
	pm.ingestConnectionsTotal.Inc()
}

// IngestDisconnected records a sensor bridge disconnect
func (pm *PrometheusMetrics) IngestDisconnected() {
	pm.ingestConnections.Dec()
}

// IngestPacket records one received packet
func (pm *PrometheusMetrics) IngestPacket(packetType string) {
	pm.ingestPacketsTotal.WithLabelValues(packetType).Inc()
}

// StartResourceMonitor begins periodic resource metric updates
func (pm *PrometheusMetrics) StartResourceMonitor() {
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		pm.updateResourceMetrics()
		for {
			select {
			case <-pm.stopChan:
				return
			case <-ticker.C:
				pm.updateResourceMetrics()
			}
		}
	}()
	log.Println("Prometheus: resource monitor started")
}

// StopResourceMonitor stops the periodic updates
func (pm *PrometheusMetrics) StopResourceMonitor() {
	close(pm.stopChan)
	pm.wg.Wait()
}

func (pm *PrometheusMetrics) updateResourceMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	pm.goroutineCount.Set(float64(runtime.NumGoroutine()))
	pm.memoryAllocBytes.Set(float64(m.Alloc))
	pm.memoryHeapBytes.Set(float64(m.HeapAlloc))

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		pm.cpuPercent.Set(percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		pm.memUsedPercent.Set(vm.UsedPercent)
	}
}
