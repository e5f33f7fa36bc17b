package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mtippett/meditrain-sub000/eeg"
	"github.com/mtippett/meditrain-sub000/pipeline"
	"github.com/mtippett/meditrain-sub000/ppg"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Signal     SignalConfig     `yaml:"signal"`
	Artifact   ArtifactConfig   `yaml:"artifact"`
	Vitals     VitalsConfig     `yaml:"vitals"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Listen     string `yaml:"listen"`
	EnableCORS bool   `yaml:"enable_cors"`
}

// SignalConfig contains the spectral pipeline settings
type SignalConfig struct {
	EEGSampleRate        float64 `yaml:"eeg_sample_rate"`        // Hz (default: 256)
	PPGSampleRate        float64 `yaml:"ppg_sample_rate"`        // Hz (default: 64)
	FFTWindow            int     `yaml:"fft_window"`             // samples (default: 1024)
	NotchEnabled         bool    `yaml:"notch_enabled"`          // Enable mains notch filter (default: true via LoadConfig)
	NotchHz              float64 `yaml:"notch_hz"`               // Mains frequency (default: 60)
	MaxFrequencyHz       float64 `yaml:"max_frequency_hz"`       // Spectral ceiling (default: 50)
	AveragerDepth        int     `yaml:"averager_depth"`         // Periodograms per average (default: 4)
	HistoryWindowSec     float64 `yaml:"history_window_sec"`     // Band-power history window (default: 120)
	SmoothingWindowSec   float64 `yaml:"smoothing_window_sec"`   // Moving-average window (default: 10)
	SpectrogramWindowSec float64 `yaml:"spectrogram_window_sec"` // Spectrogram span (default: 300)
	TraceWindowSec       float64 `yaml:"trace_window_sec"`       // Artifact/raw trace window (default: 10)
	TickIntervalMs       int     `yaml:"tick_interval_ms"`       // Recomputation cadence (default: 1000)
	RepublishIntervalMs  int     `yaml:"republish_interval_ms"`  // Raw trace republish cadence (default: 200, max 200)
	TelemetryWindowSec   float64 `yaml:"telemetry_window_sec"`   // Device telemetry history window (default: 120)
}

// ArtifactConfig contains EEG artifact detector settings
type ArtifactConfig struct {
	WindowSec          float64 `yaml:"window_sec"`           // Scan window length (default: 1)
	StepSec            float64 `yaml:"step_sec"`             // Scan step (default: 0.5)
	AmplitudeThreshold float64 `yaml:"amplitude_threshold"`  // Peak-to-peak limit (default: 800)
	LineNoiseHz        float64 `yaml:"line_noise_hz"`        // Mains frequency (default: 60)
	LineNoiseBandHz    float64 `yaml:"line_noise_band_hz"`   // Band around mains counted as noise (default: 2)
	LineNoiseThreshold float64 `yaml:"line_noise_threshold"` // Noise power fraction limit (default: 0.3)
}

// VitalsConfig contains PPG vitals estimator settings
type VitalsConfig struct {
	WindowSec         float64  `yaml:"window_sec"`          // Analysis window (default: 8)
	MinPerfusionIndex float64  `yaml:"min_perfusion_index"` // PI floor (default: 0.005)
	SpO2Intercept     float64  `yaml:"spo2_intercept"`      // Linear model intercept (default: 110)
	SpO2Slope         float64  `yaml:"spo2_slope"`          // Linear model slope (default: 25)
	EMAAlpha          float64  `yaml:"ema_alpha"`           // SpO2 smoothing factor (default: 0.2)
	PulseDebounceMs   int      `yaml:"pulse_debounce_ms"`   // Channel selection debounce (default: 10000)
	MinPeakSpacingMs  int      `yaml:"min_peak_spacing_ms"` // Pulse peak spacing (default: 400)
	MinHeartRateBpm   int      `yaml:"min_heart_rate_bpm"`  // Lower plausibility bound (default: 35)
	MaxHeartRateBpm   int      `yaml:"max_heart_rate_bpm"`  // Upper plausibility bound (default: 220)
	ChannelRoles      []string `yaml:"channel_roles"`       // PPG index -> role (ambient/ir/red)
}

// PrometheusConfig contains metrics endpoint settings
type PrometheusConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig contains MQTT publishing settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Broker          string        `yaml:"broker"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	TopicPrefix     string        `yaml:"topic_prefix"`
	PublishInterval int           `yaml:"publish_interval"` // seconds
	TLS             MQTTTLSConfig `yaml:"tls"`
}

// MQTTTLSConfig contains TLS settings for the MQTT connection
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
}

// LoadConfig reads and validates the YAML configuration, applying defaults
// for anything unspecified. A missing file yields a fully defaulted config.
func LoadConfig(filename string) (*Config, error) {
	var config Config
	config.Signal.NotchEnabled = true

	data, err := os.ReadFile(filename)
	if err == nil {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Set defaults if not specified
	if config.Server.Listen == "" {
		config.Server.Listen = ":8880"
	}
	if config.Signal.EEGSampleRate == 0 {
		config.Signal.EEGSampleRate = 256
	}
	if config.Signal.PPGSampleRate == 0 {
		config.Signal.PPGSampleRate = 64
	}
	if config.Signal.FFTWindow == 0 {
		config.Signal.FFTWindow = 1024
	}
	if config.Signal.NotchHz == 0 {
		config.Signal.NotchHz = 60
	}
	if config.Signal.MaxFrequencyHz == 0 {
		config.Signal.MaxFrequencyHz = 50
	}
	if config.Signal.AveragerDepth == 0 {
		config.Signal.AveragerDepth = 4
	}
	if config.Signal.HistoryWindowSec == 0 {
		config.Signal.HistoryWindowSec = 120
	}
	if config.Signal.SmoothingWindowSec == 0 {
		config.Signal.SmoothingWindowSec = 10
	}
	if config.Signal.SpectrogramWindowSec == 0 {
		config.Signal.SpectrogramWindowSec = 300
	}
	if config.Signal.TraceWindowSec == 0 {
		config.Signal.TraceWindowSec = 10
	}
	if config.Signal.TickIntervalMs == 0 {
		config.Signal.TickIntervalMs = 1000
	}
	if config.Signal.RepublishIntervalMs == 0 || config.Signal.RepublishIntervalMs > 200 {
		config.Signal.RepublishIntervalMs = 200
	}
	if config.Signal.TelemetryWindowSec == 0 {
		config.Signal.TelemetryWindowSec = 120
	}
	if config.Artifact.WindowSec == 0 {
		config.Artifact.WindowSec = 1
	}
	if config.Artifact.StepSec == 0 {
		config.Artifact.StepSec = 0.5
	}
	if config.Artifact.AmplitudeThreshold == 0 {
		config.Artifact.AmplitudeThreshold = 800
	}
	if config.Artifact.LineNoiseHz == 0 {
		config.Artifact.LineNoiseHz = config.Signal.NotchHz
	}
	if config.Artifact.LineNoiseBandHz == 0 {
		config.Artifact.LineNoiseBandHz = 2
	}
	if config.Artifact.LineNoiseThreshold == 0 {
		config.Artifact.LineNoiseThreshold = 0.3
	}
	if config.Vitals.WindowSec == 0 {
		config.Vitals.WindowSec = 8
	}
	if config.Vitals.MinPerfusionIndex == 0 {
		config.Vitals.MinPerfusionIndex = 0.005
	}
	if config.Vitals.SpO2Intercept == 0 {
		config.Vitals.SpO2Intercept = 110
	}
	if config.Vitals.SpO2Slope == 0 {
		config.Vitals.SpO2Slope = 25
	}
	if config.Vitals.EMAAlpha == 0 {
		config.Vitals.EMAAlpha = 0.2
	}
	if config.Vitals.PulseDebounceMs == 0 {
		config.Vitals.PulseDebounceMs = 10000
	}
	if config.Vitals.MinPeakSpacingMs == 0 {
		config.Vitals.MinPeakSpacingMs = 400
	}
	if config.Vitals.MinHeartRateBpm == 0 {
		config.Vitals.MinHeartRateBpm = 35
	}
	if config.Vitals.MaxHeartRateBpm == 0 {
		config.Vitals.MaxHeartRateBpm = 220
	}
	if len(config.Vitals.ChannelRoles) == 0 {
		config.Vitals.ChannelRoles = []string{"ambient", "ir", "red"}
	}
	if config.MQTT.Enabled && config.MQTT.PublishInterval == 0 {
		config.MQTT.PublishInterval = 10
	}
	if config.MQTT.TopicPrefix == "" {
		config.MQTT.TopicPrefix = "meditrain"
	}

	return &config, nil
}

// Validate checks cross-field constraints that LoadConfig's defaults cannot
// repair.
func (c *Config) Validate() error {
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt enabled but no broker configured")
	}
	for _, role := range c.Vitals.ChannelRoles {
		switch role {
		case "ambient", "ir", "red":
		default:
			return fmt.Errorf("unknown PPG channel role %q (want ambient, ir or red)", role)
		}
	}
	return nil
}

// EngineConfig translates the YAML configuration into the processing core's
// config. Engine validation catches window/capacity mistakes.
func (c *Config) EngineConfig() pipeline.Config {
	notch := 0.0
	if c.Signal.NotchEnabled {
		notch = c.Signal.NotchHz
	}

	roles := make([]ppg.Role, len(c.Vitals.ChannelRoles))
	for i, name := range c.Vitals.ChannelRoles {
		switch name {
		case "ir":
			roles[i] = ppg.RoleIR
		case "red":
			roles[i] = ppg.RoleRed
		default:
			roles[i] = ppg.RoleAmbient
		}
	}

	return pipeline.Config{
		EEGSampleRate:     c.Signal.EEGSampleRate,
		PPGSampleRate:     c.Signal.PPGSampleRate,
		FFTWindow:         c.Signal.FFTWindow,
		NotchHz:           notch,
		MaxHz:             c.Signal.MaxFrequencyHz,
		AveragerDepth:     c.Signal.AveragerDepth,
		HistoryWindow:     secs(c.Signal.HistoryWindowSec),
		SmoothingWindow:   secs(c.Signal.SmoothingWindowSec),
		SpectrogramWindow: secs(c.Signal.SpectrogramWindowSec),
		TraceWindow:       secs(c.Signal.TraceWindowSec),
		TelemetryWindow:   secs(c.Signal.TelemetryWindowSec),
		Artifact: eeg.ArtifactConfig{
			WindowSec:          c.Artifact.WindowSec,
			StepSec:            c.Artifact.StepSec,
			AmplitudeThreshold: c.Artifact.AmplitudeThreshold,
			LineNoiseHz:        c.Artifact.LineNoiseHz,
			LineNoiseBandHz:    c.Artifact.LineNoiseBandHz,
			LineNoiseThreshold: c.Artifact.LineNoiseThreshold,
			MaxHz:              c.Signal.MaxFrequencyHz,
		},
		Vitals: ppg.Config{
			SampleRate:        c.Signal.PPGSampleRate,
			WindowSec:         c.Vitals.WindowSec,
			MinPI:             c.Vitals.MinPerfusionIndex,
			SpO2Intercept:     c.Vitals.SpO2Intercept,
			SpO2Slope:         c.Vitals.SpO2Slope,
			EMAAlpha:          c.Vitals.EMAAlpha,
			Debounce:          time.Duration(c.Vitals.PulseDebounceMs) * time.Millisecond,
			MinPeakSpacingSec: float64(c.Vitals.MinPeakSpacingMs) / 1000.0,
			MinBpm:            c.Vitals.MinHeartRateBpm,
			MaxBpm:            c.Vitals.MaxHeartRateBpm,
		},
		PPGRoles: roles,
	}
}

func secs(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
