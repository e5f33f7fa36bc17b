package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8880", config.Server.Listen)
	assert.Equal(t, 256.0, config.Signal.EEGSampleRate)
	assert.Equal(t, 1024, config.Signal.FFTWindow)
	assert.True(t, config.Signal.NotchEnabled)
	assert.Equal(t, 60.0, config.Signal.NotchHz)
	assert.Equal(t, 200, config.Signal.RepublishIntervalMs)
	assert.Equal(t, []string{"ambient", "ir", "red"}, config.Vitals.ChannelRoles)
	assert.Equal(t, "meditrain", config.MQTT.TopicPrefix)
	require.NoError(t, config.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  listen: ":9000"
signal:
  notch_enabled: false
  fft_window: 2048
  republish_interval_ms: 500
vitals:
  spo2_intercept: 104
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", config.Server.Listen)
	assert.False(t, config.Signal.NotchEnabled)
	assert.Equal(t, 2048, config.Signal.FFTWindow)
	assert.Equal(t, 200, config.Signal.RepublishIntervalMs, "republish cadence capped")
	assert.Equal(t, 104.0, config.Vitals.SpO2Intercept)

	// Disabled notch translates to a zero notch frequency for the core.
	assert.Equal(t, 0.0, config.EngineConfig().NotchHz)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	config.MQTT.Enabled = true
	assert.Error(t, config.Validate(), "mqtt without broker")

	config.MQTT.Enabled = false
	config.Vitals.ChannelRoles = []string{"ambient", "green"}
	assert.Error(t, config.Validate(), "unknown channel role")
}
