package eeg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func artifactTestConfig() ArtifactConfig {
	return ArtifactConfig{
		WindowSec:          1,
		StepSec:            0.5,
		AmplitudeThreshold: 500,
		LineNoiseHz:        60,
		LineNoiseBandHz:    2,
		LineNoiseThreshold: 0.5,
		MaxHz:              50,
	}
}

func TestDetectArtifactsAmplitudeSpike(t *testing.T) {
	const fs = 256.0
	samples := make([]float64, 512)
	samples[400] = 1000 // spike in the final half second

	windows := DetectArtifacts(samples, fs, artifactTestConfig())
	require.Len(t, windows, 3) // [0,256) [128,384) [256,512)

	assert.False(t, windows[0].AmplitudeArtifact)
	assert.False(t, windows[1].AmplitudeArtifact)
	assert.True(t, windows[2].AmplitudeArtifact)
	assert.InDelta(t, 1000, windows[2].AmplitudeRange, 1e-9)
}

func TestDetectArtifactsLineNoise(t *testing.T) {
	const fs = 256.0
	cfg := artifactTestConfig()

	// 60 Hz interference sits above MaxHz=50 but must still be measured.
	noisy := make([]float64, 512)
	for i := range noisy {
		ts := float64(i) / fs
		noisy[i] = math.Sin(2*math.Pi*10*ts) + math.Sin(2*math.Pi*60*ts)
	}
	windows := DetectArtifacts(noisy, fs, cfg)
	require.NotEmpty(t, windows)
	for _, w := range windows {
		assert.True(t, w.LineNoiseArtifact, "60 Hz component flagged")
		assert.Greater(t, w.LineNoiseRatio, cfg.LineNoiseThreshold)
	}

	clean := sine(10, fs, 512)
	for _, w := range DetectArtifacts(clean, fs, cfg) {
		assert.False(t, w.LineNoiseArtifact)
		assert.Less(t, w.LineNoiseRatio, 0.1)
	}
}

func TestDetectArtifactsShortInput(t *testing.T) {
	cfg := artifactTestConfig()
	assert.Nil(t, DetectArtifacts(make([]float64, 100), 256, cfg))
	assert.Nil(t, DetectArtifacts(nil, 256, cfg))
}

func TestDetectArtifactsWindowGeometry(t *testing.T) {
	windows := DetectArtifacts(make([]float64, 640), 256, artifactTestConfig())
	require.Len(t, windows, 4)
	for i, w := range windows {
		assert.Equal(t, i*128, w.StartSample)
		assert.Equal(t, i*128+256, w.EndSample)
	}
}
