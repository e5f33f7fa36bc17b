package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryTrimsWindow(t *testing.T) {
	tel := newTelemetry(60 * time.Second)
	base := time.Unix(7000, 0)

	for i := 0; i < 10; i++ {
		tel.Record(base.Add(time.Duration(i)*10*time.Second), TelemetryReading{Battery: f64(float64(100 - i))})
	}

	snap := tel.Snapshot()
	require.NotEmpty(t, snap.Battery)
	latest := snap.Battery[len(snap.Battery)-1].T
	for _, p := range snap.Battery {
		assert.False(t, p.T.Before(latest.Add(-60*time.Second)))
	}
	assert.Equal(t, 91.0, snap.Battery[len(snap.Battery)-1].V)
}

func TestTelemetryDropsOutOfOrder(t *testing.T) {
	tel := newTelemetry(time.Hour)
	base := time.Unix(7000, 0)

	tel.Record(base.Add(10*time.Second), TelemetryReading{Battery: f64(90)})
	tel.Record(base, TelemetryReading{Battery: f64(95)}) // stale, dropped

	snap := tel.Snapshot()
	require.Len(t, snap.Battery, 1)
	assert.Equal(t, 90.0, snap.Battery[0].V)
}

func TestTelemetryMotion(t *testing.T) {
	tel := newTelemetry(time.Hour)
	now := time.Unix(7000, 0)

	tel.RecordMotion(now, MotionReading{Accel: &[3]float64{1, 2, 3}, Gyro: &[3]float64{4, 5, 6}})
	tel.RecordMotion(now.Add(time.Second), MotionReading{Gyro: &[3]float64{7, 8, 9}})

	snap := tel.Snapshot()
	require.Len(t, snap.Accel, 1)
	require.Len(t, snap.Gyro, 2)
	assert.Equal(t, 3.0, snap.Accel[0].Z)
	assert.Equal(t, 7.0, snap.Gyro[1].X)

	// Snapshot copies: mutating the copy must not touch the history.
	snap.Gyro[0].X = 99
	assert.Equal(t, 4.0, tel.Snapshot().Gyro[0].X)
}
