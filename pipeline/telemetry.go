package pipeline

import "time"

// TelemetryPoint is one timestamped scalar reading (battery %, temperature).
type TelemetryPoint struct {
	T time.Time `json:"t"`
	V float64   `json:"v"`
}

// MotionPoint is one timestamped three-axis reading.
type MotionPoint struct {
	T time.Time `json:"t"`
	X float64   `json:"x"`
	Y float64   `json:"y"`
	Z float64   `json:"z"`
}

// TelemetryReading is the payload of a telemetry packet.
type TelemetryReading struct {
	Battery     *float64 `json:"battery,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// MotionReading is the payload of a motion packet. Either sensor may be
// absent in a given packet.
type MotionReading struct {
	Accel *[3]float64 `json:"accel,omitempty"`
	Gyro  *[3]float64 `json:"gyro,omitempty"`
}

// Telemetry keeps rolling device-health histories with the same
// front-trimmed window discipline as the band-power histories.
type Telemetry struct {
	window      time.Duration
	battery     []TelemetryPoint
	temperature []TelemetryPoint
	accel       []MotionPoint
	gyro        []MotionPoint
}

// TelemetrySnapshot is the copied-out view handed to consumers.
type TelemetrySnapshot struct {
	Battery     []TelemetryPoint `json:"battery"`
	Temperature []TelemetryPoint `json:"temperature"`
	Accel       []MotionPoint    `json:"accel"`
	Gyro        []MotionPoint    `json:"gyro"`
}

func newTelemetry(window time.Duration) *Telemetry {
	return &Telemetry{window: window}
}

// Record appends a telemetry packet's readings, dropping out-of-order
// points and trimming anything older than the window.
func (t *Telemetry) Record(now time.Time, r TelemetryReading) {
	if r.Battery != nil {
		t.battery = appendScalar(t.battery, now, *r.Battery, t.window)
	}
	if r.Temperature != nil {
		t.temperature = appendScalar(t.temperature, now, *r.Temperature, t.window)
	}
}

// RecordMotion appends a motion packet's readings.
func (t *Telemetry) RecordMotion(now time.Time, r MotionReading) {
	if r.Accel != nil {
		t.accel = appendMotion(t.accel, now, *r.Accel, t.window)
	}
	if r.Gyro != nil {
		t.gyro = appendMotion(t.gyro, now, *r.Gyro, t.window)
	}
}

// Snapshot deep-copies all histories.
func (t *Telemetry) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		Battery:     append([]TelemetryPoint(nil), t.battery...),
		Temperature: append([]TelemetryPoint(nil), t.temperature...),
		Accel:       append([]MotionPoint(nil), t.accel...),
		Gyro:        append([]MotionPoint(nil), t.gyro...),
	}
}

func appendScalar(pts []TelemetryPoint, now time.Time, v float64, window time.Duration) []TelemetryPoint {
	if n := len(pts); n > 0 && now.Before(pts[n-1].T) {
		return pts
	}
	pts = append(pts, TelemetryPoint{T: now, V: v})
	cutoff := now.Add(-window)
	i := 0
	for i < len(pts) && pts[i].T.Before(cutoff) {
		i++
	}
	return pts[i:]
}

func appendMotion(pts []MotionPoint, now time.Time, v [3]float64, window time.Duration) []MotionPoint {
	if n := len(pts); n > 0 && now.Before(pts[n-1].T) {
		return pts
	}
	pts = append(pts, MotionPoint{T: now, X: v[0], Y: v[1], Z: v[2]})
	cutoff := now.Add(-window)
	i := 0
	for i < len(pts) && pts[i].T.Before(cutoff) {
		i++
	}
	return pts[i:]
}
