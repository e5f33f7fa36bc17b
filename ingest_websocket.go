package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mtippett/meditrain-sub000/pipeline"
)

var ingestUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// IngestMessage is the wire format of one packet from the sensor bridge.
// Exactly one payload group is set depending on Type.
type IngestMessage struct {
	Type        string      `json:"type"` // eeg, ppg, telemetry, motion, channels
	Electrode   int         `json:"electrode,omitempty"`
	PPGChannel  int         `json:"ppg_channel,omitempty"`
	Label       string      `json:"label,omitempty"`
	Samples     []float64   `json:"samples,omitempty"`
	Labels      []string    `json:"labels,omitempty"`
	Battery     *float64    `json:"battery,omitempty"`
	Temperature *float64    `json:"temperature,omitempty"`
	Accel       *[3]float64 `json:"accel,omitempty"`
	Gyro        *[3]float64 `json:"gyro,omitempty"`
}

// TraceMessage is the raw-trace republish frame sent back to the client.
type TraceMessage struct {
	Type      string            `json:"type"` // always "trace"
	Timestamp int64             `json:"timestamp"`
	EEG       map[int][]float64 `json:"eeg,omitempty"`
	PPG       map[int][]float64 `json:"ppg,omitempty"`
}

// IngestHandler accepts sensor-bridge WebSocket connections, forwards
// packets to the processor and republishes recent raw traces on a fast
// throttle independent of the processing tick.
type IngestHandler struct {
	processor *Processor
	metrics   *PrometheusMetrics

	traceInterval time.Duration
	traceSamples  map[string]int // kind -> samples kept for republish
}

// NewIngestHandler creates the ingest endpoint handler.
func NewIngestHandler(processor *Processor, metrics *PrometheusMetrics, config *Config) *IngestHandler {
	return &IngestHandler{
		processor:     processor,
		metrics:       metrics,
		traceInterval: time.Duration(config.Signal.RepublishIntervalMs) * time.Millisecond,
		traceSamples: map[string]int{
			"eeg": int(config.Signal.TraceWindowSec * config.Signal.EEGSampleRate),
			"ppg": int(config.Signal.TraceWindowSec * config.Signal.PPGSampleRate),
		},
	}
}

// ingestConn is the per-connection state: the connection's own raw tails
// for trace republishing plus a write lock (gorilla allows one concurrent
// writer).
type ingestConn struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex

	tailMu   sync.Mutex
	eegTails map[int][]float64
	ppgTails map[int][]float64
	dirty    bool
}

// HandleWebSocket upgrades and services one sensor-bridge connection.
func (h *IngestHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := ingestUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Ingest: WebSocket upgrade failed: %v", err)
		return
	}

	c := &ingestConn{
		id:       uuid.New().String(),
		conn:     conn,
		eegTails: make(map[int][]float64),
		ppgTails: make(map[int][]float64),
	}
	log.Printf("Ingest: connection %s established from %s", c.id, r.RemoteAddr)
	if h.metrics != nil {
		h.metrics.IngestConnected()
	}

	stopTrace := make(chan struct{})
	go h.traceLoop(c, stopTrace)

	h.readLoop(c)

	close(stopTrace)
	conn.Close()
	h.processor.Disconnect()
	if h.metrics != nil {
		h.metrics.IngestDisconnected()
	}
	log.Printf("Ingest: connection %s closed", c.id)
}

func (h *IngestHandler) readLoop(c *ingestConn) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Ingest: connection %s read error: %v", c.id, err)
			}
			return
		}

		var msg IngestMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			if DebugMode {
				log.Printf("DEBUG: Ingest %s: malformed packet dropped: %v", c.id, err)
			}
			continue
		}

		pkt, ok := h.toPacket(msg)
		if !ok {
			continue
		}
		h.processor.Ingest(pkt)
		if h.metrics != nil {
			h.metrics.IngestPacket(string(pkt.Type))
		}
		h.recordTail(c, msg)
	}
}

// toPacket validates and converts a wire message into an engine packet.
func (h *IngestHandler) toPacket(msg IngestMessage) (pipeline.Packet, bool) {
	now := time.Now()
	switch msg.Type {
	case "eeg":
		if len(msg.Samples) == 0 || msg.Electrode < 0 {
			return pipeline.Packet{}, false
		}
		return pipeline.Packet{Type: pipeline.PacketEEG, Timestamp: now, Electrode: msg.Electrode, Samples: msg.Samples}, true
	case "ppg":
		if len(msg.Samples) == 0 || msg.PPGChannel < 0 {
			return pipeline.Packet{}, false
		}
		return pipeline.Packet{Type: pipeline.PacketPPG, Timestamp: now, PPGChannel: msg.PPGChannel, Label: msg.Label, Samples: msg.Samples}, true
	case "channels":
		if len(msg.Labels) == 0 {
			return pipeline.Packet{}, false
		}
		return pipeline.Packet{Type: pipeline.PacketChannelMap, Timestamp: now, Labels: msg.Labels}, true
	case "telemetry":
		if msg.Battery == nil && msg.Temperature == nil {
			return pipeline.Packet{}, false
		}
		return pipeline.Packet{Type: pipeline.PacketTelemetry, Timestamp: now, Telemetry: &pipeline.TelemetryReading{
			Battery:     msg.Battery,
			Temperature: msg.Temperature,
		}}, true
	case "motion":
		if msg.Accel == nil && msg.Gyro == nil {
			return pipeline.Packet{}, false
		}
		return pipeline.Packet{Type: pipeline.PacketMotion, Timestamp: now, Motion: &pipeline.MotionReading{
			Accel: msg.Accel,
			Gyro:  msg.Gyro,
		}}, true
	default:
		if DebugMode {
			log.Printf("DEBUG: Ingest: unknown packet type %q", msg.Type)
		}
		return pipeline.Packet{}, false
	}
}

// recordTail keeps the connection's own copy of recent raw samples so the
// trace republish never touches the engine's buffers.
func (h *IngestHandler) recordTail(c *ingestConn, msg IngestMessage) {
	var tails map[int][]float64
	var key, limit int
	switch msg.Type {
	case "eeg":
		tails, key, limit = c.eegTails, msg.Electrode, h.traceSamples["eeg"]
	case "ppg":
		tails, key, limit = c.ppgTails, msg.PPGChannel, h.traceSamples["ppg"]
	default:
		return
	}

	c.tailMu.Lock()
	tail := append(tails[key], msg.Samples...)
	if len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	tails[key] = tail
	c.dirty = true
	c.tailMu.Unlock()
}

// traceLoop republishes buffered raw traces on the configured throttle,
// skipping idle intervals.
func (h *IngestHandler) traceLoop(c *ingestConn, stop chan struct{}) {
	ticker := time.NewTicker(h.traceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			msg, ok := c.traceMessage()
			if !ok {
				continue
			}
			c.writeMu.Lock()
			err := c.conn.WriteJSON(msg)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *ingestConn) traceMessage() (*TraceMessage, bool) {
	c.tailMu.Lock()
	defer c.tailMu.Unlock()
	if !c.dirty {
		return nil, false
	}
	c.dirty = false

	msg := &TraceMessage{
		Type:      "trace",
		Timestamp: time.Now().UnixMilli(),
		EEG:       make(map[int][]float64, len(c.eegTails)),
		PPG:       make(map[int][]float64, len(c.ppgTails)),
	}
	for id, tail := range c.eegTails {
		msg.EEG[id] = append([]float64(nil), tail...)
	}
	for id, tail := range c.ppgTails {
		msg.PPG[id] = append([]float64(nil), tail...)
	}
	return msg, true
}
