package main

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mtippett/meditrain-sub000/pipeline"
)

// Processor owns the engine and serializes all access to it through a
// single goroutine: ingest packets arrive on a channel, recomputation runs
// off a ticker, and consumers read the latest snapshot under a read lock.
// Ingestion never blocks on computation; a full queue drops the packet.
type Processor struct {
	engine *pipeline.Engine
	ingest chan pipeline.Packet

	snapshot   *pipeline.Snapshot
	snapshotMu sync.RWMutex

	tickInterval time.Duration
	metrics      *PrometheusMetrics

	running    bool
	stopChan   chan struct{}
	disconnect chan struct{}
	wg         sync.WaitGroup

	droppedPackets atomic.Uint64
}

// NewProcessor creates a processor around a configured engine.
func NewProcessor(engine *pipeline.Engine, tickInterval time.Duration, metrics *PrometheusMetrics) *Processor {
	return &Processor{
		engine:       engine,
		ingest:       make(chan pipeline.Packet, 256),
		tickInterval: tickInterval,
		metrics:      metrics,
		stopChan:     make(chan struct{}),
		disconnect:   make(chan struct{}, 1),
	}
}

// Start launches the processing goroutine
func (p *Processor) Start() {
	if p.running {
		return
	}
	p.running = true

	p.wg.Add(1)
	go p.run()

	log.Printf("Processor started with %v tick interval", p.tickInterval)
}

// Stop shuts down the processing goroutine and waits for it to exit
func (p *Processor) Stop() {
	if !p.running {
		return
	}
	p.running = false
	close(p.stopChan)
	p.wg.Wait()
	log.Println("Processor stopped")
}

func (p *Processor) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case pkt := <-p.ingest:
			p.engine.Ingest(pkt)
		case <-p.disconnect:
			p.engine.Disconnect()
			log.Println("Processor: sensor disconnected, buffers cleared")
		case now := <-ticker.C:
			snap := p.engine.Tick(now)
			p.snapshotMu.Lock()
			p.snapshot = snap
			p.snapshotMu.Unlock()
			if p.metrics != nil {
				p.metrics.UpdateFromSnapshot(snap)
			}
		}
	}
}

// Ingest queues one packet for the processing goroutine. Drops the packet
// if the queue is full rather than blocking the transport reader. Safe to
// call from multiple connection readers concurrently.
func (p *Processor) Ingest(pkt pipeline.Packet) bool {
	select {
	case p.ingest <- pkt:
		return true
	default:
		dropped := p.droppedPackets.Add(1)
		if DebugMode {
			log.Printf("DEBUG: Ingest queue full, dropped %s packet (total dropped: %d)", pkt.Type, dropped)
		}
		return false
	}
}

// Dropped returns how many packets have been discarded on a full queue.
func (p *Processor) Dropped() uint64 {
	return p.droppedPackets.Load()
}

// Snapshot returns the most recent tick's outputs, or nil before the first
// tick completes.
func (p *Processor) Snapshot() *pipeline.Snapshot {
	p.snapshotMu.RLock()
	defer p.snapshotMu.RUnlock()
	return p.snapshot
}

// Disconnect clears buffered samples when the sensor stream drops. The
// clear runs on the processing goroutine to preserve single-owner access.
func (p *Processor) Disconnect() {
	select {
	case p.disconnect <- struct{}{}:
	default:
	}
}
