package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtippett/meditrain-sub000/pipeline"
)

// Global debug flag
var DebugMode bool

// Global start time for process uptime tracking
var StartTime time.Time

func main() {
	// Record start time for uptime tracking
	StartTime = time.Now()

	// Parse command line flags
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	listen := flag.String("listen", "", "Listen address (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Set global debug mode - check environment variable first, then CLI flag
	DebugMode = *debug
	if debugEnv := os.Getenv("DEBUG"); debugEnv != "" {
		// Environment variable takes precedence
		DebugMode = debugEnv == "true" || debugEnv == "1" || debugEnv == "yes"
	}
	if DebugMode {
		log.Println("Debug mode enabled")
	}

	// Load configuration
	config, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	if *listen != "" {
		config.Server.Listen = *listen
	}

	// Build the processing core
	engine, err := pipeline.NewEngine(config.EngineConfig())
	if err != nil {
		log.Fatalf("Invalid pipeline configuration: %v", err)
	}

	var metrics *PrometheusMetrics
	if config.Prometheus.Enabled {
		metrics = NewPrometheusMetrics()
		metrics.StartResourceMonitor()
		defer metrics.StopResourceMonitor()
	}

	processor := NewProcessor(engine, time.Duration(config.Signal.TickIntervalMs)*time.Millisecond, metrics)
	processor.Start()
	defer processor.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start MQTT publisher if enabled
	if config.MQTT.Enabled {
		publisher, err := NewMQTTPublisher(&config.MQTT)
		if err != nil {
			log.Printf("Warning: MQTT publisher disabled: %v", err)
		} else {
			publisher.StartPublisher(ctx)
		}
	}

	// Build HTTP routes
	mux := http.NewServeMux()

	apiHandler := NewAPIHandler(processor, config)
	apiHandler.Register(mux)

	ingestHandler := NewIngestHandler(processor, metrics, config)
	mux.HandleFunc("/ws/ingest", ingestHandler.HandleWebSocket)

	if config.Prometheus.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
		log.Println("Prometheus metrics enabled at /metrics")
	}

	server := &http.Server{
		Addr:    config.Server.Listen,
		Handler: corsMiddleware(config, mux),
	}

	go func() {
		log.Printf("Listening on %s", config.Server.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal %v, shutting down", sig)

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
}
