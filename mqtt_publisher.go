package main

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MQTTPublisher manages MQTT publishing of pipeline metrics
type MQTTPublisher struct {
	client mqtt.Client
	config *MQTTConfig
}

// MetricPayload represents a metric message for MQTT
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
	Labels    map[string]string  `json:"labels,omitempty"`
}

// generateClientID creates a random client ID for MQTT connection
func generateClientID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "meditrain_" + hex.EncodeToString(bytes)
}

// loadTLSConfig loads TLS configuration from files
func loadTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{}

	// Load CA certificate if provided
	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	// Load client certificate and key if provided
	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher creates a new MQTT publisher
func NewMQTTPublisher(config *MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// TLS configuration if enabled
	if config.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Println("MQTT: Attempting to reconnect...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Printf("MQTT: Successfully connected to broker: %s", config.Broker)

	return &MQTTPublisher{
		client: client,
		config: config,
	}, nil
}

// StartPublisher starts the background publishing goroutine
func (mp *MQTTPublisher) StartPublisher(ctx context.Context) {
	go mp.startMetricsPublisher(ctx)
}

// startMetricsPublisher publishes pipeline metrics at the configured interval
func (mp *MQTTPublisher) startMetricsPublisher(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(mp.config.PublishInterval) * time.Second)
	defer ticker.Stop()

	log.Printf("MQTT: Metrics publisher started with %d second interval", mp.config.PublishInterval)

	// Publish immediately on start
	mp.publishAllMetrics()

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT: Metrics publisher stopped")
			mp.client.Disconnect(250)
			return
		case <-ticker.C:
			mp.publishAllMetrics()
		}
	}
}

// publishAllMetrics gathers the Prometheus registry and routes metric
// families to per-topic payloads
func (mp *MQTTPublisher) publishAllMetrics() {
	timestamp := time.Now().Unix()

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		log.Printf("MQTT ERROR: Failed to gather Prometheus metrics: %v", err)
		return
	}

	// Group metrics by category based on metric name prefix
	bandpowerMetrics := make(map[string]map[string]float64) // channel_band -> metrics
	vitalsMetrics := make(map[string]float64)
	artifactMetrics := make(map[string]map[string]float64) // channel -> metrics
	systemMetrics := make(map[string]float64)

	for _, mf := range metricFamilies {
		metricName := mf.GetName()

		for _, m := range mf.GetMetric() {
			value := extractMetricValue(m)
			if value == nil {
				continue
			}

			labels := make(map[string]string)
			for _, label := range m.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}

			switch {
			case strings.HasPrefix(metricName, "bandpower_"):
				channel, chOk := labels["channel"]
				band, bandOk := labels["band"]
				if chOk && bandOk {
					key := channel + "_" + band
					if bandpowerMetrics[key] == nil {
						bandpowerMetrics[key] = make(map[string]float64)
					}
					bandpowerMetrics[key][metricName] = *value
				}

			case strings.HasPrefix(metricName, "vitals_"):
				name := metricName
				if wl, ok := labels["wavelength"]; ok {
					name = metricName + "_" + wl
				}
				vitalsMetrics[name] = *value

			case strings.HasPrefix(metricName, "artifact_"):
				if channel, ok := labels["channel"]; ok {
					if artifactMetrics[channel] == nil {
						artifactMetrics[channel] = make(map[string]float64)
					}
					artifactMetrics[channel][metricName] = *value
				}

			case strings.HasPrefix(metricName, "process_") || strings.HasPrefix(metricName, "system_") ||
				strings.HasPrefix(metricName, "ingest_") || strings.HasPrefix(metricName, "pipeline_"):
				systemMetrics[metricName] = *value
			}
		}
	}

	for key, metrics := range bandpowerMetrics {
		mp.publish(mp.config.TopicPrefix+"/bandpower/"+key, MetricPayload{
			Timestamp: timestamp,
			Metrics:   metrics,
			Labels:    map[string]string{"channel_band": key},
		})
	}
	for channel, metrics := range artifactMetrics {
		mp.publish(mp.config.TopicPrefix+"/artifacts/"+channel, MetricPayload{
			Timestamp: timestamp,
			Metrics:   metrics,
			Labels:    map[string]string{"channel": channel},
		})
	}
	if len(vitalsMetrics) > 0 {
		mp.publish(mp.config.TopicPrefix+"/vitals", MetricPayload{
			Timestamp: timestamp,
			Metrics:   vitalsMetrics,
		})
	}
	if len(systemMetrics) > 0 {
		mp.publish(mp.config.TopicPrefix+"/system", MetricPayload{
			Timestamp: timestamp,
			Metrics:   systemMetrics,
		})
	}
}

// extractMetricValue pulls the numeric value out of a gathered metric
func extractMetricValue(m *dto.Metric) *float64 {
	if m.GetGauge() != nil {
		v := m.GetGauge().GetValue()
		return &v
	}
	if m.GetCounter() != nil {
		v := m.GetCounter().GetValue()
		return &v
	}
	if m.GetHistogram() != nil {
		v := m.GetHistogram().GetSampleSum()
		return &v
	}
	if m.GetSummary() != nil {
		v := m.GetSummary().GetSampleSum()
		return &v
	}
	return nil
}

// publish sends a payload to a topic with QoS 0
func (mp *MQTTPublisher) publish(topic string, payload MetricPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal payload for %s: %v", topic, err)
		return
	}

	token := mp.client.Publish(topic, 0, false, data)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("MQTT ERROR: Failed to publish to %s: %v", topic, token.Error())
	} else if DebugMode {
		log.Printf("DEBUG: MQTT published %d bytes to %s", len(data), topic)
	}
}
