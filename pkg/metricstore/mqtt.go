package metricstore

import (
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/adaptivebreaker/breaker/pkg/breaker"
	"github.com/adaptivebreaker/breaker/pkg/logx"
)

// MQTTConfig configures the outward-facing snapshot publisher, mirroring
// the teacher's mqtt.Config shape.
type MQTTConfig struct {
	Broker      string
	Port        int
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Enabled     bool
}

// DefaultMQTTConfig returns a disabled-by-default configuration, matching
// the teacher's own DefaultConfig.
func DefaultMQTTConfig() MQTTConfig {
	return MQTTConfig{
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "adaptivebreaker",
		TopicPrefix: "adaptivebreaker",
		QoS:         1,
		Enabled:     false,
	}
}

// mqttSnapshotMessage is the wire shape published for each Store call.
type mqttSnapshotMessage struct {
	BreakerName  string    `json:"breaker_name"`
	ObservedAt   time.Time `json:"observed_at"`
	P95LatencyMS float64   `json:"p95_latency_ms"`
	ErrorRate    float64   `json:"error_rate"`
	SuccessRate  float64   `json:"success_rate"`
	Concurrency  float64   `json:"concurrency"`
	SystemLoad   float64   `json:"system_load"`
}

// MQTTSink is a publish-only orchestrator.MetricSink: it fans a copy of
// every decision-tick snapshot out to an MQTT broker for external
// dashboards. It does not retain history, so LoadHistorical always returns
// nil — a downstream MetricSink such as SQLiteStore is expected to be the
// warm-start source when both are wired.
type MQTTSink struct {
	client MQTT.Client
	logger *logx.Logger
	config MQTTConfig
}

// NewMQTTSink connects to the broker described by config. A disabled
// config yields a sink whose Store calls are no-ops.
func NewMQTTSink(config MQTTConfig, logger *logx.Logger) (*MQTTSink, error) {
	s := &MQTTSink{logger: logger, config: config}
	if !config.Enabled {
		logger.Debug("mqtt metric sink disabled")
		return s, nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", config.Broker, config.Port))
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(time.Minute)

	s.client = MQTT.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("metricstore: mqtt connect: %w", token.Error())
	}
	return s, nil
}

// Store publishes snapshot's aggregate fields to <prefix>/<breakerName>/snapshot.
func (s *MQTTSink) Store(snapshot *breaker.Snapshot, breakerName string) error {
	if s.client == nil || snapshot == nil {
		return nil
	}

	msg := mqttSnapshotMessage{
		BreakerName:  breakerName,
		ObservedAt:   time.Now(),
		P95LatencyMS: float64(snapshot.P95Latency()) / float64(time.Millisecond),
		ErrorRate:    snapshot.ErrorRate(),
		SuccessRate:  snapshot.SuccessRate(),
		Concurrency:  snapshot.Concurrency(),
		SystemLoad:   snapshot.SystemLoad(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("metricstore: marshal mqtt snapshot: %w", err)
	}

	topic := fmt.Sprintf("%s/%s/snapshot", s.config.TopicPrefix, breakerName)
	token := s.client.Publish(topic, s.config.QoS, false, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("metricstore: mqtt publish: %w", token.Error())
	}
	return nil
}

// LoadHistorical always returns nil: this sink is publish-only.
func (s *MQTTSink) LoadHistorical(breakerName string, lookback time.Duration) ([]*breaker.Snapshot, error) {
	return nil, nil
}

// Shutdown disconnects from the broker, if connected.
func (s *MQTTSink) Shutdown() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}
