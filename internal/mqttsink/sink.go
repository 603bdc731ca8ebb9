// Package mqttsink publishes samples, alerts and connection state to an MQTT
// broker as JSON.
//
// Topics, under a configurable prefix:
//
//	<prefix>/sample  one message per sample
//	<prefix>/alert   one message per alert
//	<prefix>/state   retained, the latest connection state
//
// Publishing is fire-and-forget: observer callbacks run on the pipeline's
// producer path and never wait for the broker.
package mqttsink

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
	"github.com/srg/plantmon/internal/alert"
	"github.com/srg/plantmon/internal/link"
	"github.com/srg/plantmon/internal/sensor"
)

// Publisher is the part of mqtt.Client the sink needs.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type samplePayload struct {
	Timestamp   int64   `json:"timestamp"`
	VOC         float64 `json:"voc"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

type alertPayload struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type statePayload struct {
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
	Degraded bool   `json:"degraded,omitempty"`
}

// Sink is a fanout observer.
type Sink struct {
	client Publisher
	prefix string
	qos    byte
	logger *logrus.Logger

	failures atomic.Uint64
}

// New creates a sink publishing under prefix.
func New(client Publisher, prefix string, logger *logrus.Logger) *Sink {
	if logger == nil {
		logger = logrus.New()
	}
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		prefix = "plantmon"
	}
	return &Sink{client: client, prefix: prefix, logger: logger}
}

// Failures returns how many publishes failed to encode or were rejected.
func (s *Sink) Failures() uint64 {
	return s.failures.Load()
}

func (s *Sink) OnSample(smp sensor.Sample) {
	s.publish("sample", false, samplePayload{
		Timestamp:   smp.Timestamp,
		VOC:         smp.VOC,
		Temperature: smp.Temperature,
		Humidity:    smp.Humidity,
	})
}

func (s *Sink) OnAlert(e alert.Event) {
	s.publish("alert", false, alertPayload{
		Kind:      string(e.Kind),
		Message:   e.Message,
		Timestamp: e.Timestamp,
	})
}

func (s *Sink) OnConnectionStateChanged(st link.ConnectionState) {
	p := statePayload{State: st.State.String(), Degraded: st.Degraded()}
	if st.Reason != nil {
		p.Reason = st.Reason.Error()
	}
	s.publish("state", true, p)
}

func (s *Sink) publish(kind string, retained bool, v any) {
	topic := s.prefix + "/" + kind

	payload, err := json.Marshal(v)
	if err != nil {
		s.failures.Add(1)
		s.logger.WithFields(logrus.Fields{"topic": topic, "error": err}).Error("Failed to encode MQTT payload")
		return
	}

	token := s.client.Publish(topic, s.qos, retained, payload)
	// the token completes on paho's goroutine; only an immediate failure is visible here
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			s.failures.Add(1)
			s.logger.WithFields(logrus.Fields{"topic": topic, "error": err}).Warn("MQTT publish failed")
		}
	default:
	}
}

// Connect dials broker with paho and returns the client. The caller owns
// Disconnect.
func Connect(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out after %s", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return client, nil
}
