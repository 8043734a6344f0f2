// Package publish sends every cycle to an MQTT broker as JSON.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Uranury/thermohygrometer/sampler"
)

const publishTimeout = 2 * time.Second

type MQTT struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// Connect dials broker and returns a publisher for topic. The client
// reconnects on its own after the first successful connection.
func Connect(broker, clientID, topic string, logger *slog.Logger) (*MQTT, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "err", err)
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return New(client, topic, logger), nil
}

func New(client mqtt.Client, topic string, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTT{client: client, topic: topic, logger: logger}
}

// Report publishes the cycle summary at QoS 0. Failures are logged only.
func (m *MQTT) Report(_ context.Context, c sampler.Cycle) {
	payload, err := json.Marshal(c.Summary())
	if err != nil {
		m.logger.Error("marshal cycle", "err", err)
		return
	}

	token := m.client.Publish(m.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		m.logger.Warn("mqtt publish timed out", "topic", m.topic, "cycle", c.ID)
		return
	}
	if err := token.Error(); err != nil {
		m.logger.Warn("mqtt publish failed", "topic", m.topic, "err", err)
	}
}

func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
