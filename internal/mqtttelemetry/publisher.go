// Package mqtttelemetry is an optional subscriber that republishes
// ControllerStatus events to an MQTT broker, for a supervisory system that
// wants setpoint/feedback telemetry without polling the HTTP command
// surface. cmd/motorctl starts it only when telemetry.mqtt.enabled is set
// (SPEC_FULL §11).
package mqtttelemetry

import (
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/edgeflow/motorctl/internal/eventbus"
	"github.com/edgeflow/motorctl/internal/logger"
	"github.com/edgeflow/motorctl/internal/rpmctl"
	"go.uber.org/zap"
)

// Config holds the MQTT publisher's connection settings.
type Config struct {
	BrokerURL string
	ClientID  string
	Topic     string
}

// publishClient is the narrow slice of mqtt.Client the Publisher needs,
// satisfied by the real paho client and by fakes in tests.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher subscribes to bus and republishes ControllerStatus events onto
// an MQTT topic at QoS 0 (telemetry, not a command channel — a dropped
// sample is acceptable).
type Publisher struct {
	client publishClient
	topic  string

	unsubscribe func()
}

// Start connects to the broker and begins forwarding events. Returns the
// Publisher so Close can be deferred by the caller.
func Start(cfg Config, bus *eventbus.Bus) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt telemetry connection lost", zap.Error(err))
	}
	opts.OnReconnecting = func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("mqtt telemetry reconnecting")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return newPublisher(client, cfg.Topic, bus), nil
}

func newPublisher(client publishClient, topic string, bus *eventbus.Bus) *Publisher {
	ch, unsubscribe := bus.Subscribe(32)
	p := &Publisher{client: client, topic: topic, unsubscribe: unsubscribe}
	go p.run(ch)
	return p
}

func (p *Publisher) run(ch <-chan eventbus.Envelope) {
	for env := range ch {
		status, ok := env.Event.(rpmctl.ControllerStatus)
		if !ok {
			continue
		}
		payload, err := json.Marshal(status)
		if err != nil {
			continue
		}
		p.client.Publish(p.topic, 0, false, payload)
	}
}

// Close unsubscribes from the bus and disconnects from the broker.
func (p *Publisher) Close() {
	p.unsubscribe()
	p.client.Disconnect(250)
}
