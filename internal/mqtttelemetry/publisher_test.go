package mqtttelemetry

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"

	"github.com/edgeflow/motorctl/internal/eventbus"
	"github.com/edgeflow/motorctl/internal/rpmctl"
)

type noopToken struct{}

func (noopToken) Wait() bool                     { return true }
func (noopToken) WaitTimeout(time.Duration) bool { return true }
func (noopToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (noopToken) Error() error                   { return nil }

type fakeClient struct {
	mu         sync.Mutex
	published  int
	disconnect bool
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published++
	return noopToken{}
}

func (f *fakeClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnect = true
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published
}

func TestPublisher_ForwardsControllerStatus(t *testing.T) {
	bus := eventbus.New()
	client := &fakeClient{}
	p := newPublisher(client, "motorctl/status", bus)
	defer p.Close()

	bus.Publish(rpmctl.ControllerStatus{Active: true, TargetRPM: 30})

	assert.Eventually(t, func() bool { return client.count() == 1 }, time.Second, time.Millisecond)
}

func TestPublisher_Close_DisconnectsClient(t *testing.T) {
	bus := eventbus.New()
	client := &fakeClient{}
	p := newPublisher(client, "motorctl/status", bus)
	p.Close()
	assert.True(t, client.disconnect)
}
