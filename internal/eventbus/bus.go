// Package eventbus is the in-process publish/subscribe backbone for
// telemetry: PwmUpdated, PulseObserved, SensorState, and ControllerStatus
// events flow from the control-loop and command tasks to any number of
// transports (WebSocket, MQTT, InfluxDB, logging) without those transports
// ever touching controller or registry locks.
package eventbus

import (
	"sync"

	"github.com/google/uuid"
)

// Event is any telemetry value snapshot published on the bus. Concrete
// event types live alongside the component that publishes them
// (pwmreg.PwmUpdated, encoder.PulseObserved, encoder.SensorState,
// rpmctl.ControllerStatus) and only need to satisfy this marker.
type Event interface {
	// EventType names the event for routing/serialization, e.g. "PwmUpdated".
	EventType() string
}

// Envelope wraps a published Event with a bus-assigned ID, useful for
// transports that need idempotency or ordering keys (e.g. the WebSocket hub).
type Envelope struct {
	ID    string
	Event Event
}

// subscriber is a bounded, drop-oldest delivery queue for one consumer.
// Drop-oldest (rather than the teacher's drop-newest) matters here because a
// stalled telemetry transport should see the robot's most recent state when
// it catches up, not a queue of ancient events.
type subscriber struct {
	mu sync.Mutex
	ch chan Envelope
}

func (s *subscriber) send(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- env:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Bus is a multiple-producer, multiple-subscriber, non-blocking event
// dispatcher. Publish never blocks the caller on a slow subscriber.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*subscriber)}
}

// Subscribe registers a new consumer with a bounded queue of the given
// capacity and returns a receive-only channel plus an unsubscribe function.
// A capacity <= 0 is raised to 1, so every subscriber queue holds at least
// the most recent event.
func (b *Bus) Subscribe(capacity int) (<-chan Envelope, func()) {
	if capacity <= 0 {
		capacity = 1
	}
	id := uuid.New().String()
	sub := &subscriber{ch: make(chan Envelope, capacity)}

	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
	return sub.ch, unsubscribe
}

// Publish fans event out to every current subscriber. Never blocks: a full
// subscriber queue drops its oldest entry to make room.
func (b *Bus) Publish(event Event) {
	env := Envelope{ID: uuid.New().String(), Event: event}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		sub.send(env)
	}
}

// SubscriberCount reports the number of active subscribers, used by status
// endpoints to report telemetry fan-out health.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
