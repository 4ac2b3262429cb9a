package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvent struct{ n int }

func (f fakeEvent) EventType() string { return "fake" }

func TestSubscribe_ReceivesPublishedEvents(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	bus.Publish(fakeEvent{n: 1})
	env := <-ch
	ev, ok := env.Event.(fakeEvent)
	require.True(t, ok)
	assert.Equal(t, 1, ev.n)
}

func TestPublish_DropsOldestWhenQueueFull(t *testing.T) {
	bus := New()
	ch, unsubscribe := bus.Subscribe(2)
	defer unsubscribe()

	bus.Publish(fakeEvent{n: 1})
	bus.Publish(fakeEvent{n: 2})
	bus.Publish(fakeEvent{n: 3}) // queue full at 1,2 -> drops 1, keeps 2,3

	first := <-ch
	second := <-ch

	assert.Equal(t, 2, first.Event.(fakeEvent).n)
	assert.Equal(t, 3, second.Event.(fakeEvent).n)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	bus := New()
	_, unsubscribe := bus.Subscribe(1)
	unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())

	// Publishing after every subscriber has gone must not panic or block.
	bus.Publish(fakeEvent{n: 42})
}

func TestSubscriberCount(t *testing.T) {
	bus := New()
	assert.Equal(t, 0, bus.SubscriberCount())
	_, unsubscribe1 := bus.Subscribe(1)
	_, unsubscribe2 := bus.Subscribe(1)
	assert.Equal(t, 2, bus.SubscriberCount())
	unsubscribe1()
	assert.Equal(t, 1, bus.SubscriberCount())
	unsubscribe2()
}
