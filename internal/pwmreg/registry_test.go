package pwmreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflow/motorctl/internal/ctrlerr"
	"github.com/edgeflow/motorctl/internal/eventbus"
	"github.com/edgeflow/motorctl/internal/hal"
	"github.com/edgeflow/motorctl/internal/pinowner"
)

func newTestRegistry() (*Registry, *hal.MockGPIO, *eventbus.Bus) {
	mockHAL := hal.NewMockHAL()
	gpio := mockHAL.GPIO().(*hal.MockGPIO)
	bus := eventbus.New()
	return New(gpio, pinowner.New(), bus), gpio, bus
}

func TestSet_ValidatesBoundaries(t *testing.T) {
	reg, _, _ := newTestRegistry()

	cases := []struct {
		name    string
		pin     int
		duty    int
		freq    int
		wantErr bool
	}{
		{"duty 0 accepted", 5, 0, 1000, false},
		{"duty 255 accepted", 5, 255, 1000, false},
		{"duty -1 rejected", 5, -1, 1000, true},
		{"duty 256 rejected", 5, 256, 1000, true},
		{"freq 1 accepted", 5, 100, 1, false},
		{"freq 8000 accepted", 5, 100, 8000, false},
		{"freq 0 rejected", 5, 100, 0, true},
		{"freq 8001 rejected", 5, 100, 8001, true},
		{"pin out of range rejected", 28, 100, 1000, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := reg.Set(tc.pin, tc.duty, tc.freq, true)
			if tc.wantErr {
				assert.Error(t, err)
				assert.IsType(t, &ctrlerr.ValidationError{}, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSet_RoundTripsThroughStatus(t *testing.T) {
	reg, _, _ := newTestRegistry()
	require.NoError(t, reg.Set(18, 128, 2000, true))

	status := reg.Status()
	entry, ok := status[18]
	require.True(t, ok)
	assert.Equal(t, 128, entry.DutyCycle)
	assert.Equal(t, 2000, entry.FrequencyHz)
}

func TestSet_EmitsPwmUpdated(t *testing.T) {
	reg, _, bus := newTestRegistry()
	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	require.NoError(t, reg.Set(18, 100, 1000, true))

	env := <-ch
	ev, ok := env.Event.(PwmUpdated)
	require.True(t, ok)
	assert.Equal(t, 18, ev.Pin)
	assert.Equal(t, 100, ev.Duty)
}

func TestStop_UnknownPinIsPrecondition(t *testing.T) {
	reg, _, _ := newTestRegistry()
	err := reg.Stop(3)
	require.Error(t, err)
	assert.IsType(t, &ctrlerr.PreconditionError{}, err)
}

func TestStopAll_EmptiesRegistryAndZeroesHardware(t *testing.T) {
	reg, gpio, bus := newTestRegistry()
	ch, unsubscribe := bus.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, reg.Set(1, 100, 1000, true))
	require.NoError(t, reg.Set(2, 100, 1000, true))
	require.NoError(t, reg.Set(3, 100, 1000, true))
	for len(ch) > 0 {
		<-ch // drain the Set events
	}

	stopped := reg.StopAll()
	assert.ElementsMatch(t, []int{1, 2, 3}, stopped)
	assert.Empty(t, reg.Status())

	for _, pin := range []int{1, 2, 3} {
		val, err := gpio.DigitalRead(pin)
		_ = val
		require.NoError(t, err)
	}

	events := 0
	for len(ch) > 0 {
		env := <-ch
		ev := env.Event.(PwmUpdated)
		assert.Equal(t, 0, ev.Duty)
		events++
	}
	assert.Equal(t, 3, events)
}

func TestSet_ConflictsWithEncoderOwnedPin(t *testing.T) {
	tracker := pinowner.New()
	require.NoError(t, tracker.Claim(9, pinowner.OwnerEncoder))

	mockHAL := hal.NewMockHAL()
	gpio := mockHAL.GPIO().(*hal.MockGPIO)
	reg := New(gpio, tracker, eventbus.New())

	err := reg.Set(9, 100, 1000, true)
	require.Error(t, err)
	assert.IsType(t, &ctrlerr.ConflictError{}, err)
}
