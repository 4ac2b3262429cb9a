package system

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflow/motorctl/internal/encoder"
	"github.com/edgeflow/motorctl/internal/hal"
)

func TestNew_WiresComponentsOverMockHAL(t *testing.T) {
	sys := New(hal.NewMockHAL(), 4, 2000)
	require.NotNil(t, sys.PWM)
	require.NotNil(t, sys.Encoder)
	require.NotNil(t, sys.Controller)

	require.NoError(t, sys.Encoder.Enable(1, 21))
	require.NoError(t, sys.PWM.Set(18, 100, 2000, true))

	_, enabled, ok := sys.Encoder.FilteredRPM(1)
	assert.True(t, ok)
	assert.True(t, enabled)
}

func TestShutdown_StopsControllerAndZeroesPWM(t *testing.T) {
	sys := New(hal.NewMockHAL(), 4, 2000)
	require.NoError(t, sys.Encoder.Enable(1, 21))
	require.NoError(t, sys.Controller.Start(30, 18, 1))
	require.NoError(t, sys.PWM.Set(19, 200, 2000, true))

	require.NoError(t, sys.Shutdown())

	assert.False(t, sys.Controller.Status().Active)
	assert.Empty(t, sys.PWM.Status())

	_, _, ok := sys.Encoder.FilteredRPM(1)
	assert.False(t, ok, "sensor 1 should be disabled and released by Shutdown")
	assert.Empty(t, sys.Encoder.Status())
}

func TestNew_SetsSimulationSourceOverMockHAL(t *testing.T) {
	sys := New(hal.NewMockHAL(), 4, 2000)
	require.NoError(t, sys.Encoder.Enable(2, 22))

	gpio := sys.HAL.GPIO().(*hal.MockGPIO)
	ch, unsubscribe := sys.Bus.Subscribe(4)
	defer unsubscribe()

	gpio.InjectEdge(22, true, 10_000)
	env := <-ch
	ev, ok := env.Event.(encoder.PulseObserved)
	require.True(t, ok)
	assert.Equal(t, "simulation", ev.Source)
}
