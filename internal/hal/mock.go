package hal

import (
	"fmt"
	"sync"
	"time"
)

// MockHAL is the simulation backend. Output writes are recorded but have no
// physical effect; input edges are never spontaneously produced — tests
// inject them via MockGPIO.InjectEdge.
type MockHAL struct {
	gpio *MockGPIO
	info BoardInfo
}

// NewMockHAL creates a simulation HAL.
func NewMockHAL() *MockHAL {
	return &MockHAL{
		gpio: &MockGPIO{pins: make(map[int]*MockPin), watchers: make(map[int]mockWatch)},
		info: BoardInfo{
			Model:    BoardUnknown,
			Name:     "Simulated Board",
			NumGPIO:  28,
			CPUCores: 4,
			RAMSize:  1024,
			GPIOChip: "simulation",
		},
	}
}

func (m *MockHAL) GPIO() GPIOProvider { return m.gpio }
func (m *MockHAL) Info() BoardInfo    { return m.info }
func (m *MockHAL) Backend() string    { return "simulation" }
func (m *MockHAL) Close() error       { return m.gpio.Close() }

// MockPin is the simulated state of a single GPIO line.
type MockPin struct {
	mode  PinMode
	pull  PullMode
	value bool
	pwm   int
	freq  int
}

type mockWatch struct {
	edge     EdgeMode
	callback func(pin int, level bool, tickUs int64)
}

// MockGPIO is the simulated GPIO capability. It satisfies hal.GPIOProvider
// and additionally exposes InjectEdge for tests to drive the Encoder
// Pipeline without real hardware.
type MockGPIO struct {
	mu       sync.RWMutex
	pins     map[int]*MockPin
	watchers map[int]mockWatch
	start    time.Time
}

func (g *MockGPIO) SetMode(pin int, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pinLocked(pin).mode = mode
	return nil
}

func (g *MockGPIO) SetPull(pin int, pull PullMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pinLocked(pin).pull = pull
	return nil
}

func (g *MockGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.pins[pin]
	if !ok {
		return false, fmt.Errorf("pin %d not initialized", pin)
	}
	return p.value, nil
}

func (g *MockGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pinLocked(pin).value = value
	return nil
}

func (g *MockGPIO) PWMWrite(pin int, value int) error {
	if value < 0 || value > 255 {
		return fmt.Errorf("PWM value must be 0-255, got %d", value)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pinLocked(pin).pwm = value
	return nil
}

func (g *MockGPIO) SetPWMFrequency(pin int, freq int) error {
	if freq <= 0 {
		return fmt.Errorf("frequency must be positive, got %d", freq)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pinLocked(pin).freq = freq
	return nil
}

func (g *MockGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, level bool, tickUs int64)) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if edge == EdgeNone {
		delete(g.watchers, pin)
		return nil
	}
	g.watchers[pin] = mockWatch{edge: edge, callback: callback}
	return nil
}

// InjectEdge simulates an electrical transition on pin at simulated time
// tickUs. Only rising edges are meaningful for the Encoder Pipeline per
// spec, but both edge values are delivered so pull/edge-mode tests can
// exercise the full matrix.
func (g *MockGPIO) InjectEdge(pin int, level bool, tickUs int64) {
	g.mu.Lock()
	w, ok := g.watchers[pin]
	if ok {
		g.pinLocked(pin).value = level
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	switch w.edge {
	case EdgeBoth:
		w.callback(pin, level, tickUs)
	case EdgeRising:
		if level {
			w.callback(pin, level, tickUs)
		}
	case EdgeFalling:
		if !level {
			w.callback(pin, level, tickUs)
		}
	}
}

func (g *MockGPIO) ActivePins() map[int]PinMode {
	g.mu.RLock()
	defer g.mu.RUnlock()
	result := make(map[int]PinMode, len(g.pins))
	for pin, p := range g.pins {
		result[pin] = p.mode
	}
	return result
}

func (g *MockGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pins = make(map[int]*MockPin)
	g.watchers = make(map[int]mockWatch)
	return nil
}

// pinLocked returns (creating if needed) the pin state. Caller must hold g.mu.
func (g *MockGPIO) pinLocked(pin int) *MockPin {
	p, ok := g.pins[pin]
	if !ok {
		p = &MockPin{}
		g.pins[pin] = p
	}
	return p
}
