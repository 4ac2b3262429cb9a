package hal

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/host/v3"
)

// rpioGPIO implements GPIOProvider over the legacy /dev/mem register access
// path, selected when the character-device backend isn't available (older
// boards, or kernels without /dev/gpiochip*).
type rpioGPIO struct {
	mu      sync.Mutex
	pins    map[int]rpio.Pin
	pwmPins map[int]*legacyPWM
}

type legacyPWM struct {
	pin       rpio.Pin
	frequency int
	dutyCycle int
}

// rpioHAL wraps rpioGPIO to satisfy HAL.
type rpioHAL struct {
	gpio *rpioGPIO
	info BoardInfo
}

// NewRpioHAL brings up periph.io host drivers (board/peripheral detection
// during host.Init()) and opens the legacy /dev/mem GPIO register map.
func NewRpioHAL() (HAL, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph.io host drivers: %w", err)
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO register map: %w", err)
	}

	info, err := DetectBoard()
	if err != nil {
		return nil, fmt.Errorf("board detection failed: %w", err)
	}

	return &rpioHAL{
		gpio: &rpioGPIO{
			pins:    make(map[int]rpio.Pin),
			pwmPins: make(map[int]*legacyPWM),
		},
		info: *info,
	}, nil
}

func (h *rpioHAL) GPIO() GPIOProvider { return h.gpio }
func (h *rpioHAL) Info() BoardInfo    { return h.info }
func (h *rpioHAL) Backend() string    { return "rpio" }
func (h *rpioHAL) Close() error       { return h.gpio.Close() }

func (g *rpioGPIO) SetMode(pin int, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := rpio.Pin(pin)
	g.pins[pin] = p

	switch mode {
	case Input:
		p.Input()
	case Output:
		p.Output()
	case PWM:
		p.Output()
		g.pwmPins[pin] = &legacyPWM{pin: p, frequency: 1000, dutyCycle: 0}
	default:
		return fmt.Errorf("unsupported pin mode: %v", mode)
	}
	return nil
}

func (g *rpioGPIO) SetPull(pin int, pull PullMode) error {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not initialized", pin)
	}

	switch pull {
	case PullUp:
		p.PullUp()
	case PullDown:
		p.PullDown()
	default:
		p.PullOff()
	}
	return nil
}

func (g *rpioGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("pin %d not initialized", pin)
	}
	return p.Read() == rpio.High, nil
}

func (g *rpioGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	p, ok := g.pins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not initialized", pin)
	}
	if value {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (g *rpioGPIO) PWMWrite(pin int, dutyCycle int) error {
	g.mu.Lock()
	pwm, ok := g.pwmPins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}
	if dutyCycle < 0 || dutyCycle > 255 {
		return fmt.Errorf("PWM value must be 0-255, got %d", dutyCycle)
	}

	pwm.dutyCycle = dutyCycle
	// go-rpio has no hardware PWM register path here; Write approximates
	// duty by driving a static level (high for any duty above 0, low for 0),
	// same limitation the teacher's rpi.go
	// carried (real duty cycling on this backend needs a softPWM goroutine,
	// which is why gpiocdev is preferred whenever the character device exists).
	if dutyCycle > 0 {
		pwm.pin.Write(rpio.High)
	} else {
		pwm.pin.Write(rpio.Low)
	}
	return nil
}

func (g *rpioGPIO) SetPWMFrequency(pin int, freq int) error {
	g.mu.Lock()
	pwm, ok := g.pwmPins[pin]
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}
	if freq <= 0 {
		return fmt.Errorf("frequency must be positive, got %d", freq)
	}
	pwm.frequency = freq
	return nil
}

// WatchEdge is unsupported on the legacy register backend: go-rpio exposes
// no edge-interrupt mechanism, only polled reads. NewAutoHAL tries the
// gpiocdev backend first and selects this one only when character-device
// access fails, so encoder input works whenever gpiocdev is available.
func (g *rpioGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, level bool, tickUs int64)) error {
	return fmt.Errorf("edge watching not supported on the rpio backend")
}

func (g *rpioGPIO) ActivePins() map[int]PinMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := make(map[int]PinMode, len(g.pins))
	for pin := range g.pins {
		if _, isPWM := g.pwmPins[pin]; isPWM {
			result[pin] = PWM
		} else {
			result[pin] = Output
		}
	}
	return result
}

func (g *rpioGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return rpio.Close()
}
