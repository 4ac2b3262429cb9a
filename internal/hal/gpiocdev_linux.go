//go:build linux
// +build linux

package hal

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GpiocdevGPIO implements GPIOProvider using the Linux GPIO character device
// interface via go-gpiocdev. This works on both Pi 4 (gpiochip0) and
// Pi 5 (gpiochip4 / RP1 southbridge).
type GpiocdevGPIO struct {
	mu       sync.Mutex
	chipName string
	epoch    time.Time
	lines    map[int]*gpiocdev.Line
	pinModes map[int]PinMode
	pinPulls map[int]PullMode
	pwm      map[int]*softPWM
	watchers map[int]context.CancelFunc
}

// softPWM implements software PWM using a goroutine that toggles the output
// line. The character-device interface has no hardware PWM path.
type softPWM struct {
	mu        sync.Mutex
	line      *gpiocdev.Line
	frequency int // Hz
	dutyCycle int // 0-255
	cancel    context.CancelFunc
}

// NewGpiocdevGPIO opens chipName to verify it exists, then returns a
// provider bound to it. The chip is re-opened per line by RequestLine.
func NewGpiocdevGPIO(chipName string) (*GpiocdevGPIO, error) {
	c, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipName, err)
	}
	c.Close()

	return &GpiocdevGPIO{
		chipName: chipName,
		epoch:    time.Now(),
		lines:    make(map[int]*gpiocdev.Line),
		pinModes: make(map[int]PinMode),
		pinPulls: make(map[int]PullMode),
		pwm:      make(map[int]*softPWM),
		watchers: make(map[int]context.CancelFunc),
	}, nil
}

func (g *GpiocdevGPIO) SetMode(pin int, mode PinMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.closeLineLocked(pin); err != nil {
		return err
	}

	var opts []gpiocdev.LineReqOption
	if pull, ok := g.pinPulls[pin]; ok {
		opts = append(opts, pullOption(pull))
	}

	switch mode {
	case Input:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsInput}, opts...)
		line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
		if err != nil {
			return fmt.Errorf("failed to request pin %d as input: %w", pin, err)
		}
		g.lines[pin] = line

	case Output:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}, opts...)
		line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
		if err != nil {
			return fmt.Errorf("failed to request pin %d as output: %w", pin, err)
		}
		g.lines[pin] = line

	case PWM:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}, opts...)
		line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
		if err != nil {
			return fmt.Errorf("failed to request pin %d for PWM: %w", pin, err)
		}
		g.lines[pin] = line

		ctx, cancel := context.WithCancel(context.Background())
		sp := &softPWM{line: line, frequency: 1000, dutyCycle: 0, cancel: cancel}
		g.pwm[pin] = sp
		go sp.run(ctx)

	default:
		return fmt.Errorf("unsupported pin mode: %v", mode)
	}

	g.pinModes[pin] = mode
	return nil
}

func (g *GpiocdevGPIO) SetPull(pin int, pull PullMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pinPulls[pin] = pull

	_, ok := g.lines[pin]
	if !ok {
		return nil
	}
	mode, modeOk := g.pinModes[pin]
	if !modeOk {
		return nil
	}

	if err := g.closeLineLocked(pin); err != nil {
		return fmt.Errorf("failed to close pin %d for pull reconfigure: %w", pin, err)
	}

	opts := []gpiocdev.LineReqOption{pullOption(pull)}
	switch mode {
	case Input:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsInput}, opts...)
	case Output, PWM:
		opts = append([]gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}, opts...)
	}

	line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
	if err != nil {
		return fmt.Errorf("failed to re-request pin %d with pull %v: %w", pin, pull, err)
	}
	g.lines[pin] = line
	return nil
}

func (g *GpiocdevGPIO) DigitalRead(pin int) (bool, error) {
	g.mu.Lock()
	line, ok := g.lines[pin]
	g.mu.Unlock()

	if !ok {
		return false, fmt.Errorf("pin %d not initialized", pin)
	}
	val, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read pin %d: %w", pin, err)
	}
	return val != 0, nil
}

func (g *GpiocdevGPIO) DigitalWrite(pin int, value bool) error {
	g.mu.Lock()
	line, ok := g.lines[pin]
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin %d not initialized", pin)
	}
	v := 0
	if value {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("failed to write pin %d: %w", pin, err)
	}
	return nil
}

func (g *GpiocdevGPIO) PWMWrite(pin int, dutyCycle int) error {
	g.mu.Lock()
	sp, ok := g.pwm[pin]
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}
	if dutyCycle < 0 || dutyCycle > 255 {
		return fmt.Errorf("PWM value must be 0-255, got %d", dutyCycle)
	}

	sp.mu.Lock()
	sp.dutyCycle = dutyCycle
	sp.mu.Unlock()
	return nil
}

func (g *GpiocdevGPIO) SetPWMFrequency(pin int, freq int) error {
	g.mu.Lock()
	sp, ok := g.pwm[pin]
	g.mu.Unlock()

	if !ok {
		return fmt.Errorf("pin %d not configured for PWM", pin)
	}
	if freq <= 0 {
		return fmt.Errorf("frequency must be positive, got %d", freq)
	}

	sp.mu.Lock()
	sp.frequency = freq
	sp.mu.Unlock()
	return nil
}

// WatchEdge arms edge detection and delivers every matching transition to
// callback with a tick measured in microseconds since the provider was
// created — monotonic and cheap enough to call from the kernel event
// dispatch goroutine without touching the wall clock per event.
func (g *GpiocdevGPIO) WatchEdge(pin int, edge EdgeMode, callback func(pin int, level bool, tickUs int64)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cancel, ok := g.watchers[pin]; ok {
		cancel()
		delete(g.watchers, pin)
	}
	if err := g.closeLineLocked(pin); err != nil {
		return err
	}

	if edge == EdgeNone {
		line, err := gpiocdev.RequestLine(g.chipName, pin, gpiocdev.AsInput)
		if err != nil {
			return fmt.Errorf("failed to request pin %d as input: %w", pin, err)
		}
		g.lines[pin] = line
		g.pinModes[pin] = Input
		return nil
	}

	pinNum := pin
	epoch := g.epoch
	handler := func(evt gpiocdev.LineEvent) {
		level := evt.Type == gpiocdev.LineEventRisingEdge
		callback(pinNum, level, time.Since(epoch).Microseconds())
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.WithEventHandler(handler)}
	if pull, ok := g.pinPulls[pin]; ok {
		opts = append(opts, pullOption(pull))
	}
	switch edge {
	case EdgeRising:
		opts = append(opts, gpiocdev.WithRisingEdge)
	case EdgeFalling:
		opts = append(opts, gpiocdev.WithFallingEdge)
	case EdgeBoth:
		opts = append(opts, gpiocdev.WithBothEdges)
	}

	line, err := gpiocdev.RequestLine(g.chipName, pin, opts...)
	if err != nil {
		return fmt.Errorf("failed to watch edge on pin %d: %w", pin, err)
	}
	g.lines[pin] = line
	g.pinModes[pin] = Input

	_, cancel := context.WithCancel(context.Background())
	g.watchers[pin] = cancel
	return nil
}

func (g *GpiocdevGPIO) ActivePins() map[int]PinMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	result := make(map[int]PinMode, len(g.pinModes))
	for pin, mode := range g.pinModes {
		result[pin] = mode
	}
	return result
}

func (g *GpiocdevGPIO) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for pin, sp := range g.pwm {
		sp.cancel()
		delete(g.pwm, pin)
	}
	for pin, cancel := range g.watchers {
		cancel()
		delete(g.watchers, pin)
	}
	for pin, line := range g.lines {
		line.Close()
		delete(g.lines, pin)
	}
	return nil
}

// closeLineLocked closes the line for pin. Caller must hold g.mu.
func (g *GpiocdevGPIO) closeLineLocked(pin int) error {
	if sp, ok := g.pwm[pin]; ok {
		sp.cancel()
		delete(g.pwm, pin)
	}
	if cancel, ok := g.watchers[pin]; ok {
		cancel()
		delete(g.watchers, pin)
	}
	if line, ok := g.lines[pin]; ok {
		line.Close()
		delete(g.lines, pin)
	}
	delete(g.pinModes, pin)
	return nil
}

func pullOption(pull PullMode) gpiocdev.LineReqOption {
	switch pull {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func (sp *softPWM) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			sp.line.SetValue(0)
			return
		default:
		}

		sp.mu.Lock()
		duty := sp.dutyCycle
		freq := sp.frequency
		sp.mu.Unlock()

		if freq <= 0 {
			freq = 1000
		}
		periodUs := int64(1000000) / int64(freq)

		if duty <= 0 {
			sp.line.SetValue(0)
			sleepMicroseconds(ctx, periodUs)
			continue
		}
		if duty >= 255 {
			sp.line.SetValue(1)
			sleepMicroseconds(ctx, periodUs)
			continue
		}

		onUs := periodUs * int64(duty) / 255
		offUs := periodUs - onUs

		sp.line.SetValue(1)
		sleepMicroseconds(ctx, onUs)
		sp.line.SetValue(0)
		sleepMicroseconds(ctx, offUs)
	}
}

func sleepMicroseconds(ctx context.Context, us int64) {
	if us <= 0 {
		return
	}
	t := time.NewTimer(time.Duration(us) * time.Microsecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
