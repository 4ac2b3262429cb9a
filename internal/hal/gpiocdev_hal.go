package hal

import "fmt"

// gpiocdevHAL wraps GpiocdevGPIO to satisfy the HAL interface. Kept as a
// thin wrapper so GpiocdevGPIO itself stays a pure GPIOProvider implementation
// usable in isolation by tests.
type gpiocdevHAL struct {
	gpio *GpiocdevGPIO
	info BoardInfo
}

// NewGpiocdevHAL probes board detection then opens the detected chip.
func NewGpiocdevHAL() (HAL, error) {
	info, err := DetectBoard()
	if err != nil {
		return nil, fmt.Errorf("board detection failed: %w", err)
	}

	gpio, err := NewGpiocdevGPIO(info.GPIOChip)
	if err != nil {
		return nil, fmt.Errorf("gpiocdev backend unavailable: %w", err)
	}

	return &gpiocdevHAL{gpio: gpio, info: *info}, nil
}

func (h *gpiocdevHAL) GPIO() GPIOProvider { return h.gpio }
func (h *gpiocdevHAL) Info() BoardInfo    { return h.info }
func (h *gpiocdevHAL) Backend() string    { return "gpiocdev" }
func (h *gpiocdevHAL) Close() error       { return h.gpio.Close() }
