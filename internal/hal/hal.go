// Package hal is the thin hardware abstraction layer over the board's GPIO
// lines. It exposes output (PWM) and input (edge-watched) capabilities
// behind a single interface so the PWM Registry and Encoder Pipeline never
// need to know whether they're driving real silicon or a simulation.
package hal

// PinMode is the electrical mode a GPIO line is configured for.
type PinMode int

const (
	Input PinMode = iota
	Output
	PWM
)

// PullMode is the pull resistor configuration for an input pin.
type PullMode int

const (
	PullNone PullMode = iota
	PullUp
	PullDown
)

// EdgeMode selects which electrical transitions raise a watch callback.
type EdgeMode int

const (
	EdgeNone EdgeMode = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// GPIOProvider is the hardware-or-simulated GPIO capability. Implementations
// must be safe for concurrent use: DigitalWrite/PWMWrite are called from the
// control loop and command handlers, while WatchEdge callbacks fire from a
// backend-owned goroutine.
type GPIOProvider interface {
	// SetMode configures the electrical mode of pin.
	SetMode(pin int, mode PinMode) error
	// SetPull configures the pull resistor of an input pin.
	SetPull(pin int, pull PullMode) error
	// DigitalRead reads the current logic level of pin.
	DigitalRead(pin int) (bool, error)
	// DigitalWrite drives pin to value.
	DigitalWrite(pin int, value bool) error
	// PWMWrite sets the duty cycle (0-255) of a pin in PWM mode.
	PWMWrite(pin int, value int) error
	// SetPWMFrequency sets the PWM frequency, in Hz, of a pin in PWM mode.
	SetPWMFrequency(pin int, freq int) error
	// WatchEdge arms edge detection on pin; callback fires on a
	// backend-owned goroutine for every transition matching edge, with a
	// monotonic microsecond tick suitable for debounce arithmetic. Passing
	// EdgeNone disarms the watch.
	WatchEdge(pin int, edge EdgeMode, callback func(pin int, level bool, tickUs int64)) error
	// ActivePins reports every pin currently configured and its mode.
	ActivePins() map[int]PinMode
	// Close releases every line owned by this provider.
	Close() error
}

// HAL is the hardware abstraction layer for the whole board. Only the GPIO
// capability is exposed here: this system's CORE has no I2C/SPI sensors.
type HAL interface {
	// GPIO returns the GPIO capability.
	GPIO() GPIOProvider
	// Info reports static information about the detected board.
	Info() BoardInfo
	// Backend names the active concrete implementation ("gpiocdev", "rpio",
	// or "simulation") for status reporting.
	Backend() string
	// Close releases every resource held by the HAL.
	Close() error
}
