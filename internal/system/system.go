// Package system wires every motor-control component together and owns the
// graceful-shutdown sequence. The components are explicit fields of System
// rather than package-level singletons (spec §9 "Globally mutable state");
// the logger package's global logger and event bus are the exception.
package system

import (
	"github.com/edgeflow/motorctl/internal/encoder"
	"github.com/edgeflow/motorctl/internal/eventbus"
	"github.com/edgeflow/motorctl/internal/hal"
	"github.com/edgeflow/motorctl/internal/logger"
	"github.com/edgeflow/motorctl/internal/pinowner"
	"github.com/edgeflow/motorctl/internal/pwmreg"
	"github.com/edgeflow/motorctl/internal/rpmctl"
)

// System is the fully wired motor-control runtime: one HAL, one pin
// tracker, one PWM Registry, one Encoder Pipeline, one RPM Controller, and
// one Event Bus, all constructed in the order the pin-exclusivity and
// capability-interface invariants require (spec §5, §9).
type System struct {
	HAL        hal.HAL
	Pins       *pinowner.Tracker
	Bus        *eventbus.Bus
	PWM        *pwmreg.Registry
	Encoder    *encoder.Pipeline
	Controller *rpmctl.Controller
}

// New constructs a System over an already-selected HAL backend. baseKick
// and pwmFrequencyHz come from ControllerConfig (spec §9 open question:
// base_kick is a startup-tunable parameter, not a hardcoded constant).
func New(h hal.HAL, baseKick, pwmFrequencyHz int) *System {
	bus := eventbus.New()
	pins := pinowner.New()
	gpio := h.GPIO()

	source := "hardware_interrupt"
	if h.Backend() == "simulation" {
		source = "simulation"
	}

	pwm := pwmreg.New(gpio, pins, bus)
	enc := encoder.New(gpio, pins, bus, source)
	ctrl := rpmctl.New(enc, pwm, bus, baseKick, pwmFrequencyHz)

	logger.SetBus(bus)

	return &System{
		HAL:        h,
		Pins:       pins,
		Bus:        bus,
		PWM:        pwm,
		Encoder:    enc,
		Controller: ctrl,
	}
}

// Shutdown brings every moving part to a safe stop, in the exact order
// spec §5 requires: the RPM Controller first (so it stops writing duty
// cycles), then stop_all() on the PWM Registry, then disable on every
// enabled sensor (releasing its GPIO handle and pin-tracker claim), then
// the HAL backend itself closed. Order matters — stopping the controller
// before zeroing PWM avoids a last write racing the shutdown sequence
// (spec §5's "no lock held across GPIO/bus calls" still applies since each
// of these calls its own internal locking).
func (s *System) Shutdown() error {
	s.Controller.Stop()
	s.PWM.StopAll()
	if err := s.Encoder.DisableAll(); err != nil {
		return err
	}
	return s.HAL.Close()
}
