// Package encoder is the Encoder Pipeline (spec component C): one Sensor
// per enabled input pin, each running debounce, rolling-window pulse-rate
// estimation, and IIR-filtered RPM, all driven from GPIO edge callbacks.
package encoder

import (
	"sync"
	"time"

	"github.com/edgeflow/motorctl/internal/ctrlerr"
	"github.com/edgeflow/motorctl/internal/eventbus"
	"github.com/edgeflow/motorctl/internal/hal"
	"github.com/edgeflow/motorctl/internal/pinowner"
)

const (
	// DefaultPulsesPerRotation is the calibration default; overridable per
	// sensor via Pipeline.SetCalibration (SPEC_FULL §12.5).
	DefaultPulsesPerRotation = 45
	debounceUs               = 5000
	windowSecs               = 1.0
	minWindowSecs            = 0.025
	// filterAlpha is the IIR weight given to each new instantaneous RPM
	// (0.4); the previous filtered value carries the remaining 1-filterAlpha
	// (0.6).
	filterAlpha = 0.4
)

// Snapshot is the read-only view returned by Pipeline.Read.
type Snapshot struct {
	PulseCount      uint64
	RatePPS         float64
	FilteredRPM     float64
	LastPulseWallMs int64
	Enabled         bool
}

// PulseObserved is published on every accepted edge.
type PulseObserved struct {
	SensorID    int
	Pin         int
	PulseCount  uint64
	RatePPS     float64
	FilteredRPM float64
	WallMs      int64
	Source      string
}

func (PulseObserved) EventType() string { return "PulseObserved" }

// SensorState is published whenever a sensor transitions enabled/disabled.
type SensorState struct {
	SensorID int
	Enabled  bool
}

func (SensorState) EventType() string { return "SensorState" }

// sensor is the mutable state for one enabled input pin (spec §3
// EncoderSensor).
type sensor struct {
	mu                sync.Mutex
	id                int
	pin               int
	pulsesPerRotation int
	enabled           bool
	pulseCount        uint64
	lastEdgeTickUs    int64
	haveLastEdge      bool
	window            []int64 // accepted edge ticks, microseconds, strictly increasing
	instantRatePPS    float64
	filteredRPM       float64
	haveFiltered      bool
	lastPulseWallMs   int64
}

// Pipeline owns every enabled sensor and the pin tracker shared with the PWM
// Registry.
type Pipeline struct {
	mu          sync.Mutex
	gpio        hal.GPIOProvider
	pins        *pinowner.Tracker
	bus         *eventbus.Bus
	source      string // "hardware_interrupt" or "simulation"
	sensors     map[int]*sensor
	pinToSensor map[int]int
	calibration map[int]int // sensor-id -> pulses-per-rotation override
}

// New constructs a Pipeline. source should be "simulation" when gpio is
// backed by hal.MockHAL and "hardware_interrupt" otherwise, matching the
// source field spec §6 requires on PulseObserved.
func New(gpio hal.GPIOProvider, pins *pinowner.Tracker, bus *eventbus.Bus, source string) *Pipeline {
	return &Pipeline{
		gpio:        gpio,
		pins:        pins,
		bus:         bus,
		source:      source,
		sensors:     make(map[int]*sensor),
		pinToSensor: make(map[int]int),
		calibration: make(map[int]int),
	}
}

// SetCalibration overrides PULSES_PER_ROTATION for sensorID, taking effect
// the next time it is enabled.
func (p *Pipeline) SetCalibration(sensorID, pulsesPerRotation int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calibration[sensorID] = pulsesPerRotation
}

// Enable opens pin as a pulled-up input, arms rising-edge detection, and
// registers sensorID's state.
func (p *Pipeline) Enable(sensorID, pin int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.sensors[sensorID]; exists {
		return ctrlerr.Preconditionf("sensor %d already enabled", sensorID)
	}
	if err := p.pins.Claim(pin, pinowner.OwnerEncoder); err != nil {
		return err
	}

	if err := p.gpio.SetMode(pin, hal.Input); err != nil {
		p.pins.Release(pin)
		return ctrlerr.Resourcef("failed to configure pin %d as input: %w", pin, err)
	}
	if err := p.gpio.SetPull(pin, hal.PullUp); err != nil {
		p.pins.Release(pin)
		return ctrlerr.Resourcef("failed to set pull-up on pin %d: %w", pin, err)
	}

	ppr := DefaultPulsesPerRotation
	if override, ok := p.calibration[sensorID]; ok && override > 0 {
		ppr = override
	}
	s := &sensor{id: sensorID, pin: pin, pulsesPerRotation: ppr, enabled: true}
	p.sensors[sensorID] = s
	p.pinToSensor[pin] = sensorID

	if err := p.gpio.WatchEdge(pin, hal.EdgeRising, p.onEdge); err != nil {
		delete(p.sensors, sensorID)
		delete(p.pinToSensor, pin)
		p.pins.Release(pin)
		return ctrlerr.Resourcef("failed to arm edge watch on pin %d: %w", pin, err)
	}

	p.bus.Publish(SensorState{SensorID: sensorID, Enabled: true})
	return nil
}

// Disable removes the edge callback, releases pin, and drops sensorID's
// state. Its pulse_count is not kept: Read and Reset report the sensor as not
// enabled afterwards, and a later Enable starts counting from zero.
func (p *Pipeline) Disable(sensorID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sensors[sensorID]
	if !ok {
		return ctrlerr.Preconditionf("sensor %d not enabled", sensorID)
	}

	if err := p.gpio.WatchEdge(s.pin, hal.EdgeNone, nil); err != nil {
		return ctrlerr.Resourcef("failed to disarm edge watch on pin %d: %w", s.pin, err)
	}

	s.mu.Lock()
	s.enabled = false
	s.mu.Unlock()

	delete(p.pinToSensor, s.pin)
	delete(p.sensors, sensorID)
	p.pins.Release(s.pin)

	p.bus.Publish(SensorState{SensorID: sensorID, Enabled: false})
	return nil
}

// DisableAll disarms and releases every currently enabled sensor, used by
// System.Shutdown to release all GPIO handles in shutdown order (spec §6).
func (p *Pipeline) DisableAll() error {
	p.mu.Lock()
	ids := make([]int, 0, len(p.sensors))
	for id := range p.sensors {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		if err := p.Disable(id); err != nil {
			return err
		}
	}
	return nil
}

// Reset zeros pulse_count, empties the rolling window, and zeros
// filtered_rpm for sensorID.
func (p *Pipeline) Reset(sensorID int) error {
	p.mu.Lock()
	s, ok := p.sensors[sensorID]
	p.mu.Unlock()
	if !ok {
		return ctrlerr.Preconditionf("sensor %d not enabled", sensorID)
	}

	s.mu.Lock()
	s.pulseCount = 0
	s.window = nil
	s.instantRatePPS = 0
	s.filteredRPM = 0
	s.haveFiltered = false
	s.haveLastEdge = false
	s.mu.Unlock()
	return nil
}

// Read returns a snapshot of sensorID's current state.
func (p *Pipeline) Read(sensorID int) (Snapshot, error) {
	p.mu.Lock()
	s, ok := p.sensors[sensorID]
	p.mu.Unlock()
	if !ok {
		return Snapshot{}, ctrlerr.Preconditionf("sensor %d not enabled", sensorID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		PulseCount:      s.pulseCount,
		RatePPS:         s.instantRatePPS,
		FilteredRPM:     s.filteredRPM,
		LastPulseWallMs: s.lastPulseWallMs,
		Enabled:         s.enabled,
	}, nil
}

// Status returns a snapshot of every enabled sensor, keyed by sensor ID.
func (p *Pipeline) Status() map[int]Snapshot {
	p.mu.Lock()
	sensors := make([]*sensor, 0, len(p.sensors))
	ids := make([]int, 0, len(p.sensors))
	for id, s := range p.sensors {
		ids = append(ids, id)
		sensors = append(sensors, s)
	}
	p.mu.Unlock()

	out := make(map[int]Snapshot, len(sensors))
	for i, s := range sensors {
		s.mu.Lock()
		out[ids[i]] = Snapshot{
			PulseCount:      s.pulseCount,
			RatePPS:         s.instantRatePPS,
			FilteredRPM:     s.filteredRPM,
			LastPulseWallMs: s.lastPulseWallMs,
			Enabled:         s.enabled,
		}
		s.mu.Unlock()
	}
	return out
}

// ResetFilteredRPM zeros sensorID's filtered RPM and rolling window without
// touching pulse_count — used by the RPM Controller on Start so a stale
// reading from before the loop began doesn't leak into the first tick.
func (p *Pipeline) ResetFilteredRPM(sensorID int) error {
	p.mu.Lock()
	s, ok := p.sensors[sensorID]
	p.mu.Unlock()
	if !ok {
		return ctrlerr.Preconditionf("sensor %d not enabled", sensorID)
	}

	s.mu.Lock()
	s.window = nil
	s.instantRatePPS = 0
	s.filteredRPM = 0
	s.haveFiltered = false
	s.haveLastEdge = false
	s.mu.Unlock()
	return nil
}

// FilteredRPM is the narrow capability interface the RPM Controller uses
// (spec §9 "Cyclic module reference"): it needs only the current filtered
// RPM and whether the sensor is still enabled, not the whole Pipeline API.
func (p *Pipeline) FilteredRPM(sensorID int) (rpm float64, enabled bool, ok bool) {
	p.mu.Lock()
	s, exists := p.sensors[sensorID]
	p.mu.Unlock()
	if !exists {
		return 0, false, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filteredRPM, s.enabled, true
}

// onEdge is the GPIO backend's edge callback, registered per pin by Enable.
// It implements spec §4.C's edge-handling algorithm for rising edges only.
func (p *Pipeline) onEdge(pin int, level bool, tickUs int64) {
	if !level {
		return
	}

	p.mu.Lock()
	sensorID, ok := p.pinToSensor[pin]
	var s *sensor
	if ok {
		s = p.sensors[sensorID]
	}
	p.mu.Unlock()
	if !ok || s == nil {
		return
	}

	s.mu.Lock()
	if s.haveLastEdge && tickUs-s.lastEdgeTickUs < debounceUs {
		s.mu.Unlock()
		return
	}
	s.lastEdgeTickUs = tickUs
	s.haveLastEdge = true
	s.pulseCount++

	s.window = append(s.window, tickUs)
	cutoff := tickUs - int64(windowSecs*1e6)
	evict := 0
	for evict < len(s.window) && s.window[evict] < cutoff {
		evict++
	}
	if evict > 0 {
		s.window = s.window[evict:]
	}

	if len(s.window) >= 2 {
		spanUs := s.window[len(s.window)-1] - s.window[0]
		if float64(spanUs) >= minWindowSecs*1e6 {
			pps := float64(len(s.window)-1) / (float64(spanUs) / 1e6)
			instantRPM := (pps * 60) / float64(s.pulsesPerRotation)

			base := instantRPM
			if s.haveFiltered {
				base = s.filteredRPM
			}
			s.filteredRPM = base*(1-filterAlpha) + instantRPM*filterAlpha
			s.haveFiltered = true
			s.instantRatePPS = pps
		}
	}
	// Window too short: filtered_rpm and instantRatePPS retain their
	// previous values, per spec step 4.

	s.lastPulseWallMs = time.Now().UnixMilli()

	snapshot := PulseObserved{
		SensorID:    s.id,
		Pin:         s.pin,
		PulseCount:  s.pulseCount,
		RatePPS:     s.instantRatePPS,
		FilteredRPM: s.filteredRPM,
		WallMs:      s.lastPulseWallMs,
		Source:      p.source,
	}
	s.mu.Unlock()

	p.bus.Publish(snapshot)
}
