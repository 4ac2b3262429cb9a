// Package rpmctl is the RPM Controller (spec component D): the single
// closed loop that samples the Encoder Pipeline's filtered RPM, runs a
// gain-scheduled PID with feed-forward break-away kick and anti-windup, and
// actuates the PWM Registry.
package rpmctl

import (
	"math"
	"sync"
	"time"

	"github.com/edgeflow/motorctl/internal/ctrlerr"
	"github.com/edgeflow/motorctl/internal/eventbus"
)

const (
	updateRateMs        = 100
	errorDeadbandRPM    = 1.0
	lowSpeedThresholdRPM = 20.0
	dt                   = float64(updateRateMs) / 1000.0

	integralClamp = 100.0
	satBleedAfterS = 0.25
	satBleedFactor = 0.7
)

type gains struct{ kp, ki, kd float64 }

var (
	lowSpeedGains  = gains{kp: 0.35, ki: 0.05, kd: 0}
	highSpeedGains = gains{kp: 2.5, ki: 0.35, kd: 0.04}
)

// RPMSource is the narrow view the controller needs of the Encoder Pipeline
// (spec §9 "Cyclic module reference").
type RPMSource interface {
	FilteredRPM(sensorID int) (rpm float64, enabled bool, ok bool)
	ResetFilteredRPM(sensorID int) error
}

// DutyWriter is the narrow view the controller needs of the PWM Registry.
type DutyWriter interface {
	Set(pin, duty, frequencyHz int, enabled bool) error
}

// ControllerStatus is published after every tick, and after start/stop.
type ControllerStatus struct {
	Active     bool
	TargetRPM  float64
	CurrentRPM float64
	CurrentPWM int
	Error      float64
	ControlPin int
	SensorID   int
	WallMs     int64
}

func (ControllerStatus) EventType() string { return "ControllerStatus" }

// ticker abstracts time.Ticker so tests can drive the periodic loop without
// sleeping real wall-clock time.
type ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// newTicker is overridden in tests to inject a fake, manually-advanced clock.
var newTicker = func(d time.Duration) ticker { return realTicker{time.NewTicker(d)} }

// Controller is the single-instance RPM control loop.
type Controller struct {
	rpmSource      RPMSource
	duty           DutyWriter
	bus            *eventbus.Bus
	baseKick       int
	pwmFrequencyHz int

	mu           sync.Mutex
	active       bool
	targetRPM    float64
	currentRPM   float64
	currentPWM   int
	errVal       float64
	controlPin   int
	sensorID     int
	integralTerm float64
	lastError    float64
	satTimerS    float64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an idle Controller. baseKick is the startup-tunable
// feed-forward offset (spec §9 open question, resolved in SPEC_FULL §1 as a
// config value); pwmFrequencyHz is the PWM frequency the controller asks the
// Registry to drive control_pin at (spec's command surface has no per-call
// frequency for rpm.start, so the controller owns a fixed one).
func New(rpmSource RPMSource, duty DutyWriter, bus *eventbus.Bus, baseKick, pwmFrequencyHz int) *Controller {
	return &Controller{
		rpmSource:      rpmSource,
		duty:           duty,
		bus:            bus,
		baseKick:       baseKick,
		pwmFrequencyHz: pwmFrequencyHz,
	}
}

// Start begins (or atomically restarts) the closed loop per spec §4.D.
func (c *Controller) Start(targetRPM float64, controlPin, sensorID int) error {
	if targetRPM <= 0 {
		return ctrlerr.Validationf("target_rpm must be > 0, got %v", targetRPM)
	}
	if controlPin < 0 || controlPin > 27 {
		return ctrlerr.Validationf("control_pin %d out of range [0, 27]", controlPin)
	}
	_, enabled, ok := c.rpmSource.FilteredRPM(sensorID)
	if !ok || !enabled {
		return ctrlerr.Preconditionf("rpm.start requires sensor %d to be enabled", sensorID)
	}

	c.mu.Lock()
	wasActive := c.active
	c.mu.Unlock()
	if wasActive {
		c.Stop()
	}

	_ = c.rpmSource.ResetFilteredRPM(sensorID)

	initialPWM := clampInt(int(math.Round(float64(c.baseKick)+0.15*targetRPM)), 0, 255)

	c.mu.Lock()
	c.active = true
	c.targetRPM = targetRPM
	c.controlPin = controlPin
	c.sensorID = sensorID
	c.integralTerm = 0
	c.satTimerS = 0
	c.lastError = targetRPM
	c.currentPWM = initialPWM
	c.errVal = targetRPM
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	if err := c.duty.Set(controlPin, initialPWM, c.pwmFrequencyHz, true); err != nil {
		// Logged-and-continue per spec §4.D failure semantics; the next
		// tick will retry the write.
		_ = err
	}
	c.publishStatus()

	c.wg.Add(1)
	go c.run(c.stopCh)
	return nil
}

// Stop cancels the tick, zeros control_pin, and transitions to Idle. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	controlPin := c.controlPin
	stopCh := c.stopCh
	c.integralTerm = 0
	c.satTimerS = 0
	c.currentPWM = 0
	c.mu.Unlock()

	close(stopCh)
	c.wg.Wait()

	_ = c.duty.Set(controlPin, 0, c.pwmFrequencyHz, false)
	c.publishStatus()
}

// SetTarget updates target_rpm live; zero stops the loop.
func (c *Controller) SetTarget(newRPM float64) error {
	if newRPM < 0 {
		return ctrlerr.Validationf("target_rpm must be >= 0, got %v", newRPM)
	}
	c.mu.Lock()
	active := c.active
	c.mu.Unlock()

	if newRPM == 0 && active {
		c.Stop()
		return nil
	}

	c.mu.Lock()
	c.targetRPM = newRPM
	c.mu.Unlock()
	return nil
}

// SetParams reroutes control_pin and/or sensor_id without restarting the loop.
func (c *Controller) SetParams(controlPin, sensorID *int) error {
	if controlPin != nil && (*controlPin < 0 || *controlPin > 27) {
		return ctrlerr.Validationf("control_pin %d out of range [0, 27]", *controlPin)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if controlPin != nil {
		c.controlPin = *controlPin
	}
	if sensorID != nil {
		c.sensorID = *sensorID
	}
	return nil
}

// Status returns the current ControllerStatus snapshot.
func (c *Controller) Status() ControllerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ControllerStatus{
		Active:     c.active,
		TargetRPM:  c.targetRPM,
		CurrentRPM: c.currentRPM,
		CurrentPWM: c.currentPWM,
		Error:      c.errVal,
		ControlPin: c.controlPin,
		SensorID:   c.sensorID,
		WallMs:     time.Now().UnixMilli(),
	}
}

func (c *Controller) run(stopCh chan struct{}) {
	defer c.wg.Done()
	t := newTicker(updateRateMs * time.Millisecond)
	defer t.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-t.C():
			c.Tick()
		}
	}
}

// Tick runs one periodic controller step (spec §4.D). Exported so tests can
// drive the control law deterministically without a real 100ms ticker.
func (c *Controller) Tick() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	sensorID := c.sensorID
	controlPin := c.controlPin
	targetRPM := c.targetRPM
	lastError := c.lastError
	integralTerm := c.integralTerm
	satTimerS := c.satTimerS
	c.mu.Unlock()

	currentRPM, _, ok := c.rpmSource.FilteredRPM(sensorID)
	if !ok {
		currentRPM = 0
	}
	errVal := targetRPM - currentRPM

	if math.Abs(errVal) < errorDeadbandRPM {
		c.mu.Lock()
		c.currentRPM = currentRPM
		c.errVal = errVal
		currentPWM := c.currentPWM
		c.mu.Unlock()
		_ = c.duty.Set(controlPin, currentPWM, c.pwmFrequencyHz, true)
		c.publishStatus()
		return
	}

	g := highSpeedGains
	if targetRPM < lowSpeedThresholdRPM {
		g = lowSpeedGains
	}

	p := g.kp * errVal
	integralTerm = clampFloat(integralTerm+g.ki*errVal*dt, -integralClamp, integralClamp)

	d := 0.0
	if lastError != targetRPM {
		d = g.kd * (errVal - lastError) / dt
	}

	u := p + integralTerm + d

	kick := float64(c.baseKick) + 0.15*targetRPM
	if errVal > 0 && u < kick {
		u = kick
	}

	minAllowed := 0.0
	if errVal > 0 {
		minAllowed = kick
	}
	u = clampFloat(u, minAllowed, 255)
	currentPWM := int(math.Round(u))

	if currentPWM == 0 || currentPWM == 255 {
		satTimerS += dt
	} else {
		satTimerS = 0
	}
	if satTimerS > satBleedAfterS {
		integralTerm *= satBleedFactor
	}

	if err := c.duty.Set(controlPin, currentPWM, c.pwmFrequencyHz, true); err != nil {
		// Logged-and-continue: next tick retries per spec §4.D.
		_ = err
	}

	c.mu.Lock()
	c.currentRPM = currentRPM
	c.currentPWM = currentPWM
	c.errVal = errVal
	c.integralTerm = integralTerm
	c.satTimerS = satTimerS
	c.lastError = errVal
	c.mu.Unlock()

	c.publishStatus()
}

func (c *Controller) publishStatus() {
	c.bus.Publish(c.Status())
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
