package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/edgeflow/motorctl/internal/ctrlerr"
	"github.com/edgeflow/motorctl/internal/health"
	"github.com/edgeflow/motorctl/internal/metrics"
	"github.com/edgeflow/motorctl/internal/system"
)

// Handler holds the wired System every command-surface route delegates to.
type Handler struct {
	sys     *system.System
	metrics *metrics.Metrics
	health  *health.HealthChecker
}

// NewHandler constructs a Handler over sys.
func NewHandler(sys *system.System) *Handler {
	h := &Handler{sys: sys, metrics: metrics.NewMetrics(), health: health.NewHealthChecker()}

	h.health.RegisterCheck("hal", health.HALHealthCheck(func() error {
		sys.HAL.GPIO().ActivePins()
		return nil
	}), 30*time.Second)
	h.health.RegisterCheck("memory", health.MemoryHealthCheck(func() (used, total uint64) {
		h.metrics.UpdateSystemMetrics()
		return h.metrics.MemoryUsed, h.metrics.MemoryTotal
	}), 30*time.Second)
	h.health.RegisterCheck("goroutines", health.GoroutineHealthCheck(func() int {
		h.metrics.UpdateSystemMetrics()
		return h.metrics.GoroutineCount
	}, 10000), 30*time.Second)

	return h
}

// respondErr maps the CORE's typed error taxonomy (spec §7) onto HTTP
// status codes.
func respondErr(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch err.(type) {
	case *ctrlerr.ValidationError:
		status = fiber.StatusBadRequest
	case *ctrlerr.PreconditionError:
		status = fiber.StatusConflict
	case *ctrlerr.ConflictError:
		status = fiber.StatusConflict
	case *ctrlerr.ResourceError:
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// --- pwm.* ---

type pwmSetRequest struct {
	Pin         int  `json:"pin"`
	Duty        int  `json:"duty"`
	FrequencyHz int  `json:"frequency"`
	Enabled     bool `json:"enabled"`
}

func (h *Handler) pwmSet(c *fiber.Ctx) error {
	var req pwmSetRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ctrlerr.Validationf("invalid request body: %v", err))
	}
	if err := h.sys.PWM.Set(req.Pin, req.Duty, req.FrequencyHz, req.Enabled); err != nil {
		return respondErr(c, err)
	}
	h.metrics.IncrementPWMSets()
	return c.JSON(fiber.Map{"ok": true})
}

type pwmStopRequest struct {
	Pin int `json:"pin"`
}

func (h *Handler) pwmStop(c *fiber.Ctx) error {
	var req pwmStopRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ctrlerr.Validationf("invalid request body: %v", err))
	}
	if err := h.sys.PWM.Stop(req.Pin); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handler) pwmStopAll(c *fiber.Ctx) error {
	stopped := h.sys.PWM.StopAll()
	return c.JSON(fiber.Map{"stopped_pins": stopped})
}

func (h *Handler) pwmStatus(c *fiber.Ctx) error {
	return c.JSON(h.sys.PWM.Status())
}

// --- sensor.* ---

type sensorEnableRequest struct {
	SensorID int `json:"sensor_id"`
	Pin      int `json:"pin"`
}

func (h *Handler) sensorEnable(c *fiber.Ctx) error {
	var req sensorEnableRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ctrlerr.Validationf("invalid request body: %v", err))
	}
	if err := h.sys.Encoder.Enable(req.SensorID, req.Pin); err != nil {
		return respondErr(c, err)
	}
	h.metrics.IncrementSensorEnables()
	return c.JSON(fiber.Map{"ok": true})
}

type sensorIDRequest struct {
	SensorID int `json:"sensor_id"`
}

func (h *Handler) sensorDisable(c *fiber.Ctx) error {
	var req sensorIDRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ctrlerr.Validationf("invalid request body: %v", err))
	}
	if err := h.sys.Encoder.Disable(req.SensorID); err != nil {
		return respondErr(c, err)
	}
	h.metrics.IncrementSensorDisables()
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handler) sensorReset(c *fiber.Ctx) error {
	var req sensorIDRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ctrlerr.Validationf("invalid request body: %v", err))
	}
	if err := h.sys.Encoder.Reset(req.SensorID); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handler) sensorStatus(c *fiber.Ctx) error {
	return c.JSON(h.sys.Encoder.Status())
}

// --- rpm.* ---

type rpmStartRequest struct {
	TargetRPM  float64 `json:"target_rpm"`
	ControlPin int     `json:"control_pin"`
	SensorID   int     `json:"sensor_id"`
}

func (h *Handler) rpmStart(c *fiber.Ctx) error {
	var req rpmStartRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ctrlerr.Validationf("invalid request body: %v", err))
	}
	if err := h.sys.Controller.Start(req.TargetRPM, req.ControlPin, req.SensorID); err != nil {
		return respondErr(c, err)
	}
	h.metrics.IncrementRPMStarts()
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handler) rpmStop(c *fiber.Ctx) error {
	h.sys.Controller.Stop()
	h.metrics.IncrementRPMStops()
	return c.JSON(fiber.Map{"ok": true})
}

type rpmSetTargetRequest struct {
	TargetRPM float64 `json:"target_rpm"`
}

func (h *Handler) rpmSetTarget(c *fiber.Ctx) error {
	var req rpmSetTargetRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ctrlerr.Validationf("invalid request body: %v", err))
	}
	if err := h.sys.Controller.SetTarget(req.TargetRPM); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

type rpmSetParamsRequest struct {
	ControlPin *int `json:"control_pin"`
	SensorID   *int `json:"sensor_id"`
}

func (h *Handler) rpmSetParams(c *fiber.Ctx) error {
	var req rpmSetParamsRequest
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, ctrlerr.Validationf("invalid request body: %v", err))
	}
	if err := h.sys.Controller.SetParams(req.ControlPin, req.SensorID); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *Handler) rpmStatus(c *fiber.Ctx) error {
	return c.JSON(h.sys.Controller.Status())
}

// --- observability ---

func (h *Handler) metricsJSON(c *fiber.Ctx) error {
	h.metrics.UpdateSystemMetrics()
	return c.JSON(h.metrics.GetMetrics())
}

func (h *Handler) metricsPrometheus(c *fiber.Ctx) error {
	h.metrics.UpdateSystemMetrics()
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlain)
	return c.SendString(h.metrics.PrometheusFormat())
}
