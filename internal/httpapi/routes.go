// Package httpapi is the command surface (spec §6): one fiber route per
// row of the command table, translating HTTP JSON bodies to the CORE's Go
// method calls on system.System.
package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/edgeflow/motorctl/internal/metrics"
)

// SetupRoutes registers every command-surface route on app.
func (h *Handler) SetupRoutes(app *fiber.App) {
	app.Use(metrics.Middleware(h.metrics))

	app.Get("/api/v1/health", h.healthCheck)
	app.Get("/api/v1/metrics", h.metricsJSON)
	app.Get("/metrics", h.metricsPrometheus)

	pwm := app.Group("/api/v1/pwm")
	pwm.Post("/set", h.pwmSet)
	pwm.Post("/stop", h.pwmStop)
	pwm.Post("/stop_all", h.pwmStopAll)
	pwm.Get("/status", h.pwmStatus)

	sensor := app.Group("/api/v1/sensor")
	sensor.Post("/enable", h.sensorEnable)
	sensor.Post("/disable", h.sensorDisable)
	sensor.Post("/reset", h.sensorReset)
	sensor.Get("/status", h.sensorStatus)

	rpm := app.Group("/api/v1/rpm")
	rpm.Post("/start", h.rpmStart)
	rpm.Post("/stop", h.rpmStop)
	rpm.Post("/set_target", h.rpmSetTarget)
	rpm.Post("/set_params", h.rpmSetParams)
	rpm.Get("/status", h.rpmStatus)
}

func (h *Handler) healthCheck(c *fiber.Ctx) error {
	h.health.RunChecks(c.Context())
	results := h.health.GetCheckResults()
	results["service"] = "motorctl"
	results["backend"] = h.sys.HAL.Backend()
	return c.JSON(results)
}
