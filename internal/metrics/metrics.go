// Package metrics tracks operational counters for the command surface and
// control loop, exposed both as JSON (GET /api/v1/metrics) and Prometheus
// text exposition format (GET /metrics).
package metrics

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Metrics accumulates counters across the lifetime of the process.
type Metrics struct {
	// Command-surface metrics
	TotalRequests   int64
	TotalErrors     int64
	AvgResponseTime float64

	// Control-loop metrics
	RPMStarts      int64
	RPMStops       int64
	PWMSets        int64
	SensorEnables  int64
	SensorDisables int64

	// System metrics
	Uptime         int64
	MemoryUsed     uint64
	MemoryTotal    uint64
	GoroutineCount int

	mu        sync.RWMutex
	startTime time.Time
}

// NewMetrics constructs a Metrics with its uptime clock started.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// IncrementRequests records one command-surface request.
func (m *Metrics) IncrementRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalRequests++
}

// IncrementErrors records one command-surface request that returned an
// error status.
func (m *Metrics) IncrementErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalErrors++
}

// RecordResponseTime folds duration into an exponential moving average.
func (m *Metrics) RecordResponseTime(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms := float64(duration.Milliseconds())
	if m.AvgResponseTime == 0 {
		m.AvgResponseTime = ms
	} else {
		m.AvgResponseTime = (m.AvgResponseTime * 0.9) + (ms * 0.1)
	}
}

// IncrementRPMStarts records a successful rpm.start command.
func (m *Metrics) IncrementRPMStarts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RPMStarts++
}

// IncrementRPMStops records a successful rpm.stop command.
func (m *Metrics) IncrementRPMStops() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RPMStops++
}

// IncrementPWMSets records a successful pwm.set command.
func (m *Metrics) IncrementPWMSets() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PWMSets++
}

// IncrementSensorEnables records a successful sensor.enable command.
func (m *Metrics) IncrementSensorEnables() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SensorEnables++
}

// IncrementSensorDisables records a successful sensor.disable command.
func (m *Metrics) IncrementSensorDisables() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SensorDisables++
}

// UpdateSystemMetrics refreshes uptime, memory, and goroutine counters from
// the Go runtime.
func (m *Metrics) UpdateSystemMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Uptime = int64(time.Since(m.startTime).Seconds())

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	m.MemoryUsed = memStats.Alloc
	m.MemoryTotal = memStats.Sys

	m.GoroutineCount = runtime.NumGoroutine()
}

// GetMetrics returns a JSON-friendly snapshot.
func (m *Metrics) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"commands": map[string]interface{}{
			"rpm_starts":      m.RPMStarts,
			"rpm_stops":       m.RPMStops,
			"pwm_sets":        m.PWMSets,
			"sensor_enables":  m.SensorEnables,
			"sensor_disables": m.SensorDisables,
		},
		"system": map[string]interface{}{
			"uptime_seconds":     m.Uptime,
			"memory_used_bytes":  m.MemoryUsed,
			"memory_total_bytes": m.MemoryTotal,
			"memory_used_mb":     m.MemoryUsed / 1024 / 1024,
			"goroutines":         m.GoroutineCount,
		},
		"api": map[string]interface{}{
			"total_requests":       m.TotalRequests,
			"total_errors":         m.TotalErrors,
			"avg_response_time_ms": m.AvgResponseTime,
			"error_rate": func() float64 {
				if m.TotalRequests == 0 {
					return 0.0
				}
				return float64(m.TotalErrors) / float64(m.TotalRequests) * 100
			}(),
		},
	}
}

// PrometheusFormat renders the current counters in Prometheus text
// exposition format.
func (m *Metrics) PrometheusFormat() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return `# HELP motorctl_rpm_starts_total Total number of rpm.start commands
# TYPE motorctl_rpm_starts_total counter
motorctl_rpm_starts_total ` + formatInt64(m.RPMStarts) + `

# HELP motorctl_rpm_stops_total Total number of rpm.stop commands
# TYPE motorctl_rpm_stops_total counter
motorctl_rpm_stops_total ` + formatInt64(m.RPMStops) + `

# HELP motorctl_pwm_sets_total Total number of pwm.set commands
# TYPE motorctl_pwm_sets_total counter
motorctl_pwm_sets_total ` + formatInt64(m.PWMSets) + `

# HELP motorctl_sensor_enables_total Total number of sensor.enable commands
# TYPE motorctl_sensor_enables_total counter
motorctl_sensor_enables_total ` + formatInt64(m.SensorEnables) + `

# HELP motorctl_sensor_disables_total Total number of sensor.disable commands
# TYPE motorctl_sensor_disables_total counter
motorctl_sensor_disables_total ` + formatInt64(m.SensorDisables) + `

# HELP motorctl_uptime_seconds Uptime in seconds
# TYPE motorctl_uptime_seconds gauge
motorctl_uptime_seconds ` + formatInt64(m.Uptime) + `

# HELP motorctl_memory_used_bytes Memory used in bytes
# TYPE motorctl_memory_used_bytes gauge
motorctl_memory_used_bytes ` + formatUint64(m.MemoryUsed) + `

# HELP motorctl_goroutines Number of goroutines
# TYPE motorctl_goroutines gauge
motorctl_goroutines ` + formatInt(m.GoroutineCount) + `

# HELP motorctl_api_requests_total Total number of command-surface requests
# TYPE motorctl_api_requests_total counter
motorctl_api_requests_total ` + formatInt64(m.TotalRequests) + `

# HELP motorctl_api_errors_total Total number of command-surface errors
# TYPE motorctl_api_errors_total counter
motorctl_api_errors_total ` + formatInt64(m.TotalErrors) + `

# HELP motorctl_api_response_time_ms Average command-surface response time in milliseconds
# TYPE motorctl_api_response_time_ms gauge
motorctl_api_response_time_ms ` + formatFloat64(m.AvgResponseTime) + `
`
}

// Middleware wraps a fiber handler chain, recording request counts,
// response times, and error rates.
func Middleware(m *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		m.IncrementRequests()

		err := c.Next()

		m.RecordResponseTime(time.Since(start))
		if c.Response().StatusCode() >= 400 {
			m.IncrementErrors()
		}

		return err
	}
}

func formatInt64(n int64) string   { return fmt.Sprintf("%d", n) }
func formatUint64(n uint64) string { return fmt.Sprintf("%d", n) }
func formatInt(n int) string       { return fmt.Sprintf("%d", n) }
func formatFloat64(n float64) string { return fmt.Sprintf("%.2f", n) }
