package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()
	assert.NotNil(t, m)
	assert.False(t, m.startTime.IsZero())
}

func TestIncrementRequests(t *testing.T) {
	m := NewMetrics()
	m.IncrementRequests()
	m.IncrementRequests()
	assert.EqualValues(t, 2, m.TotalRequests)
}

func TestIncrementErrors(t *testing.T) {
	m := NewMetrics()
	m.IncrementErrors()
	assert.EqualValues(t, 1, m.TotalErrors)
}

func TestCommandCounters(t *testing.T) {
	m := NewMetrics()
	m.IncrementRPMStarts()
	m.IncrementRPMStops()
	m.IncrementPWMSets()
	m.IncrementSensorEnables()
	m.IncrementSensorDisables()

	assert.EqualValues(t, 1, m.RPMStarts)
	assert.EqualValues(t, 1, m.RPMStops)
	assert.EqualValues(t, 1, m.PWMSets)
	assert.EqualValues(t, 1, m.SensorEnables)
	assert.EqualValues(t, 1, m.SensorDisables)
}

func TestRecordResponseTime(t *testing.T) {
	m := NewMetrics()

	m.RecordResponseTime(100 * time.Millisecond)
	assert.NotZero(t, m.AvgResponseTime)

	first := m.AvgResponseTime
	m.RecordResponseTime(200 * time.Millisecond)
	assert.NotEqual(t, first, m.AvgResponseTime)
}

func TestUpdateSystemMetrics(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	m.UpdateSystemMetrics()

	assert.NotZero(t, m.Uptime)
	assert.NotZero(t, m.MemoryUsed)
	assert.NotZero(t, m.GoroutineCount)
}

func TestGetMetrics(t *testing.T) {
	m := NewMetrics()
	m.IncrementRPMStarts()
	m.IncrementRequests()

	snapshot := m.GetMetrics()
	require := assert.New(t)
	require.NotNil(snapshot)

	commands, ok := snapshot["commands"].(map[string]interface{})
	require.True(ok)
	require.EqualValues(1, commands["rpm_starts"])
}

func TestPrometheusFormat(t *testing.T) {
	m := NewMetrics()
	m.IncrementRPMStarts()
	m.IncrementPWMSets()

	out := m.PrometheusFormat()
	assert.NotEmpty(t, out)
	assert.True(t, strings.Contains(out, "motorctl_rpm_starts_total"))
	assert.True(t, strings.Contains(out, "motorctl_pwm_sets_total"))
}

func BenchmarkIncrementRequests(b *testing.B) {
	m := NewMetrics()
	for i := 0; i < b.N; i++ {
		m.IncrementRequests()
	}
}

func BenchmarkRecordResponseTime(b *testing.B) {
	m := NewMetrics()
	for i := 0; i < b.N; i++ {
		m.RecordResponseTime(100 * time.Millisecond)
	}
}

func BenchmarkGetMetrics(b *testing.B) {
	m := NewMetrics()
	m.IncrementRequests()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.GetMetrics()
	}
}
