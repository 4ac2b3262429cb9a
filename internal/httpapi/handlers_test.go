package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeflow/motorctl/internal/hal"
	"github.com/edgeflow/motorctl/internal/system"
)

func newTestApp() *fiber.App {
	sys := system.New(hal.NewMockHAL(), 4, 2000)
	app := fiber.New()
	NewHandler(sys).SetupRoutes(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp()
	resp := doJSON(t, app, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPwmSet_ValidRequestSucceeds(t *testing.T) {
	app := newTestApp()
	resp := doJSON(t, app, http.MethodPost, "/api/v1/pwm/set", pwmSetRequest{Pin: 18, Duty: 100, FrequencyHz: 2000, Enabled: true})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPwmSet_OutOfRangeDutyReturns400(t *testing.T) {
	app := newTestApp()
	resp := doJSON(t, app, http.MethodPost, "/api/v1/pwm/set", pwmSetRequest{Pin: 18, Duty: 999, FrequencyHz: 2000, Enabled: true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPwmStop_UnknownPinReturns409(t *testing.T) {
	app := newTestApp()
	resp := doJSON(t, app, http.MethodPost, "/api/v1/pwm/stop", pwmStopRequest{Pin: 5})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSensorEnableThenStatus(t *testing.T) {
	app := newTestApp()
	resp := doJSON(t, app, http.MethodPost, "/api/v1/sensor/enable", sensorEnableRequest{SensorID: 1, Pin: 21})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/sensor/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRpmStart_RequiresEnabledSensor(t *testing.T) {
	app := newTestApp()
	resp := doJSON(t, app, http.MethodPost, "/api/v1/rpm/start", rpmStartRequest{TargetRPM: 30, ControlPin: 18, SensorID: 9})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRpmStart_ThenStop(t *testing.T) {
	app := newTestApp()
	doJSON(t, app, http.MethodPost, "/api/v1/sensor/enable", sensorEnableRequest{SensorID: 1, Pin: 21})

	resp := doJSON(t, app, http.MethodPost, "/api/v1/rpm/start", rpmStartRequest{TargetRPM: 30, ControlPin: 18, SensorID: 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/api/v1/rpm/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsJSON_CountsRequests(t *testing.T) {
	app := newTestApp()
	doJSON(t, app, http.MethodGet, "/api/v1/health", nil)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	api, ok := body["api"].(map[string]interface{})
	require.True(t, ok)
	assert.Greater(t, api["total_requests"], float64(0))
}

func TestMetricsPrometheus_ReturnsPlainText(t *testing.T) {
	app := newTestApp()
	resp := doJSON(t, app, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "motorctl_api_requests_total")
}
