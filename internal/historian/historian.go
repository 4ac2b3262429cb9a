// Package historian is an optional subscriber that writes PulseObserved
// and ControllerStatus events to InfluxDB as time-series points, for
// after-the-fact analysis of control-loop behavior. cmd/motorctl starts it
// only when telemetry.influx.enabled is set (SPEC_FULL §11); writing it is
// fire-and-forget —
// a failed write is logged, never surfaced to the control loop.
package historian

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.uber.org/zap"

	"github.com/edgeflow/motorctl/internal/encoder"
	"github.com/edgeflow/motorctl/internal/eventbus"
	"github.com/edgeflow/motorctl/internal/logger"
	"github.com/edgeflow/motorctl/internal/rpmctl"
)

// Config holds the InfluxDB connection and destination settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// pointWriter is the narrow slice of api.WriteAPI the Historian needs,
// satisfied by the real non-blocking InfluxDB write API and by fakes in
// tests.
type pointWriter interface {
	WritePoint(point *write.Point)
}

// Historian subscribes to bus and writes points through a non-blocking
// InfluxDB write API.
type Historian struct {
	writeAPI    pointWriter
	unsubscribe func()
	closeFn     func()
}

// Start connects to InfluxDB and begins writing points from bus.
func Start(cfg Config, bus *eventbus.Bus) (*Historian, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Health(ctx); err != nil {
		client.Close()
		return nil, err
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	errCh := writeAPI.Errors()
	go func() {
		for err := range errCh {
			logger.Warn("historian write error", zap.Error(err))
		}
	}()

	return newHistorian(writeAPI, func() { writeAPI.Flush(); client.Close() }, bus), nil
}

func newHistorian(writeAPI pointWriter, closeFn func(), bus *eventbus.Bus) *Historian {
	ch, unsubscribe := bus.Subscribe(64)
	h := &Historian{writeAPI: writeAPI, unsubscribe: unsubscribe, closeFn: closeFn}
	go h.run(ch)
	return h
}

func (h *Historian) run(ch <-chan eventbus.Envelope) {
	for env := range ch {
		switch ev := env.Event.(type) {
		case encoder.PulseObserved:
			h.writeAPI.WritePoint(write.NewPoint(
				"pulse_observed",
				map[string]string{"sensor_id": strconv.Itoa(ev.SensorID), "source": ev.Source},
				map[string]interface{}{
					"pulse_count":  ev.PulseCount,
					"rate_pps":     ev.RatePPS,
					"filtered_rpm": ev.FilteredRPM,
				},
				time.UnixMilli(ev.WallMs),
			))
		case rpmctl.ControllerStatus:
			h.writeAPI.WritePoint(write.NewPoint(
				"controller_status",
				map[string]string{"sensor_id": strconv.Itoa(ev.SensorID), "control_pin": strconv.Itoa(ev.ControlPin)},
				map[string]interface{}{
					"active":      ev.Active,
					"target_rpm":  ev.TargetRPM,
					"current_rpm": ev.CurrentRPM,
					"current_pwm": ev.CurrentPWM,
					"error":       ev.Error,
				},
				time.UnixMilli(ev.WallMs),
			))
		}
	}
}

// Close flushes pending points and closes the client.
func (h *Historian) Close() {
	h.unsubscribe()
	h.closeFn()
}
