package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/edgeflow/motorctl/internal/config"
	"github.com/edgeflow/motorctl/internal/hal"
	"github.com/edgeflow/motorctl/internal/historian"
	"github.com/edgeflow/motorctl/internal/httpapi"
	motorctllog "github.com/edgeflow/motorctl/internal/logger"
	"github.com/edgeflow/motorctl/internal/mqtttelemetry"
	"github.com/edgeflow/motorctl/internal/system"
	"github.com/edgeflow/motorctl/internal/wstransport"
)

var Version = "0.1.0"

func main() {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Printf("║       motorctl v%-20s ║\n", Version)
	fmt.Println("║   DC motor RPM control server          ║")
	fmt.Println("╚═══════════════════════════════════════╝")

	cfg, err := config.Load(os.Getenv("MOTORCTL_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logCfg := motorctllog.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		LogDir:     cfg.Logger.LogDir,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	}
	if err := motorctllog.Init(logCfg); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer motorctllog.Sync()

	h := hal.NewAutoHAL()
	motorctllog.Info("hardware abstraction layer selected", zap.String("backend", h.Backend()))

	sys := system.New(h, cfg.Controller.BaseKick, cfg.Controller.PWMFrequencyHz)

	for rawID, ppr := range cfg.Sensors.PulsesPerRotation {
		sensorID, err := strconv.Atoi(rawID)
		if err != nil {
			motorctllog.Warn("ignoring malformed sensor id in pulses_per_rotation config",
				zap.String("sensor_id", rawID), zap.Error(err))
			continue
		}
		sys.Encoder.SetCalibration(sensorID, ppr)
	}

	hub := wstransport.NewHub(sys.Bus)

	var telemetry *mqtttelemetry.Publisher
	if cfg.Telemetry.MQTT.Enabled {
		telemetry, err = mqtttelemetry.Start(mqtttelemetry.Config{
			BrokerURL: cfg.Telemetry.MQTT.BrokerURL,
			ClientID:  cfg.Telemetry.MQTT.ClientID,
			Topic:     cfg.Telemetry.MQTT.Topic,
		}, sys.Bus)
		if err != nil {
			motorctllog.Warn("mqtt telemetry disabled: connect failed", zap.Error(err))
		} else {
			defer telemetry.Close()
		}
	}

	var hist *historian.Historian
	if cfg.Telemetry.Influx.Enabled {
		hist, err = historian.Start(historian.Config{
			URL:    cfg.Telemetry.Influx.URL,
			Token:  cfg.Telemetry.Influx.Token,
			Org:    cfg.Telemetry.Influx.Org,
			Bucket: cfg.Telemetry.Influx.Bucket,
		}, sys.Bus)
		if err != nil {
			motorctllog.Warn("historian disabled: connect failed", zap.Error(err))
		} else {
			defer hist.Close()
		}
	}

	app := fiber.New(fiber.Config{
		AppName:               "motorctl v" + Version,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	handler := httpapi.NewHandler(sys)
	handler.SetupRoutes(app)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		hub.HandleWebSocket(c)
	}))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	go func() {
		motorctllog.Info("server starting", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			motorctllog.Fatal("server stopped unexpectedly", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	motorctllog.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		motorctllog.Warn("error shutting down http server", zap.Error(err))
	}
	if err := sys.Shutdown(); err != nil {
		motorctllog.Warn("error shutting down system", zap.Error(err))
	}
}
