package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the motor-control server.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Controller ControllerConfig `mapstructure:"controller"`
	Sensors    SensorsConfig    `mapstructure:"sensors"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig contains the command-surface HTTP/WebSocket bind settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ControllerConfig contains the RPM Controller's startup-tunable parameters
// (spec §9 open question: base_kick is config-tunable, default 4).
type ControllerConfig struct {
	BaseKick       int `mapstructure:"base_kick"`
	PWMFrequencyHz int `mapstructure:"pwm_frequency_hz"`
}

// SensorsConfig holds per-sensor PULSES_PER_ROTATION calibration overrides
// (SPEC_FULL §12.5), keyed by sensor ID as a string so viper/env-var
// unmarshalling works the same way map keys do for the rest of the tree.
type SensorsConfig struct {
	PulsesPerRotation map[string]int `mapstructure:"pulses_per_rotation"`
}

// TelemetryConfig toggles the optional MQTT publisher and InfluxDB historian
// (SPEC_FULL §11); both are disabled unless explicitly turned on.
type TelemetryConfig struct {
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
	Influx InfluxConfig `mapstructure:"influx"`
}

// MQTTConfig contains the optional paho MQTT telemetry publisher settings.
type MQTTConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BrokerURL string `mapstructure:"broker_url"`
	ClientID  string `mapstructure:"client_id"`
	Topic     string `mapstructure:"topic"`
}

// InfluxConfig contains the optional InfluxDB historian settings.
type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

// LoggerConfig contains the zap/lumberjack logging settings.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	LogDir     string `mapstructure:"log_dir"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath(getConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; using defaults.
	}

	v.SetEnvPrefix("MOTORCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("controller.base_kick", 4)
	v.SetDefault("controller.pwm_frequency_hz", 2000)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.log_dir", "./logs")
	v.SetDefault("logger.max_size_mb", 10)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 30)
	v.SetDefault("logger.compress", true)

	v.SetDefault("telemetry.mqtt.enabled", false)
	v.SetDefault("telemetry.mqtt.client_id", "motorctl")
	v.SetDefault("telemetry.mqtt.topic", "motorctl/status")
	v.SetDefault("telemetry.influx.enabled", false)
}

func getConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".motorctl")
}
