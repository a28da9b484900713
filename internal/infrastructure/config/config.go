package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the LiteTouch bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Panel    PanelConfig    `yaml:"panel"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite settings for the command audit log.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Output "file" or "both" writes here, rotated by size.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// PanelConfig contains the LiteTouch panel link settings.
type PanelConfig struct {
	// Host and Port address the panel's TCP socket.
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// SerialPort selects an RS-232 link instead of TCP when set,
	// e.g. "/dev/ttyUSB0".
	SerialPort string `yaml:"serial_port"`

	// BaudRate for the serial link. Default: 9600
	BaudRate int `yaml:"baud_rate"`

	// PollIntervalMS is the read wait and reconnect delay. Default: 1000
	PollIntervalMS int `yaml:"poll_interval_ms"`

	// KeepaliveIntervals is the number of idle polls before the event
	// subscription is re-sent. Default: 120
	KeepaliveIntervals int `yaml:"keepalive_intervals"`

	// QueryTimeoutMS bounds an LED query. Default: 3000
	QueryTimeoutMS int `yaml:"query_timeout_ms"`

	// SubscribeMask is the SIEVN event mask. Default: 7
	SubscribeMask int `yaml:"subscribe_mask"`

	// ConnectTimeout bounds a single dial, in seconds. Default: 10
	ConnectTimeout int `yaml:"connect_timeout"`
}

// BridgeConfig contains MQTT bridge settings.
type BridgeConfig struct {
	ID string `yaml:"id"`

	// HealthInterval is how often health is published, in seconds.
	HealthInterval int `yaml:"health_interval"`

	// ConfigFile is the path to the device map (loads and buttons).
	ConfigFile string `yaml:"config_file"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LITETOUCH_SECTION_KEY
// For example: LITETOUCH_PANEL_HOST, LITETOUCH_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Read loads defaults, the YAML file and environment overrides without
// validating, so callers can layer command-line flags on top first.
func Read(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. Used by CLI commands run without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/litetouch.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "litetouch-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "litetouch",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/litetouch.log",
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     28,
			},
		},
		Panel: PanelConfig{
			Port:               10001,
			BaudRate:           9600,
			PollIntervalMS:     1000,
			KeepaliveIntervals: 120,
			QueryTimeoutMS:     3000,
			SubscribeMask:      7,
			ConnectTimeout:     10,
		},
		Bridge: BridgeConfig{
			ID:             "litetouch-bridge-01",
			HealthInterval: 30,
			ConfigFile:     "./configs/devices.yaml",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LITETOUCH_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Panel
	if v := os.Getenv("LITETOUCH_PANEL_HOST"); v != "" {
		cfg.Panel.Host = v
	}
	if v := os.Getenv("LITETOUCH_PANEL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Panel.Port = port
		}
	}
	if v := os.Getenv("LITETOUCH_PANEL_SERIAL_PORT"); v != "" {
		cfg.Panel.SerialPort = v
	}

	// Database
	if v := os.Getenv("LITETOUCH_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("LITETOUCH_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LITETOUCH_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LITETOUCH_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LITETOUCH_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("LITETOUCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	switch c.Logging.Output {
	case "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, "logging.output must be stdout, stderr, file, or both")
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.File.Path == "" {
		errs = append(errs, "logging.file.path is required for file output")
	}

	errs = append(errs, c.Panel.validate()...)

	if c.Bridge.HealthInterval < 0 {
		errs = append(errs, "bridge.health_interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (p PanelConfig) validate() []string {
	var errs []string

	if p.SerialPort == "" {
		if p.Host == "" {
			errs = append(errs, "panel.host or panel.serial_port is required (set LITETOUCH_PANEL_HOST)")
		}
		if p.Port < 1 || p.Port > 65535 {
			errs = append(errs, "panel.port must be between 1 and 65535")
		}
	} else if p.BaudRate <= 0 {
		errs = append(errs, "panel.baud_rate must be positive")
	}

	if p.PollIntervalMS <= 0 {
		errs = append(errs, "panel.poll_interval_ms must be positive")
	}
	if p.KeepaliveIntervals <= 0 {
		errs = append(errs, "panel.keepalive_intervals must be positive")
	}
	if p.QueryTimeoutMS <= 0 {
		errs = append(errs, "panel.query_timeout_ms must be positive")
	}
	if p.SubscribeMask < 0 {
		errs = append(errs, "panel.subscribe_mask must not be negative")
	}

	return errs
}

// Address returns the panel endpoint for display: host:port or the
// serial device.
func (p PanelConfig) Address() string {
	if p.SerialPort != "" {
		return p.SerialPort
	}
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// GetPollInterval returns the panel polling interval as a Duration.
func (c *Config) GetPollInterval() time.Duration {
	return time.Duration(c.Panel.PollIntervalMS) * time.Millisecond
}

// GetQueryTimeout returns the LED query timeout as a Duration.
func (c *Config) GetQueryTimeout() time.Duration {
	return time.Duration(c.Panel.QueryTimeoutMS) * time.Millisecond
}

// GetConnectTimeout returns the panel dial timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Panel.ConnectTimeout) * time.Second
}

// GetHealthInterval returns the bridge health interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}
