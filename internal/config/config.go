// Package config loads and validates signalwatch configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	alertapp "signalwatch/internal/alerts/application"
	"signalwatch/internal/classifier"
)

// Camera kinds.
const (
	CameraHTTP = "http"
	CameraFile = "file"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Alert transports.
const (
	TransportWebhook = "webhook"
	TransportTwilio  = "twilio"
	TransportLog     = "log"
)

// EnvConfigPath names the variable holding the YAML config path.
const EnvConfigPath = "SIGNALWATCH_CONFIG"

// Config is the full process configuration.
type Config struct {
	HTTPAddr   string            `yaml:"http_addr"`
	SignalName string            `yaml:"signal_name"`
	Camera     CameraConfig      `yaml:"camera"`
	Classifier classifier.Config `yaml:"classifier"`
	Monitor    MonitorConfig     `yaml:"monitor"`
	Alerts     AlertsConfig      `yaml:"alerts"`
	Storage    StorageConfig     `yaml:"storage"`
	Redis      RedisConfig       `yaml:"redis"`
}

// CameraConfig selects the frame source.
type CameraConfig struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
}

// MonitorConfig tunes the monitor loop.
type MonitorConfig struct {
	CycleInterval    time.Duration `yaml:"cycle_interval"`
	TriggerOnRequest bool          `yaml:"trigger_on_request"`
	SnapshotDir      string        `yaml:"snapshot_dir"`
	HistoryLimit     int           `yaml:"history_limit"`
}

// TwilioConfig holds SMS gateway credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
}

// AlertsConfig tunes the alert dispatcher and its transport.
type AlertsConfig struct {
	CooldownWindow   time.Duration `yaml:"cooldown_window"`
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`
	RetryBackoffBase time.Duration `yaml:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `yaml:"retry_backoff_max"`
	SendTimeout      time.Duration `yaml:"send_timeout"`
	Recipient        string        `yaml:"recipient"`
	Transport        string        `yaml:"transport"`
	WebhookURL       string        `yaml:"webhook_url"`
	Template         string        `yaml:"template"`
	Twilio           TwilioConfig  `yaml:"twilio"`
}

// StorageConfig selects the observation log engine.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig enables the status cache when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns the built-in configuration.
func Default() Config {
	dispatch := alertapp.DefaultConfig()
	return Config{
		HTTPAddr:   ":8080",
		SignalName: "traffic signal",
		Camera: CameraConfig{
			Kind:    CameraHTTP,
			Timeout: 5 * time.Second,
		},
		Classifier: classifier.DefaultConfig(),
		Monitor: MonitorConfig{
			CycleInterval: 5 * time.Second,
			SnapshotDir:   "snapshots",
			HistoryLimit:  100,
		},
		Alerts: AlertsConfig{
			CooldownWindow:   dispatch.CooldownWindow,
			MaxRetryAttempts: dispatch.MaxRetryAttempts,
			RetryBackoffBase: dispatch.RetryBackoffBase,
			RetryBackoffMax:  dispatch.RetryBackoffMax,
			SendTimeout:      dispatch.SendTimeout,
			Transport:        TransportLog,
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
			DSN:    "traffic_log.db",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (or $SIGNALWATCH_CONFIG)
// and environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("SIGNALWATCH_HTTP_ADDR", cfg.HTTPAddr)
	cfg.SignalName = getenvDefault("SIGNALWATCH_SIGNAL_NAME", cfg.SignalName)

	cfg.Camera.Kind = getenvDefault("SIGNALWATCH_CAMERA_KIND", cfg.Camera.Kind)
	cfg.Camera.URL = getenvDefault("SIGNALWATCH_CAMERA_URL", cfg.Camera.URL)
	cfg.Camera.Path = getenvDefault("SIGNALWATCH_CAMERA_PATH", cfg.Camera.Path)
	cfg.Camera.Timeout = getenvDuration("SIGNALWATCH_CAMERA_TIMEOUT", cfg.Camera.Timeout)

	cfg.Monitor.CycleInterval = getenvDuration("SIGNALWATCH_CYCLE_INTERVAL", cfg.Monitor.CycleInterval)
	cfg.Monitor.TriggerOnRequest = getenvBool("SIGNALWATCH_TRIGGER_ON_REQUEST", cfg.Monitor.TriggerOnRequest)
	cfg.Monitor.SnapshotDir = getenvDefault("SIGNALWATCH_SNAPSHOT_DIR", cfg.Monitor.SnapshotDir)

	cfg.Alerts.CooldownWindow = getenvDuration("SIGNALWATCH_COOLDOWN_WINDOW", cfg.Alerts.CooldownWindow)
	cfg.Alerts.MaxRetryAttempts = getenvIntDefault("SIGNALWATCH_MAX_RETRY_ATTEMPTS", cfg.Alerts.MaxRetryAttempts)
	cfg.Alerts.Transport = getenvDefault("SIGNALWATCH_ALERT_TRANSPORT", cfg.Alerts.Transport)
	cfg.Alerts.WebhookURL = getenvDefault("SIGNALWATCH_WEBHOOK_URL", cfg.Alerts.WebhookURL)
	cfg.Alerts.Twilio.AccountSID = getenvDefault("TWILIO_SID", cfg.Alerts.Twilio.AccountSID)
	cfg.Alerts.Twilio.AuthToken = getenvDefault("TWILIO_AUTH", cfg.Alerts.Twilio.AuthToken)
	cfg.Alerts.Twilio.From = getenvDefault("TWILIO_FROM", cfg.Alerts.Twilio.From)
	cfg.Alerts.Recipient = getenvDefault("TWILIO_TO", cfg.Alerts.Recipient)

	cfg.Storage.Driver = getenvDefault("SIGNALWATCH_STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.DSN = getenvDefault("SIGNALWATCH_STORAGE_DSN", getenvDefault("DATABASE_URL", cfg.Storage.DSN))

	cfg.Redis.Addr = getenvDefault("SIGNALWATCH_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("SIGNALWATCH_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("SIGNALWATCH_REDIS_DB", cfg.Redis.DB)
}

// Validate checks the configuration once at startup.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: http_addr required")
	}
	switch c.Camera.Kind {
	case CameraHTTP:
		if c.Camera.URL == "" {
			return errors.New("config: camera.url required for http camera")
		}
	case CameraFile:
		if c.Camera.Path == "" {
			return errors.New("config: camera.path required for file camera")
		}
	default:
		return fmt.Errorf("config: unknown camera.kind %q", c.Camera.Kind)
	}
	if c.Camera.Timeout <= 0 {
		return errors.New("config: camera.timeout must be positive")
	}
	if err := c.Classifier.Validate(); err != nil {
		return err
	}
	if c.Monitor.CycleInterval <= 0 {
		return errors.New("config: monitor.cycle_interval must be positive")
	}
	if c.Monitor.HistoryLimit <= 0 {
		return errors.New("config: monitor.history_limit must be positive")
	}
	if err := c.DispatchConfig().Validate(); err != nil {
		return err
	}
	switch c.Alerts.Transport {
	case TransportLog:
	case TransportWebhook:
		if c.Alerts.WebhookURL == "" {
			return errors.New("config: alerts.webhook_url required for webhook transport")
		}
	case TransportTwilio:
		if c.Alerts.Twilio.AccountSID == "" || c.Alerts.Twilio.AuthToken == "" || c.Alerts.Twilio.From == "" {
			return errors.New("config: twilio credentials required (TWILIO_SID, TWILIO_AUTH, TWILIO_FROM)")
		}
		if c.Alerts.Recipient == "" {
			return errors.New("config: alerts.recipient required for twilio transport (TWILIO_TO)")
		}
	default:
		return fmt.Errorf("config: unknown alerts.transport %q", c.Alerts.Transport)
	}
	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite, StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn required for %s", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Redis.DB < 0 {
		return errors.New("config: redis.db must be >= 0")
	}
	return nil
}

// DispatchConfig maps the alert settings onto the dispatcher configuration.
func (c Config) DispatchConfig() alertapp.Config {
	return alertapp.Config{
		CooldownWindow:   c.Alerts.CooldownWindow,
		MaxRetryAttempts: c.Alerts.MaxRetryAttempts,
		RetryBackoffBase: c.Alerts.RetryBackoffBase,
		RetryBackoffMax:  c.Alerts.RetryBackoffMax,
		SendTimeout:      c.Alerts.SendTimeout,
		Recipient:        c.Alerts.Recipient,
		SignalName:       c.SignalName,
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Alerts.Twilio.AuthToken != "" {
		c.Alerts.Twilio.AuthToken = "***"
	}
	if c.Redis.Password != "" {
		c.Redis.Password = "***"
	}
	if c.Storage.Driver == StoragePostgres && c.Storage.DSN != "" {
		c.Storage.DSN = "***"
	}
	return c
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
