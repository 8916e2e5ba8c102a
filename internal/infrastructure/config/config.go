package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reading metric names. These are the keys of ReadingsConfig and the names
// used throughout the advisor for live values and baselines.
const (
	MetricConsumption = "consumption"
	MetricWaterFlow   = "water_flow"
	MetricBatterySOC  = "battery_soc"
	MetricOutsideTemp = "outside_temp"
	MetricGridImport  = "grid_import"
	MetricPVPower     = "pv_power"
)

// Store backend kinds.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"
)

// Execution modes for approved actions.
const (
	ExecutionModeDispatch = "dispatch"
	ExecutionModeNoop     = "noop"
)

// Config is the root configuration structure for Gray Logic Advisor.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	Store      StoreConfig      `yaml:"store"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	TSDB       TSDBConfig       `yaml:"tsdb"`
	History    HistoryConfig    `yaml:"history"`
	Readings   ReadingsConfig   `yaml:"readings"`
	Advisor    AdvisorConfig    `yaml:"advisor"`
	Report     ReportConfig     `yaml:"report"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Completion CompletionConfig `yaml:"completion"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StoreConfig selects where the advisor's JSON documents (action list,
// history, learning windows, schedule state) are persisted.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "redis".
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings for the redis store backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
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
}

// MQTTTopicsConfig overrides advisor MQTT topics. Empty values fall back
// to the builders in the mqtt package.
type MQTTTopicsConfig struct {
	RunFlag string `yaml:"run_flag"`
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

// TSDBConfig contains VictoriaMetrics connection settings.
type TSDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// HistoryConfig controls how baselines are queried from the time-series backend.
type HistoryConfig struct {
	// Backend is "influxdb" or "victoriametrics". Anything else is rejected
	// at runtime with a warning and baselines are skipped.
	Backend        string `yaml:"backend"`
	Measurement    string `yaml:"measurement"`
	Field          string `yaml:"field"`
	LookbackDays   int    `yaml:"lookback_days"`
	StepSeconds    int    `yaml:"step_seconds"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ReadingSource maps one advisor metric to its live MQTT topic and its
// historical series id.
type ReadingSource struct {
	// Topic is the MQTT state topic carrying the live value.
	Topic string `yaml:"topic"`
	// Field is the JSON key holding the value. Empty means the payload is
	// either a bare number or an object with a "value" key.
	Field string `yaml:"field"`
	// Series is the history series id used for baselines.
	Series string `yaml:"series"`
}

// ReadingsConfig maps metric names (see Metric* constants) to their sources.
type ReadingsConfig map[string]ReadingSource

// AdvisorConfig contains the analysis thresholds and cadence.
type AdvisorConfig struct {
	IntervalMinutes      int     `yaml:"interval_minutes"`
	DayStartHour         int     `yaml:"day_start_hour"`
	NightStartHour       int     `yaml:"night_start_hour"`
	LowSOCPercent        float64 `yaml:"low_soc_percent"`
	FrostTempC           float64 `yaml:"frost_temp_c"`
	GridImportThresholdW float64 `yaml:"grid_import_threshold_w"`
	PeakFactor           float64 `yaml:"peak_factor"`
	BatteryDropPoints    float64 `yaml:"battery_drop_points"`
	// ExecutionMode is "dispatch" (run registered handlers) or "noop"
	// (record executed without invoking handlers).
	ExecutionMode string `yaml:"execution_mode"`
}

// ReportConfig contains daily report settings.
type ReportConfig struct {
	Enabled bool `yaml:"enabled"`
	// Time is the local delivery time in HH:MM (site timezone).
	Time string `yaml:"time"`
	// Template optionally overrides the built-in liquid template.
	Template string `yaml:"template"`
}

// ApprovalConfig contains approval channel settings.
type ApprovalConfig struct {
	Enabled bool   `yaml:"enabled"`
	ChatID  string `yaml:"chat_id"`
}

// CompletionConfig contains settings for the optional model-suggestion service.
type CompletionConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Region         string  `yaml:"region"`
	ModelID        string  `yaml:"model_id"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// KafkaConfig contains settings for the action ledger stream.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_ADVISOR_SECTION_KEY
// For example: GRAYLOGIC_ADVISOR_DATABASE_PATH, GRAYLOGIC_ADVISOR_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
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
			Path:        "./data/advisor.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Store: StoreConfig{
			Backend: StoreBackendSQLite,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "graylogic:advisor:",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-advisor",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		History: HistoryConfig{
			Backend:        "influxdb",
			Measurement:    "device_metrics",
			Field:          "value",
			LookbackDays:   7,
			StepSeconds:    3600,
			TimeoutSeconds: 10,
		},
		Readings: ReadingsConfig{},
		Advisor: AdvisorConfig{
			IntervalMinutes:      15,
			DayStartHour:         6,
			NightStartHour:       22,
			LowSOCPercent:        20,
			FrostTempC:           0,
			GridImportThresholdW: 500,
			PeakFactor:           1.5,
			BatteryDropPoints:    10,
			ExecutionMode:        ExecutionModeDispatch,
		},
		Report: ReportConfig{
			Enabled: true,
			Time:    "08:00",
		},
		Approval: ApprovalConfig{
			Enabled: true,
			ChatID:  "default",
		},
		Completion: CompletionConfig{
			Region:         "us-east-1",
			MaxTokens:      2000,
			Temperature:    0.2,
			TimeoutSeconds: 15,
		},
		Kafka: KafkaConfig{
			Topic: "graylogic.advisor.actions",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_ADVISOR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_ADVISOR_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}

	if v := os.Getenv("GRAYLOGIC_ADVISOR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_ADVISOR_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("GRAYLOGIC_ADVISOR_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("GRAYLOGIC_ADVISOR_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_ADVISOR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_ADVISOR_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_ADVISOR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_ADVISOR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_ADVISOR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_ADVISOR_COMPLETION_MODEL"); v != "" {
		cfg.Completion.ModelID = v
	}

	if v := os.Getenv("GRAYLOGIC_ADVISOR_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// Validate checks the configuration for errors.
//
// The history backend kind is deliberately not validated here: an
// unsupported kind is reported as a warning at startup and only disables
// baselines.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	switch c.Store.Backend {
	case StoreBackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite store")
		}
	case StoreBackendRedis:
		if c.Store.Redis.Addr == "" {
			errs = append(errs, "store.redis.addr is required for the redis store")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend must be %q or %q", StoreBackendSQLite, StoreBackendRedis))
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	a := c.Advisor
	if a.DayStartHour < 0 || a.DayStartHour > 23 || a.NightStartHour < 0 || a.NightStartHour > 23 {
		errs = append(errs, "advisor day/night hours must be between 0 and 23")
	} else if a.DayStartHour == a.NightStartHour {
		errs = append(errs, "advisor.day_start_hour and advisor.night_start_hour must differ")
	}
	if a.IntervalMinutes < 1 {
		errs = append(errs, "advisor.interval_minutes must be at least 1")
	}
	if a.ExecutionMode != ExecutionModeDispatch && a.ExecutionMode != ExecutionModeNoop {
		errs = append(errs, fmt.Sprintf("advisor.execution_mode must be %q or %q", ExecutionModeDispatch, ExecutionModeNoop))
	}

	if _, _, err := ParseClock(c.Report.Time); err != nil {
		errs = append(errs, fmt.Sprintf("report.time: %v", err))
	}

	if c.Completion.Enabled && c.Completion.ModelID == "" {
		errs = append(errs, "completion.model_id is required when completion is enabled")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka.brokers is required when kafka is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the site's configured time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Site.Timezone, err)
	}
	return loc, nil
}

// ParseClock parses a local wall-clock time in HH:MM form.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock %q (want HH:MM)", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
