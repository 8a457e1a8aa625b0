package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the tour engine.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Viewer    ViewerConfig    `yaml:"viewer"`
	Staging   StagingConfig   `yaml:"staging"`
	Security  SecurityConfig  `yaml:"security"`
}

// SiteConfig identifies this deployment.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	// ViewerDir serves the viewer shell from disk instead of the embedded copy.
	ViewerDir string `yaml:"viewer_dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ViewerConfig tunes the interactive behaviour of tour sessions.
type ViewerConfig struct {
	// DragSensitivity converts pointer pixels into degrees of rotation.
	DragSensitivity float64 `yaml:"drag_sensitivity"`

	// WheelSensitivity converts wheel delta units into zoom factor.
	WheelSensitivity float64 `yaml:"wheel_sensitivity"`

	// AutoRotateRate is the idle yaw drift in degrees per second.
	AutoRotateRate float64 `yaml:"auto_rotate_rate"`

	// AutoRotate enables idle rotation for new sessions.
	AutoRotate bool `yaml:"auto_rotate"`

	// TickInterval is the auto-rotate/render cadence in milliseconds.
	TickInterval int `yaml:"tick_interval"`

	// SessionTTL is how long an idle session is kept (minutes).
	SessionTTL int `yaml:"session_ttl"`

	// MaxSessions caps concurrently open sessions. 0 means unlimited.
	MaxSessions int `yaml:"max_sessions"`

	// DefaultPixelsPerMeter is the assumed scale before the user calibrates.
	DefaultPixelsPerMeter float64 `yaml:"default_pixels_per_meter"`

	// PreloadAssets checks panorama URLs when a scene becomes active.
	PreloadAssets bool `yaml:"preload_assets"`
}

// StagingConfig configures the external virtual staging generation endpoint.
type StagingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig holds the shared secret used to verify bearer tokens issued by
// the external authentication backend.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TOURENGINE_SECTION_KEY
// For example: TOURENGINE_DATABASE_PATH, TOURENGINE_API_PORT
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
			ID:   "tour-001",
			Name: "Property Tours",
		},
		Database: DatabaseConfig{
			Path:        "./data/tourengine.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tourengine",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
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
		Viewer: ViewerConfig{
			DragSensitivity:       0.3,
			WheelSensitivity:      0.001,
			AutoRotateRate:        3,
			AutoRotate:            true,
			TickInterval:          50,
			SessionTTL:            60,
			DefaultPixelsPerMeter: 100,
			PreloadAssets:         true,
		},
		Staging: StagingConfig{
			Timeout: 120,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TOURENGINE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("TOURENGINE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TOURENGINE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TOURENGINE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TOURENGINE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("TOURENGINE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TOURENGINE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("TOURENGINE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Staging
	if v := os.Getenv("TOURENGINE_STAGING_ENDPOINT"); v != "" {
		cfg.Staging.Endpoint = v
	}
	if v := os.Getenv("TOURENGINE_STAGING_API_KEY"); v != "" {
		cfg.Staging.APIKey = v
	}

	// Security - shared secret with the auth backend
	if v := os.Getenv("TOURENGINE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Viewer.DragSensitivity <= 0 {
		errs = append(errs, "viewer.drag_sensitivity must be positive")
	}
	if c.Viewer.WheelSensitivity <= 0 {
		errs = append(errs, "viewer.wheel_sensitivity must be positive")
	}
	if c.Viewer.AutoRotateRate < 0 {
		errs = append(errs, "viewer.auto_rotate_rate cannot be negative")
	}
	if c.Viewer.TickInterval < 1 {
		errs = append(errs, "viewer.tick_interval must be at least 1ms")
	}
	if c.Viewer.DefaultPixelsPerMeter <= 0 {
		errs = append(errs, "viewer.default_pixels_per_meter must be positive")
	}

	if c.Staging.Enabled {
		if c.Staging.Endpoint == "" {
			errs = append(errs, "staging.endpoint is required when staging is enabled")
		} else if u, err := url.Parse(c.Staging.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "staging.endpoint must be an absolute URL")
		}
	}

	// Tokens are verified, never issued, so a short secret is still a weak one.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set TOURENGINE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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

// TickIntervalDuration returns the viewer tick cadence as a Duration.
func (v ViewerConfig) TickIntervalDuration() time.Duration {
	return time.Duration(v.TickInterval) * time.Millisecond
}

// SessionTTLDuration returns the idle session lifetime as a Duration.
func (v ViewerConfig) SessionTTLDuration() time.Duration {
	return time.Duration(v.SessionTTL) * time.Minute
}

// TimeoutDuration returns the staging request timeout as a Duration.
func (s StagingConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}
