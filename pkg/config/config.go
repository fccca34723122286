package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override
const EnvPrefix = "LISTENER"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Listeners ListenersConfig `yaml:"listeners" envconfig:"LISTENERS"`
	Logs      LogsConfig      `yaml:"logs" envconfig:"LOGS"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains the admin HTTP API configuration
type ServerConfig struct {
	Host       string     `yaml:"host" envconfig:"HOST"`
	Port       int        `yaml:"port" envconfig:"PORT"`
	AdminToken string     `yaml:"admin_token" envconfig:"ADMIN_TOKEN"` // Bearer token for /api (auto-generated if empty)
	CORS       CORSConfig `yaml:"cors" envconfig:"CORS"`
}

// CORSConfig contains CORS settings for the admin API
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `yaml:"allowed_methods" envconfig:"ALLOWED_METHODS"`
	AllowedHeaders   []string `yaml:"allowed_headers" envconfig:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `yaml:"exposed_headers" envconfig:"EXPOSED_HEADERS"`
	AllowCredentials bool     `yaml:"allow_credentials" envconfig:"ALLOW_CREDENTIALS"`
	MaxAge           int      `yaml:"max_age" envconfig:"MAX_AGE"` // seconds
}

// ListenersConfig contains settings shared by every managed listener
type ListenersConfig struct {
	// BindHost is the address each listener binds, normally all interfaces
	BindHost string `yaml:"bind_host" envconfig:"BIND_HOST"`
	// GracePeriodSeconds bounds how long a listener may take to stop
	GracePeriodSeconds int `yaml:"grace_period_seconds" envconfig:"GRACE_PERIOD_SECONDS"`
	// ReadHeaderTimeoutSeconds protects listeners against slow clients (0 disables)
	ReadHeaderTimeoutSeconds int `yaml:"read_header_timeout_seconds" envconfig:"READ_HEADER_TIMEOUT_SECONDS"`
}

// GracePeriod returns the stop grace period as a duration
func (c ListenersConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// ReadHeaderTimeout returns the header read timeout as a duration
func (c ListenersConfig) ReadHeaderTimeout() time.Duration {
	return time.Duration(c.ReadHeaderTimeoutSeconds) * time.Second
}

// LogsConfig contains the per-port request log settings
type LogsConfig struct {
	Dir string `yaml:"dir" envconfig:"DIR"`
	// TransferDir confines log export and import; empty allows any path
	TransferDir string `yaml:"transfer_dir" envconfig:"TRANSFER_DIR"`
}

// StoreConfig selects where the active server set is persisted
type StoreConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // file, sqlite, mongodb, memory
	File    FileConfig    `yaml:"file" envconfig:"FILE"`
	SQLite  SQLiteConfig  `yaml:"sqlite" envconfig:"SQLITE"`
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// FileConfig contains file store configuration. The format follows the extension:
// .yaml/.yml for YAML, anything else for JSON.
type FileConfig struct {
	Path string `yaml:"path" envconfig:"FILE_PATH"`
}

// SQLiteConfig contains SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path" envconfig:"DB_PATH"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI        string `yaml:"uri" envconfig:"URI"`
	Database   string `yaml:"database" envconfig:"DATABASE"`
	Collection string `yaml:"collection" envconfig:"COLLECTION"`
	Timeout    int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
	// File, when set, receives a rotated copy of the process log
	File       string `yaml:"file" envconfig:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" envconfig:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" envconfig:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" envconfig:"MAX_AGE_DAYS"`
}

// RateLimitConfig contains rate limiting for the admin API
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" envconfig:"ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" envconfig:"REQUESTS_PER_MINUTE"`
	BurstSize         int  `yaml:"burst_size" envconfig:"BURST_SIZE"`
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Load from YAML file if provided (overrides defaults)
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 9090,
			CORS: CORSConfig{
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type"},
				MaxAge:         12 * 60 * 60,
			},
		},
		Listeners: ListenersConfig{
			BindHost:                 "0.0.0.0",
			GracePeriodSeconds:       5,
			ReadHeaderTimeoutSeconds: 10,
		},
		Logs: LogsConfig{
			Dir:         "logs",
			TransferDir: "exports",
		},
		Store: StoreConfig{
			Type: "file",
			File: FileConfig{
				Path: "config.json",
			},
			SQLite: SQLiteConfig{
				Path: "servers.db",
			},
			MongoDB: MongoDBConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "listener_manager",
				Collection: "servers",
				Timeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerMinute: 600,
			BurstSize:         50,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Listeners.GracePeriodSeconds <= 0 {
		return fmt.Errorf("listeners grace_period_seconds must be positive")
	}

	if c.Logs.Dir == "" {
		return fmt.Errorf("logs dir is required")
	}

	switch c.Store.Type {
	case "file":
		if c.Store.File.Path == "" {
			return fmt.Errorf("store file path is required when using file store")
		}
	case "sqlite":
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required when using sqlite store")
		}
	case "mongodb":
		if c.Store.MongoDB.URI == "" {
			return fmt.Errorf("mongodb uri is required when using mongodb store")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid store type: %s (must be file, sqlite, mongodb, or memory)", c.Store.Type)
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("rate_limit requests_per_minute must be positive when enabled")
	}

	return nil
}

// Address returns the admin server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BaseURL returns the URL clients use to reach the admin API
func (c *ServerConfig) BaseURL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Port)
}
