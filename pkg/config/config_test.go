package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_Validate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"port too low", 0},
		{"port negative", -1},
		{"port too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Server.Port = tt.port

			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error for invalid port")
			}
		})
	}
}

func TestConfig_Validate_GracePeriod(t *testing.T) {
	cfg := defaultConfig()
	cfg.Listeners.GracePeriodSeconds = 0

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for zero grace period")
	}
}

func TestConfig_Validate_MissingLogsDir(t *testing.T) {
	cfg := defaultConfig()
	cfg.Logs.Dir = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for missing logs dir")
	}
}

func TestConfig_Validate_StoreTypes(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"file", func(c *Config) { c.Store.Type = "file" }, false},
		{"file without path", func(c *Config) { c.Store.Type = "file"; c.Store.File.Path = "" }, true},
		{"sqlite", func(c *Config) { c.Store.Type = "sqlite" }, false},
		{"sqlite without path", func(c *Config) { c.Store.Type = "sqlite"; c.Store.SQLite.Path = "" }, true},
		{"mongodb", func(c *Config) { c.Store.Type = "mongodb" }, false},
		{"mongodb without uri", func(c *Config) { c.Store.Type = "mongodb"; c.Store.MongoDB.URI = "" }, true},
		{"memory", func(c *Config) { c.Store.Type = "memory" }, false},
		{"unknown", func(c *Config) { c.Store.Type = "redis" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_RateLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMinute = 0

	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for enabled rate limit without rate")
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := &ServerConfig{Host: "localhost", Port: 9090}

	if got := cfg.Address(); got != "localhost:9090" {
		t.Errorf("Address() = %q, want %q", got, "localhost:9090")
	}
}

func TestServerConfig_BaseURL(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 9090, "http://127.0.0.1:9090"},
		{"0.0.0.0", 9091, "http://localhost:9091"},
		{"", 80, "http://localhost:80"},
	}

	for _, tt := range tests {
		cfg := &ServerConfig{Host: tt.host, Port: tt.port}
		if got := cfg.BaseURL(); got != tt.want {
			t.Errorf("BaseURL() = %q, want %q", got, tt.want)
		}
	}
}

func TestListenersConfig_Durations(t *testing.T) {
	cfg := ListenersConfig{GracePeriodSeconds: 3, ReadHeaderTimeoutSeconds: 7}

	if cfg.GracePeriod() != 3*time.Second {
		t.Errorf("GracePeriod() = %v", cfg.GracePeriod())
	}
	if cfg.ReadHeaderTimeout() != 7*time.Second {
		t.Errorf("ReadHeaderTimeout() = %v", cfg.ReadHeaderTimeout())
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	// Missing file falls back to defaults
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected default port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Store.Type != "file" {
		t.Errorf("Expected default store type file, got %q", cfg.Store.Type)
	}
	if cfg.Logs.Dir != "logs" {
		t.Errorf("Expected default logs dir, got %q", cfg.Logs.Dir)
	}
	if cfg.Logs.TransferDir != "exports" {
		t.Errorf("Expected default transfer dir, got %q", cfg.Logs.TransferDir)
	}
}

func TestLoad_ValidYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
server:
  host: localhost
  port: 9191
  admin_token: secret
listeners:
  bind_host: 127.0.0.1
  grace_period_seconds: 2
logs:
  dir: /var/log/listeners
store:
  type: sqlite
  sqlite:
    path: /tmp/servers.db
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Expected port 9191, got %d", cfg.Server.Port)
	}
	if cfg.Server.AdminToken != "secret" {
		t.Errorf("Expected admin token 'secret', got %q", cfg.Server.AdminToken)
	}
	if cfg.Listeners.BindHost != "127.0.0.1" {
		t.Errorf("Expected bind host 127.0.0.1, got %q", cfg.Listeners.BindHost)
	}
	if cfg.Listeners.GracePeriodSeconds != 2 {
		t.Errorf("Expected grace period 2, got %d", cfg.Listeners.GracePeriodSeconds)
	}
	if cfg.Store.SQLite.Path != "/tmp/servers.db" {
		t.Errorf("Expected sqlite path, got %q", cfg.Store.SQLite.Path)
	}
	// Untouched sections keep their defaults
	if cfg.Store.File.Path != "config.json" {
		t.Errorf("Expected default file path, got %q", cfg.Store.File.Path)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	content := `
server:
  port: "invalid"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Error("Expected error for invalid configuration")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LISTENER_SERVER_PORT", "9300")
	t.Setenv("LISTENER_STORE_TYPE", "memory")
	t.Setenv("LISTENER_LOGS_DIR", "/tmp/port-logs")
	t.Setenv("LISTENER_LOGS_TRANSFER_DIR", "/srv/log-exchange")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9300 {
		t.Errorf("Expected port 9300 from env, got %d", cfg.Server.Port)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Expected store type memory from env, got %q", cfg.Store.Type)
	}
	if cfg.Logs.Dir != "/tmp/port-logs" {
		t.Errorf("Expected logs dir from env, got %q", cfg.Logs.Dir)
	}
	if cfg.Logs.TransferDir != "/srv/log-exchange" {
		t.Errorf("Expected transfer dir from env, got %q", cfg.Logs.TransferDir)
	}
}
