// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
  max_body_bytes: 1048576

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret-for-admin-tokens"

engine:
  binary: "/usr/bin/gpg"
  conf_binary: "/usr/bin/gpgconf"
  key_type: "RSA"
  key_length: 3072
  temp_root: "/var/tmp"
  timeout: "45s"
  keygen_timeout: "3m"

challenges:
  max_age_days: 7
  max_per_user: 100

ratelimit:
  auth_per_minute: 5
  api_per_minute: 30

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Verify server config
	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.MaxBodyBytes != 1048576 {
		t.Errorf("Server.MaxBodyBytes = %d, want 1048576", cfg.Server.MaxBodyBytes)
	}

	// Verify database config
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	// Verify auth config
	if cfg.Auth.JWTSecret != "test-secret-for-admin-tokens" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}

	// Verify engine config with duration parsing
	if cfg.Engine.Binary != "/usr/bin/gpg" {
		t.Errorf("Engine.Binary = %q, want %q", cfg.Engine.Binary, "/usr/bin/gpg")
	}
	if cfg.Engine.ConfBinary != "/usr/bin/gpgconf" {
		t.Errorf("Engine.ConfBinary = %q, want %q", cfg.Engine.ConfBinary, "/usr/bin/gpgconf")
	}
	if cfg.Engine.KeyType != "RSA" {
		t.Errorf("Engine.KeyType = %q, want %q", cfg.Engine.KeyType, "RSA")
	}
	if cfg.Engine.KeyLength != 3072 {
		t.Errorf("Engine.KeyLength = %d, want 3072", cfg.Engine.KeyLength)
	}
	if cfg.Engine.Timeout != 45*time.Second {
		t.Errorf("Engine.Timeout = %v, want %v", cfg.Engine.Timeout, 45*time.Second)
	}
	if cfg.Engine.KeygenTimeout != 3*time.Minute {
		t.Errorf("Engine.KeygenTimeout = %v, want %v", cfg.Engine.KeygenTimeout, 3*time.Minute)
	}

	// Verify challenge retention
	if cfg.Challenges.MaxAgeDays != 7 {
		t.Errorf("Challenges.MaxAgeDays = %d, want 7", cfg.Challenges.MaxAgeDays)
	}
	if cfg.Challenges.MaxPerUser != 100 {
		t.Errorf("Challenges.MaxPerUser = %d, want 100", cfg.Challenges.MaxPerUser)
	}

	// Verify rate limits
	if cfg.RateLimit.AuthPerMinute != 5 {
		t.Errorf("RateLimit.AuthPerMinute = %d, want 5", cfg.RateLimit.AuthPerMinute)
	}
	if cfg.RateLimit.APIPerMinute != 30 {
		t.Errorf("RateLimit.APIPerMinute = %d, want 30", cfg.RateLimit.APIPerMinute)
	}

	// Verify logging config
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_GATEWAY_SECRET", "expanded-secret")
	t.Setenv("TEST_GATEWAY_DB", "/tmp/env.db")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "${TEST_GATEWAY_DB}"
auth:
  jwt_secret: "${TEST_GATEWAY_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "expanded-secret")
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/env.db")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${DEFINITELY_NOT_SET_GATEWAY_VAR}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() succeeded with an unset required env var")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error %q does not mention jwt_secret", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("Load() succeeded for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "server: [unclosed")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() succeeded for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "secret"
engine:
  timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() succeeded for invalid duration")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("error %q does not mention timeout", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:   ServerConfig{HTTPAddr: "0.0.0.0:8080"},
			Database: DatabaseConfig{Path: "./test.db"},
			Auth:     AuthConfig{JWTSecret: "secret"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "http_addr"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"negative challenge age", func(c *Config) { c.Challenges.MaxAgeDays = -1 }, "max_age_days"},
		{"negative challenge cap", func(c *Config) { c.Challenges.MaxPerUser = -1 }, "max_per_user"},
		{"negative rate limit", func(c *Config) { c.RateLimit.APIPerMinute = -1 }, "ratelimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
