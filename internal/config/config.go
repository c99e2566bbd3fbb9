// ABOUTME: Configuration loading and parsing for gpg-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gpg-gateway configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Engine     EngineConfig     `yaml:"engine"`
	Challenges ChallengesConfig `yaml:"challenges"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	// MaxBodyBytes caps request payload size; 0 means the 5 MiB default.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// JWTSecret signs operator tokens for the admin endpoints.
	JWTSecret string `yaml:"jwt_secret"`
}

// EngineConfig holds GPG subprocess configuration
type EngineConfig struct {
	Binary     string `yaml:"binary"`      // gpg executable, defaults to "gpg"
	ConfBinary string `yaml:"conf_binary"` // gpgconf executable, defaults to "gpgconf"
	KeyType    string `yaml:"key_type"`
	KeyLength  int    `yaml:"key_length"`
	TempRoot   string `yaml:"temp_root"` // parent dir for ephemeral keyrings

	Timeout       time.Duration `yaml:"-"`
	KeygenTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TimeoutRaw       string `yaml:"timeout"`
	KeygenTimeoutRaw string `yaml:"keygen_timeout"`
}

// ChallengesConfig holds challenge retention configuration
type ChallengesConfig struct {
	MaxAgeDays int `yaml:"max_age_days"`
	MaxPerUser int `yaml:"max_per_user"`
}

// RateLimitConfig holds per-minute request limits
type RateLimitConfig struct {
	AuthPerMinute int `yaml:"auth_per_minute"`
	APIPerMinute  int `yaml:"api_per_minute"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Challenges.MaxAgeDays < 0 {
		return fmt.Errorf("challenges.max_age_days must not be negative")
	}
	if c.Challenges.MaxPerUser < 0 {
		return fmt.Errorf("challenges.max_per_user must not be negative")
	}

	if c.RateLimit.AuthPerMinute < 0 || c.RateLimit.APIPerMinute < 0 {
		return fmt.Errorf("ratelimit values must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Engine.TimeoutRaw != "" {
		cfg.Engine.Timeout, err = time.ParseDuration(cfg.Engine.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing timeout %q: %w", cfg.Engine.TimeoutRaw, err)
		}
	}

	if cfg.Engine.KeygenTimeoutRaw != "" {
		cfg.Engine.KeygenTimeout, err = time.ParseDuration(cfg.Engine.KeygenTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing keygen_timeout %q: %w", cfg.Engine.KeygenTimeoutRaw, err)
		}
	}

	return nil
}
