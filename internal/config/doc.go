// Package config handles configuration loading for gpg-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${GPG_GATEWAY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	engine:
//	  timeout: "30s"
//	  keygen_timeout: "2m"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  max_body_bytes: 5242880
//
// Database:
//
//	database:
//	  path: "/var/lib/gpg-gateway/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${GPG_GATEWAY_JWT_SECRET}"  # signs admin tokens
//
// GPG engine:
//
//	engine:
//	  binary: "gpg"
//	  conf_binary: "gpgconf"
//	  key_type: "RSA"
//	  key_length: 3072
//	  timeout: "30s"
//	  keygen_timeout: "2m"
//
// Challenge retention:
//
//	challenges:
//	  max_age_days: 7
//	  max_per_user: 100
//
// Rate limits (per client, per minute):
//
//	ratelimit:
//	  auth_per_minute: 5
//	  api_per_minute: 30
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration from a path:
//
//	cfg, err := config.Load("/etc/gpg-gateway/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
