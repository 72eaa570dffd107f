// Package config provides configuration management for scorekeeper services.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig
	Metrics MetricsConfig
	Log     LogConfig
}

// ServerConfig holds configuration for the gRPC formula service.
type ServerConfig struct {
	Host           string
	Port           int
	MaxBatchSize   int
	RequestTimeout time.Duration
	// FormulasPath is the YAML or JSON formula file served by Evaluate.
	FormulasPath string
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// LogConfig selects the zerolog level and output format (json or text).
type LogConfig struct {
	Level  string
	Format string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			MaxBatchSize:   1000,
			RequestTimeout: 30 * time.Second,
			FormulasPath:   "formulas.yaml",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports SK_HMAC_SECRET (single) and SK_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' in %s (check SK_HMAC_SECRET and SK_HMAC_SECRET_* for conflicts)", secretID, key)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("SK_HMAC_SECRET"); val != "" {
		if err := add("SK_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old keys valid while a new secret rolls out.
	for i := 1; ; i++ {
		key := fmt.Sprintf("SK_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lowercase hex chars.
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}

// ParseHMACSecret decodes a base64 secret of at least 32 bytes.
func ParseHMACSecret(value string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}
