package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// ErrSecretInConfig is returned when a config file carries an HMAC secret.
var ErrSecretInConfig = errors.New("HMAC secrets not allowed in config files (use SK_HMAC_SECRET environment variable)")

// LoadConfig loads configuration from file using viper.
// Precedence: environment > config file > defaults. CLI flags are applied by
// the caller on top of the returned value.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.max_batch_size", def.Server.MaxBatchSize)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("server.formulas_path", def.Server.FormulasPath)
	v.SetDefault("metrics.addr", def.Metrics.Addr)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	// SK_SERVER_PORT overrides server.port.
	v.SetEnvPrefix("SK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only.
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			MaxBatchSize:   v.GetInt("server.max_batch_size"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
			FormulasPath:   v.GetString("server.formulas_path"),
		},
		Metrics: MetricsConfig{
			Addr: v.GetString("metrics.addr"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateConfig checks port range, positive limits and the log settings.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxBatchSize <= 0 {
		return fmt.Errorf("max_batch_size must be positive, got %d", cfg.Server.MaxBatchSize)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoSecretsInConfig checks the file only; SK_HMAC_SECRET in the
// environment is the supported source and must not trip this check.
func validateNoSecretsInConfig(v *viper.Viper) error {
	for _, key := range []string{"hmac_secret", "server.hmac_secret", "auth.hmac_secret"} {
		if v.InConfig(key) {
			return ErrSecretInConfig
		}
	}
	return nil
}
