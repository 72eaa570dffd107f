package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scorekeeper.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestConfigFile covers file loading, secret rejection and env precedence.
func TestConfigFile(t *testing.T) {
	t.Run("file values", func(t *testing.T) {
		path := writeConfig(t, `server:
  host: localhost
  port: 7000
  formulas_path: /etc/scorekeeper/credit.yaml
  request_timeout: 5s
log:
  format: text
`)
		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		if cfg.Server.Addr() != "localhost:7000" {
			t.Errorf("addr = %s", cfg.Server.Addr())
		}
		if cfg.Server.FormulasPath != "/etc/scorekeeper/credit.yaml" {
			t.Errorf("formulas_path = %s", cfg.Server.FormulasPath)
		}
		if cfg.Server.RequestTimeout.Seconds() != 5 {
			t.Errorf("request_timeout = %v", cfg.Server.RequestTimeout)
		}
		if cfg.Log.Format != "text" || cfg.Log.Level != "info" {
			t.Errorf("log = %+v", cfg.Log)
		}
	})

	t.Run("hmac_secret in file rejected", func(t *testing.T) {
		path := writeConfig(t, `server:
  host: "localhost"
  port: 8080
  hmac_secret: "should_be_rejected"
`)
		_, err := LoadConfig(path)
		if !errors.Is(err, ErrSecretInConfig) {
			t.Fatalf("expected ErrSecretInConfig, got %v", err)
		}
	})

	t.Run("hmac secret in environment accepted", func(t *testing.T) {
		t.Setenv("SK_HMAC_SECRET", secretA)
		if _, err := LoadConfig(writeConfig(t, "server:\n  port: 8080\n")); err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("SK_SERVER_PORT", "8080")
		cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 9090\n"))
		if err != nil {
			t.Fatalf("LoadConfig error: %v", err)
		}
		if cfg.Server.Port != 8080 {
			t.Fatalf("expected env port 8080 over file 9090, got %d", cfg.Server.Port)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}
