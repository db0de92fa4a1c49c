package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Admin defaults
	if cfg.Admin.BaseURL != "http://localhost:8080" {
		t.Errorf("Expected default admin URL 'http://localhost:8080', got %q", cfg.Admin.BaseURL)
	}
	if cfg.Admin.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", cfg.Admin.Timeout)
	}

	// Server defaults
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected default port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Server.Host)
	}
	if cfg.Server.TLS.Enabled {
		t.Error("Expected TLS to be disabled by default")
	}

	if cfg.Store.PageSize != 20 {
		t.Errorf("Expected default page size 20, got %d", cfg.Store.PageSize)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected default log level 'info', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected default log format 'json', got %q", cfg.Logging.Format)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
admin:
  baseUrl: http://mock.internal:9000
  apiKey: secret
  timeout: 5s
server:
  port: 7070
  host: localhost
store:
  pageSize: 50
logging:
  level: debug
  format: console
  file: /tmp/stub-console.log
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Admin.BaseURL != "http://mock.internal:9000" {
		t.Errorf("Expected admin URL 'http://mock.internal:9000', got %q", cfg.Admin.BaseURL)
	}
	if cfg.Admin.APIKey != "secret" {
		t.Errorf("Expected API key 'secret', got %q", cfg.Admin.APIKey)
	}
	if cfg.Admin.Timeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", cfg.Admin.Timeout)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got %q", cfg.Server.Host)
	}
	if cfg.Store.PageSize != 50 {
		t.Errorf("Expected page size 50, got %d", cfg.Store.PageSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level 'debug', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "console" {
		t.Errorf("Expected log format 'console', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.File != "/tmp/stub-console.log" {
		t.Errorf("Expected log file '/tmp/stub-console.log', got %q", cfg.Logging.File)
	}
}

func TestLoad_PartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Only override server port
	configContent := `
server:
  port: 3000
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("Expected port 3000, got %d", cfg.Server.Port)
	}

	// Verify defaults are preserved
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Server.Host)
	}
	if cfg.Store.PageSize != 20 {
		t.Errorf("Expected default page size 20, got %d", cfg.Store.PageSize)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Expected error for non-existent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: [invalid yaml
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	_, err = Load(configPath)
	if err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte(""), 0644)
	if err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected default port 9090, got %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"page size too large", "store:\n  pageSize: 5000\n", "PageSize"},
		{"page size zero", "store:\n  pageSize: 0\n", "PageSize"},
		{"bad log level", "logging:\n  level: verbose\n", "Level"},
		{"bad log format", "logging:\n  format: text\n", "Format"},
		{"empty admin url", "admin:\n  baseUrl: \"\"\n", "BaseURL"},
		{"admin url not a url", "admin:\n  baseUrl: not a url\n", "BaseURL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error to mention %q, got %v", tt.field, err)
			}
		})
	}
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	v.Set("admin.baseUrl", "https://mock.example.com")
	v.Set("admin.bearerToken", "token-1")
	v.Set("admin.timeout", "2s")
	v.Set("store.pageSize", 10)

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() failed: %v", err)
	}

	if cfg.Admin.BaseURL != "https://mock.example.com" {
		t.Errorf("Expected admin URL 'https://mock.example.com', got %q", cfg.Admin.BaseURL)
	}
	if cfg.Admin.BearerToken != "token-1" {
		t.Errorf("Expected bearer token 'token-1', got %q", cfg.Admin.BearerToken)
	}
	if cfg.Admin.Timeout != 2*time.Second {
		t.Errorf("Expected timeout 2s, got %v", cfg.Admin.Timeout)
	}
	if cfg.Store.PageSize != 10 {
		t.Errorf("Expected page size 10, got %d", cfg.Store.PageSize)
	}
	// Unset keys keep their defaults
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected default port 9090, got %d", cfg.Server.Port)
	}
}

func TestFromViper_Invalid(t *testing.T) {
	v := viper.New()
	v.Set("store.pageSize", -1)

	if _, err := FromViper(v); err == nil {
		t.Error("Expected error for negative page size")
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8088

	if cfg.Addr() != "0.0.0.0:8088" {
		t.Errorf("Expected addr '0.0.0.0:8088', got %q", cfg.Addr())
	}
}

func TestYAML_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Admin.APIKey = "k"

	data, err := cfg.YAML()
	if err != nil {
		t.Fatalf("YAML() failed: %v", err)
	}

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Admin.APIKey != "k" {
		t.Errorf("Expected API key 'k', got %q", loaded.Admin.APIKey)
	}
	if loaded.Admin.Timeout != cfg.Admin.Timeout {
		t.Errorf("Expected timeout %v, got %v", cfg.Admin.Timeout, loaded.Admin.Timeout)
	}
}
