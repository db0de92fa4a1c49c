package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Admin   AdminConfig   `yaml:"admin" mapstructure:"admin"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// AdminConfig describes how to reach the admin API
type AdminConfig struct {
	BaseURL     string        `yaml:"baseUrl" mapstructure:"baseUrl" validate:"required,url"`
	APIKey      string        `yaml:"apiKey" mapstructure:"apiKey"`           // Sent as X-API-Key
	BearerToken string        `yaml:"bearerToken" mapstructure:"bearerToken"` // Sent as Authorization: Bearer
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// ServerConfig holds dashboard HTTP server configuration
type ServerConfig struct {
	Port  int       `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	Host  string    `yaml:"host" mapstructure:"host"`
	UIDir string    `yaml:"uiDir" mapstructure:"uiDir"` // Built UI assets, served under /_ui
	TLS   TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	CertFile     string `yaml:"certFile" mapstructure:"certFile"`
	KeyFile      string `yaml:"keyFile" mapstructure:"keyFile"`
	AutoGenerate bool   `yaml:"autoGenerate" mapstructure:"autoGenerate"` // Self-signed cert if none configured
	StorePath    string `yaml:"storePath" mapstructure:"storePath"`       // Where generated certs are kept
}

// StoreConfig holds stub store configuration
type StoreConfig struct {
	PageSize int `yaml:"pageSize" mapstructure:"pageSize" validate:"gte=1,lte=1000"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format     string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
	File       string `yaml:"file" mapstructure:"file"` // Empty logs to stderr only
	MaxSizeMB  int    `yaml:"maxSizeMB" mapstructure:"maxSizeMB" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups" mapstructure:"maxBackups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" mapstructure:"maxAgeDays" validate:"gte=0"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Admin: AdminConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Port: 9090,
			Host: "127.0.0.1",
			TLS: TLSConfig{
				Enabled:      false,
				AutoGenerate: true,
				StorePath:    "./certs",
			},
		},
		Store: StoreConfig{
			PageSize: 20,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromViper builds the configuration from resolved viper settings
// (file, environment and flags)
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fe := verrs[0]
		return fmt.Errorf("invalid configuration: %s fails %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return err
}

// Addr returns the dashboard listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// YAML renders the configuration as YAML
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
