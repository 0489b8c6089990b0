// Package config loads the bridge configuration from a YAML file, with
// environment variable overrides for the secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"airbridge/internal/bridge"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the full bridge configuration.
type Config struct {
	Cloud CloudConfig `yaml:"cloud"`
	Hub   HubConfig   `yaml:"hub"`

	// PollIntervalSeconds is how often the cloud is polled. Clamped to
	// the bridge's minimum floor; zero selects the default.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// DebugPort is the port for the debug HTTP server; 0 disables it.
	DebugPort int `yaml:"debug_port"`
}

// CloudConfig holds the vendor account settings.
type CloudConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HubConfig holds the automation hub connection settings.
type HubConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// Load reads the YAML file at path and applies environment overrides:
// AIRBRIDGE_USERNAME, AIRBRIDGE_PASSWORD, AIRBRIDGE_HUB_TOKEN, and
// AIRBRIDGE_POLL_INTERVAL.
func Load(path string, logger *zap.Logger) (*Config, error) {
	logger.Debug("Loading config", zap.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger.Info("Config loaded",
		zap.String("cloud_url", cfg.Cloud.BaseURL),
		zap.Duration("poll_interval", cfg.PollInterval()))
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AIRBRIDGE_USERNAME"); v != "" {
		c.Cloud.Username = v
	}
	if v := os.Getenv("AIRBRIDGE_PASSWORD"); v != "" {
		c.Cloud.Password = v
	}
	if v := os.Getenv("AIRBRIDGE_HUB_TOKEN"); v != "" {
		c.Hub.Token = v
	}
	if v := os.Getenv("AIRBRIDGE_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PollIntervalSeconds = n
		}
	}
}

func (c *Config) validate() error {
	if c.Cloud.BaseURL == "" {
		return fmt.Errorf("cloud.base_url is required")
	}
	if c.Cloud.Username == "" || c.Cloud.Password == "" {
		return fmt.Errorf("cloud credentials are required")
	}
	return nil
}

// PollInterval returns the configured interval clamped to the bridge's
// bounds.
func (c *Config) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return bridge.DefaultPollInterval
	}
	d := time.Duration(c.PollIntervalSeconds) * time.Second
	if d < bridge.MinPollInterval {
		return bridge.MinPollInterval
	}
	return d
}
