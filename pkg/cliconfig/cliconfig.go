// Package cliconfig loads the YAML boot configuration for the stumps CLI.
package cliconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HostConfig declares one proxy host to ensure at startup.
type HostConfig struct {
	// ExternalHostName is the real upstream host.
	ExternalHostName string `yaml:"externalHostName"`

	// Port is the local listening port. Zero asks for an automatically
	// chosen open port.
	Port int `yaml:"port"`

	// UseSecureTransport selects https toward the upstream.
	UseSecureTransport bool `yaml:"useSecureTransport"`

	// AutoStart starts the host when the CLI boots.
	AutoStart bool `yaml:"autoStart"`
}

// LoggingConfig configures CLI logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Config is the parsed boot configuration.
type Config struct {
	// DataFile is the SQLite database path. Empty keeps everything
	// in memory.
	DataFile string `yaml:"dataFile"`

	// Logging configures the operational logger.
	Logging LoggingConfig `yaml:"logging"`

	// Hosts are proxy hosts to create when they are not already
	// persisted.
	Hosts []HostConfig `yaml:"hosts"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the declared hosts.
func (c *Config) Validate() error {
	for i, h := range c.Hosts {
		if h.ExternalHostName == "" {
			return fmt.Errorf("hosts[%d]: externalHostName is required", i)
		}
		if h.Port < 0 || h.Port > 65535 {
			return fmt.Errorf("hosts[%d]: port %d out of range", i, h.Port)
		}
	}
	return nil
}
