// Package config loads the m2m-client configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoopbackConfig tunes the in-process server.
type LoopbackConfig struct {
	RegisterDelay time.Duration `yaml:"register_delay"`
	DeliveryDelay time.Duration `yaml:"delivery_delay"`
	QueueSize     int           `yaml:"queue_size"`
	Confirmable   *bool         `yaml:"confirmable,omitempty"` // default true
}

// IsConfirmable reports whether notifications wait for delivery.
func (l LoopbackConfig) IsConfirmable() bool {
	return l.Confirmable == nil || *l.Confirmable
}

// MDNSConfig controls the local network announcement.
type MDNSConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Interface string `yaml:"interface,omitempty"`
	Port      int    `yaml:"port,omitempty"`
}

// InventoryConfig tunes the simulator.
type InventoryConfig struct {
	RefillOnRestock bool `yaml:"refill_on_restock"`
}

// Config is the top-level m2m-client configuration.
type Config struct {
	LogLevel     string          `yaml:"log_level"`
	EventLog     string          `yaml:"event_log,omitempty"`
	HistoryDB    string          `yaml:"history_db,omitempty"`
	IdentityFile string          `yaml:"identity_file,omitempty"`
	Seed         int64           `yaml:"seed,omitempty"` // 0 seeds from the clock
	Interactive  bool            `yaml:"interactive"`
	Loopback     LoopbackConfig  `yaml:"loopback"`
	MDNS         MDNSConfig      `yaml:"mdns"`
	Inventory    InventoryConfig `yaml:"inventory"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Loopback: LoopbackConfig{
			RegisterDelay: 100 * time.Millisecond,
			DeliveryDelay: 50 * time.Millisecond,
			QueueSize:     8,
		},
		MDNS: MDNSConfig{Port: 5683},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Loopback.RegisterDelay < 0 {
		return errors.New("loopback.register_delay must not be negative")
	}
	if c.Loopback.DeliveryDelay < 0 {
		return errors.New("loopback.delivery_delay must not be negative")
	}
	if c.Loopback.QueueSize < 1 {
		return fmt.Errorf("loopback.queue_size must be at least 1, got %d", c.Loopback.QueueSize)
	}
	if c.MDNS.Port < 0 || c.MDNS.Port > 65535 {
		return fmt.Errorf("mdns.port %d out of range", c.MDNS.Port)
	}
	return nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log_level %q: must be debug, info, warn or error", s)
	}
}
