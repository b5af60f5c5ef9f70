// Package config provides configuration management for the addon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/amaumene/godebrid/internal/constants"
)

const defaultConfigFile = "config.json"

// Config holds the application configuration.
// Defaults are overridden by environment variables (envconfig), which are in
// turn overridden by an optional JSON config file.
type Config struct {
	// Provider
	APIKey string `json:"API_KEY" envconfig:"API_KEY"`

	// Storage settings
	DatabasePath string `json:"DATABASE_PATH" envconfig:"DATABASE_PATH"`
	CacheSize    int    `json:"CACHE_SIZE" envconfig:"CACHE_SIZE"`
	// CacheBackend selects the store implementation: "memory" or "bolt".
	CacheBackend string `json:"CACHE_BACKEND" envconfig:"CACHE_BACKEND"`
	// CacheDisabled makes every cache pass-through, for diagnostic deployments.
	CacheDisabled bool `json:"CACHE_DISABLED" envconfig:"CACHE_DISABLED"`

	// Response cache TTLs
	ListTTL      time.Duration `json:"LIST_TTL" envconfig:"LIST_TTL"`
	EmptyListTTL time.Duration `json:"EMPTY_LIST_TTL" envconfig:"EMPTY_LIST_TTL"`
	AvailTTL     time.Duration `json:"AVAIL_TTL" envconfig:"AVAIL_TTL"`

	// Scheduler bounds
	MaxConcurrent int `json:"MAX_CONCURRENT" envconfig:"MAX_CONCURRENT"`
	QueueSize     int `json:"QUEUE_SIZE" envconfig:"QUEUE_SIZE"`

	// Server
	Port string `json:"PORT" envconfig:"PORT"`
}

// Load builds the configuration from defaults, environment and optional file.
func Load() (*Config, error) {
	cfg := &Config{
		DatabasePath:  "./cache.db",
		CacheSize:     constants.DefaultCacheSize,
		CacheBackend:  "bolt",
		ListTTL:       constants.DefaultListTTL,
		EmptyListTTL:  constants.DefaultEmptyListTTL,
		AvailTTL:      constants.DefaultAvailTTL,
		MaxConcurrent: constants.DefaultMaxConcurrent,
		QueueSize:     constants.DefaultQueueSize,
		Port:          constants.DefaultPort,
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if err := cfg.loadFromFile(configFile); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

// Validate checks bounds and restores defaults for nonsensical values.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "memory", "bolt":
	default:
		return fmt.Errorf("unknown cache backend %q", c.CacheBackend)
	}

	if c.CacheSize <= 0 {
		c.CacheSize = constants.DefaultCacheSize
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = constants.DefaultMaxConcurrent
	}
	if c.QueueSize <= 0 {
		c.QueueSize = constants.DefaultQueueSize
	}
	if c.ListTTL <= 0 {
		c.ListTTL = constants.DefaultListTTL
	}
	if c.EmptyListTTL <= 0 {
		c.EmptyListTTL = constants.DefaultEmptyListTTL
	}
	if c.AvailTTL <= 0 {
		c.AvailTTL = constants.DefaultAvailTTL
	}
	return nil
}

// CreateFromUserData creates a per-request config from user-provided data
// layered over the base config. User data takes precedence.
func CreateFromUserData(userConfig map[string]interface{}, baseConfig *Config) *Config {
	cfg := &Config{}
	if baseConfig != nil {
		*cfg = *baseConfig
	}

	if val, ok := userConfig["API_KEY"]; ok {
		if str, ok := val.(string); ok && str != "" {
			cfg.APIKey = str
		}
	}

	return cfg
}
