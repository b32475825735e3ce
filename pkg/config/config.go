// Package config loads the client configuration from YAML with
// environment fallbacks.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// maxConfigSize caps config files at 1MB to catch obviously wrong paths.
const maxConfigSize = 1 << 20

// Config represents the application configuration
type Config struct {
	// Endpoint is the assistant service base URL.
	Endpoint string `yaml:"endpoint"`

	// UserID identifies the user sending turns.
	UserID string `yaml:"user_id"`

	// Streaming selects the streaming turn path. Defaults to true;
	// set false to use the single-response fallback.
	Streaming bool `yaml:"streaming"`

	// Store configures the record store backend.
	Store StoreConfig `yaml:"store"`

	// Metrics configures the optional metrics server.
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Backend is one of "memory", "redis", "firestore".
	Backend   string          `yaml:"backend"`
	Redis     RedisConfig     `yaml:"redis"`
	Firestore FirestoreConfig `yaml:"firestore"`
}

// RedisConfig holds Redis backend configuration.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// FirestoreConfig holds Firestore backend configuration.
type FirestoreConfig struct {
	Project         string `yaml:"project"`
	CredentialsFile string `yaml:"credentials_file"`
}

// MetricsConfig holds metrics server configuration.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// DefaultConfig returns a runnable local setup: memory store and a
// devserver endpoint on localhost.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:  "http://localhost:8420",
		UserID:    "local",
		Streaming: true,
		Store: StoreConfig{
			Backend: "memory",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the
// defaults, then applies environment fallbacks. An empty path falls
// back to PARLEY_CONFIG; when neither names a file, the defaults plus
// environment are returned.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("PARLEY_CONFIG")
	}

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if info.Size() > maxConfigSize {
			return nil, fmt.Errorf("config file %s too large (%d bytes)", path, info.Size())
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv fills unset fields from the environment.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PARLEY_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("PARLEY_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
	if cfg.Store.Firestore.Project == "" {
		cfg.Store.Firestore.Project = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if cfg.Store.Firestore.CredentialsFile == "" {
		cfg.Store.Firestore.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	if v := os.Getenv("PARLEY_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	switch c.Store.Backend {
	case "", "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("store.redis.addr is required for the redis backend")
		}
	case "firestore":
		if c.Store.Firestore.Project == "" {
			return fmt.Errorf("store.firestore.project is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}

	return nil
}
