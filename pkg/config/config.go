// Package config handles server configuration loading and management
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/filesentry/filesentry/pkg/filter"
	"github.com/filesentry/filesentry/pkg/types"
)

// Defaults for operational ceilings. Both are deliberately configurable;
// the right values depend on deployment size.
const (
	DefaultMaxWatchers      = 50
	DefaultQueueSize        = 100
	DefaultHeartbeatSeconds = 30
	DefaultPort             = 8001
)

// Config is the full server configuration
type Config struct {
	Host               string   `json:"host" yaml:"host"`
	Port               int      `json:"port" yaml:"port"`
	LogLevel           string   `json:"log_level" yaml:"logLevel"`
	LogFile            string   `json:"log_file,omitempty" yaml:"logFile,omitempty"`
	MaxWatchers        int      `json:"max_watchers" yaml:"maxWatchers"`
	QueueSize          int      `json:"queue_size" yaml:"queueSize"`
	HeartbeatSeconds   int      `json:"heartbeat_seconds" yaml:"heartbeatSeconds"`
	UseDefaultExcludes bool     `json:"use_default_excludes" yaml:"useDefaultExcludes"`
	ExcludePatterns    []string `json:"exclude_patterns,omitempty" yaml:"excludePatterns,omitempty"`
	Notifications      bool     `json:"notifications" yaml:"notifications"`

	// Watchers declared here are created at startup
	Watchers []types.WatcherConfig `json:"watchers,omitempty" yaml:"watchers,omitempty"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               DefaultPort,
		LogLevel:           "info",
		MaxWatchers:        DefaultMaxWatchers,
		QueueSize:          DefaultQueueSize,
		HeartbeatSeconds:   DefaultHeartbeatSeconds,
		UseDefaultExcludes: true,
	}
}

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig loads configuration from a file, accepting JSON or YAML, and
// applies environment overrides on top.
func (m *Manager) LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
				return nil, fmt.Errorf("failed to parse config as JSON or YAML: %v", yamlErr)
			}
		}
	}

	applyEnv(cfg)

	if err := m.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks a configuration for values that can never work
func (m *Manager) Validate(cfg *Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.MaxWatchers < 0 {
		return fmt.Errorf("max watchers must not be negative")
	}
	if cfg.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive")
	}
	if cfg.HeartbeatSeconds <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}

	seen := make(map[string]bool)
	for i, w := range cfg.Watchers {
		if w.ID == "" {
			return fmt.Errorf("watcher %d: missing id", i)
		}
		if seen[w.ID] {
			return fmt.Errorf("duplicate watcher id: %s", w.ID)
		}
		seen[w.ID] = true
		if w.Path == "" {
			return fmt.Errorf("watcher %q: missing path", w.ID)
		}
	}
	return nil
}

// Exclusions returns the effective server-wide exclusion patterns
func (c *Config) Exclusions() []string {
	out := append([]string{}, c.ExcludePatterns...)
	if c.UseDefaultExcludes {
		out = append(out, filter.DefaultExclusions()...)
	}
	return out
}

// Heartbeat returns the heartbeat interval as a duration
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// applyEnv overlays FILESENTRY_* environment variables on a config
func applyEnv(cfg *Config) {
	if v := os.Getenv("FILESENTRY_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("FILESENTRY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("FILESENTRY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FILESENTRY_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("FILESENTRY_MAX_WATCHERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxWatchers = n
		}
	}
	if v := os.Getenv("FILESENTRY_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueueSize = n
		}
	}
	if v := os.Getenv("FILESENTRY_HEARTBEAT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HeartbeatSeconds = n
		}
	}
	if v := os.Getenv("FILESENTRY_NOTIFICATIONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Notifications = b
		}
	}
}
