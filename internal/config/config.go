// Package config loads docdash configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all docdash configuration.
type Config struct {
	// API connection settings
	API APIConfig `yaml:"api"`

	// Query cache windows
	Cache CacheConfig `yaml:"cache"`

	// Offline queue behavior
	Offline OfflineConfig `yaml:"offline"`

	// Connectivity monitoring
	Netmon NetmonConfig `yaml:"netmon"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// StateDir holds the sqlite store and log files.
	StateDir string `yaml:"state_dir"`
}

// APIConfig configures the transport client.
type APIConfig struct {
	BaseURL           string        `yaml:"base_url"`
	Token             string        `yaml:"token"`
	AuthHeader        string        `yaml:"auth_header"`  // default "Authorization"
	AuthPrefix        string        `yaml:"auth_prefix"`  // default "Bearer "
	Timeout           time.Duration `yaml:"timeout"`      // per-attempt timeout
	MaxRetries        int           `yaml:"max_retries"`  // attempts beyond the first
	BaseDelay         time.Duration `yaml:"base_delay"`   // first backoff delay
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	RetryableStatuses []int         `yaml:"retryable_statuses"`
}

// CacheConfig configures per-family staleness and garbage collection windows.
type CacheConfig struct {
	StaleAfter   map[string]time.Duration `yaml:"stale_after"`    // per resource family
	GCAfter      map[string]time.Duration `yaml:"gc_after"`       // per resource family
	DefaultStale time.Duration            `yaml:"default_stale"`
	DefaultGC    time.Duration            `yaml:"default_gc"`
	PollInterval time.Duration            `yaml:"poll_interval"` // in-progress entity refetch
}

// OfflineConfig configures the offline write queue.
type OfflineConfig struct {
	MaxRetries int    `yaml:"max_retries"`
	StorePath  string `yaml:"store_path"` // sqlite file, relative to state_dir if not absolute
}

// NetmonConfig configures the network status monitor.
type NetmonConfig struct {
	ProbeInterval time.Duration `yaml:"probe_interval"`
	ProbePath     string        `yaml:"probe_path"` // endpoint probed for liveness
	SlowRTT       time.Duration `yaml:"slow_rtt"`   // RTT above this counts as slow
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "http://localhost:8000/api/v1",
			AuthHeader:        "Authorization",
			AuthPrefix:        "Bearer ",
			Timeout:           30 * time.Second,
			MaxRetries:        3,
			BaseDelay:         time.Second,
			BackoffMultiplier: 2.0,
			RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
		},
		Cache: CacheConfig{
			DefaultStale: 30 * time.Second,
			DefaultGC:    5 * time.Minute,
			PollInterval: 2 * time.Second,
			StaleAfter: map[string]time.Duration{
				"documents":   30 * time.Second,
				"collections": time.Minute,
				"workflows":   15 * time.Second,
				"health":      10 * time.Second,
				"metrics":     time.Minute,
				"rag":         15 * time.Second,
			},
		},
		Offline: OfflineConfig{
			MaxRetries: 3,
			StorePath:  "docdash.db",
		},
		Netmon: NetmonConfig{
			ProbeInterval: 10 * time.Second,
			ProbePath:     "/health",
			SlowRTT:       1400 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		StateDir: defaultStateDir(),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docdash"
	}
	return filepath.Join(home, ".docdash")
}

// DefaultPath is the default config file location.
func DefaultPath() string {
	return filepath.Join(defaultStateDir(), "docdash.yaml")
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("DOCDASH_API_URL"); url != "" {
		c.API.BaseURL = url
	}
	if token := os.Getenv("DOCDASH_API_TOKEN"); token != "" {
		c.API.Token = token
	}
	if v := os.Getenv("DOCDASH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.API.Timeout = d
		}
	}
	if v := os.Getenv("DOCDASH_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.API.MaxRetries = n
		}
	}
	if v := os.Getenv("DOCDASH_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("DOCDASH_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true"
	}
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.BackoffMultiplier < 1 {
		return fmt.Errorf("api.backoff_multiplier must be >= 1, got %v", c.API.BackoffMultiplier)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries must be >= 0, got %d", c.API.MaxRetries)
	}
	return nil
}

// StorePath resolves the offline store path against the state directory.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Offline.StorePath) {
		return c.Offline.StorePath
	}
	return filepath.Join(c.StateDir, c.Offline.StorePath)
}

// StaleAfter returns the staleness window for a resource family.
func (c *Config) StaleAfter(family string) time.Duration {
	if d, ok := c.Cache.StaleAfter[family]; ok {
		return d
	}
	return c.Cache.DefaultStale
}

// GCAfter returns the garbage-collection window for a resource family.
func (c *Config) GCAfter(family string) time.Duration {
	if d, ok := c.Cache.GCAfter[family]; ok {
		return d
	}
	if c.Cache.DefaultGC > 0 {
		return c.Cache.DefaultGC
	}
	return 5 * time.Minute
}
