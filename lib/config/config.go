// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when no --config flag is
// given.
const EnvironmentVariable = "DAWSYNC_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Transport kinds.
const (
	TransportMemory    = "memory"
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

// State store kinds.
const (
	StateMemory = "memory"
	StateBadger = "badger"
)

// Config is the master configuration for dawsync binaries.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Peer      PeerConfig      `yaml:"peer"`
	Sync      SyncConfig      `yaml:"sync"`
	Transport TransportConfig `yaml:"transport"`
	Storage   StorageConfig   `yaml:"storage"`
	Assets    AssetsConfig    `yaml:"assets"`
	Relay     RelayConfig     `yaml:"relay"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Sync      *SyncConfig      `yaml:"sync,omitempty"`
	Transport *TransportConfig `yaml:"transport,omitempty"`
	Storage   *StorageConfig   `yaml:"storage,omitempty"`
	Assets    *AssetsConfig    `yaml:"assets,omitempty"`
	Relay     *RelayConfig     `yaml:"relay,omitempty"`
}

// PeerConfig identifies the local replica.
type PeerConfig struct {
	// ProjectID is the shared project this peer edits.
	ProjectID string `yaml:"project_id"`

	// UserID is this peer's identity in vector clocks and LWW tie
	// breaks. It must be unique among the project's peers.
	UserID string `yaml:"user_id"`
}

// SyncConfig controls anti-entropy.
type SyncConfig struct {
	// Interval between periodic sync requests.
	// Default: 5s
	Interval time.Duration `yaml:"interval"`

	// DependencyTimeout is how long an operation may wait for missing
	// dependencies before the agent asks peers for them by id.
	// Default: 10s
	DependencyTimeout time.Duration `yaml:"dependency_timeout"`

	// DependencyMaxAttempts is how many targeted requests are made
	// before a waiting operation is applied anyway.
	// Default: 3
	DependencyMaxAttempts int `yaml:"dependency_max_attempts"`
}

// TransportConfig selects how peers reach each other.
type TransportConfig struct {
	// Kind is memory, websocket, or redis.
	// Default: websocket
	Kind string `yaml:"kind"`

	// RelayURL is the websocket relay endpoint.
	// Default: ws://localhost:7700/ws
	RelayURL string `yaml:"relay_url"`

	// RedisAddr is the Redis server for the redis transport.
	// Default: localhost:6379
	RedisAddr string `yaml:"redis_addr"`
}

// StorageConfig locates persistent state.
type StorageConfig struct {
	// Root is the base directory for dawsync data.
	Root string `yaml:"root"`

	// State is the snapshot store kind: badger or memory.
	// Default: badger
	State string `yaml:"state"`

	// StateDir is the badger directory.
	StateDir string `yaml:"state_dir"`

	// OpLog is the SQLite operation log database.
	OpLog string `yaml:"oplog"`
}

// AssetsConfig configures audio asset storage and fetching.
type AssetsConfig struct {
	// Dir is the local asset store.
	Dir string `yaml:"dir"`

	// RemoteURL is the asset service base URL. Empty disables
	// downloading.
	RemoteURL string `yaml:"remote_url"`

	// CacheBytes bounds the in-memory asset cache.
	// Default: 256 MiB
	CacheBytes int64 `yaml:"cache_bytes"`

	// CacheTTL expires cached assets.
	// Default: 10m
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// DownloadTimeout bounds one download attempt.
	// Default: 30s
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// DownloadConcurrency bounds parallel downloads during a rebuild.
	// Default: 4
	DownloadConcurrency int `yaml:"download_concurrency"`
}

// RelayConfig configures dawsync-relay.
type RelayConfig struct {
	// Listen is the websocket listen address.
	// Default: :7700
	Listen string `yaml:"listen"`

	// Metrics is the prometheus listen address. Empty disables it.
	// Default: :9100
	Metrics string `yaml:"metrics"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".local", "share", "dawsync")

	return &Config{
		Environment: Development,
		Sync: SyncConfig{
			Interval:              5 * time.Second,
			DependencyTimeout:     10 * time.Second,
			DependencyMaxAttempts: 3,
		},
		Transport: TransportConfig{
			Kind:      TransportWebSocket,
			RelayURL:  "ws://localhost:7700/ws",
			RedisAddr: "localhost:6379",
		},
		Storage: StorageConfig{
			Root:     defaultRoot,
			State:    StateBadger,
			StateDir: filepath.Join(defaultRoot, "state"),
			OpLog:    filepath.Join(defaultRoot, "oplog.db"),
		},
		Assets: AssetsConfig{
			Dir:                 filepath.Join(defaultRoot, "assets"),
			CacheBytes:          256 << 20,
			CacheTTL:            10 * time.Minute,
			DownloadTimeout:     30 * time.Second,
			DownloadConcurrency: 4,
		},
		Relay: RelayConfig{
			Listen:  ":7700",
			Metrics: ":9100",
		},
	}
}

// Load loads configuration from the DAWSYNC_CONFIG environment variable.
//
// This is the only way to load configuration without an explicit path.
// There are no fallbacks or defaults - if DAWSYNC_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your dawsync.yaml config file, or use --config flag", EnvironmentVariable)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables do not
// override config values. The only expansion performed is ${HOME} and similar
// path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	// Apply environment-specific overrides (development/staging/production sections in the file).
	cfg.applyEnvironmentOverrides()

	// Expand ${HOME} and similar variables in paths for portability.
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: durable state.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Storage: &StorageConfig{State: StateBadger},
			}
		}
	}

	if overrides == nil {
		return
	}

	if o := overrides.Sync; o != nil {
		if o.Interval != 0 {
			c.Sync.Interval = o.Interval
		}
		if o.DependencyTimeout != 0 {
			c.Sync.DependencyTimeout = o.DependencyTimeout
		}
		if o.DependencyMaxAttempts != 0 {
			c.Sync.DependencyMaxAttempts = o.DependencyMaxAttempts
		}
	}

	if o := overrides.Transport; o != nil {
		if o.Kind != "" {
			c.Transport.Kind = o.Kind
		}
		if o.RelayURL != "" {
			c.Transport.RelayURL = o.RelayURL
		}
		if o.RedisAddr != "" {
			c.Transport.RedisAddr = o.RedisAddr
		}
	}

	if o := overrides.Storage; o != nil {
		if o.Root != "" {
			c.Storage.Root = o.Root
		}
		if o.State != "" {
			c.Storage.State = o.State
		}
		if o.StateDir != "" {
			c.Storage.StateDir = o.StateDir
		}
		if o.OpLog != "" {
			c.Storage.OpLog = o.OpLog
		}
	}

	if o := overrides.Assets; o != nil {
		if o.Dir != "" {
			c.Assets.Dir = o.Dir
		}
		if o.RemoteURL != "" {
			c.Assets.RemoteURL = o.RemoteURL
		}
		if o.CacheBytes != 0 {
			c.Assets.CacheBytes = o.CacheBytes
		}
		if o.CacheTTL != 0 {
			c.Assets.CacheTTL = o.CacheTTL
		}
		if o.DownloadTimeout != 0 {
			c.Assets.DownloadTimeout = o.DownloadTimeout
		}
		if o.DownloadConcurrency != 0 {
			c.Assets.DownloadConcurrency = o.DownloadConcurrency
		}
	}

	if o := overrides.Relay; o != nil {
		if o.Listen != "" {
			c.Relay.Listen = o.Listen
		}
		if o.Metrics != "" {
			c.Relay.Metrics = o.Metrics
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DAWSYNC_ROOT": c.Storage.Root,
		"HOME":         os.Getenv("HOME"),
	}

	c.Storage.Root = expandVars(c.Storage.Root, vars)
	vars["DAWSYNC_ROOT"] = c.Storage.Root // Update for dependent paths.

	c.Storage.StateDir = expandVars(c.Storage.StateDir, vars)
	c.Storage.OpLog = expandVars(c.Storage.OpLog, vars)
	c.Assets.Dir = expandVars(c.Assets.Dir, vars)
	c.Assets.RemoteURL = expandVars(c.Assets.RemoteURL, vars)
	c.Transport.RelayURL = expandVars(c.Transport.RelayURL, vars)
	c.Transport.RedisAddr = expandVars(c.Transport.RedisAddr, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration a peer needs. Relay-only binaries
// call ValidateRelay instead.
func (c *Config) Validate() error {
	var errs []error

	if err := c.validateEnvironment(); err != nil {
		errs = append(errs, err)
	}

	if c.Peer.ProjectID == "" {
		errs = append(errs, errors.New("peer.project_id is required"))
	}
	if c.Peer.UserID == "" {
		errs = append(errs, errors.New("peer.user_id is required"))
	}

	if c.Sync.Interval <= 0 {
		errs = append(errs, errors.New("sync.interval must be positive"))
	}
	if c.Sync.DependencyTimeout <= 0 {
		errs = append(errs, errors.New("sync.dependency_timeout must be positive"))
	}
	if c.Sync.DependencyMaxAttempts < 1 {
		errs = append(errs, errors.New("sync.dependency_max_attempts must be at least 1"))
	}

	transports := []string{TransportMemory, TransportWebSocket, TransportRedis}
	if !slices.Contains(transports, c.Transport.Kind) {
		errs = append(errs, fmt.Errorf("transport.kind must be one of: %v", transports))
	}
	if c.Transport.Kind == TransportWebSocket && c.Transport.RelayURL == "" {
		errs = append(errs, errors.New("transport.relay_url is required for the websocket transport"))
	}
	if c.Transport.Kind == TransportRedis && c.Transport.RedisAddr == "" {
		errs = append(errs, errors.New("transport.redis_addr is required for the redis transport"))
	}
	if c.Environment == Production && c.Transport.Kind == TransportMemory {
		errs = append(errs, errors.New("transport.kind memory is not allowed in production"))
	}

	states := []string{StateMemory, StateBadger}
	if !slices.Contains(states, c.Storage.State) {
		errs = append(errs, fmt.Errorf("storage.state must be one of: %v", states))
	}
	if c.Storage.State == StateBadger && c.Storage.StateDir == "" {
		errs = append(errs, errors.New("storage.state_dir is required for badger state"))
	}
	if c.Environment == Production && c.Storage.State == StateMemory {
		errs = append(errs, errors.New("storage.state memory is not allowed in production"))
	}

	if c.Assets.Dir == "" {
		errs = append(errs, errors.New("assets.dir is required"))
	}
	if c.Assets.CacheBytes <= 0 {
		errs = append(errs, errors.New("assets.cache_bytes must be positive"))
	}
	if c.Assets.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("assets.download_timeout must be positive"))
	}
	if c.Assets.DownloadConcurrency < 1 {
		errs = append(errs, errors.New("assets.download_concurrency must be at least 1"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidateRelay checks the configuration dawsync-relay needs.
func (c *Config) ValidateRelay() error {
	var errs []error
	if err := c.validateEnvironment(); err != nil {
		errs = append(errs, err)
	}
	if c.Relay.Listen == "" {
		errs = append(errs, errors.New("relay.listen is required"))
	}
	if c.Relay.Metrics != "" && c.Relay.Metrics == c.Relay.Listen {
		errs = append(errs, errors.New("relay.metrics must differ from relay.listen"))
	}
	return errors.Join(errs...)
}

func (c *Config) validateEnvironment() error {
	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}
	return nil
}

// EnsurePaths creates the configured data directories if they don't
// exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Storage.Root,
		c.Assets.Dir,
	}
	if c.Storage.State == StateBadger {
		paths = append(paths, c.Storage.StateDir)
	}
	if c.Storage.OpLog != "" {
		paths = append(paths, filepath.Dir(c.Storage.OpLog))
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
