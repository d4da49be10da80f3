// Package rippleconfig loads configuration for the ripplectl command
// and for applications embedding the engine, layering defaults, an
// optional config file, RIPPLE_* environment variables, and command
// line flags.
package rippleconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for RippleDB.
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`

	// Node is this replica's stable identifier; it ends up as the node
	// component of every HLC this process mints. If left empty, Load
	// generates a random one; it is not persisted, so each run gets a
	// new id.
	Node string `mapstructure:"node"`

	// Remote is the base URL client commands sync against.
	Remote string `mapstructure:"remote"`

	Replicator   ReplicatorConfig   `mapstructure:"replicator"`
	Invalidation InvalidationConfig `mapstructure:"invalidation"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ReplicatorConfig tunes the pull→apply→push loop.
type ReplicatorConfig struct {
	Stream    string `mapstructure:"stream"`
	PullLimit int    `mapstructure:"pull_limit"`
	// IntervalMs is the polling cadence. It applies whether or not a
	// poke channel is connected; pokes trigger extra syncs between
	// ticks.
	IntervalMs int `mapstructure:"interval_ms"`
}

// Interval returns the polling cadence as a Duration.
func (r ReplicatorConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMs) * time.Millisecond
}

// InvalidationConfig tunes the event-to-invalidation coalescer.
type InvalidationConfig struct {
	DebounceMs     int  `mapstructure:"debounce_ms"`
	InvalidateRows bool `mapstructure:"invalidate_rows"`
}

// Debounce returns the coalescing window as a Duration.
func (i InvalidationConfig) Debounce() time.Duration {
	return time.Duration(i.DebounceMs) * time.Millisecond
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Load loads configuration from defaults, the file named by the
// --config flag (if any), RIPPLE_* environment variables, and cmd's
// flags, in increasing precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("RIPPLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("remote", "http://localhost:8080")

	v.SetDefault("replicator.stream", "default")
	v.SetDefault("replicator.pull_limit", 500)
	v.SetDefault("replicator.interval_ms", 1000)

	v.SetDefault("invalidation.debounce_ms", 50)
	v.SetDefault("invalidation.invalidate_rows", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":    "listen",
		"log-level": "log_level",
		"node":      "node",
		"remote":    "remote",
		"stream":    "replicator.stream",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.Node == "" {
		cfg.Node = uuid.NewString()
	}
	if cfg.Replicator.Stream == "" {
		return fmt.Errorf("replicator.stream is required: specify via --stream flag, config file, or RIPPLE_REPLICATOR_STREAM environment variable")
	}
	if cfg.Replicator.PullLimit <= 0 {
		return fmt.Errorf("replicator.pull_limit must be positive, got %d", cfg.Replicator.PullLimit)
	}
	if cfg.Invalidation.DebounceMs < 0 {
		return fmt.Errorf("invalidation.debounce_ms must not be negative, got %d", cfg.Invalidation.DebounceMs)
	}
	if cfg.Metrics.Enable && cfg.Metrics.Path == "" {
		return fmt.Errorf("metrics.path is required when metrics are enabled")
	}
	return nil
}
