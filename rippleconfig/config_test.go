package rippleconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("listen", ":8080", "")
	cmd.Flags().String("log-level", "info", "")
	cmd.Flags().String("node", "", "")
	cmd.Flags().String("remote", "http://localhost:8080", "")
	cmd.Flags().String("stream", "default", "")
	return cmd
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	if got := v.GetString("listen"); got != ":8080" {
		t.Errorf("listen default = %q", got)
	}
	if got := v.GetString("log_level"); got != "info" {
		t.Errorf("log_level default = %q", got)
	}
	if got := v.GetInt("replicator.pull_limit"); got != 500 {
		t.Errorf("replicator.pull_limit default = %d", got)
	}
	if got := v.GetInt("invalidation.debounce_ms"); got != 50 {
		t.Errorf("invalidation.debounce_ms default = %d", got)
	}
	if !v.GetBool("invalidation.invalidate_rows") {
		t.Error("invalidation.invalidate_rows should default to true")
	}
	if !v.GetBool("metrics.enable") {
		t.Error("metrics.enable should default to true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newTestCmd())
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Replicator.Stream != "default" {
		t.Errorf("stream = %q", cfg.Replicator.Stream)
	}
	if cfg.Node == "" {
		t.Error("node should be generated when unset")
	}
	if cfg.Replicator.Interval() != time.Second {
		t.Errorf("interval = %v", cfg.Replicator.Interval())
	}
	if cfg.Invalidation.Debounce() != 50*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Invalidation.Debounce())
	}
}

func TestLoad_FlagsOverride(t *testing.T) {
	cmd := newTestCmd()
	if err := cmd.Flags().Set("stream", "todos"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("node", "replica-a"); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Replicator.Stream != "todos" {
		t.Errorf("stream = %q", cfg.Replicator.Stream)
	}
	if cfg.Node != "replica-a" {
		t.Errorf("node = %q", cfg.Node)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ripple.yaml")
	content := "listen: \":9090\"\nreplicator:\n  stream: filecfg\n  pull_limit: 25\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newTestCmd()
	if err := cmd.Flags().Set("config", path); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Replicator.Stream != "filecfg" {
		t.Errorf("stream = %q", cfg.Replicator.Stream)
	}
	if cfg.Replicator.PullLimit != 25 {
		t.Errorf("pull_limit = %d", cfg.Replicator.PullLimit)
	}
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero pull limit", func(c *Config) { c.Replicator.PullLimit = 0 }},
		{"negative debounce", func(c *Config) { c.Invalidation.DebounceMs = -1 }},
		{"metrics without path", func(c *Config) { c.Metrics.Enable = true; c.Metrics.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Listen: ":8080",
				Node:   "n",
				Replicator: ReplicatorConfig{
					Stream:    "s",
					PullLimit: 500,
				},
				Invalidation: InvalidationConfig{DebounceMs: 50},
				Metrics:      MetricsConfig{Enable: true, Path: "/metrics"},
			}
			tt.mut(cfg)
			if err := validate(cfg); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
