// Package cli provides the ripplectl command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

// Version information (set at build time via ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Execute runs the CLI with the given context.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "ripplectl",
		Short: "Local-first sync engine",
		Long: `Ripplectl operates a RippleDB change-log server and drives ad hoc
replication against one.

Commands:
  serve   run an in-memory change-log server with /pull, /append, and poke hints
  status  summarize a remote stream
  pull    fetch and print a stream's changes
  push    submit an upsert or delete to a remote stream
  watch   mirror a remote stream into a local store and print every event`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.SetVersionTemplate("ripplectl {{.Version}}\n")
	root.Version = versionString()
	root.PersistentFlags().String("config", "", "Config file")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("remote", "http://localhost:8080", "Remote server base URL")
	root.PersistentFlags().String("stream", "default", "Stream to operate on")
	root.PersistentFlags().String("node", "", "Replica node id (generated if empty)")

	root.AddCommand(
		NewServe(),
		NewStatus(),
		NewPull(),
		NewPush(),
		NewWatch(),
	)

	if err := fang.Execute(ctx, root,
		fang.WithVersion(Version),
		fang.WithCommit(Commit),
	); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(iconCross+" "+err.Error()))
		return err
	}
	return nil
}

func versionString() string {
	if strings.TrimSpace(Version) != "" && Version != "dev" {
		return Version
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			return bi.Main.Version
		}
	}
	return "dev"
}
