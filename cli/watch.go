package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-mizu/rippledb/invalidation"
	"github.com/go-mizu/rippledb/logbroker"
	"github.com/go-mizu/rippledb/outbox/memory"
	"github.com/go-mizu/rippledb/replicator"
	"github.com/go-mizu/rippledb/rippleconfig"
	"github.com/go-mizu/rippledb/store"
	storememory "github.com/go-mizu/rippledb/store/memory"
	ripplehttp "github.com/go-mizu/rippledb/transport/http"
	"github.com/go-mizu/rippledb/transport/ws"
)

// NewWatch creates the watch command.
func NewWatch() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Mirror a remote stream into a local store and print every event",
		Long: `Runs a replicator against the remote stream and prints every
post-commit event and coalesced invalidation as changes arrive.

Syncs fire on the polling interval and, when the server's poke
endpoint is reachable, immediately on each append hint.`,
		RunE: runWatch,
	}
	cmd.Flags().Bool("no-poke", false, "Disable the WebSocket poke subscription and rely on polling only")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := rippleconfig.Load(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	ui := NewUI()

	st := storememory.New()
	rep := replicator.New(
		cfg.Replicator.Stream,
		st,
		ripplehttp.NewClient(cfg.Remote),
		memory.New(),
		replicator.NewMemoryCursorStore(),
		replicator.WithPullLimit(cfg.Replicator.PullLimit),
		replicator.WithLogger(logger),
	)

	unsubscribe := st.OnEvent(func(e store.Event) {
		ui.ChangeRow(string(e.Kind), e.Entity, e.ID, "")
	})
	defer unsubscribe()

	registry := invalidation.NewRegistry()
	coalescer := invalidation.NewCoalescer(registry,
		func(ctx context.Context, key invalidation.Key) {
			ui.Hint("invalidate [" + strings.Join(key, ", ") + "]")
		},
		invalidation.WithDebounce(cfg.Invalidation.Debounce()),
		invalidation.WithRowInvalidation(cfg.Invalidation.InvalidateRows),
		invalidation.WithLogger(logger),
	)
	unwire := coalescer.Wire(st)
	defer unwire()

	ui.Header(iconStream, "Watching "+cfg.Replicator.Stream)
	ui.Summary([][2]string{
		{"Remote", cfg.Remote},
		{"Interval", cfg.Replicator.Interval().String()},
	})
	ui.Blank()
	ui.Hint("Press Ctrl+C to stop")
	ui.Blank()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Trigger channel: the ticker and the poke listener both feed it.
	trigger := make(chan struct{}, 1)
	kick := func() {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}

	noPoke, _ := cmd.Flags().GetBool("no-poke")
	if !noPoke {
		endpoint := pokeEndpoint(cfg.Remote)
		ln, err := ws.NewListener(endpoint, []string{cfg.Replicator.Stream},
			func(ctx context.Context, p logbroker.Poke) { kick() },
			ws.WithListenerLogger(logger),
		)
		if err != nil {
			return err
		}
		go ln.Run(ctx)
	}

	ticker := time.NewTicker(cfg.Replicator.Interval())
	defer ticker.Stop()
	kick()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			kick()
		case <-trigger:
			res, err := rep.Sync(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				ui.Warn(err.Error())
				continue
			}
			if res.Pulled > 0 {
				ui.Info("pulled", fmt.Sprintf("%d change(s)", res.Pulled))
			}
		}
	}
}

// pokeEndpoint derives the poke URL from the remote base URL: wss://
// for an https remote, ws:// otherwise.
func pokeEndpoint(remote string) string {
	endpoint := strings.TrimRight(remote, "/") + "/poke"
	if strings.HasPrefix(endpoint, "https://") {
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	}
	return "ws://" + strings.TrimPrefix(endpoint, "http://")
}
