package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/go-mizu/rippledb/logbroker"
	dbmemory "github.com/go-mizu/rippledb/logbroker/memory"
	"github.com/go-mizu/rippledb/metrics"
	"github.com/go-mizu/rippledb/rippleconfig"
	ripplehttp "github.com/go-mizu/rippledb/transport/http"
	"github.com/go-mizu/rippledb/transport/ws"
)

// NewServe creates the serve command.
func NewServe() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a change-log server",
		Long: `Runs an in-memory change-log server.

The server exposes POST /pull and POST /append, a WebSocket poke
endpoint at /poke, and (unless disabled) Prometheus metrics.`,
		RunE: runServe,
	}
	cmd.Flags().String("listen", ":8080", "Listen address")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := rippleconfig.Load(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	ui := NewUI()

	hub := ws.NewHub(ws.WithLogger(logger))
	defer hub.Close()

	var db logbroker.Db = dbmemory.New(dbmemory.WithBroker(hub))
	db = metrics.Db(db)

	mux := http.NewServeMux()
	ripplehttp.NewHandler(db, ripplehttp.WithLogger(logger)).Mount(mux, "")
	mux.Handle("/poke", hub)
	if cfg.Metrics.Enable {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ui.Header(iconStream, "RippleDB Server")
	ui.Summary([][2]string{
		{"Listen", cfg.Listen},
		{"Poke", "/poke"},
		{"Metrics", metricsLine(cfg)},
	})
	ui.Blank()
	ui.Hint("Press Ctrl+C to stop the server")
	ui.Blank()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", slog.String("listen", cfg.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-cmd.Context().Done():
		ui.Blank()
		ui.Warn("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", slog.Any("error", err))
			return err
		}
		logger.Info("server stopped")
		return nil
	}
}

func metricsLine(cfg *rippleconfig.Config) string {
	if !cfg.Metrics.Enable {
		return "disabled"
	}
	return cfg.Metrics.Path
}

// newLogger builds a text slog.Logger honoring the configured level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
