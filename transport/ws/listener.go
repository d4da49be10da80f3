package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/go-mizu/rippledb/logbroker"
)

// Listener dials a Hub and forwards every received poke to a handler,
// typically one that triggers a Replicator.Sync. It reconnects with a
// fixed pause on failure until its context is cancelled.
type Listener struct {
	endpoint string
	streams  []string
	handler  func(ctx context.Context, p logbroker.Poke)
	logger   *slog.Logger
	retry    time.Duration
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithListenerLogger injects a structured logger. Defaults to
// slog.Default().
func WithListenerLogger(l *slog.Logger) ListenerOption {
	return func(ln *Listener) { ln.logger = l }
}

// WithRetryInterval overrides the pause between reconnect attempts
// (default 5s).
func WithRetryInterval(d time.Duration) ListenerOption {
	return func(ln *Listener) { ln.retry = d }
}

const defaultRetry = 5 * time.Second

// NewListener builds a Listener for endpoint (a ws:// or wss:// URL)
// subscribed to streams.
func NewListener(endpoint string, streams []string, handler func(ctx context.Context, p logbroker.Poke), opts ...ListenerOption) (*Listener, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("transport/ws: at least one stream is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("transport/ws: parsing endpoint: %w", err)
	}
	q := u.Query()
	q.Del("stream")
	for _, s := range streams {
		q.Add("stream", s)
	}
	u.RawQuery = q.Encode()

	ln := &Listener{
		endpoint: u.String(),
		streams:  streams,
		handler:  handler,
		logger:   slog.Default(),
		retry:    defaultRetry,
	}
	for _, o := range opts {
		o(ln)
	}
	return ln, nil
}

// Run connects and forwards pokes until ctx is cancelled. Transient
// connection failures are logged and retried.
func (ln *Listener) Run(ctx context.Context) error {
	for {
		if err := ln.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ln.logger.Warn("transport/ws: connection lost, retrying",
				slog.String("endpoint", ln.endpoint), slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ln.retry):
		}
	}
}

func (ln *Listener) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: writeWait}
	conn, _, err := dialer.DialContext(ctx, ln.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Tear the read loop down when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetPingHandler(func(appData string) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var frame wirePoke
		if err := json.Unmarshal(data, &frame); err != nil {
			ln.logger.Warn("transport/ws: discarding malformed poke", slog.Any("error", err))
			continue
		}
		ln.handler(ctx, logbroker.Poke{Stream: frame.Stream, Cursor: logbroker.Cursor(frame.Cursor)})
	}
}
