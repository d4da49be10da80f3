// Package ws pushes low-latency "something changed" hints to connected
// replicators over WebSocket. The Hub is a logbroker.PokeBroker: wire
// it into the server-side Db and every subscribed client learns about
// new appends without polling. Hints are advisory; a dropped poke only
// delays the next cursor-driven pull.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/go-mizu/rippledb/logbroker"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Inbound frames carry nothing; anything bigger is a broken peer.
	maxMessageSize = 512
)

// wirePoke is the JSON frame pushed to subscribers.
type wirePoke struct {
	Stream string `json:"stream"`
	Cursor string `json:"cursor"`
}

// conn is one subscribed client connection.
type conn struct {
	id      string
	streams map[string]struct{}
	ws      *websocket.Conn
	sendCh  chan wirePoke
	once    sync.Once
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.sendCh)
		c.ws.Close()
	})
}

// Hub upgrades HTTP requests into poke subscriptions and fans pokes
// out to them. Poke never blocks: a subscriber whose send buffer is
// full misses that hint and catches up on its next pull.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.RWMutex
	conns map[string]*conn
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger injects a structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub returns an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: slog.Default(),
		conns:  make(map[string]*conn),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

var _ logbroker.PokeBroker = (*Hub)(nil)

// Poke implements logbroker.PokeBroker, fanning the hint out to every
// connection subscribed to stream.
func (h *Hub) Poke(stream string, cursor logbroker.Cursor) {
	frame := wirePoke{Stream: stream, Cursor: string(cursor)}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.conns {
		if _, ok := c.streams[stream]; !ok {
			continue
		}
		select {
		case c.sendCh <- frame:
		default:
			// Buffer full; the subscriber is slow. It will catch up on
			// its next pull.
			h.logger.Warn("transport/ws: dropping poke for slow subscriber",
				slog.String("conn", c.id), slog.String("stream", stream))
		}
	}
}

// ServeHTTP upgrades the request and subscribes the connection to the
// streams named by repeated ?stream= query parameters. At least one
// stream is required.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	streams := r.URL.Query()["stream"]
	if len(streams) == 0 {
		http.Error(w, "at least one stream query parameter is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("transport/ws: upgrade failed", slog.Any("error", err))
		return
	}

	c := &conn{
		id:      uuid.NewString(),
		streams: make(map[string]struct{}, len(streams)),
		ws:      ws,
		sendCh:  make(chan wirePoke, 64),
	}
	for _, s := range streams {
		c.streams[s] = struct{}{}
	}

	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	h.logger.Info("transport/ws: subscriber connected",
		slog.String("conn", c.id), slog.Int("streams", len(streams)))

	go h.writePump(c)
	go h.readPump(c)
}

// ConnCount reports the number of live subscriptions, for diagnostics.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*conn)
	h.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	c.close()
}

func (h *Hub) writePump(c *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
	}()

	for {
		select {
		case frame, ok := <-c.sendCh:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				h.logger.Error("transport/ws: encoding poke", slog.Any("error", err))
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; subscribers only listen. It exists
// to notice closes and answer pings.
func (h *Hub) readPump(c *conn) {
	defer h.remove(c)

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}
