package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loadpulse/loadpulse/pkg/config"
	"github.com/loadpulse/loadpulse/pkg/model"
	"github.com/loadpulse/loadpulse/pkg/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header = direct connection (non-browser producers).
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
	ReadBufferSize:  config.WSReadBufferSize,
	WriteBufferSize: config.WSWriteBufferSize,
}

// SeriesUpdate is the message fanned out to streaming consumers after each
// processed batch.
type SeriesUpdate struct {
	RunID   string                   `json:"runId"`
	Points  []model.MeasurementPoint `json:"points,omitempty"`
	Metrics *model.AggregateMetrics  `json:"metrics,omitempty"`
}

// streamClient serializes writes to one consumer connection. The websocket
// package allows a single concurrent writer, and the keepalive pings run on
// a separate goroutine from the hub's broadcast loop.
type streamClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func (c *streamClient) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
	return c.conn.WriteMessage(messageType, data)
}

// Hub manages WebSocket connections for real-time series streaming.
type Hub struct {
	clients map[*streamClient]bool

	register   chan *streamClient
	unregister chan *streamClient
	broadcast  chan []byte

	mu  sync.RWMutex
	log *slog.Logger
}

// NewHub creates a streaming hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*streamClient]bool),
		register:   make(chan *streamClient, config.WSChannelBuffer),
		unregister: make(chan *streamClient, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
		log:        log,
	}
}

// Run starts the hub's main loop; it returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.conn.Close()
			}
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("stream client connected", "total", count)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Info("stream client disconnected", "total", count)
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*streamClient
			for client := range h.clients {
				if err := client.write(websocket.TextMessage, message); err != nil {
					failed = append(failed, client)
				}
			}
			h.mu.RUnlock()

			// Unregister failed connections without holding the lock.
			for _, client := range failed {
				h.unregister <- client
			}
		}
	}
}

// Broadcast sends a message to every connected consumer. A full channel
// drops the message rather than blocking the pipeline.
func (h *Hub) Broadcast(data any) error {
	message, err := json.Marshal(data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
		return nil
	default:
		h.log.Warn("broadcast channel full, dropping update")
		return nil
	}
}

// HasClients reports whether any consumer is connected.
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// HandleStream upgrades a chart consumer to a streaming WebSocket.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		httpNotAvailable(w)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("stream upgrade failed", "err", err)
		return
	}

	client := &streamClient{conn: conn}
	h.hub.register <- client

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Ping sender keeps the connection alive.
	go func() {
		ticker := time.NewTicker(config.WSPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	defer func() {
		cancel()
		h.hub.unregister <- client
	}()

	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	// Consumers only send control frames; the read loop detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("stream read error", "err", err)
			}
			break
		}
	}
}

// HandlePushSocket upgrades a producer connection and ingests the push
// envelopes it streams. Each text message is one PushEnvelope; a malformed
// message is skipped, not fatal.
func (h *Handler) HandlePushSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("push socket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	run := runID(r)
	conn.SetReadLimit(config.MaxRequestBodyBytes)
	conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("push socket read error", "run", run, "err", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))

		var env pipeline.PushEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			h.log.Warn("push socket skipping malformed envelope", "run", run, "err", err)
			continue
		}

		res := h.pipeline.ProcessPush(env, time.Now())
		if len(res.Points) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), config.IngestTimeout)
			if err := h.store.Append(ctx, run, res.Points); err != nil {
				h.log.Error("push socket append failed", "run", run, "err", err)
			}
			cancel()
		}
		h.publish(run, res)
	}
}

func httpNotAvailable(w http.ResponseWriter) {
	http.Error(w, "streaming not enabled", http.StatusServiceUnavailable)
}
