package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tilecollide/internal/world"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// DefaultBroadcastInterval caps report pushes at 10 per second.
	DefaultBroadcastInterval = 100 * time.Millisecond

	writeWait = 2 * time.Second
)

// wsClient tracks a WebSocket connection with its source IP
type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// wsMessage is the envelope every pushed frame uses.
type wsMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// SnapshotSource is anything that publishes step reports.
type SnapshotSource interface {
	Snapshot() *world.StepReport
}

// WebSocketHub fans step reports out to connected clients with per-IP and
// total connection limits.
type WebSocketHub struct {
	clients    map[*websocket.Conn]*wsClient
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *websocket.Conn
	done       chan struct{} // closed when Run returns
	mu         sync.RWMutex

	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter
	logger    *zap.Logger
}

// NewWebSocketHub creates a hub accepting the given origin patterns
// (nil means DefaultOrigins).
func NewWebSocketHub(origins []string, logger *zap.Logger) *WebSocketHub {
	if origins == nil {
		origins = DefaultOrigins
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &WebSocketHub{
		clients:    make(map[*websocket.Conn]*wsClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if IsAllowedOrigin(origin, origins) {
				return true
			}
			h.logger.Warn("websocket origin rejected", zap.String("origin", origin))
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run serves register, unregister and broadcast until ctx is done, then
// closes every connection.
func (h *WebSocketHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn, client := range h.clients {
				h.wsLimiter.Release(client.ip)
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.conn] = client
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug("websocket client connected", zap.String("ip", client.ip), zap.Int("total", count))
			UpdateWSConnections(count)

		case conn := <-h.unregister:
			h.mu.Lock()
			h.dropLocked(conn)
			count := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug("websocket client disconnected", zap.Int("remaining", count))
			UpdateWSConnections(count)

		case message := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					h.dropLocked(conn)
				}
			}
			count := len(h.clients)
			h.mu.Unlock()
			UpdateWSConnections(count)
			IncrementWSMessages()
		}
	}
}

func (h *WebSocketHub) dropLocked(conn *websocket.Conn) {
	if client, ok := h.clients[conn]; ok {
		h.wsLimiter.Release(client.ip)
		delete(h.clients, conn)
		conn.Close()
	}
}

// Broadcast sends a message to all connected clients. A full queue drops
// the message.
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	jsonBytes, err := json.Marshal(wsMessage{Event: event, Data: data})
	if err != nil {
		h.logger.Error("websocket encode failed", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case h.broadcast <- jsonBytes:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes the latest step report every interval while
// clients are connected and the tick has advanced.
func (h *WebSocketHub) StartBroadcastLoop(ctx context.Context, source SnapshotSource, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var lastTick uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if h.ClientCount() == 0 {
				continue
			}
			report := source.Snapshot()
			if report == nil || report.Tick == lastTick {
				continue
			}
			lastTick = report.Tick
			h.Broadcast("world:report", report)
		}
	}()
}

// HandleWebSocket upgrades the request after checking connection limits.
// Clients only receive; anything they send is read and discarded so that
// close frames are processed.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if h.ClientCount() >= MaxWSConnectionsTotal {
		h.logger.Warn("websocket rejected: total limit reached", zap.Int("limit", MaxWSConnectionsTotal))
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		h.logger.Warn("websocket rejected: per-IP limit reached", zap.String("ip", ip))
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		h.wsLimiter.Release(ip)
		return
	}

	select {
	case h.register <- &wsClient{conn: conn, ip: ip}:
	case <-h.done:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	go func() {
		defer func() {
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
