// -----------------------------------------------------------------------
// WebSocket Handler - live log event stream for any number of concurrent
// readers. Slow clients drop events rather than stall the sink.
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/compactd/internal/common"
	"github.com/ternarybob/compactd/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const clientBufferSize = 64

// WebSocketHandler fans log events out to connected clients. Debug-level
// events are throttled so a chatty work function cannot flood readers.
type WebSocketHandler struct {
	logger   arbor.ILogger
	mu       sync.RWMutex
	clients  map[*websocket.Conn]chan models.LogEvent
	minRank  int
	throttle *rate.Limiter
}

// NewWebSocketHandler creates the handler from websocket config.
func NewWebSocketHandler(config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:  logger,
		clients: make(map[*websocket.Conn]chan models.LogEvent),
		minRank: models.LevelRank(models.LogLevelInfo),
	}

	if config != nil {
		if config.MinLevel != "" {
			h.minRank = models.LevelRank(config.MinLevel)
		}
		if config.Throttle != "" {
			if interval, err := time.ParseDuration(config.Throttle); err == nil && interval > 0 {
				h.throttle = rate.NewLimiter(rate.Every(interval), 1)
			} else if err != nil {
				logger.Warn().Err(err).Str("throttle", config.Throttle).Msg("Invalid websocket throttle - throttling disabled")
			}
		}
	}

	return h
}

// HandleWebSocket handles GET /ws
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	ch := make(chan models.LogEvent, clientBufferSize)

	h.mu.Lock()
	h.clients[conn] = ch
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", count).Msg("WebSocket client connected")

	go h.writePump(conn, ch)
	h.readPump(conn)
}

// writePump drains the client channel until it is closed by unregister.
func (h *WebSocketHandler) writePump(conn *websocket.Conn, ch chan models.LogEvent) {
	for event := range ch {
		if err := conn.WriteJSON(event); err != nil {
			h.unregister(conn)
			return
		}
	}
}

// readPump blocks until the client disconnects; clients send nothing.
func (h *WebSocketHandler) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.unregister(conn)
			return
		}
	}
}

func (h *WebSocketHandler) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		close(ch)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		conn.Close()
		h.logger.Debug().Int("clients", count).Msg("WebSocket client disconnected")
	}
}

// Broadcast is the sink subscriber: it forwards one event to every
// connected client. It never blocks - a client with a full buffer misses
// the event.
func (h *WebSocketHandler) Broadcast(event models.LogEvent) {
	if models.LevelRank(event.Level) < h.minRank {
		return
	}
	if event.Level == models.LogLevelDebug && h.throttle != nil && !h.throttle.Allow() {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- event:
		default:
			// Slow client, drop the event
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
