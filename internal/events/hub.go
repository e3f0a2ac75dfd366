package events

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-appointments/internal/metrics"
)

const (
	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Event is what live feed clients receive.
type Event struct {
	Type          string          `json:"type"`
	AppointmentID string          `json:"appointmentId,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Client is a single live feed connection. An empty filter receives every event.
type Client struct {
	ID     string
	Send   chan []byte
	filter map[string]struct{}
}

func NewClient(types ...string) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		Send: make(chan []byte, sendBuffer),
	}
	if len(types) > 0 {
		c.filter = make(map[string]struct{}, len(types))
		for _, t := range types {
			c.filter[t] = struct{}{}
		}
	}
	return c
}

func (c *Client) wants(eventType string) bool {
	if c.filter == nil {
		return true
	}
	_, ok := c.filter[eventType]
	return ok
}

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewHub builds a hub. allowedOrigins limits websocket handshakes; "*" or an
// empty list admits any origin.
func NewHub(allowedOrigins []string, m *metrics.Metrics, logger zerolog.Logger) *Hub {
	h := &Hub{
		clients: make(map[*Client]struct{}),
		metrics: m,
		log:     logger.With().Str("component", "live_feed").Logger(),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.metrics.LiveClients(1)
}

// Unregister removes the client and closes its Send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.Send)
	h.mu.Unlock()
	h.metrics.LiveClients(-1)
}

// Broadcast delivers ev to every interested client. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.Type).Msg("marshal live event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.Send <- data:
		default:
			h.log.Warn().Str("client_id", c.ID).Str("event", ev.Type).Msg("live feed client lagging, event dropped")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the peer goes away.
// ?types=A,B restricts the feed to those event types.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	c := NewClient(types...)
	h.Register(c)
	h.log.Info().Str("client_id", c.ID).Strs("types", types).Msg("live feed client connected")

	go h.writePump(c, conn)
	h.readPump(c, conn)
}

// readPump only drains control frames; clients do not send commands.
func (h *Hub) readPump(c *Client, conn *websocket.Conn) {
	defer func() {
		h.Unregister(c)
		conn.Close()
		h.log.Info().Str("client_id", c.ID).Msg("live feed client disconnected")
	}()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
