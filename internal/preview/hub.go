package preview

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"apex-preview/internal/logging"
	"apex-preview/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 16
)

// Message types pushed to browsing surfaces.
const (
	MessageReload = "reload"
	MessageError  = "error"
	MessageClosed = "closed"
)

// Message is pushed to every client watching a surface.
type Message struct {
	Type      string    `json:"type"`
	Surface   string    `json:"surface"`
	Address   string    `json:"address,omitempty"`
	Message   string    `json:"message,omitempty"`
	Run       uint64    `json:"run,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub fans preview state changes out to websocket clients, grouped by
// surface.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*hubClient]struct{}
	closed  bool

	log *zap.Logger
}

type hubClient struct {
	conn      *websocket.Conn
	surface   string
	send      chan []byte
	closeOnce sync.Once
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// NewHub creates a hub. checkOrigin may be nil to accept same-origin
// requests only.
func NewHub(checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[string]map[*hubClient]struct{}),
		log:     logging.Named("preview-hub"),
	}
}

// ServeWS upgrades the request and blocks until the client disconnects or
// the hub is closed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, surface string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &hubClient{conn: conn, surface: surface, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return nil
	}

	go c.writePump()
	c.readPump()
	h.unregister(c)
	return nil
}

func (h *Hub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[c.surface]
	if !ok {
		set = make(map[*hubClient]struct{})
		h.clients[c.surface] = set
	}
	set[c] = struct{}{}
	metrics.WebSocketConnected(1)
	h.log.Debug("client connected", zap.String("surface", c.surface), zap.Int("clients", len(set)))
	return true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	if set, ok := h.clients[c.surface]; ok {
		if _, live := set[c]; live {
			delete(set, c)
			metrics.WebSocketConnected(-1)
		}
		if len(set) == 0 {
			delete(h.clients, c.surface)
		}
	}
	h.mu.Unlock()
	c.close()
}

// Broadcast queues msg for every client of msg.Surface and returns how many
// clients it reached. Clients whose queue is full are dropped.
func (h *Hub) Broadcast(msg Message) int {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to encode message", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return 0
	}
	var slow []*hubClient
	sent := 0
	for c := range h.clients[msg.Surface] {
		select {
		case c.send <- data:
			sent++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow client", zap.String("surface", c.surface))
		c.conn.Close()
	}
	return sent
}

// Clients returns the number of clients watching surface.
func (h *Hub) Clients(surface string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[surface])
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*hubClient
	for surface, set := range h.clients {
		for c := range set {
			all = append(all, c)
			metrics.WebSocketConnected(-1)
		}
		delete(h.clients, surface)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (c *hubClient) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
