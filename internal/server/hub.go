package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/ufirm/fingercounter/internal/ui"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// client is one websocket connection of a session.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(ev ui.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}

// Hub pushes UI events to the websocket connections of each session.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]bool
	logger  *log.Logger
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]bool),
		logger:  log.WithPrefix("ws"),
	}
}

// Publish sends ev to every connection of the session. Failed connections
// are dropped.
func (h *Hub) Publish(sessionID string, ev ui.Event) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients[sessionID]))
	for c := range h.clients[sessionID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.send(ev); err != nil {
			h.logger.Debug("dropping websocket", "session", sessionID, "err", err)
			h.remove(sessionID, c)
			c.conn.Close()
		}
	}
}

// Count returns the number of connections of a session.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Serve upgrades the request and keeps the connection registered for the
// session until the browser goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn}
	h.mu.Lock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = make(map[*client]bool)
	}
	h.clients[sessionID][c] = true
	h.mu.Unlock()

	defer h.remove(sessionID, c)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conns := range h.clients {
		for c := range conns {
			c.conn.Close()
		}
		delete(h.clients, id)
	}
}

func (h *Hub) remove(sessionID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[sessionID], c)
	if len(h.clients[sessionID]) == 0 {
		delete(h.clients, sessionID)
	}
}
