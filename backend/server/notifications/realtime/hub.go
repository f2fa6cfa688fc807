// Package realtime pushes goal events to connected clients over websockets.
// Delivery is best effort: a client that is not connected, or whose send
// buffer is full, simply misses the event.
package realtime

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/goalmate/backend/backend/server/contextkey"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 30 * time.Second
	pongWait   = 120 * time.Second
	pingPeriod = 15 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one websocket connection belonging to a user. A user may hold
// several connections (multiple devices) at once.
type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks connected clients keyed by user id and fans goal events out to
// them.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*client]bool
	register   chan *client
	unregister chan *client
}

// NewHub creates a Hub. Call Run in a goroutine before serving connections.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run processes client registration until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[c.userID]; !ok {
				h.clients[c.userID] = make(map[*client]bool)
			}
			h.clients[c.userID][c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if conns, ok := h.clients[c.userID]; ok {
				if _, ok := conns[c]; ok {
					delete(conns, c)
					close(c.send)
					if len(conns) == 0 {
						delete(h.clients, c.userID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// PushToUsers delivers a message to every connection of every listed user.
// Connections that cannot keep up are dropped rather than blocked on.
func (h *Hub) PushToUsers(userIDs []string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range userIDs {
		for c := range h.clients[id] {
			select {
			case c.send <- message:
			default:
				log.Printf("dropping slow websocket client for user %s", id)
				delete(h.clients[id], c)
				close(c.send)
			}
		}
	}
}

// ServeWS upgrades the request to a websocket connection for the
// authenticated user. The JWT middleware must have set the user id in the
// request context; requests without it are rejected.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkey.UserIDKey).(string)
	if !ok || userID == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed for user %s: %v", userID, err)
		return
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	h.register <- c

	go c.writePump(h)
	go c.readPump(h)
}

// writePump pumps messages from the hub to the websocket connection and
// keeps it alive with periodic pings.
func (c *client) writePump(h *Hub) {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// readPump drains the connection so control frames are processed; clients
// are not expected to send application messages.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket read error for user %s: %v", c.userID, err)
			}
			return
		}
	}
}
