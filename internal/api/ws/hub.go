package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"geoattend/internal/attendance"
	"geoattend/internal/observability"
	"geoattend/internal/queue"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is enforced on the HTTP routes
	},
}

// Client is a connected live-feed viewer.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	branch string // empty sees every branch
}

type envelope struct {
	branch string
	data   []byte
}

// Hub fans committed attendance events out to WebSocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop until ctx ends. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "branch", client.branch)

		case client := <-h.unregister:
			if h.clients[client] {
				h.drop(client)
			}
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			for client := range h.clients {
				if client.branch != "" && client.branch != msg.branch {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Client buffer full; disconnect.
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	observability.WSConnections.Dec()
}

// Broadcast queues ev for every client watching its branch. It never blocks
// the caller; events are dropped when the hub is saturated.
func (h *Hub) Broadcast(ev queue.AttendanceEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- envelope{branch: ev.Branch, data: data}:
	default:
		slog.Warn("ws broadcast dropped", "record_id", ev.RecordID)
	}
}

// Observe is a gate observer that broadcasts committed records.
func (h *Hub) Observe(_ context.Context, out attendance.Outcome) {
	h.Broadcast(queue.EventFromOutcome(out))
}

// HandleWS upgrades the request. branch restricts the feed when non-empty.
func (h *Hub) HandleWS(c *gin.Context, branch string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan []byte, 64),
		branch: branch,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reads only detect disconnection.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
