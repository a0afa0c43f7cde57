package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/huijing/sgtechonline/internal/config"
	"github.com/huijing/sgtechonline/internal/domain"
	pkglog "github.com/huijing/sgtechonline/pkg/log"
)

var (
	ErrClientClosed   = errors.New("client connection closed")
	ErrSendBufferFull = errors.New("client send buffer full")
)

// DisconnectHandler is called when a client disconnects.
type DisconnectHandler func(*Client)

// Client represents a connected WebSocket participant.
type Client struct {
	ID        string
	SessionID string
	Role      domain.Role
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte

	mu                sync.Mutex
	closed            bool
	disconnectHandler DisconnectHandler
}

// NewClient creates a client for conn with a send buffer sized by the hub config.
func NewClient(h *Hub, conn *websocket.Conn, id, sessionID string, role domain.Role) *Client {
	size := h.config.SendBuffer
	if size <= 0 {
		size = 256
	}
	return &Client{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Hub:       h,
		Conn:      conn,
		Send:      make(chan []byte, size),
	}
}

// SetDisconnectHandler sets the handler to be called on disconnect.
func (c *Client) SetDisconnectHandler(handler DisconnectHandler) {
	c.disconnectHandler = handler
}

// Hub tracks the gateway's websocket clients per binding session.
type Hub struct {
	clients    map[string]*Client
	sessions   map[string]map[string]*Client // sessionID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

// NewHub creates a new Hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		sessions:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		config:     cfg,
	}
}

// Run processes registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	l := pkglog.L()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				delete(h.clients, id)
				client.closeSend()
			}
			h.sessions = make(map[string]map[string]*Client)
			h.mu.Unlock()
			l.Info().Msg("gateway hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if _, ok := h.sessions[client.SessionID]; !ok {
				h.sessions[client.SessionID] = make(map[string]*Client)
			}
			h.sessions[client.SessionID][client.ID] = client
			h.mu.Unlock()
			l.Info().
				Str(pkglog.FieldConnectionID, client.ID).
				Str(pkglog.FieldSessionID, client.SessionID).
				Str(pkglog.FieldRole, string(client.Role)).
				Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				if members, ok := h.sessions[client.SessionID]; ok {
					delete(members, client.ID)
					if len(members) == 0 {
						delete(h.sessions, client.SessionID)
					}
				}
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()
			l.Info().Str(pkglog.FieldConnectionID, client.ID).Msg("client unregistered")
		}
	}
}

// Register adds a client to the hub. A stopped hub closes the client instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Count returns the number of gateway clients connected to sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ReadPump pumps messages from the WebSocket connection to handler.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		if c.disconnectHandler != nil {
			c.disconnectHandler(c)
		}
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := pkglog.L()
				l.Error().Err(err).Str(pkglog.FieldConnectionID, c.ID).Msg("websocket error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump pumps messages from the send buffer to the WebSocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Hub.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues message as JSON. It never blocks.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.Send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
