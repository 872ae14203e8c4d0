package services

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ServerEvent is the wire shape of every server-to-client push
type ServerEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Client is one authenticated websocket connection bound to a user for
// its lifetime
type Client struct {
	ID     string
	UserID uint

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection for the given user
func NewClient(conn *websocket.Conn, userID uint) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		conn:   conn,
		send:   make(chan []byte, 64),
	}
}

// SendEvent queues an event for delivery to this client. Delivery is best
// effort: a client that cannot keep up has the event dropped rather than
// blocking the sender.
func (c *Client) SendEvent(event string, data interface{}) {
	payload, err := json.Marshal(ServerEvent{Event: event, Data: data})
	if err != nil {
		log.Printf("failed to marshal %s event: %v", event, err)
		return
	}
	select {
	case c.send <- payload:
	default:
		log.Printf("dropping %s event for slow client %s", event, c.ID)
	}
}

// WritePump drains the send queue onto the connection. Run it in its own
// goroutine; it exits when Close is called.
func (c *Client) WritePump() {
	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			break
		}
	}
	c.conn.Close()
}

// Close shuts the send queue down exactly once
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Hub is the connection registry of the real-time layer: it owns room
// membership and the ephemeral online-presence map. No other component
// touches these directly.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*Client
	rooms    map[uint]map[*Client]bool
	presence map[uint]int
}

// DefaultHub is the process-wide connection registry used by the HTTP
// and websocket controllers
var DefaultHub = NewHub()

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		rooms:    make(map[uint]map[*Client]bool),
		presence: make(map[uint]int),
	}
}

// Register adds a freshly authenticated connection and marks its user
// online
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.presence[client.UserID]++
	log.Printf("client %s registered for user %d", client.ID, client.UserID)
}

// Unregister removes the connection from every room and clears the user's
// presence marker when their last connection goes
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	for conversationID, members := range h.rooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, conversationID)
			}
		}
	}
	if h.presence[client.UserID] > 0 {
		h.presence[client.UserID]--
	}
	if h.presence[client.UserID] == 0 {
		delete(h.presence, client.UserID)
	}
	client.Close()
	log.Printf("client %s unregistered for user %d", client.ID, client.UserID)
}

// JoinRoom adds the connection to a conversation's room; joining twice is
// a no-op
func (h *Hub) JoinRoom(conversationID uint, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[conversationID]
	if !ok {
		members = make(map[*Client]bool)
		h.rooms[conversationID] = members
	}
	members[client] = true
}

// LeaveRoom removes the connection from a conversation's room; leaving a
// room it is not in is a no-op
func (h *Hub) LeaveRoom(conversationID uint, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[conversationID]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, conversationID)
	}
}

// BroadcastToConversation pushes an event to every connection currently
// in the conversation's room. The hub lock serializes broadcasts, so
// per-conversation delivery order matches call order; individual delivery
// is not acknowledged.
func (h *Hub) BroadcastToConversation(conversationID uint, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.rooms[conversationID] {
		client.SendEvent(event, payload)
	}
}

// IsOnline reports whether the user has at least one live connection
func (h *Hub) IsOnline(userID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.presence[userID] > 0
}

// InRoom reports whether the connection is currently joined to the
// conversation's room
func (h *Hub) InRoom(conversationID uint, client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[conversationID][client]
}
