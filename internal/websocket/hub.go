package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/brightwire/cert-portal/pkg/logger"
)

const (
	maxMessagesPerSecond = 10
	sendBufferSize       = 64
)

// ClientMessage is what a browser session may send up the socket
type ClientMessage struct {
	Type string `json:"type"` // ping
}

// Client is one open browser session of a user
type Client struct {
	Hub           *Hub
	Conn          *Conn
	UserID        uint
	Send          chan []byte
	MessageCount  int // messages seen in the current one-second window
	LastResetTime time.Time
	RateMu        sync.Mutex
}

// NewClient builds a session for userID; conn may be nil in tests
func NewClient(hub *Hub, conn *Conn, userID uint) *Client {
	return &Client{
		Hub:    hub,
		Conn:   conn,
		UserID: userID,
		Send:   make(chan []byte, sendBufferSize),
	}
}

// userMessage is a payload addressed to every session of one user
type userMessage struct {
	UserID  uint
	Message []byte
}

// Hub tracks open sessions per user and fans notifications out to them.
// Only Run mutates clients; the mutex guards the read-only queries.
type Hub struct {
	clients map[uint][]*Client

	register   chan *Client
	unregister chan *Client
	deliver    chan *userMessage
	done       chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uint][]*Client),
		register:   make(chan *Client, 256),
		unregister: make(chan *Client, 256),
		deliver:    make(chan *userMessage, 1024),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and deliveries until Stop is called
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for userID, list := range h.clients {
				for _, c := range list {
					close(c.Send)
				}
				delete(h.clients, userID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.UserID] = append(h.clients[client.UserID], client)
			sessions := len(h.clients[client.UserID])
			h.mu.Unlock()
			logger.Info("WebSocket client registered", map[string]interface{}{
				"user_id":        client.UserID,
				"total_sessions": sessions,
			})

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.deliver:
			h.mu.RLock()
			list := append([]*Client(nil), h.clients[msg.UserID]...)
			h.mu.RUnlock()

			for _, client := range list {
				select {
				case client.Send <- msg.Message:
				default:
					logger.Warn("Client send buffer full, disconnecting", map[string]interface{}{
						"user_id": msg.UserID,
					})
					h.removeClient(client)
				}
			}
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	list, ok := h.clients[client.UserID]
	if !ok {
		h.mu.Unlock()
		return
	}

	remaining := make([]*Client, 0, len(list))
	found := false
	for _, c := range list {
		if c == client {
			found = true
			continue
		}
		remaining = append(remaining, c)
	}
	if len(remaining) == 0 {
		delete(h.clients, client.UserID)
	} else {
		h.clients[client.UserID] = remaining
	}
	if found {
		close(client.Send)
	}
	h.mu.Unlock()

	if found {
		logger.Info("WebSocket client unregistered", map[string]interface{}{
			"user_id":            client.UserID,
			"remaining_sessions": len(remaining),
		})
	}
}

// Stop ends Run and closes every session's send channel
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// SendToUser queues message for every open session of userID.
// Offline users are skipped and a full queue drops the message; both are
// fine since notifications are persisted before they are pushed.
func (h *Hub) SendToUser(userID uint, message interface{}) error {
	if !h.IsUserOnline(userID) {
		return nil
	}

	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal websocket message", err, map[string]interface{}{
			"user_id": userID,
		})
		return err
	}

	select {
	case h.deliver <- &userMessage{UserID: userID, Message: data}:
	default:
		logger.Warn("Delivery channel full, message dropped", map[string]interface{}{
			"user_id": userID,
		})
	}
	return nil
}

func (h *Hub) IsUserOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SessionCount returns the number of open sessions for userID
func (h *Hub) SessionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// HandleClientMessage answers pings; anything else is ignored
func (h *Hub) HandleClientMessage(client *Client, message []byte) {
	client.RateMu.Lock()
	now := time.Now()
	if now.Sub(client.LastResetTime) >= time.Second {
		client.MessageCount = 0
		client.LastResetTime = now
	}
	client.MessageCount++
	count := client.MessageCount
	client.RateMu.Unlock()

	if count > maxMessagesPerSecond {
		logger.Warn("Rate limit exceeded", map[string]interface{}{
			"user_id": client.UserID,
			"count":   count,
		})
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Warn("Failed to parse client message", map[string]interface{}{
			"user_id": client.UserID,
			"error":   err.Error(),
		})
		return
	}

	if msg.Type == "ping" {
		_ = h.SendToUser(client.UserID, map[string]interface{}{
			"type": "pong",
			"at":   now.UTC(),
		})
	}
}
