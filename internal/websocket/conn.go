package websocket

import (
	"sync"
	"time"

	"github.com/brightwire/cert-portal/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10 // must stay below pongWait

	// clients only send pings
	maxMessageSize = 4 * 1024
)

// Conn is the socket behind a Client. Close is safe to call from both pumps.
type Conn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() { _ = c.ws.Close() })
}

func (c *Conn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

func (c *Conn) extendReadDeadline(string) error {
	return c.ws.SetReadDeadline(time.Now().Add(pongWait))
}

// ReadPump hands inbound frames to the hub until the peer goes away,
// then unregisters the client. Run it in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	ws := c.Conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = c.Conn.extendReadDeadline("")
	ws.SetPongHandler(c.Conn.extendReadDeadline)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket closed unexpectedly", map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				})
			}
			return
		}
		c.Hub.HandleClientMessage(c, message)
	}
}

// WritePump drains Send onto the socket and pings on pingPeriod.
// It returns once the hub closes Send or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if !ok {
				_ = c.Conn.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.flush(message); err != nil {
				logger.Error("WebSocket write failed", err, map[string]interface{}{
					"user_id": c.UserID,
				})
				return
			}
		case <-ticker.C:
			if err := c.Conn.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes message and whatever else is already queued, one frame each.
func (c *Client) flush(message []byte) error {
	if err := c.Conn.write(websocket.TextMessage, message); err != nil {
		return err
	}
	for queued := len(c.Send); queued > 0; queued-- {
		if err := c.Conn.write(websocket.TextMessage, <-c.Send); err != nil {
			return err
		}
	}
	return nil
}
