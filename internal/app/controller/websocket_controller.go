package controller

import (
	"net/http"

	"github.com/brightwire/cert-portal/internal/middleware"
	ws "github.com/brightwire/cert-portal/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WebSocketController struct {
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewWebSocketController accepts upgrades only from the configured origins
func NewWebSocketController(hub *ws.Hub, allowedOrigins []string) *WebSocketController {
	return &WebSocketController{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// Connect upgrades to a websocket that receives the caller's notifications
// GET /api/v1/ws?token=
func (ctrl *WebSocketController) Connect(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response
		log.Warn("WebSocket upgrade failed", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
		return
	}

	client := ws.NewClient(ctrl.hub, ws.NewConn(conn), userID)
	ctrl.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	log.Debug("WebSocket session opened", map[string]interface{}{
		"user_id":  userID,
		"sessions": ctrl.hub.SessionCount(userID),
	})
}
