package websocket

import (
	"log/slog"
	"net/http"

	"diasporahub/internal/config"
	"diasporahub/internal/httpapi/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HTTP upgrade handler to WebSocket connections

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// allow all origins for development purpose; can restrict later
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades the request to a WebSocket connection. The route sits
// behind the JWT middleware, so the web session is already validated here;
// the auth frame the client sends next must match it.
func WSHandler(relay *Relay, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.ClaimsFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: session not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error response
			slog.Warn("websocket upgrade failed", "user_id", claims.UserID, "error", err.Error())
			return
		}

		client := NewClient(
			uuid.New().String(),
			claims.UserID,
			claims.Username,
			conn,
			newChatLimiter(cfg.ChatRateLimit, cfg.ChatRateBurst),
		)
		client.StartAuthTimer(cfg.ChatAuthWindow)

		go client.ReadPump(relay)
		go client.WritePump()
	}
}
