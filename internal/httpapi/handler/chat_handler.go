package handler

import (
	"net/http"
	"strconv"

	"diasporahub/internal/httpapi/dto"
	"diasporahub/internal/httpapi/middleware"
	"diasporahub/internal/httpapi/repository"
	"diasporahub/internal/httpapi/service"
	"diasporahub/internal/websocket"

	"github.com/gin-gonic/gin"
)

// ChatHandler is the HTTP companion surface of the relay: the page layer
// uses it to render initial state before the socket connects, plus a
// fallback message route when the socket is unavailable.
type ChatHandler struct {
	messages  repository.ChatMessageRepository
	directory service.UserDirectory
	registry  *websocket.Registry
	relay     *websocket.Relay
}

func NewChatHandler(
	messages repository.ChatMessageRepository,
	directory service.UserDirectory,
	registry *websocket.Registry,
	relay *websocket.Relay,
) *ChatHandler {
	return &ChatHandler{
		messages:  messages,
		directory: directory,
		registry:  registry,
		relay:     relay,
	}
}

// GetMessages returns a room's history, created_at ascending.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	roomID := c.Param("roomId")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room ID is required"})
		return
	}

	messages, err := h.messages.GetByRoomID(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred getting chat messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// GetOnlineUsers joins the registry snapshot against the user directory.
// Users the directory no longer knows are dropped from the response.
func (h *ChatHandler) GetOnlineUsers(c *gin.Context) {
	userIDs := h.registry.ActiveUserIDs()

	users, err := h.directory.LookupAll(c.Request.Context(), userIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred getting online users"})
		return
	}

	online := make([]dto.OnlineUserResponse, 0, len(users))
	for _, user := range users {
		online = append(online, dto.OnlineUserResponse{
			ID:           user.ID,
			Username:     user.Username,
			FullName:     user.FullName,
			ProfileImage: user.ProfileImage,
			IsAdmin:      user.IsAdmin,
			IsModerator:  user.IsModerator,
		})
	}

	c.JSON(http.StatusOK, online)
}

// GetMyMessages returns the session user's most recent messages, newest
// first. Which user is asked for comes from the session, never the request.
func (h *ChatHandler) GetMyMessages(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	messages, err := h.messages.GetByUserID(c.Request.Context(), claims.UserID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred getting chat messages"})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// PostMessage persists and broadcasts a chat message over HTTP, for clients
// whose socket is down. The sender identity comes from the session, never
// the body.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	claims, ok := middleware.ClaimsFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req dto.PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := h.relay.Post(c.Request.Context(), claims.UserID, claims.Username, req.RoomID, req.Message)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred creating the chat message"})
		return
	}

	c.JSON(http.StatusCreated, message)
}
