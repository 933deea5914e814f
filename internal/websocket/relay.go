package websocket

import (
	"context"
	"log/slog"

	"diasporahub/internal/httpapi/models"
	"diasporahub/internal/httpapi/repository"
	"diasporahub/internal/httpapi/service"
)

// Relay owns the per-connection protocol state machine:
//
//	Unauthenticated -> Authenticated -> Closed
//
// Frames are validated here, chat messages persisted before fan-out, and
// presence changes announced through the hub. Errors never cross
// connections: every failure is reported on the socket it happened on.
type Relay struct {
	registry  *Registry
	hub       *Hub
	messages  repository.ChatMessageRepository
	directory service.UserDirectory
	logger    *slog.Logger
}

func NewRelay(
	registry *Registry,
	hub *Hub,
	messages repository.ChatMessageRepository,
	directory service.UserDirectory,
	logger *slog.Logger,
) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		registry:  registry,
		hub:       hub,
		messages:  messages,
		directory: directory,
		logger:    logger,
	}
}

// HandleFrame processes one raw frame from a connection. Malformed input
// gets an error reply on the same socket; the connection stays open.
func (r *Relay) HandleFrame(c *Client, data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		r.logger.Warn("unparseable frame", "client_id", c.ID, "error", err.Error())
		r.reply(c, NewErrorEvent("Invalid message format"))
		return
	}

	switch f := frame.(type) {
	case AuthFrame:
		r.handleAuth(c, f)
	case ChatFrame:
		r.handleChat(c, f)
	case UnknownFrame:
		// forward-compatible no-op: newer clients may speak frame kinds
		// this server does not know yet
		r.logger.Debug("ignoring unknown frame type", "client_id", c.ID, "type", f.Type)
	}
}

func (r *Relay) handleAuth(c *Client, f AuthFrame) {
	if c.Authenticated() {
		r.reply(c, NewErrorEvent("Already authenticated"))
		return
	}

	if f.UserID == 0 || f.Username == "" {
		r.reply(c, NewErrorEvent("Invalid authentication data"))
		return
	}

	// The frame's identity is client-asserted; the session bound at upgrade
	// time is what we trust. A mismatch is rejected outright.
	if f.UserID != c.SessionUserID {
		r.logger.Warn("auth frame identity mismatch",
			"client_id", c.ID,
			"session_user_id", c.SessionUserID,
			"claimed_user_id", f.UserID,
		)
		r.reply(c, NewErrorEvent("Invalid authentication data"))
		return
	}

	user, err := r.directory.Lookup(context.Background(), f.UserID)
	if err != nil {
		r.logger.Warn("auth lookup failed", "client_id", c.ID, "user_id", f.UserID, "error", err.Error())
		r.reply(c, NewErrorEvent("Invalid authentication data"))
		return
	}

	// Display name comes from the directory, not the payload.
	c.bind(user.ID, user.Username)

	if replaced := r.registry.Register(c); replaced != nil {
		// one live socket per user: the old connection is closed and its
		// late unregister is a pointer-guarded no-op
		replaced.Close()
	}

	r.logger.Info("user connected to chat", "user_id", c.UserID, "username", c.Username, "client_id", c.ID)

	r.reply(c, NewAuthSuccessEvent(c.UserID, c.Username))
	r.hub.Broadcast(NewUserJoinedEvent(c.UserID, c.Username))
}

func (r *Relay) handleChat(c *Client, f ChatFrame) {
	if !c.Authenticated() {
		// no chat activity pre-auth, ever
		r.reply(c, NewErrorEvent("Authentication required"))
		return
	}

	if f.RoomID == "" || f.Message == "" {
		r.reply(c, NewErrorEvent("Invalid chat message data"))
		return
	}

	if !c.allowChat() {
		r.reply(c, NewErrorEvent("Too many messages, slow down"))
		return
	}

	// The sender's identity is the one bound at auth time regardless of
	// anything the frame carried.
	if _, err := r.Post(context.Background(), c.UserID, c.Username, f.RoomID, f.Message); err != nil {
		r.logger.Error("failed to save chat message",
			"user_id", c.UserID,
			"room_id", f.RoomID,
			"error", err.Error(),
		)
		// at-most-once: the message is lost, only the sender hears about it
		r.reply(c, NewErrorEvent("Failed to save message"))
	}
}

// Post persists a chat message and broadcasts it to every active connection.
// Shared by the socket path and the HTTP fallback route.
func (r *Relay) Post(ctx context.Context, userID int64, username, roomID, text string) (*models.ChatMessage, error) {
	message := &models.ChatMessage{
		UserID:  userID,
		RoomID:  roomID,
		Message: text,
	}
	if err := r.messages.Create(ctx, message); err != nil {
		return nil, err
	}

	// attach sender info for the broadcast; a failed lookup degrades to the
	// identity cached on the connection rather than dropping the event
	if user, err := r.directory.Lookup(ctx, userID); err == nil {
		message.User = user
	} else {
		message.User = &models.User{ID: userID, Username: username}
	}

	r.hub.Broadcast(NewChatEvent(message))
	return message, nil
}

// HandleDisconnect runs on socket close or transport error. Closing an
// authenticated connection removes it from the registry and announces the
// departure; an unauthenticated close has nothing to clean up.
func (r *Relay) HandleDisconnect(c *Client) {
	c.Close()

	if c.Authenticated() && r.registry.Unregister(c) {
		r.logger.Info("user disconnected from chat", "user_id", c.UserID, "username", c.Username, "client_id", c.ID)
		r.hub.Broadcast(NewUserLeftEvent(c.UserID, c.Username))
	}
}

// reply sends an event to a single connection only.
func (r *Relay) reply(c *Client, event *Event) {
	data, err := event.ToJSON()
	if err != nil {
		return
	}
	if err := c.Send(data); err != nil {
		r.logger.Warn("reply delivery failed", "client_id", c.ID, "error", err.Error())
	}
}
