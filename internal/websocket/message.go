package websocket

import (
	"encoding/json"
	"log/slog"

	"diasporahub/internal/httpapi/models"
)

// Wire protocol definitions. One JSON frame per websocket message.

type FrameType string

const (
	TypeAuth        FrameType = "auth"         // client binds the connection to an identity
	TypeAuthSuccess FrameType = "auth_success" // server acknowledges auth
	TypeChat        FrameType = "chat"         // chat message, both directions
	TypeError       FrameType = "error"        // malformed/failed frame report
	TypeUserJoined  FrameType = "user_joined"  // presence announcement
	TypeUserLeft    FrameType = "user_left"    // presence announcement
)

// Frame is the decoded form of a client frame. Dispatch switches over the
// concrete types so new frame kinds cannot be silently half-handled.
type Frame interface {
	frameType() FrameType
}

type AuthFrame struct {
	UserID   int64
	Username string
}

type ChatFrame struct {
	RoomID  string
	Message string
}

// UnknownFrame carries a type tag this server does not recognize. It is
// ignored so older servers tolerate newer clients.
type UnknownFrame struct {
	Type string
}

func (AuthFrame) frameType() FrameType    { return TypeAuth }
func (ChatFrame) frameType() FrameType    { return TypeChat }
func (UnknownFrame) frameType() FrameType { return FrameType("") }

// frameEnvelope is the superset of inbound frame fields. Any extra fields a
// client includes (a userId on a chat frame, say) are dropped here.
type frameEnvelope struct {
	Type     string `json:"type"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
	Message  string `json:"message"`
}

// DecodeFrame parses a raw client frame into its tagged form. An error means
// the payload was not valid JSON (or not an object); field-level validation
// is the relay's job.
func DecodeFrame(data []byte) (Frame, error) {
	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch FrameType(env.Type) {
	case TypeAuth:
		return AuthFrame{UserID: env.UserID, Username: env.Username}, nil
	case TypeChat:
		return ChatFrame{RoomID: env.RoomID, Message: env.Message}, nil
	default:
		return UnknownFrame{Type: env.Type}, nil
	}
}

// Event is a server-to-client frame. Message holds either an error string or
// a persisted chat record depending on Type.
type Event struct {
	Type     FrameType `json:"type"`
	UserID   int64     `json:"userId,omitempty"`
	Username string    `json:"username,omitempty"`
	Message  any       `json:"message,omitempty"`
}

func NewAuthSuccessEvent(userID int64, username string) *Event {
	return &Event{Type: TypeAuthSuccess, UserID: userID, Username: username}
}

func NewErrorEvent(message string) *Event {
	return &Event{Type: TypeError, Message: message}
}

func NewChatEvent(message *models.ChatMessage) *Event {
	return &Event{Type: TypeChat, Message: message}
}

func NewUserJoinedEvent(userID int64, username string) *Event {
	return &Event{Type: TypeUserJoined, UserID: userID, Username: username}
}

func NewUserLeftEvent(userID int64, username string) *Event {
	return &Event{Type: TypeUserLeft, UserID: userID, Username: username}
}

// ToJSON: marshal Event struct to JSON
func (e *Event) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal event to JSON", "type", e.Type, "error", err)
		return nil, err
	}
	return data, nil
}
