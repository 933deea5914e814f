package models

import "time"

// ChatMessage is append-only: rows are created by the relay and never
// updated. Ordering within a room is by created_at ascending.
type ChatMessage struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    string    `gorm:"not null;index:idx_chat_messages_room_id" json:"roomId"`
	UserID    int64     `gorm:"not null;index" json:"userId"`
	Message   string    `gorm:"not null" json:"message"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"createdAt"`

	// Associations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
