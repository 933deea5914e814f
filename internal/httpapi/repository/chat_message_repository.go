package repository

import (
	"context"

	"diasporahub/internal/httpapi/models"

	"gorm.io/gorm"
)

// ChatMessageRepository is the durable message store behind the relay.
// Create assigns id and created_at; messages are never updated afterwards.
type ChatMessageRepository interface {
	Create(ctx context.Context, message *models.ChatMessage) error
	GetByRoomID(ctx context.Context, roomID string) ([]models.ChatMessage, error)
	GetByUserID(ctx context.Context, userID int64, limit int) ([]models.ChatMessage, error)
}

type chatMessageRepository struct {
	db *gorm.DB
}

func NewChatMessageRepository(db *gorm.DB) ChatMessageRepository {
	return &chatMessageRepository{db: db}
}

func (r *chatMessageRepository) Create(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// GetByRoomID returns the room history in created_at ascending order with
// the sender preloaded, ready for the page layer to render.
func (r *chatMessageRepository) GetByRoomID(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

func (r *chatMessageRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	return messages, err
}
