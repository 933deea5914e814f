package models

import (
	"time"
)

type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	Password     string     `gorm:"column:password_hash;not null" json:"-"` // Not show in JSON
	FullName     string     `json:"fullName"`
	ProfileImage string     `json:"profileImage"`
	IsAdmin      bool       `gorm:"default:false" json:"isAdmin"`
	IsModerator  bool       `gorm:"default:false" json:"isModerator"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

func (User) TableName() string {
	return "users"
}
