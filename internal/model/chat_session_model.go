package model

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionId     string    `gorm:"type:text;not null;uniqueIndex"`
	UserId        string    `gorm:"type:text;not null;index"`
	Summary       string    `gorm:"type:text;not null;default:''"`
	IsSummarizing bool      `gorm:"not null;default:false"`
	MessageCount  int       `gorm:"not null;default:0"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
