package model

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage rows are append-only. (session_id, seq) orders the log and
// message_key makes redelivered persistence tasks idempotent.
type ChatMessage struct {
	Id         uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionId  string    `gorm:"type:text;not null;uniqueIndex:idx_chat_messages_session_seq,priority:1"`
	Seq        int       `gorm:"not null;uniqueIndex:idx_chat_messages_session_seq,priority:2"`
	MessageKey string    `gorm:"type:text;not null;uniqueIndex"`
	Role       string    `gorm:"type:varchar(20);not null"`
	Text       string    `gorm:"type:text;not null"`
	Timestamp  time.Time `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}
