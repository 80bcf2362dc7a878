package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	Id            uuid.UUID
	SessionId     string
	UserId        string
	Summary       string
	IsSummarizing bool
	MessageCount  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
