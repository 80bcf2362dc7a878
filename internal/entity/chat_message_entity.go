package entity

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessage struct {
	Id         uuid.UUID
	SessionId  string
	Seq        int
	MessageKey string
	Role       string
	Text       string
	Timestamp  time.Time
}
