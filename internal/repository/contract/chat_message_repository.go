package contract

import (
	"context"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/repository/specification"
)

type ChatMessageRepository interface {
	Create(ctx context.Context, message *entity.ChatMessage) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatMessage, error)
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.ChatMessage, error)
	FindLast(ctx context.Context, sessionID string) (*entity.ChatMessage, error)
	// FindRecent returns the newest limit messages in chronological order.
	FindRecent(ctx context.Context, sessionID string, limit int) ([]*entity.ChatMessage, error)
	Count(ctx context.Context, specs ...specification.Specification) (int64, error)
}
