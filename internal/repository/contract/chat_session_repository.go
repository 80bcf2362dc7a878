package contract

import (
	"context"
	"time"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/repository/specification"
)

type ChatSessionRepository interface {
	Create(ctx context.Context, session *entity.ChatSession) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error)
	// RecordAppend stores the new message count and bumps updated_at.
	RecordAppend(ctx context.Context, sessionID string, messageCount int, at time.Time) error
	// TryLockSummary flips is_summarizing false -> true; it reports false when
	// another worker already holds the flag.
	TryLockSummary(ctx context.Context, sessionID string) (bool, error)
	// SaveSummary stores the summary and clears is_summarizing.
	SaveSummary(ctx context.Context, sessionID, summary string) error
	UnlockSummary(ctx context.Context, sessionID string) error
}
