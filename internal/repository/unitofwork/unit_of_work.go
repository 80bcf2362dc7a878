package unitofwork

import (
	"context"

	"edu-chatbot-be/internal/repository/contract"
)

// UnitOfWork scopes the chat and curriculum repositories to one connection
// or, between Begin and Commit/Rollback, to one transaction.
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	// Do runs fn inside a transaction. fn returning an error or panicking
	// rolls back; otherwise the transaction commits.
	Do(ctx context.Context, fn func(tx UnitOfWork) error) error

	ChatSessionRepository() contract.ChatSessionRepository
	ChatMessageRepository() contract.ChatMessageRepository
	CurriculumChunkRepository() contract.CurriculumChunkRepository
}
