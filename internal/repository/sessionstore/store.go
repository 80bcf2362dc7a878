package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/repository/specification"
	"edu-chatbot-be/internal/repository/unitofwork"
	"edu-chatbot-be/pkg/rag/memory"
	"edu-chatbot-be/pkg/store"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// Store is the durable tier of the memory subsystem backed by the chat
// session and message tables.
type Store struct {
	repoFactory unitofwork.RepositoryFactory
	now         func() time.Time
}

var _ memory.DurableStore = (*Store)(nil)

func New(repoFactory unitofwork.RepositoryFactory) *Store {
	return &Store{repoFactory: repoFactory, now: time.Now}
}

func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toSession(e *entity.ChatSession) *store.Session {
	if e == nil {
		return nil
	}
	return &store.Session{
		SessionID:     e.SessionId,
		UserID:        e.UserId,
		Summary:       e.Summary,
		IsSummarizing: e.IsSummarizing,
		MessageCount:  e.MessageCount,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

func (s *Store) LoadSession(ctx context.Context, userID, sessionID string) (*store.Session, error) {
	uow := s.repoFactory.NewUnitOfWork(ctx)
	e, err := s.ensureSession(ctx, uow, userID, sessionID)
	if err != nil {
		return nil, err
	}
	return toSession(e), nil
}

// ensureSession creates the session on first use. A concurrent creator
// winning the unique index is not an error.
func (s *Store) ensureSession(ctx context.Context, uow unitofwork.UnitOfWork, userID, sessionID string) (*entity.ChatSession, error) {
	repo := uow.ChatSessionRepository()
	existing, err := repo.FindOne(ctx, specification.BySessionID{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	created := &entity.ChatSession{SessionId: sessionID, UserId: userID}
	if err := repo.Create(ctx, created); err != nil {
		if !IsUniqueViolation(err) {
			return nil, fmt.Errorf("create session: %w", err)
		}
		existing, err = repo.FindOne(ctx, specification.BySessionID{SessionID: sessionID})
		if err != nil || existing == nil {
			return nil, fmt.Errorf("reload session after conflict: %w", err)
		}
		return existing, nil
	}
	return created, nil
}

func (s *Store) FindSession(ctx context.Context, sessionID string) (*store.Session, error) {
	e, err := s.repoFactory.NewUnitOfWork(ctx).ChatSessionRepository().FindOne(ctx, specification.BySessionID{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return toSession(e), nil
}

func (s *Store) RecentMessages(ctx context.Context, sessionID string, limit int) ([]store.Message, error) {
	rows, err := s.repoFactory.NewUnitOfWork(ctx).ChatMessageRepository().FindRecent(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]store.Message, len(rows))
	for i, r := range rows {
		out[i] = store.Message{Role: r.Role, Text: r.Text, Timestamp: r.Timestamp}
	}
	return out, nil
}

// AppendMessages writes a turn in one transaction. Messages already stored
// under the same key and exact repeats of the last message are skipped;
// every written message takes the next sequence number.
func (s *Store) AppendMessages(ctx context.Context, userID, sessionID string, msgs []memory.PersistedMessage) (memory.AppendResult, error) {
	var res memory.AppendResult

	uow := s.repoFactory.NewUnitOfWork(ctx)
	if _, err := s.ensureSession(ctx, uow, userID, sessionID); err != nil {
		return res, err
	}

	err := uow.Do(ctx, func(tx unitofwork.UnitOfWork) error {
		msgRepo := tx.ChatMessageRepository()
		last, err := msgRepo.FindLast(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("find last message: %w", err)
		}

		for _, m := range msgs {
			if m.MessageKey != "" {
				dup, err := msgRepo.FindOne(ctx, specification.ByMessageKey{Key: m.MessageKey})
				if err != nil {
					return fmt.Errorf("check message key: %w", err)
				}
				if dup != nil {
					continue
				}
			}
			if last != nil && last.Role == m.Role && last.Text == m.Text {
				continue
			}

			seq := 1
			if last != nil {
				seq = last.Seq + 1
			}
			ts := m.Timestamp
			if ts.IsZero() {
				ts = s.now().UTC()
			}
			row := &entity.ChatMessage{
				SessionId:  sessionID,
				Seq:        seq,
				MessageKey: m.MessageKey,
				Role:       m.Role,
				Text:       m.Text,
				Timestamp:  ts,
			}
			if row.MessageKey == "" {
				row.MessageKey = fmt.Sprintf("%s:%d", sessionID, seq)
			}
			if err := msgRepo.Create(ctx, row); err != nil {
				return fmt.Errorf("append message: %w", err)
			}
			last = row
			res.Appended++
		}

		total, err := msgRepo.Count(ctx, specification.BySessionID{SessionID: sessionID})
		if err != nil {
			return fmt.Errorf("count messages: %w", err)
		}
		res.Total = int(total)

		if res.Appended > 0 {
			if err := tx.ChatSessionRepository().RecordAppend(ctx, sessionID, res.Total, s.now().UTC()); err != nil {
				return fmt.Errorf("record append: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return memory.AppendResult{}, fmt.Errorf("append turn: %w", err)
	}
	return res, nil
}

func (s *Store) TryLockSummary(ctx context.Context, sessionID string) (bool, error) {
	return s.repoFactory.NewUnitOfWork(ctx).ChatSessionRepository().TryLockSummary(ctx, sessionID)
}

func (s *Store) SaveSummary(ctx context.Context, sessionID, summary string) error {
	return s.repoFactory.NewUnitOfWork(ctx).ChatSessionRepository().SaveSummary(ctx, sessionID, summary)
}

func (s *Store) UnlockSummary(ctx context.Context, sessionID string) error {
	return s.repoFactory.NewUnitOfWork(ctx).ChatSessionRepository().UnlockSummary(ctx, sessionID)
}
