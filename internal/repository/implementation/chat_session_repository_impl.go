package implementation

import (
	"context"
	"errors"
	"time"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/mapper"
	"edu-chatbot-be/internal/model"
	"edu-chatbot-be/internal/repository/contract"
	"edu-chatbot-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatSessionRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.ChatMapper
}

func NewChatSessionRepository(db *gorm.DB) contract.ChatSessionRepository {
	return &ChatSessionRepositoryImpl{
		db:     db,
		mapper: mapper.NewChatMapper(),
	}
}

func (r *ChatSessionRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *ChatSessionRepositoryImpl) Create(ctx context.Context, session *entity.ChatSession) error {
	if session.Id == uuid.Nil {
		session.Id = uuid.New()
	}
	m := r.mapper.ChatSessionToModel(session)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*session = *r.mapper.ChatSessionToEntity(m)
	return nil
}

func (r *ChatSessionRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.ChatSession, error) {
	var m model.ChatSession
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ChatSessionToEntity(&m), nil
}

func (r *ChatSessionRepositoryImpl) RecordAppend(ctx context.Context, sessionID string, messageCount int, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"message_count": messageCount,
			"updated_at":    at,
		}).Error
}

func (r *ChatSessionRepositoryImpl) TryLockSummary(ctx context.Context, sessionID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("session_id = ? AND is_summarizing = ?", sessionID, false).
		UpdateColumn("is_summarizing", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ChatSessionRepositoryImpl) SaveSummary(ctx context.Context, sessionID, summary string) error {
	return r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("session_id = ?", sessionID).
		UpdateColumns(map[string]interface{}{
			"summary":        summary,
			"is_summarizing": false,
		}).Error
}

func (r *ChatSessionRepositoryImpl) UnlockSummary(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("session_id = ?", sessionID).
		UpdateColumn("is_summarizing", false).Error
}
