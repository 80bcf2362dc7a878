package unitofwork

import (
	"context"
	"errors"
	"fmt"

	"edu-chatbot-be/internal/repository/contract"
	"edu-chatbot-be/internal/repository/implementation"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"
)

var (
	ErrTxActive   = errors.New("transaction already started")
	ErrNoActiveTx = errors.New("no active transaction")
)

type unitOfWork struct {
	db *gorm.DB
	tx *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) UnitOfWork {
	return &unitOfWork{db: db}
}

func (u *unitOfWork) conn() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return ErrTxActive
	}
	tx := u.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin: %w", tx.Error)
	}
	u.tx = tx
	return nil
}

func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return ErrNoActiveTx
	}
	err := u.tx.Commit().Error
	u.tx = nil
	return err
}

func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return ErrNoActiveTx
	}
	err := u.tx.Rollback().Error
	u.tx = nil
	return err
}

func (u *unitOfWork) Do(ctx context.Context, fn func(tx UnitOfWork) error) (err error) {
	if err := u.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = u.Rollback()
			panic(r)
		}
	}()

	if err := fn(u); err != nil {
		if rbErr := u.Rollback(); rbErr != nil {
			return multierror.Append(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := u.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (u *unitOfWork) ChatSessionRepository() contract.ChatSessionRepository {
	return implementation.NewChatSessionRepository(u.conn())
}

func (u *unitOfWork) ChatMessageRepository() contract.ChatMessageRepository {
	return implementation.NewChatMessageRepository(u.conn())
}

func (u *unitOfWork) CurriculumChunkRepository() contract.CurriculumChunkRepository {
	return implementation.NewCurriculumChunkRepository(u.conn())
}
