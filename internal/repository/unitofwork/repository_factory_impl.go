package unitofwork

import (
	"context"

	"gorm.io/gorm"
)

type repositoryFactory struct {
	db *gorm.DB
}

func NewRepositoryFactory(db *gorm.DB) RepositoryFactory {
	return &repositoryFactory{db: db}
}

// NewUnitOfWork binds ctx to every query the unit issues outside a
// transaction.
func (f *repositoryFactory) NewUnitOfWork(ctx context.Context) UnitOfWork {
	return &unitOfWork{db: f.db.WithContext(ctx)}
}
