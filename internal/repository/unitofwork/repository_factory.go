package unitofwork

import "context"

// RepositoryFactory hands out short lived units of work. Implementations
// are safe for concurrent use; a UnitOfWork is not.
type RepositoryFactory interface {
	NewUnitOfWork(ctx context.Context) UnitOfWork
}
