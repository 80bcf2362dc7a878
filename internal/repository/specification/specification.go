package specification

import "gorm.io/gorm"

// Specification narrows a query. Repositories apply them in order, so a
// later OrderBy or Limit sees the filters before it.
type Specification interface {
	Apply(db *gorm.DB) *gorm.DB
}
