package specification

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderBy sorts on a single column. The column name is quoted, never
// spliced into raw SQL.
type OrderBy struct {
	Field string
	Desc  bool
}

func (s OrderBy) Apply(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: s.Field}, Desc: s.Desc})
}

type Limit struct {
	N int
}

func (s Limit) Apply(db *gorm.DB) *gorm.DB {
	if s.N <= 0 {
		return db
	}
	return db.Limit(s.N)
}
