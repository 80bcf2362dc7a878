package specification

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

var metadataField = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const (
	CastText    = ""
	CastInteger = "bigint"
	CastBoolean = "boolean"
)

// MetadataCondition filters curriculum chunks on one key of the JSONB
// metadata column. Op uses the index filter vocabulary ($eq, $in, ...).
type MetadataCondition struct {
	Field string
	Op    string
	Value interface{}
	Cast  string
}

func (s MetadataCondition) Apply(db *gorm.DB) *gorm.DB {
	if !metadataField.MatchString(s.Field) {
		// Never interpolate an unchecked key into SQL; match nothing instead.
		return db.Where("1 = 0")
	}

	col := fmt.Sprintf("metadata->>'%s'", s.Field)
	if s.Cast != CastText {
		col = fmt.Sprintf("(%s)::%s", col, s.Cast)
	}

	switch s.Op {
	case "$eq":
		return db.Where(col+" = ?", s.Value)
	case "$ne":
		return db.Where(col+" <> ?", s.Value)
	case "$in":
		return db.Where(col+" IN ?", s.Value)
	case "$nin":
		return db.Where(col+" NOT IN ?", s.Value)
	case "$gt":
		return db.Where(col+" > ?", s.Value)
	case "$gte":
		return db.Where(col+" >= ?", s.Value)
	case "$lt":
		return db.Where(col+" < ?", s.Value)
	case "$lte":
		return db.Where(col+" <= ?", s.Value)
	default:
		return db
	}
}
