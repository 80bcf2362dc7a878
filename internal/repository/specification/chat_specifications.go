package specification

import (
	"gorm.io/gorm"
)

type BySessionID struct {
	SessionID string
}

func (s BySessionID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("session_id = ?", s.SessionID)
}

type ByMessageKey struct {
	Key string
}

func (s ByMessageKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("message_key = ?", s.Key)
}

type ByUserID struct {
	UserID string
}

func (s ByUserID) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("user_id = ?", s.UserID)
}
