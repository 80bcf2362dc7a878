package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type CurriculumChunk struct {
	Id              string                 `gorm:"type:text;primaryKey"`
	Text            string                 `gorm:"type:text;not null"`
	Metadata        datatypes.JSON         `gorm:"type:jsonb;not null;default:'{}'"`
	Embedding       pgvector.Vector        `gorm:"type:vector(1536)"`
	SparseEmbedding *pgvector.SparseVector `gorm:"type:sparsevec(1048576)"`
	CreatedAt       time.Time              `gorm:"autoCreateTime"`
}

func (CurriculumChunk) TableName() string {
	return "curriculum_chunks"
}
