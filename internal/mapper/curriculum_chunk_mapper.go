package mapper

import (
	"encoding/json"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/model"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type CurriculumChunkMapper struct{}

func NewCurriculumChunkMapper() *CurriculumChunkMapper {
	return &CurriculumChunkMapper{}
}

func (m *CurriculumChunkMapper) ToEntity(c *model.CurriculumChunk) *entity.CurriculumChunk {
	if c == nil {
		return nil
	}
	meta := map[string]interface{}{}
	if len(c.Metadata) > 0 {
		_ = json.Unmarshal(c.Metadata, &meta)
	}
	e := &entity.CurriculumChunk{
		Id:        c.Id,
		Text:      c.Text,
		Metadata:  meta,
		Embedding: c.Embedding.Slice(),
	}
	if c.SparseEmbedding != nil {
		e.SparseIndices = c.SparseEmbedding.Indices()
		e.SparseValues = c.SparseEmbedding.Values()
		e.SparseDimension = c.SparseEmbedding.Dimensions()
	}
	return e
}

func (m *CurriculumChunkMapper) ToModel(c *entity.CurriculumChunk) (*model.CurriculumChunk, error) {
	if c == nil {
		return nil, nil
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, err
	}
	out := &model.CurriculumChunk{
		Id:        c.Id,
		Text:      c.Text,
		Metadata:  datatypes.JSON(meta),
		Embedding: pgvector.NewVector(c.Embedding),
	}
	if len(c.SparseIndices) > 0 {
		elements := make(map[int32]float32, len(c.SparseIndices))
		for i, idx := range c.SparseIndices {
			elements[idx] = c.SparseValues[i]
		}
		sv := pgvector.NewSparseVectorFromMap(elements, c.SparseDimension)
		out.SparseEmbedding = &sv
	}
	return out, nil
}
