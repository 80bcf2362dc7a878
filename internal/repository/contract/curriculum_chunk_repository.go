package contract

import (
	"context"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/repository/specification"
)

// HybridQuery scores chunks as Alpha*dense + (1-Alpha)*sparse. A nil Sparse
// map means dense-only scoring, still scaled by Alpha.
type HybridQuery struct {
	Dense     []float32
	Sparse    map[int32]float32
	SparseDim int32
	Alpha     float64
	TopK      int
}

type CurriculumChunkRepository interface {
	Create(ctx context.Context, chunk *entity.CurriculumChunk) error
	FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CurriculumChunk, error)
	HybridSearch(ctx context.Context, q HybridQuery, specs ...specification.Specification) ([]*entity.ScoredChunk, error)
}
