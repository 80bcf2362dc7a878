package implementation

import (
	"context"
	"errors"

	"edu-chatbot-be/internal/entity"
	"edu-chatbot-be/internal/mapper"
	"edu-chatbot-be/internal/model"
	"edu-chatbot-be/internal/repository/contract"
	"edu-chatbot-be/internal/repository/specification"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type CurriculumChunkRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.CurriculumChunkMapper
}

func NewCurriculumChunkRepository(db *gorm.DB) contract.CurriculumChunkRepository {
	return &CurriculumChunkRepositoryImpl{
		db:     db,
		mapper: mapper.NewCurriculumChunkMapper(),
	}
}

func (r *CurriculumChunkRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *CurriculumChunkRepositoryImpl) Create(ctx context.Context, chunk *entity.CurriculumChunk) error {
	m, err := r.mapper.ToModel(chunk)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *CurriculumChunkRepositoryImpl) FindOne(ctx context.Context, specs ...specification.Specification) (*entity.CurriculumChunk, error) {
	var m model.CurriculumChunk
	query := r.applySpecifications(r.db.WithContext(ctx), specs...)
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

type scoredChunkRow struct {
	model.CurriculumChunk
	Score float64
}

// HybridSearch ranks by a linear blend of cosine similarity (dense) and
// inner product (sparse). pgvector's <#> returns the negated inner product.
func (r *CurriculumChunkRepositoryImpl) HybridSearch(ctx context.Context, q contract.HybridQuery, specs ...specification.Specification) ([]*entity.ScoredChunk, error) {
	dense := pgvector.NewVector(q.Dense)

	query := r.db.WithContext(ctx).Model(&model.CurriculumChunk{})
	if len(q.Sparse) > 0 {
		sparse := pgvector.NewSparseVectorFromMap(q.Sparse, q.SparseDim)
		query = query.Select(
			"curriculum_chunks.*, ? * (1 - (embedding <=> ?)) + ? * COALESCE((sparse_embedding <#> ?) * -1, 0) AS score",
			q.Alpha, dense, 1-q.Alpha, sparse,
		)
	} else {
		query = query.Select(
			"curriculum_chunks.*, ? * (1 - (embedding <=> ?)) AS score",
			q.Alpha, dense,
		)
	}

	query = r.applySpecifications(query, specs...)

	var rows []scoredChunkRow
	if err := query.Order("score DESC").Limit(q.TopK).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*entity.ScoredChunk, 0, len(rows))
	for i := range rows {
		out = append(out, &entity.ScoredChunk{
			Chunk: r.mapper.ToEntity(&rows[i].CurriculumChunk),
			Score: rows[i].Score,
		})
	}
	return out, nil
}
