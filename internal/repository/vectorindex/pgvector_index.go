package vectorindex

import (
	"context"
	"sort"

	"edu-chatbot-be/internal/repository/contract"
	"edu-chatbot-be/internal/repository/specification"
	"edu-chatbot-be/internal/repository/unitofwork"
	"edu-chatbot-be/pkg/rag/retrieval"
)

// PgvectorIndex serves retrieval queries from the curriculum_chunks table.
type PgvectorIndex struct {
	repoFactory unitofwork.RepositoryFactory
}

func NewPgvectorIndex(repoFactory unitofwork.RepositoryFactory) *PgvectorIndex {
	return &PgvectorIndex{repoFactory: repoFactory}
}

func (i *PgvectorIndex) Name() string {
	return "curriculum_chunks"
}

func (i *PgvectorIndex) Query(ctx context.Context, q retrieval.VectorQuery) ([]retrieval.Match, error) {
	uow := i.repoFactory.NewUnitOfWork(ctx)

	hits, err := uow.CurriculumChunkRepository().HybridSearch(ctx, contract.HybridQuery{
		Dense:     q.Dense,
		Sparse:    q.Sparse,
		SparseDim: q.SparseDim,
		Alpha:     q.Alpha,
		TopK:      q.TopK,
	}, FilterSpecs(q.Filter)...)
	if err != nil {
		return nil, err
	}

	out := make([]retrieval.Match, 0, len(hits))
	for _, h := range hits {
		out = append(out, retrieval.Match{
			ID:       h.Chunk.Id,
			Score:    h.Score,
			Text:     h.Chunk.Text,
			Metadata: h.Chunk.Metadata,
		})
	}
	return out, nil
}

// FilterSpecs converts normalized retrieval filters into metadata
// conditions, in a stable field order.
func FilterSpecs(filter map[string]map[string]interface{}) []specification.Specification {
	fields := make([]string, 0, len(filter))
	for f := range filter {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var specs []specification.Specification
	for _, field := range fields {
		ops := filter[field]
		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)

		for _, op := range opNames {
			value := ops[op]
			specs = append(specs, specification.MetadataCondition{
				Field: field,
				Op:    op,
				Value: value,
				Cast:  castFor(field, value),
			})
		}
	}
	return specs
}

func castFor(field string, value interface{}) string {
	if retrieval.IsIntegerField(field) {
		return specification.CastInteger
	}
	if _, ok := value.(bool); ok {
		return specification.CastBoolean
	}
	return specification.CastText
}
