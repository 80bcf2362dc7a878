package entity

type CurriculumChunk struct {
	Id              string
	Text            string
	Metadata        map[string]interface{}
	Embedding       []float32
	SparseIndices   []int32
	SparseValues    []float32
	SparseDimension int32
}

// ScoredChunk is a hybrid-search hit.
type ScoredChunk struct {
	Chunk *CurriculumChunk
	Score float64
}
