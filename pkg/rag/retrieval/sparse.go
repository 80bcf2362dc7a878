package retrieval

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strings"
	"unicode"
)

// SparseDimension is the hashed vocabulary size of the sparse index column.
const SparseDimension int32 = 1 << 20

// SparseEncoder produces a lexical query vector for hybrid search.
type SparseEncoder interface {
	EncodeQuery(text string) (map[int32]float32, error)
	Dimension() int32
}

// BM25Params holds the corpus statistics the encoder was fitted on.
type BM25Params struct {
	K1      float64        `json:"k1"`
	B       float64        `json:"b"`
	AvgDL   float64        `json:"avgdl"`
	NDocs   int            `json:"n_docs"`
	DocFreq map[string]int `json:"doc_freq"`
}

type BM25Encoder struct {
	params BM25Params
}

func NewBM25Encoder(params BM25Params) *BM25Encoder {
	return &BM25Encoder{params: params}
}

// LoadBM25Encoder reads fitted params from a JSON file.
func LoadBM25Encoder(path string) (*BM25Encoder, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bm25 params: %w", err)
	}
	var p BM25Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode bm25 params: %w", err)
	}
	if p.NDocs <= 0 {
		return nil, fmt.Errorf("bm25 params: n_docs must be positive")
	}
	return NewBM25Encoder(p), nil
}

func (e *BM25Encoder) Dimension() int32 {
	return SparseDimension
}

// EncodeQuery weights each distinct query term by its IDF and normalizes
// the weights to sum to one.
func (e *BM25Encoder) EncodeQuery(text string) (map[int32]float32, error) {
	terms := Tokenize(text)
	if len(terms) == 0 {
		return nil, nil
	}

	weights := make(map[int32]float64)
	var total float64
	for _, term := range terms {
		idx := hashTerm(term)
		if _, seen := weights[idx]; seen {
			continue
		}
		df := e.params.DocFreq[term]
		idf := math.Log((float64(e.params.NDocs) + 1) / (float64(df) + 0.5))
		if idf <= 0 {
			continue
		}
		weights[idx] = idf
		total += idf
	}
	if total == 0 {
		return nil, nil
	}

	out := make(map[int32]float32, len(weights))
	for idx, w := range weights {
		out[idx] = float32(w / total)
	}
	return out, nil
}

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "do": true, "does": true, "for": true, "from": true, "how": true, "i": true,
	"in": true, "is": true, "it": true, "me": true, "my": true, "of": true, "on": true,
	"or": true, "the": true, "this": true, "to": true, "was": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "with": true, "you": true,
	"can": true, "please": true, "s": true, "t": true, "explain": true, "tell": true, "about": true,
}

// Tokenize lowercases text and splits it into alphanumeric terms without stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

func hashTerm(term string) int32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return int32(h.Sum32() % uint32(SparseDimension))
}
