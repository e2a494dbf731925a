package oracle

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"unicode"

	"github.com/viant/vec/search"
)

// DefaultHashDimension is the HashEmbedder dimension when none is given.
const DefaultHashDimension = 256

// HashEmbedder is a deterministic, offline bag-of-words embedder: each
// lower-cased alphanumeric token adds one to the bucket picked by its FNV-1a
// hash, and the result is scaled to unit length. Texts sharing words score
// higher under cosine similarity. It suits tests and offline demos, not
// semantic search.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder returns a HashEmbedder of the given dimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Embed never fails unless ctx is done. Text without tokens maps to the zero
// vector.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float32, h.dim)
	for _, token := range Tokenize(text) {
		hash := fnv.New32a()
		_, _ = hash.Write([]byte(token))
		v[hash.Sum32()%uint32(h.dim)]++
	}
	if m := search.Float32s(v).Magnitude(); m > 0 {
		for i := range v {
			v[i] /= m
		}
	}
	return v, nil
}

// Dimension returns the embedding dimension.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Model returns the model name.
func (h *HashEmbedder) Model() string { return "hash/" + strconv.Itoa(h.dim) }

// Tokenize splits text into lower-cased runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
