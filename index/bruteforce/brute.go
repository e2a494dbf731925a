package bruteforce

import (
	"fmt"
	"sort"

	"github.com/viant/sqlite-rag/vector"
)

// Index is a simple brute-force vector index implementing cosine similarity.
type Index struct {
	ids  []string
	vecs [][]float32
	dim  int
	mags []float64
}

// Build loads ids and vectors and precomputes magnitudes.
func (i *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("bruteforce: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		i.ids, i.vecs, i.mags, i.dim = nil, nil, nil, 0
		return nil
	}
	dim := len(vectors[0])
	for j := range vectors {
		if len(vectors[j]) != dim {
			return fmt.Errorf("bruteforce: inconsistent vector dims %d vs %d: %w", len(vectors[j]), dim, vector.ErrDimensionMismatch)
		}
	}
	mags := make([]float64, len(vectors))
	for j := range vectors {
		mags[j] = vector.Magnitude(vectors[j])
	}
	i.ids = append([]string(nil), ids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.dim = dim
	i.mags = mags
	return nil
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int { return len(i.ids) }

// Dimension returns the indexed vector dimension.
func (i *Index) Dimension() int { return i.dim }

// Query returns top-k by cosine similarity; ties keep build order.
func (i *Index) Query(query []float32, k int) ([]string, []float64, error) {
	if i.dim == 0 || len(i.vecs) == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("bruteforce: query dim %d != index dim %d", len(query), i.dim)
	}
	qm := vector.Magnitude(query)
	scoreds := make([]Scored, len(i.vecs))
	for j := range i.vecs {
		scoreds[j] = Scored{Pos: j, Score: vector.RelevanceWithMagnitudes(query, qm, i.vecs[j], i.mags[j])}
	}
	Rank(scoreds)
	if k <= 0 || k > len(scoreds) {
		k = len(scoreds)
	}
	outIDs := make([]string, k)
	outScores := make([]float64, k)
	for n := 0; n < k; n++ {
		outIDs[n] = i.ids[scoreds[n].Pos]
		outScores[n] = scoreds[n].Score
	}
	return outIDs, outScores, nil
}

// MarshalBinary stores: dim(uint32), n(uint32), then for each item:
// idLen(uint32), id bytes, vec(float32[dim]).
func (i *Index) MarshalBinary() ([]byte, error) {
	return Encode(i.ids, i.vecs, i.dim), nil
}

// UnmarshalBinary restores the index from bytes.
func (i *Index) UnmarshalBinary(data []byte) error {
	ids, vecs, err := Decode(data)
	if err != nil {
		return err
	}
	return i.Build(ids, vecs)
}

// Scored is a candidate position with its similarity score.
type Scored struct {
	Pos   int
	Score float64
}

// Rank orders candidates by descending score, then ascending position.
func Rank(scoreds []Scored) {
	sort.SliceStable(scoreds, func(a, b int) bool {
		if scoreds[a].Score != scoreds[b].Score {
			return scoreds[a].Score > scoreds[b].Score
		}
		return scoreds[a].Pos < scoreds[b].Pos
	})
}
