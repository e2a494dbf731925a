package cover

import (
	"bytes"
	"container/heap"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viant/sqlite-rag/index/bruteforce"
	"github.com/viant/sqlite-rag/vector"
)

// blobMagic prefixes serialized cover indexes; the remainder is the
// brute-force encoding.
var blobMagic = []byte("COV1")

// eps absorbs floating point error so that no candidate tied with the k-th
// best is ever pruned.
const eps = 1e-6

// Index implements a cosine kNN index using a VP-tree to prune search.
type Index struct {
	ids   []string
	vecs  [][]float32
	mags  []float64
	units [][]float64
	zeros []int
	dim   int
	root  *node
}

type node struct {
	pos   int
	mu    float64
	left  *node
	right *node
}

// IsBlob reports whether data was produced by Index.MarshalBinary.
func IsBlob(data []byte) bool { return bytes.HasPrefix(data, blobMagic) }

// Build normalises the vectors and constructs the VP-tree. Zero vectors are
// kept outside the tree and always score 0.
func (i *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("cover: ids and vectors length mismatch: %d != %d", len(ids), len(vectors))
	}
	*i = Index{}
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	for j := range vectors {
		if len(vectors[j]) != dim {
			return fmt.Errorf("cover: inconsistent vector dims %d vs %d: %w", len(vectors[j]), dim, vector.ErrDimensionMismatch)
		}
	}
	i.ids = append([]string(nil), ids...)
	i.vecs = append([][]float32(nil), vectors...)
	i.mags = make([]float64, len(vectors))
	i.units = make([][]float64, len(vectors))
	i.dim = dim
	tree := make([]int, 0, len(vectors))
	for j, v := range vectors {
		m := vector.Magnitude(v)
		i.mags[j] = m
		if m == 0 {
			i.zeros = append(i.zeros, j)
			continue
		}
		u := make([]float64, dim)
		for d := range v {
			u[d] = float64(v[d]) / m
		}
		i.units[j] = u
		tree = append(tree, j)
	}
	i.root = i.build(tree)
	return nil
}

func (i *Index) build(positions []int) *node {
	if len(positions) == 0 {
		return nil
	}
	// the last position is the vantage point
	vp := positions[len(positions)-1]
	rest := positions[:len(positions)-1]
	n := &node{pos: vp}
	if len(rest) == 0 {
		return n
	}
	dists := make([]float64, len(rest))
	for k, p := range rest {
		dists[k] = euclidean(i.units[vp], i.units[p])
	}
	order := make([]int, len(rest))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return dists[order[a]] < dists[order[b]] })
	mid := len(rest) / 2
	n.mu = dists[order[mid]]
	left := make([]int, 0, mid+1)
	right := make([]int, 0, len(rest)-mid-1)
	for rank, k := range order {
		if rank <= mid {
			left = append(left, rest[k])
		} else {
			right = append(right, rest[k])
		}
	}
	n.left = i.build(left)
	n.right = i.build(right)
	return n
}

// Len returns the number of indexed vectors.
func (i *Index) Len() int { return len(i.ids) }

// Dimension returns the indexed vector dimension.
func (i *Index) Dimension() int { return i.dim }

// Query returns up to k ids ordered by decreasing cosine similarity, ties in
// build order. Scores are computed exactly as the brute-force index does.
func (i *Index) Query(query []float32, k int) ([]string, []float64, error) {
	if i.dim == 0 || len(i.ids) == 0 {
		return nil, nil, nil
	}
	if len(query) != i.dim {
		return nil, nil, fmt.Errorf("cover: query dim %d != index dim %d", len(query), i.dim)
	}
	qm := vector.Magnitude(query)
	var cands []bruteforce.Scored
	if qm == 0 {
		cands = make([]bruteforce.Scored, len(i.ids))
		for j := range cands {
			cands[j] = bruteforce.Scored{Pos: j}
		}
	} else {
		q := make([]float64, len(query))
		for d := range query {
			q[d] = float64(query[d]) / qm
		}
		s := &searcher{index: i, query: q, k: k}
		s.search(i.root)
		limit := s.bound() + eps
		for _, v := range s.visited {
			if v.dist > limit {
				continue
			}
			score := vector.RelevanceWithMagnitudes(query, qm, i.vecs[v.pos], i.mags[v.pos])
			cands = append(cands, bruteforce.Scored{Pos: v.pos, Score: score})
		}
		for _, z := range i.zeros {
			cands = append(cands, bruteforce.Scored{Pos: z})
		}
	}
	bruteforce.Rank(cands)
	if k <= 0 || k > len(cands) {
		k = len(cands)
	}
	ids := make([]string, k)
	scores := make([]float64, k)
	for n := 0; n < k; n++ {
		ids[n] = i.ids[cands[n].Pos]
		scores[n] = cands[n].Score
	}
	return ids, scores, nil
}

// MarshalBinary writes the magic prefix followed by the brute-force encoding.
func (i *Index) MarshalBinary() ([]byte, error) {
	payload := bruteforce.Encode(i.ids, i.vecs, i.dim)
	out := make([]byte, 0, len(blobMagic)+len(payload))
	out = append(out, blobMagic...)
	return append(out, payload...), nil
}

// UnmarshalBinary loads the brute-force payload and rebuilds the VP-tree.
func (i *Index) UnmarshalBinary(data []byte) error {
	if !IsBlob(data) {
		return errors.New("cover: missing blob prefix")
	}
	ids, vecs, err := bruteforce.Decode(data[len(blobMagic):])
	if err != nil {
		return err
	}
	return i.Build(ids, vecs)
}

type visit struct {
	pos  int
	dist float64
}

type searcher struct {
	index   *Index
	query   []float64
	k       int
	best    distHeap
	visited []visit
}

// bound is the k-th smallest distance seen so far.
func (s *searcher) bound() float64 {
	if s.k <= 0 || len(s.best) < s.k {
		return math.Inf(1)
	}
	return s.best[0]
}

func (s *searcher) offer(pos int, d float64) {
	if d > s.bound()+eps {
		return
	}
	s.visited = append(s.visited, visit{pos: pos, dist: d})
	if s.k <= 0 {
		return
	}
	if len(s.best) < s.k {
		heap.Push(&s.best, d)
	} else if d < s.best[0] {
		s.best[0] = d
		heap.Fix(&s.best, 0)
	}
}

func (s *searcher) search(n *node) {
	if n == nil {
		return
	}
	d := euclidean(s.query, s.index.units[n.pos])
	s.offer(n.pos, d)
	if d <= n.mu {
		if d-n.mu <= s.bound()+eps {
			s.search(n.left)
		}
		if n.mu-d <= s.bound()+eps {
			s.search(n.right)
		}
		return
	}
	if n.mu-d <= s.bound()+eps {
		s.search(n.right)
	}
	if d-n.mu <= s.bound()+eps {
		s.search(n.left)
	}
}

// distHeap is a max-heap of distances.
type distHeap []float64

func (h distHeap) Len() int           { return len(h) }
func (h distHeap) Less(a, b int) bool { return h[a] > h[b] }
func (h distHeap) Swap(a, b int)      { h[a], h[b] = h[b], h[a] }
func (h *distHeap) Push(x any)        { *h = append(*h, x.(float64)) }
func (h *distHeap) Pop() any {
	old := *h
	v := old[len(old)-1]
	*h = old[:len(old)-1]
	return v
}

func euclidean(a, b []float64) float64 {
	var s float64
	for j := range a {
		d := a[j] - b[j]
		s += d * d
	}
	return math.Sqrt(s)
}
