package store

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/viant/sqlite-rag/index"
	"github.com/viant/sqlite-rag/internal/logging"
	"github.com/viant/sqlite-rag/vector"
)

// VectorIndex is the searchable collection of embedded chunks.
type VectorIndex struct {
	mu     sync.RWMutex
	snap   *snapshot
	kind   index.Kind
	model  string
	logger *slog.Logger
}

// snapshot is immutable once published.
type snapshot struct {
	chunks     []vector.Chunk
	embeddings [][]float32
	idx        index.Index
	kind       index.Kind
	dim        int
	model      string
	buildID    string
	createdAt  time.Time
}

// Option configures a VectorIndex.
type Option func(*VectorIndex)

// WithKind selects the index implementation; index.KindAuto by default.
func WithKind(kind index.Kind) Option {
	return func(v *VectorIndex) { v.kind = kind }
}

// WithModel records the embedding model name. A persisted index built with a
// different model is rejected on reload.
func WithModel(model string) Option {
	return func(v *VectorIndex) { v.model = model }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *VectorIndex) { v.logger = logger }
}

// New returns an empty VectorIndex.
func New(opts ...Option) *VectorIndex {
	v := &VectorIndex{kind: index.KindAuto}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = logging.OrDiscard(v.logger)
	return v
}

// Build replaces the index contents with entries. All embeddings must share
// one non-zero dimension.
func (v *VectorIndex) Build(ctx context.Context, entries []vector.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	snap, err := newSnapshot(entries, v.kind, v.model, uuid.NewString(), started.UTC())
	if err != nil {
		return err
	}
	v.swap(snap)
	v.logger.Info("index built",
		"chunks", len(snap.chunks),
		"dimension", snap.dim,
		"kind", string(snap.kind),
		"build_id", snap.buildID,
		"elapsed", time.Since(started))
	return nil
}

// Search returns the min(k, Len()) chunks most similar to query, by
// descending score with ties in build order. An empty index yields an empty
// result.
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]vector.ScoredResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("store: search k=%d: %w", k, vector.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := v.current()
	if snap == nil || len(snap.chunks) == 0 {
		return []vector.ScoredResult{}, nil
	}
	if len(query) != snap.dim {
		return nil, fmt.Errorf("store: query dimension %d, index dimension %d: %w", len(query), snap.dim, vector.ErrIncompatibleIndex)
	}
	ids, scores, err := snap.idx.Query(query, k)
	if err != nil {
		return nil, fmt.Errorf("store: query %s index: %w", snap.kind, err)
	}
	results := make([]vector.ScoredResult, len(ids))
	for i, id := range ids {
		pos, err := strconv.Atoi(id)
		if err != nil || pos < 0 || pos >= len(snap.chunks) {
			return nil, fmt.Errorf("store: index returned unknown id %q: %w", id, vector.ErrIncompatibleIndex)
		}
		results[i] = vector.ScoredResult{Chunk: snap.chunks[pos], Score: scores[i]}
	}
	return results, nil
}

// Len returns the number of indexed chunks.
func (v *VectorIndex) Len() int {
	if snap := v.current(); snap != nil {
		return len(snap.chunks)
	}
	return 0
}

// Empty reports whether nothing has been built or loaded yet.
func (v *VectorIndex) Empty() bool { return v.current() == nil }

// Dimension returns the embedding dimension, 0 when empty.
func (v *VectorIndex) Dimension() int {
	if snap := v.current(); snap != nil {
		return snap.dim
	}
	return 0
}

// Model returns the embedding model recorded for the current contents, or
// the configured model when empty.
func (v *VectorIndex) Model() string {
	if snap := v.current(); snap != nil && snap.model != "" {
		return snap.model
	}
	return v.model
}

// Kind returns the concrete index implementation in use.
func (v *VectorIndex) Kind() index.Kind {
	if snap := v.current(); snap != nil {
		return snap.kind
	}
	return v.kind
}

func (v *VectorIndex) current() *snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

func (v *VectorIndex) swap(snap *snapshot) {
	v.mu.Lock()
	v.snap = snap
	v.mu.Unlock()
}

func newSnapshot(entries []vector.Entry, kind index.Kind, model, buildID string, createdAt time.Time) (*snapshot, error) {
	dim := 0
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("store: entry %d (%s) has an empty embedding: %w", i, e.Chunk.ID, vector.ErrInvalidArgument)
		}
		if i == 0 {
			dim = len(e.Embedding)
			continue
		}
		if len(e.Embedding) != dim {
			return nil, fmt.Errorf("store: entry %d (%s) has dimension %d, expected %d: %w",
				i, e.Chunk.ID, len(e.Embedding), dim, vector.ErrDimensionMismatch)
		}
	}
	snap := &snapshot{
		chunks:     make([]vector.Chunk, len(entries)),
		embeddings: make([][]float32, len(entries)),
		dim:        dim,
		model:      model,
		buildID:    buildID,
		createdAt:  createdAt,
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		snap.chunks[i] = e.Chunk
		snap.embeddings[i] = append([]float32(nil), e.Embedding...)
		ids[i] = strconv.Itoa(i)
	}
	snap.kind = kind.Resolve(len(entries), dim)
	snap.idx = index.New(snap.kind)
	if err := snap.idx.Build(ids, snap.embeddings); err != nil {
		return nil, fmt.Errorf("store: build %s index: %w", snap.kind, err)
	}
	return snap, nil
}
