// Package retrieve turns query text into the most relevant stored chunks,
// applying a relevance floor below which nothing is returned.
package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/viant/sqlite-rag/internal/logging"
	"github.com/viant/sqlite-rag/oracle"
	"github.com/viant/sqlite-rag/vector"
)

const (
	// DefaultTopK is the number of chunks retrieved per query.
	DefaultTopK = 3
	// DefaultRelevanceFloor is the minimum top score for a match.
	DefaultRelevanceFloor = 0.7
)

// Searcher ranks stored chunks against a query embedding. *store.VectorIndex
// implements it.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]vector.ScoredResult, error)
}

// Result is the outcome of a retrieval.
type Result struct {
	// Matches are ranked by descending score; empty when NoMatch.
	Matches []vector.ScoredResult
	// NoMatch reports that nothing cleared the relevance floor.
	NoMatch bool
}

// Retriever embeds query text and searches the index.
type Retriever struct {
	embedder oracle.Embedder
	searcher Searcher
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// New returns a Retriever.
func New(embedder oracle.Embedder, searcher Searcher, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, searcher: searcher}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// Retrieve embeds query once and returns up to k chunks. When the index is
// empty or the best score is below floor the result is NoMatch; a best score
// equal to floor passes.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, floor float64) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("retrieve: empty query: %w", vector.ErrInvalidArgument)
	}
	if k <= 0 {
		return nil, fmt.Errorf("retrieve: k=%d: %w", k, vector.ErrInvalidArgument)
	}
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}
	matches, err := r.searcher.Search(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(matches) == 0 || matches[0].Score < floor {
		top := 0.0
		if len(matches) > 0 {
			top = matches[0].Score
		}
		r.logger.Debug("no match", "candidates", len(matches), "top_score", top, "floor", floor)
		return &Result{Matches: []vector.ScoredResult{}, NoMatch: true}, nil
	}
	r.logger.Debug("retrieved", "matches", len(matches), "top_score", matches[0].Score)
	return &Result{Matches: matches}, nil
}
