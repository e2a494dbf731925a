// Package pipeline orchestrates the retrieval-augmented answer flow: it
// builds or reloads the vector index on first use, retrieves context for a
// question and asks the answer oracle, citing the sources it used.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/viant/sqlite-rag/chunker"
	"github.com/viant/sqlite-rag/index"
	"github.com/viant/sqlite-rag/internal/logging"
	"github.com/viant/sqlite-rag/oracle"
	"github.com/viant/sqlite-rag/retrieve"
	"github.com/viant/sqlite-rag/store"
	"github.com/viant/sqlite-rag/vector"
)

// DocumentSource supplies the documents to index.
type DocumentSource interface {
	Load(ctx context.Context) ([]vector.Document, error)
}

// DocumentSourceFunc adapts a function to DocumentSource.
type DocumentSourceFunc func(ctx context.Context) ([]vector.Document, error)

// Load calls f.
func (f DocumentSourceFunc) Load(ctx context.Context) ([]vector.Document, error) { return f(ctx) }

// BuildStats summarises a full rebuild.
type BuildStats struct {
	Documents int
	Chunks    int
	Dimension int
	Path      string
	Elapsed   time.Duration
}

// Answer is the outcome of AnswerQuery.
type Answer struct {
	// Text is the answer oracle's response; empty when NoMatch.
	Text string
	// Sources lists the source of every context chunk in ranked order,
	// duplicates included.
	Sources []string
	// NoMatch reports that no chunk cleared the relevance floor.
	NoMatch bool
	// Results are the retrieved chunks with scores.
	Results []vector.ScoredResult
}

// Controller runs the pipeline. Queries may run concurrently; builds and
// reloads are serialised.
type Controller struct {
	cfg       Config
	source    DocumentSource
	embedder  oracle.Embedder
	generator oracle.Generator
	index     *store.VectorIndex
	retriever *retrieve.Retriever
	splitter  *chunker.Splitter
	prompt    *template.Template
	logger    *slog.Logger
	mu        sync.Mutex
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithIndex uses idx instead of a fresh store.VectorIndex.
func WithIndex(idx *store.VectorIndex) Option {
	return func(c *Controller) { c.index = idx }
}

// New returns a Controller. The generator may be nil for build-only use.
func New(cfg Config, source DocumentSource, embedder oracle.Embedder, generator oracle.Generator, opts ...Option) (*Controller, error) {
	if cfg.PromptTemplate == "" {
		cfg.PromptTemplate = DefaultPromptTemplate
	}
	if cfg.ContextDelimiter == "" {
		cfg.ContextDelimiter = DefaultContextDelimiter
	}
	if cfg.IndexKind == "" {
		cfg.IndexKind = index.KindAuto
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil || embedder == nil {
		return nil, fmt.Errorf("pipeline: document source and embedder are required: %w", vector.ErrInvalidConfiguration)
	}
	c := &Controller{cfg: cfg, source: source, embedder: embedder, generator: generator}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	var err error
	if c.splitter, err = chunker.New(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if c.prompt, err = parsePrompt(cfg.PromptTemplate); err != nil {
		return nil, fmt.Errorf("pipeline: prompt template: %v: %w", err, vector.ErrInvalidConfiguration)
	}
	if c.index == nil {
		c.index = store.New(
			store.WithKind(cfg.IndexKind),
			store.WithModel(oracle.ModelOf(embedder)),
			store.WithLogger(c.logger))
	}
	c.retriever = retrieve.New(embedder, c.index, retrieve.WithLogger(c.logger))
	return c, nil
}

// Index returns the underlying vector index.
func (c *Controller) Index() *store.VectorIndex { return c.index }

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// EnsureIndexBuilt makes the index searchable. It does nothing when an index
// is already loaded, reloads the persisted index when the file exists, and
// otherwise runs a full build. It reports whether a build ran. An existing
// index is never checked for staleness against the documents.
func (c *Controller) EnsureIndexBuilt(ctx context.Context) (bool, error) {
	// a loaded index stays loaded; readers skip the lock held by Rebuild
	if !c.index.Empty() {
		return false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.index.Empty() {
		return false, nil
	}
	_, err := os.Stat(c.cfg.IndexPath)
	switch {
	case err == nil:
		if err := c.index.Reload(ctx, c.cfg.IndexPath, oracle.DimensionOf(c.embedder)); err != nil {
			return false, fmt.Errorf("pipeline: load index: %w", err)
		}
		return false, nil
	case errors.Is(err, os.ErrNotExist):
		c.logger.Info("no persisted index, building", "path", c.cfg.IndexPath)
		if _, err := c.rebuild(ctx); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, fmt.Errorf("pipeline: stat index: %w", err)
	}
}

// Rebuild discards any existing index and builds a new one from the document
// source, replacing the persisted file.
func (c *Controller) Rebuild(ctx context.Context) (*BuildStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuild(ctx)
}

func (c *Controller) rebuild(ctx context.Context) (*BuildStats, error) {
	started := time.Now()
	docs, err := c.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load documents: %w", err)
	}
	chunks := c.splitter.Split(docs)
	c.logger.Info("documents split", "documents", len(docs), "chunks", len(chunks))

	entries, err := c.embedChunks(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if err := c.index.Build(ctx, entries); err != nil {
		return nil, fmt.Errorf("pipeline: build index: %w", err)
	}
	if err := c.index.Persist(ctx, c.cfg.IndexPath); err != nil {
		return nil, fmt.Errorf("pipeline: persist index: %w", err)
	}
	stats := &BuildStats{
		Documents: len(docs),
		Chunks:    len(chunks),
		Dimension: c.index.Dimension(),
		Path:      c.cfg.IndexPath,
		Elapsed:   time.Since(started),
	}
	c.logger.Info("index rebuilt",
		"documents", stats.Documents,
		"chunks", stats.Chunks,
		"dimension", stats.Dimension,
		"path", stats.Path,
		"elapsed", stats.Elapsed)
	return stats, nil
}

// embedChunks embeds every chunk with bounded concurrency; entry order
// follows chunk order.
func (c *Controller) embedChunks(ctx context.Context, chunks []vector.Chunk) ([]vector.Entry, error) {
	entries := make([]vector.Entry, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.EmbedConcurrency)
	for i := range chunks {
		g.Go(func() error {
			emb, err := c.embedder.Embed(gctx, chunks[i].Content)
			if err != nil {
				return fmt.Errorf("pipeline: embed chunk %s: %w", chunks[i].ID, err)
			}
			entries[i] = vector.Entry{Embedding: emb, Chunk: chunks[i]}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

// AnswerQuery answers question from the indexed documents, building or
// loading the index first when needed. When nothing is relevant enough the
// answer oracle is not called and the answer is NoMatch.
func (c *Controller) AnswerQuery(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("pipeline: empty question: %w", vector.ErrInvalidArgument)
	}
	if c.generator == nil {
		return nil, fmt.Errorf("pipeline: no answer oracle configured: %w", vector.ErrInvalidConfiguration)
	}
	if _, err := c.EnsureIndexBuilt(ctx); err != nil {
		return nil, err
	}
	result, err := c.retriever.Retrieve(ctx, question, c.cfg.TopK, c.cfg.RelevanceFloor)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if result.NoMatch {
		return &Answer{NoMatch: true, Sources: []string{}, Results: []vector.ScoredResult{}}, nil
	}
	prompt, err := c.Prompt(question, result.Matches)
	if err != nil {
		return nil, err
	}
	text, err := c.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("pipeline: generate answer: %w", err)
	}
	return &Answer{
		Text:    text,
		Sources: vector.Sources(result.Matches),
		Results: result.Matches,
	}, nil
}

// Prompt renders the answer prompt: chunk contents in ranked order joined by
// the context delimiter, followed by the question.
func (c *Controller) Prompt(question string, matches []vector.ScoredResult) (string, error) {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = m.Chunk.Content
	}
	var sb strings.Builder
	err := c.prompt.Execute(&sb, struct {
		Context  string
		Question string
	}{
		Context:  strings.Join(parts, c.cfg.ContextDelimiter),
		Question: question,
	})
	if err != nil {
		return "", fmt.Errorf("pipeline: render prompt: %w", err)
	}
	return sb.String(), nil
}
