package pipeline

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/viant/sqlite-rag/chunker"
	"github.com/viant/sqlite-rag/index"
	"github.com/viant/sqlite-rag/retrieve"
	"github.com/viant/sqlite-rag/vector"
)

const (
	// DefaultIndexPath is the persisted index file.
	DefaultIndexPath = "chroma.sqlite"
	// DefaultContextDelimiter separates retrieved chunks in the prompt.
	DefaultContextDelimiter = "\n\n---\n\n"
	// DefaultEmbedConcurrency bounds parallel embedding calls during a build.
	DefaultEmbedConcurrency = 4
)

// DefaultPromptTemplate renders the answer prompt from .Context and
// .Question.
const DefaultPromptTemplate = `
Answer the question based only on the following context:

{{.Context}}

---

Answer the question based on the above context: {{.Question}}
`

// Config holds the pipeline parameters.
type Config struct {
	IndexPath        string
	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	RelevanceFloor   float64
	PromptTemplate   string
	ContextDelimiter string
	EmbedConcurrency int
	IndexKind        index.Kind
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		IndexPath:        DefaultIndexPath,
		ChunkSize:        chunker.DefaultChunkSize,
		ChunkOverlap:     chunker.DefaultChunkOverlap,
		TopK:             retrieve.DefaultTopK,
		RelevanceFloor:   retrieve.DefaultRelevanceFloor,
		PromptTemplate:   DefaultPromptTemplate,
		ContextDelimiter: DefaultContextDelimiter,
		EmbedConcurrency: DefaultEmbedConcurrency,
		IndexKind:        index.KindAuto,
	}
}

// Validate reports the first invalid parameter as
// vector.ErrInvalidConfiguration.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("pipeline: %s: %w", fmt.Sprintf(format, args...), vector.ErrInvalidConfiguration)
	}
	switch {
	case strings.TrimSpace(c.IndexPath) == "":
		return invalid("index path is empty")
	case c.ChunkSize <= 0:
		return invalid("chunk size %d must be positive", c.ChunkSize)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return invalid("chunk overlap %d must be in [0, %d)", c.ChunkOverlap, c.ChunkSize)
	case c.TopK <= 0:
		return invalid("top k %d must be positive", c.TopK)
	case c.RelevanceFloor < -1 || c.RelevanceFloor > 1:
		return invalid("relevance floor %v must be in [-1, 1]", c.RelevanceFloor)
	case c.EmbedConcurrency <= 0:
		return invalid("embed concurrency %d must be positive", c.EmbedConcurrency)
	}
	if _, err := index.ParseKind(string(c.IndexKind)); err != nil {
		return invalid("%v", err)
	}
	if _, err := parsePrompt(c.PromptTemplate); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func parsePrompt(text string) (*template.Template, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultPromptTemplate
	}
	return template.New("prompt").Option("missingkey=error").Parse(text)
}
