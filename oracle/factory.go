package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/viant/sqlite-rag/vector"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderHash   = "hash"
)

// Settings selects and configures a backend.
type Settings struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Dimension int
}

// NewEmbedder builds the embedding backend named by s.Provider.
func NewEmbedder(ctx context.Context, s Settings) (Embedder, error) {
	switch strings.ToLower(s.Provider) {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{APIKey: s.APIKey, BaseURL: s.BaseURL, Model: s.Model})
	case ProviderGemini:
		return NewGeminiEmbedder(ctx, GeminiConfig{APIKey: s.APIKey, Model: s.Model})
	case ProviderHash:
		return NewHashEmbedder(s.Dimension), nil
	default:
		return nil, fmt.Errorf("oracle: unknown embedding provider %q: %w", s.Provider, vector.ErrInvalidConfiguration)
	}
}

// NewGenerator builds the answer backend named by s.Provider.
func NewGenerator(ctx context.Context, s Settings) (Generator, error) {
	switch strings.ToLower(s.Provider) {
	case ProviderOpenAI:
		return NewOpenAIGenerator(OpenAIConfig{APIKey: s.APIKey, BaseURL: s.BaseURL, Model: s.Model})
	case ProviderGemini:
		return NewGeminiGenerator(ctx, GeminiConfig{APIKey: s.APIKey, Model: s.Model})
	default:
		return nil, fmt.Errorf("oracle: unknown answer provider %q: %w", s.Provider, vector.ErrInvalidConfiguration)
	}
}

// NeedsAPIKey reports whether provider calls a remote API.
func NeedsAPIKey(provider string) bool {
	switch strings.ToLower(provider) {
	case ProviderOpenAI, ProviderGemini:
		return true
	}
	return false
}
