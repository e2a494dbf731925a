package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/viant/sqlite-rag/vector"
)

const (
	DefaultOpenAIEmbeddingModel = "text-embedding-3-small"
	DefaultOpenAIChatModel      = "gpt-4o-mini"
)

// openAIDimensions lists known embedding sizes.
var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI backends.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

func (c OpenAIConfig) client() (*openai.Client, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("oracle: OpenAI API key is not set: %w", vector.ErrInvalidConfiguration)
	}
	cfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	return openai.NewClientWithConfig(cfg), nil
}

// OpenAIEmbedder uses the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIEmbeddingModel
	}
	return &OpenAIEmbedder{client: client, model: model, dim: openAIDimensions[model]}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("oracle: cannot embed empty text")
	}
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, classifyOpenAI("openai embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, Unavailable("openai embed", false, errors.New("no embedding data returned from API"))
	}
	src := resp.Data[0].Embedding
	v := make([]float32, len(src))
	for i := range src {
		v[i] = float32(src[i])
	}
	return v, nil
}

// Dimension returns the embedding dimension, 0 for unknown models.
func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// Model returns the model name.
func (e *OpenAIEmbedder) Model() string { return "openai/" + e.model }

// OpenAIGenerator answers prompts with the chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates an OpenAI chat generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	client, err := cfg.client()
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIChatModel
	}
	return &OpenAIGenerator{client: client, model: model}, nil
}

// Generate sends prompt as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", classifyOpenAI("openai generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", Unavailable("openai generate", false, errors.New("no choices returned from API"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Model returns the model name.
func (g *OpenAIGenerator) Model() string { return "openai/" + g.model }

func classifyOpenAI(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Unavailable(op, errors.Is(err, context.DeadlineExceeded), err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return Unavailable(op, retryableStatus(apiErr.HTTPStatusCode), fmt.Errorf("status %d: %w", apiErr.HTTPStatusCode, err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return Unavailable(op, retryableStatus(reqErr.HTTPStatusCode), fmt.Errorf("status %d: %w", reqErr.HTTPStatusCode, err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Unavailable(op, true, err)
	}
	return Unavailable(op, false, err)
}
