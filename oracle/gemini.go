package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/viant/sqlite-rag/vector"
)

const (
	DefaultGeminiEmbeddingModel = "text-embedding-004"
	DefaultGeminiChatModel      = "gemini-1.5-flash"
)

var geminiDimensions = map[string]int{
	"text-embedding-004": 768,
	"embedding-001":      768,
}

// GeminiConfig configures the Gemini backends.
type GeminiConfig struct {
	APIKey string
	Model  string
}

func (c GeminiConfig) client(ctx context.Context) (*genai.Client, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("oracle: Gemini API key is not set: %w", vector.ErrInvalidConfiguration)
	}
	return genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
}

// GeminiEmbedder uses the Google Generative AI embedding models.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiEmbedder creates a Gemini embedder. Close releases the client.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	client, err := cfg.client(ctx)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiEmbeddingModel
	}
	return &GeminiEmbedder{client: client, model: model, dim: geminiDimensions[model]}, nil
}

// Embed returns an embedding vector for the given text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("oracle: cannot embed empty text")
	}
	resp, err := e.client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, classifyGemini("gemini embed", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, Unavailable("gemini embed", false, errors.New("no embedding returned"))
	}
	return resp.Embedding.Values, nil
}

// Dimension returns the embedding dimension, 0 for unknown models.
func (e *GeminiEmbedder) Dimension() int { return e.dim }

// Model returns the model name.
func (e *GeminiEmbedder) Model() string { return "gemini/" + e.model }

// Close releases the underlying client.
func (e *GeminiEmbedder) Close() error { return e.client.Close() }

// GeminiGenerator answers prompts with a Gemini generative model.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini generator. Close releases the client.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	client, err := cfg.client(ctx)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = DefaultGeminiChatModel
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate returns the text parts of the first candidate.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGemini("gemini generate", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", Unavailable("gemini generate", false, errors.New("no candidates returned"))
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Model returns the model name.
func (g *GeminiGenerator) Model() string { return "gemini/" + g.model }

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error { return g.client.Close() }

func classifyGemini(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Unavailable(op, errors.Is(err, context.DeadlineExceeded), err)
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return Unavailable(op, retryableStatus(gErr.Code), err)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case grpccodes.ResourceExhausted, grpccodes.Unavailable, grpccodes.Internal, grpccodes.DeadlineExceeded, grpccodes.Aborted:
			return Unavailable(op, true, err)
		}
	}
	return Unavailable(op, false, err)
}
