package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/viant/sqlite-rag/vector"
)

// Embedder maps text to an embedding vector. Implementations are free to use
// any backend (OpenAI, Gemini, local models) as long as every call for one
// configured model returns vectors of the same dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Dimensioned is implemented by embedders that know their output dimension
// up front.
type Dimensioned interface {
	Dimension() int
}

// Named is implemented by oracles that can report their model name.
type Named interface {
	Model() string
}

// Generator produces a natural-language answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedFunc adapts a function to Embedder.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Embed calls f.
func (f EmbedFunc) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

// GenerateFunc adapts a function to Generator.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

// Generate calls f.
func (f GenerateFunc) Generate(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// DimensionOf returns e's declared dimension, or 0 when unknown.
func DimensionOf(e Embedder) int {
	if d, ok := e.(Dimensioned); ok {
		return d.Dimension()
	}
	return 0
}

// ModelOf returns the oracle's model name, or "" when unknown.
func ModelOf(o any) string {
	if n, ok := o.(Named); ok {
		return n.Model()
	}
	return ""
}

// UnavailableError reports a failed oracle call. It matches both
// vector.ErrOracleUnavailable and the underlying cause under errors.Is.
type UnavailableError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("oracle: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the sentinel and the cause.
func (e *UnavailableError) Unwrap() []error {
	return []error{vector.ErrOracleUnavailable, e.Err}
}

// Unavailable wraps err as an UnavailableError unless it already is one.
func Unavailable(op string, retryable bool, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a transient oracle failure worth
// retrying: rate limits, server errors, timeouts and connection failures.
func IsRetryable(err error) bool {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Retryable
	}
	return false
}

func retryableStatus(code int) bool {
	return code == 429 || code == 408 || code >= 500
}
