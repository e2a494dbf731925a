package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viant/sqlite-rag/vector"
)

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(0)
	assert.Equal(t, DefaultHashDimension, e.Dimension())

	a, err := e.Embed(ctx, "The sky is blue.")
	require.NoError(t, err)
	again, err := e.Embed(ctx, "the SKY is blue")
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.InDelta(t, 1.0, vector.Magnitude(a), 1e-6)

	b, err := e.Embed(ctx, "Grass is green.")
	require.NoError(t, err)
	q, err := e.Embed(ctx, "What color is the sky?")
	require.NoError(t, err)
	assert.Greater(t, vector.Relevance(q, a), vector.Relevance(q, b))

	zero, err := e.Embed(ctx, "?!")
	require.NoError(t, err)
	assert.Equal(t, 0.0, vector.Magnitude(zero))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"what", "color", "is", "the", "sky"}, Tokenize("What color is the sky?"))
	assert.Empty(t, Tokenize("  ... "))
}
