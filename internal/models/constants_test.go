package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenLimit(t *testing.T) {
	for _, name := range []ModelName{TextEmbedding3Small, TextEmbedding3Large, TextEmbeddingAda002} {
		limit, err := TokenLimit(name)
		require.NoError(t, err, name)
		assert.Equal(t, 8191, limit, name)
	}

	_, err := TokenLimit("text-embedding-unknown")
	require.ErrorIs(t, err, ErrUnknownModel)
	assert.Contains(t, err.Error(), "text-embedding-unknown")
}

func TestModelNames(t *testing.T) {
	assert.Equal(t, []ModelName{TextEmbedding3Large, TextEmbedding3Small, TextEmbeddingAda002}, ModelNames())
}

func TestChunkResult(t *testing.T) {
	ok := ChunkResult{Chunk: Chunk{Start: 4, End: 10}, Embedding: Embedding{1}}
	assert.False(t, ok.Failed())
	assert.Equal(t, 6, ok.TokenCount())

	failed := ChunkResult{Err: assert.AnError}
	assert.True(t, failed.Failed())
}
