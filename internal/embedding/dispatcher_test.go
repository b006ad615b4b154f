package embedding

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chunked-embedder/internal/models"
)

var errSimulated = errors.New("simulated error")

// fakeEmbedding encodes the first token index and the token count of a
// chunk built from words()
func fakeEmbedding(text string) models.Embedding {
	fields := strings.Fields(text)
	first, _ := strconv.Atoi(strings.TrimPrefix(fields[0], "w"))
	return models.Embedding{float32(first), float32(len(fields))}
}

type recorder struct {
	mu    sync.Mutex
	texts []string
	fail  func(text string) bool
}

func (r *recorder) embed(ctx context.Context, text string) (models.Embedding, error) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	if r.fail != nil && r.fail(text) {
		return nil, errSimulated
	}
	return fakeEmbedding(text), nil
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

func TestCreateEmbeddings_SingleChunk(t *testing.T) {
	rec := new(recorder)
	content := "small content"

	embeddings, err := CreateEmbeddings(context.Background(), content, models.TextEmbeddingAda002, 50, rec.embed)
	require.NoError(t, err)

	require.Equal(t, 1, rec.calls())
	assert.Equal(t, content, rec.texts[0])
	require.Len(t, embeddings, 1)
	assert.Equal(t, fakeEmbedding(content), embeddings[0])
}

func TestCreateEmbeddings_TwoThousandTokensFitInOneChunk(t *testing.T) {
	rec := new(recorder)
	content := words(2000)

	embeddings, err := CreateEmbeddings(context.Background(), content, models.TextEmbedding3Small, 50, rec.embed)
	require.NoError(t, err)

	require.Equal(t, 1, rec.calls())
	assert.Equal(t, content, rec.texts[0])
	assert.Len(t, embeddings, 1)
}

func TestCreateEmbeddings_SingleChunkPassesOriginalWhitespace(t *testing.T) {
	rec := new(recorder)
	content := "w0\n\n  w1\tw2 "

	_, err := CreateEmbeddings(context.Background(), content, models.TextEmbedding3Small, 0, rec.embed)
	require.NoError(t, err)
	require.Equal(t, []string{content}, rec.texts)
}

func TestCreateEmbeddings_MultipleChunks(t *testing.T) {
	rec := new(recorder)

	embeddings, err := CreateEmbeddings(context.Background(), words(20000), models.TextEmbedding3Small, 50, rec.embed)
	require.NoError(t, err)

	// ceil((20000-8191)/(8191-50)) + 1
	require.Equal(t, 3, rec.calls())
	require.Len(t, embeddings, 3)
	assert.Equal(t, models.Embedding{0, 8191}, embeddings[0])
	assert.Equal(t, models.Embedding{8141, 8191}, embeddings[1])
	assert.Equal(t, models.Embedding{16282, 3718}, embeddings[2])
}

func TestCreateEmbeddings_ResultOrderIgnoresCompletionOrder(t *testing.T) {
	var (
		mu        sync.Mutex
		completed []int
		others    atomic.Int32
	)
	release := make(chan struct{})

	fn := func(ctx context.Context, text string) (models.Embedding, error) {
		e := fakeEmbedding(text)
		if e[0] == 0 {
			// the first chunk finishes only after the two others
			select {
			case <-release:
			case <-time.After(5 * time.Second):
				return nil, errors.New("other chunks never completed")
			}
		}
		mu.Lock()
		completed = append(completed, int(e[0]))
		mu.Unlock()
		if e[0] != 0 && others.Add(1) == 2 {
			close(release)
		}
		return e, nil
	}

	embeddings, err := CreateEmbeddings(context.Background(), words(20000), models.TextEmbedding3Large, 50, fn)
	require.NoError(t, err)

	require.Len(t, completed, 3)
	assert.Equal(t, 0, completed[2])
	assert.Equal(t, []models.Embedding{{0, 8191}, {8141, 8191}, {16282, 3718}}, embeddings)
}

func TestCreateEmbeddings_FailedChunkIsIsolated(t *testing.T) {
	rec := &recorder{fail: func(text string) bool {
		return strings.HasPrefix(text, "w8141 ")
	}}

	embeddings, err := CreateEmbeddings(context.Background(), words(20000), models.TextEmbedding3Large, 50, rec.embed)
	require.NoError(t, err)

	require.Equal(t, 3, rec.calls())
	require.Len(t, embeddings, 3)
	assert.Equal(t, models.Embedding{0, 8191}, embeddings[0])
	assert.NotNil(t, embeddings[1])
	assert.Empty(t, embeddings[1])
	assert.Equal(t, models.Embedding{16282, 3718}, embeddings[2])
}

func TestCreateChunkEmbeddings_FailedChunkCarriesError(t *testing.T) {
	rec := &recorder{fail: func(text string) bool {
		return strings.HasPrefix(text, "w8141 ")
	}}

	results, err := CreateChunkEmbeddings(context.Background(), words(20000), models.TextEmbedding3Small, 50, rec.embed)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
	}
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.ErrorIs(t, results[1].Err, errSimulated)
	assert.Nil(t, results[1].Embedding)
	assert.Equal(t, 8141, results[1].Start)
	assert.Equal(t, 16332, results[1].End)
	assert.False(t, results[2].Failed())
}

func TestCreateChunkEmbeddings_EmptyVectorIsNotAFailure(t *testing.T) {
	fn := func(ctx context.Context, text string) (models.Embedding, error) {
		return models.Embedding{}, nil
	}

	results, err := CreateChunkEmbeddings(context.Background(), words(9000), models.TextEmbedding3Small, 0, fn)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Failed())
		assert.Empty(t, r.Embedding)
	}
}

func TestCreateEmbeddings_AllChunksFail(t *testing.T) {
	rec := &recorder{fail: func(string) bool { return true }}

	embeddings, err := CreateEmbeddings(context.Background(), words(17000), models.TextEmbedding3Small, 10, rec.embed)
	require.NoError(t, err)
	require.Len(t, embeddings, 3)
	for _, e := range embeddings {
		assert.Empty(t, e)
	}
}

func TestCreateEmbeddings_SingleChunkFailurePropagates(t *testing.T) {
	rec := &recorder{fail: func(string) bool { return true }}

	embeddings, err := CreateEmbeddings(context.Background(), "small content", models.TextEmbeddingAda002, 50, rec.embed)
	require.ErrorIs(t, err, errSimulated)
	assert.Nil(t, embeddings)
	assert.Equal(t, 1, rec.calls())
}

func TestCreateEmbeddings_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		model   models.ModelName
		overlap int
		fn      bool
		wantErr error
	}{
		{name: "unknown model", model: "text-embedding-unknown", overlap: 50, fn: true, wantErr: models.ErrUnknownModel},
		{name: "overlap equals limit", model: models.TextEmbedding3Small, overlap: 8191, fn: true, wantErr: ErrInvalidOverlap},
		{name: "negative overlap", model: models.TextEmbedding3Small, overlap: -1, fn: true, wantErr: ErrInvalidOverlap},
		{name: "nil embedding func", model: models.TextEmbedding3Small, overlap: 50, fn: false, wantErr: ErrNilEmbeddingFunc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := new(recorder)
			var fn EmbeddingFunc
			if tt.fn {
				fn = rec.embed
			}
			embeddings, err := CreateEmbeddings(context.Background(), words(20000), tt.model, tt.overlap, fn)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, embeddings)
			assert.Zero(t, rec.calls())
		})
	}
}

func TestCreateEmbeddings_WithConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	fn := func(ctx context.Context, text string) (models.Embedding, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return fakeEmbedding(text), nil
	}

	embeddings, err := CreateEmbeddings(context.Background(), words(40000), models.TextEmbedding3Small, 0, fn, WithConcurrency(1))
	require.NoError(t, err)
	require.Len(t, embeddings, 5)
	assert.Equal(t, int32(1), peak.Load())
	for i, e := range embeddings {
		assert.Equal(t, float32(i*8191), e[0])
	}
}

func TestCreateEmbeddings_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	rec := &recorder{fail: func(text string) bool {
		return strings.HasPrefix(text, "w0 ")
	}}

	_, err := CreateEmbeddings(context.Background(), words(9000), models.TextEmbedding3Small, 0, rec.embed, WithLogger(logger))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Error processing chunk")
	assert.Contains(t, out, errSimulated.Error())
	assert.Contains(t, out, `"chunk":0`)
}

type ctxKey struct{}

func TestCreateEmbeddings_PassesContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "request-1")
	var seen atomic.Int32
	fn := func(ctx context.Context, text string) (models.Embedding, error) {
		if ctx.Value(ctxKey{}) == "request-1" {
			seen.Add(1)
		}
		return fakeEmbedding(text), nil
	}

	_, err := CreateEmbeddings(ctx, words(9000), models.TextEmbedding3Small, 0, fn)
	require.NoError(t, err)
	assert.Equal(t, int32(2), seen.Load())
}
