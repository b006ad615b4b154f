package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"chunked-embedder/internal/models"
)

// EmbeddingFunc embeds a single chunk of text. It owns its own timeouts
// and retries.
type EmbeddingFunc func(ctx context.Context, text string) (models.Embedding, error)

var ErrNilEmbeddingFunc = errors.New("embedding function is nil")

type options struct {
	concurrency int
	logger      *zerolog.Logger
}

// Option configures CreateEmbeddings and CreateChunkEmbeddings.
type Option func(*options)

// WithConcurrency caps the number of chunks embedded at the same time.
// Zero or a negative value means no cap.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithLogger sets the logger used to report failed chunks. The global
// zerolog logger is used otherwise.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// CreateEmbeddings splits content into overlapping chunks sized for
// modelName and embeds each of them with fn. It returns one embedding per
// chunk in chunk order. When content spans several chunks a chunk that
// fails to embed is logged and yields an empty embedding at its position;
// when content fits in a single chunk the error of fn is returned.
func CreateEmbeddings(ctx context.Context, content string, modelName models.ModelName, overlapSize int, fn EmbeddingFunc, opts ...Option) ([]models.Embedding, error) {
	results, err := CreateChunkEmbeddings(ctx, content, modelName, overlapSize, fn, opts...)
	if err != nil {
		return nil, err
	}
	embeddings := make([]models.Embedding, len(results))
	for i, r := range results {
		if r.Failed() {
			embeddings[i] = models.Embedding{}
			continue
		}
		embeddings[i] = r.Embedding
	}
	return embeddings, nil
}

// CreateChunkEmbeddings behaves like CreateEmbeddings but reports every
// chunk with its own outcome, so a failed chunk is told apart from a
// provider returning an empty vector.
func CreateChunkEmbeddings(ctx context.Context, content string, modelName models.ModelName, overlapSize int, fn EmbeddingFunc, opts ...Option) ([]models.ChunkResult, error) {
	if fn == nil {
		return nil, ErrNilEmbeddingFunc
	}
	maxTokenSize, err := models.TokenLimit(modelName)
	if err != nil {
		return nil, err
	}
	chunks, err := SplitContent(content, maxTokenSize, overlapSize)
	if err != nil {
		return nil, err
	}

	o := options{logger: &log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	if len(chunks) == 1 {
		embedding, err := fn(ctx, chunks[0].Text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed content: %w", err)
		}
		return []models.ChunkResult{{Chunk: chunks[0], Embedding: embedding}}, nil
	}
	return EmbedChunks(ctx, chunks, fn, o.concurrency, o.logger), nil
}

// EmbedChunks embeds every chunk concurrently and waits for all of them.
// Failures are logged and recorded in the matching result, they never
// stop the other chunks.
func EmbedChunks(ctx context.Context, chunks []models.Chunk, fn EmbeddingFunc, concurrency int, logger *zerolog.Logger) []models.ChunkResult {
	if logger == nil {
		logger = &log.Logger
	}
	results := make([]models.ChunkResult, len(chunks))

	var g errgroup.Group
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			results[i].Chunk = chunk
			embedding, err := fn(ctx, chunk.Text)
			if err != nil {
				logger.Error().Err(err).
					Int("chunk", i).
					Int("start_token", chunk.Start).
					Int("end_token", chunk.End).
					Msg("Error processing chunk")
				results[i].Err = err
				return nil
			}
			results[i].Embedding = embedding
			return nil
		})
	}
	// goroutines never return an error, failures live in results
	_ = g.Wait()

	return results
}
