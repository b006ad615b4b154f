package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"chunked-embedder/internal/config"
	"chunked-embedder/internal/embedding"
	"chunked-embedder/internal/models"
)

// Store persists chunk embeddings and searches them by similarity
type Store interface {
	Save(ctx context.Context, source string, pageNumber int, results []models.ChunkResult) (int, error)
	Search(ctx context.Context, query models.Embedding, limit int) ([]models.SearchResult, error)
}

type RAG struct {
	store Store
	embed embedding.EmbeddingFunc
	cfg   *config.Config
}

// IndexStats counts the chunks of one indexing run
type IndexStats struct {
	Pages  int
	Chunks int
	Stored int
	Failed int
}

func NewRAG(store Store, embed embedding.EmbeddingFunc, cfg *config.Config) *RAG {
	return &RAG{store: store, embed: embed, cfg: cfg}
}

func (r *RAG) embeddingOptions() []embedding.Option {
	return []embedding.Option{
		embedding.WithConcurrency(r.cfg.Embedding.Concurrency),
	}
}

// Index embeds every page of a document and stores its chunks. A page
// whose only chunk fails to embed aborts the run.
func (r *RAG) Index(ctx context.Context, source string, pages []models.Page) (IndexStats, error) {
	var stats IndexStats
	for _, page := range pages {
		results, err := embedding.CreateChunkEmbeddings(ctx, page.Content, r.cfg.ModelName(), r.cfg.Embedding.OverlapSize, r.embed, r.embeddingOptions()...)
		if err != nil {
			return stats, fmt.Errorf("failed to embed page %d of %s: %w", page.Number, source, err)
		}
		stored, err := r.store.Save(ctx, source, page.Number, results)
		if err != nil {
			return stats, fmt.Errorf("failed to store page %d of %s: %w", page.Number, source, err)
		}

		stats.Pages++
		stats.Chunks += len(results)
		stats.Stored += stored
		for _, res := range results {
			if res.Failed() {
				stats.Failed++
			}
		}
		log.Debug().
			Str("source", source).
			Int("page", page.Number).
			Int("chunks", len(results)).
			Int("stored", stored).
			Msg("Indexed page")
	}
	return stats, nil
}

// Query embeds the query, searches with the embedding of each of its
// chunks and keeps the best similarity per stored chunk.
func (r *RAG) Query(ctx context.Context, query string) ([]models.SearchResult, error) {
	results, err := embedding.CreateChunkEmbeddings(ctx, query, r.cfg.ModelName(), r.cfg.Embedding.OverlapSize, r.embed, r.embeddingOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	topK := r.cfg.Embedding.TopK
	best := make(map[string]models.SearchResult)
	searched := 0
	for _, res := range results {
		if res.Failed() {
			continue
		}
		matches, err := r.store.Search(ctx, res.Embedding, topK)
		if err != nil {
			return nil, err
		}
		searched++
		for _, m := range matches {
			if prev, ok := best[m.ID]; !ok || m.Similarity > prev.Similarity {
				best[m.ID] = m
			}
		}
	}
	if searched == 0 {
		return nil, fmt.Errorf("no chunk of the query could be embedded")
	}

	merged := make([]models.SearchResult, 0, len(best))
	for _, m := range best {
		merged = append(merged, m)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Similarity != merged[j].Similarity {
			return merged[i].Similarity > merged[j].Similarity
		}
		return merged[i].ID < merged[j].ID
	})
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged, nil
}
