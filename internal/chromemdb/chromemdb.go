package chromemdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"chunked-embedder/internal/config"
	"chunked-embedder/internal/helper"
	"chunked-embedder/internal/models"
)

// metadata keys stored with every chunk
const (
	metaSource     = "source"
	metaPageNumber = "page_number"
	metaChunkIndex = "chunk_index"
)

// VectorDBManager encapsulates the chromem-go database operations
type VectorDBManager struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	compress      bool
	encryptionKey string
	filePath      string
}

// NewVectorDBManager initializes a new vector database manager and opens
// its collection
func NewVectorDBManager(cfg *config.ChromemConfig) (*VectorDBManager, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		if err := helper.CreateFolder(cfg.Path); err != nil {
			return nil, err
		}
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
	}

	m := &VectorDBManager{
		db:            db,
		dbPath:        cfg.Path,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		filePath:      filepath.Join(cfg.Path, cfg.Collection+".chromem"),
	}
	if _, err := m.GetOrCreateCollection(cfg.Collection); err != nil {
		return nil, err
	}
	return m, nil
}

// create or read collection
func (m *VectorDBManager) GetOrCreateCollection(collectionName string) (*chromem.Collection, error) {
	// documents always carry their embedding, so no embedding func is needed
	c, err := m.db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	m.collection = c
	return c, nil
}

// Count returns the number of stored chunks
func (m *VectorDBManager) Count() int {
	return m.collection.Count()
}

// Save stores the chunks that were embedded successfully and returns how
// many were written. Failed chunks and empty embeddings are skipped.
func (m *VectorDBManager) Save(ctx context.Context, source string, pageNumber int, results []models.ChunkResult) (int, error) {
	docs := make([]chromem.Document, 0, len(results))
	for _, r := range results {
		if r.Failed() || len(r.Embedding) == 0 {
			continue
		}
		docs = append(docs, chromem.Document{
			ID:      helper.ChunkID(source, pageNumber, r.Index),
			Content: r.Text,
			Metadata: map[string]string{
				metaSource:     source,
				metaPageNumber: strconv.Itoa(pageNumber),
				metaChunkIndex: strconv.Itoa(r.Index),
			},
			Embedding: r.Embedding,
		})
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := m.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return 0, fmt.Errorf("failed to add documents: %w", err)
	}
	return len(docs), nil
}

// Search returns up to limit chunks most similar to the query embedding
func (m *VectorDBManager) Search(ctx context.Context, query models.Embedding, limit int) ([]models.SearchResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	// chromem rejects a result count above the collection size
	limit = min(limit, m.collection.Count())
	if limit <= 0 {
		return nil, nil
	}

	results, err := m.collection.QueryEmbedding(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		page, _ := strconv.Atoi(r.Metadata[metaPageNumber])
		index, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
		out = append(out, models.SearchResult{
			ID:         r.ID,
			Source:     r.Metadata[metaSource],
			PageNumber: page,
			ChunkIndex: index,
			Content:    r.Content,
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// delete collection
func (m *VectorDBManager) DeleteCollection() error {
	name := m.collection.Name
	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	_, err := m.GetOrCreateCollection(name)
	return err
}

// export to file
func (m *VectorDBManager) Export(ctx context.Context) error {
	if m.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	if m.dbPath == "" {
		return fmt.Errorf("db path is required")
	}

	log.Debug().
		Str("collection", m.collection.Name).
		Str("file", m.filePath).
		Bool("compress", m.compress).
		Msg("Exporting collection")
	if err := m.db.ExportToFile(m.filePath, m.compress, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	return nil
}

// HasExport reports whether an exported collection file exists
func (m *VectorDBManager) HasExport() bool {
	_, err := os.Stat(m.filePath)
	return err == nil
}

// import from file
func (m *VectorDBManager) Import(ctx context.Context) error {
	if err := m.db.ImportFromFile(m.filePath, m.encryptionKey, m.collection.Name); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	_, err := m.GetOrCreateCollection(m.collection.Name)
	return err
}
