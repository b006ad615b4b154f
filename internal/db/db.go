package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"chunked-embedder/internal/config"
	"chunked-embedder/internal/helper"
	"chunked-embedder/internal/models"
)

// Document is one embedded chunk
type Document struct {
	bun.BaseModel  `bun:"table:chunk_embeddings,alias:ce"`
	ID             string `bun:"id,pk"`
	SourceFilename string `bun:"source_filename,notnull"`
	PageNumber     int    `bun:"page_number,notnull"`
	ChunkIndex     int    `bun:"chunk_index,notnull"`
	Content        string `bun:"content,notnull"`
	Embedding      Vector `bun:"embedding,notnull,type:vector"`
	// filled by SearchDocuments only
	Distance float64 `bun:"distance,scanonly"`
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens the database with bun's pgdriver, or with lib/pq when
// the driver is set to pq
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPQ:
		return sql.Open("postgres", cfg.DSN)
	case config.DriverPgdriver, "":
		opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
		if cfg.Password != "" {
			opts = append(opts, pgdriver.WithPassword(cfg.Password))
		}
		return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func InitDB(ctx context.Context, db *bun.DB) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

// DocumentsFromResults converts the successful chunk results of one page
func DocumentsFromResults(source string, pageNumber int, results []models.ChunkResult) []Document {
	docs := make([]Document, 0, len(results))
	for _, r := range results {
		if r.Failed() || len(r.Embedding) == 0 {
			continue
		}
		docs = append(docs, Document{
			ID:             helper.ChunkID(source, pageNumber, r.Index),
			SourceFilename: source,
			PageNumber:     pageNumber,
			ChunkIndex:     r.Index,
			Content:        r.Text,
			Embedding:      Vector(r.Embedding),
		})
	}
	return docs
}

// StoreDocuments upserts documents by ID
func StoreDocuments(ctx context.Context, db *bun.DB, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := db.NewInsert().
		Model(&docs).
		On("CONFLICT (id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Exec(ctx)
	return err
}

// SearchDocuments orders by cosine distance to the query embedding
func SearchDocuments(ctx context.Context, db *bun.DB, queryEmbedding Vector, limit int) ([]Document, error) {
	var docs []Document
	err := db.NewSelect().
		Model(&docs).
		Column("id", "source_filename", "page_number", "chunk_index", "content").
		ColumnExpr("embedding <=> ? AS distance", queryEmbedding).
		OrderExpr("embedding <=> ?", queryEmbedding).
		Limit(limit).
		Scan(ctx)
	return docs, err
}

// drop table chunk_embeddings
func DropDocuments(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().Model((*Document)(nil)).IfExists().Exec(ctx)
	return err
}

// Store adapts the table to the indexing and retrieval flow
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Save(ctx context.Context, source string, pageNumber int, results []models.ChunkResult) (int, error) {
	docs := DocumentsFromResults(source, pageNumber, results)
	if err := StoreDocuments(ctx, s.db, docs); err != nil {
		return 0, fmt.Errorf("failed to store documents: %w", err)
	}
	return len(docs), nil
}

func (s *Store) Search(ctx context.Context, query models.Embedding, limit int) ([]models.SearchResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	docs, err := SearchDocuments(ctx, s.db, Vector(query), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	out := make([]models.SearchResult, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.SearchResult{
			ID:         d.ID,
			Source:     d.SourceFilename,
			PageNumber: d.PageNumber,
			ChunkIndex: d.ChunkIndex,
			Content:    d.Content,
			Similarity: float32(1 - d.Distance),
		})
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
