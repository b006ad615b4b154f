package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"chunked-embedder/internal/chromemdb"
	"chunked-embedder/internal/config"
	"chunked-embedder/internal/db"
	"chunked-embedder/internal/embedding"
	"chunked-embedder/internal/helper"
	"chunked-embedder/internal/models"
	"chunked-embedder/internal/parser"
	"chunked-embedder/internal/rag"
)

const defaultConfigFilePath = "./configs/config.yaml"

type chunkPlan struct {
	Page   int `json:"page"`
	Chunk  int `json:"chunk"`
	Start  int `json:"start_token"`
	End    int `json:"end_token"`
	Length int `json:"text_length"`
}

func main() {
	configFilePath := flag.String("config", defaultConfigFilePath, "Path to the config file")
	filePath := flag.String("file", "", "Path to the document file to index")
	query := flag.String("query", "", "Query to search for")
	dryRun := flag.Bool("dry-run", false, "Print the chunk plan, do not embed or store")
	reset := flag.Bool("reset", false, "Drop stored chunks before indexing")
	flag.Parse()

	if *filePath != "" && *query != "" {
		log.Fatal().Msg("Please provide either a document file using the -file flag or a query using the -query flag, but not both")
	}
	if *filePath == "" && *query == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configFilePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
	}
	if err := helper.SetupLogger(cfg.Log.Level); err != nil {
		log.Fatal().Err(err).Msg("Error configuring logger")
	}
	log.Debug().Str("provider", cfg.EmbedLLM.Provider).Str("model", cfg.Embedding.ModelName).Str("store", cfg.Store.Type).Msg("Loaded config")

	ctx := context.Background()

	if *filePath != "" && *dryRun {
		planDocument(*filePath, cfg)
		return
	}

	store, closeStore := openStore(ctx, cfg, *reset)
	defer closeStore()

	embedder, err := embedding.NewEmbedder(&cfg.EmbedLLM)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing embedder")
	}
	r := rag.NewRAG(store, embedding.EmbeddingFuncFrom(embedder), cfg)

	if *filePath != "" {
		indexDocument(ctx, r, *filePath)
		return
	}
	searchContent(ctx, r, *query)
}

func planDocument(filePath string, cfg *config.Config) {
	pages, err := parser.ParseFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}
	limit, err := models.TokenLimit(cfg.ModelName())
	if err != nil {
		log.Fatal().Err(err).Msg("Error looking up token limit")
	}

	var plan []chunkPlan
	for _, page := range pages {
		chunks, err := embedding.SplitContent(page.Content, limit, cfg.Embedding.OverlapSize)
		if err != nil {
			log.Fatal().Err(err).Msg("Error planning chunks")
		}
		for _, c := range chunks {
			plan = append(plan, chunkPlan{
				Page:   page.Number,
				Chunk:  c.Index,
				Start:  c.Start,
				End:    c.End,
				Length: len(c.Text),
			})
		}
	}
	helper.PrettyPrint(plan)
}

func indexDocument(ctx context.Context, r *rag.RAG, filePath string) {
	pages, err := parser.ParseFile(filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Error parsing document")
	}

	stats, err := r.Index(ctx, filePath, pages)
	if err != nil {
		log.Fatal().Err(err).Msg("Error indexing document")
	}
	log.Info().
		Int("pages", stats.Pages).
		Int("chunks", stats.Chunks).
		Int("stored", stats.Stored).
		Int("failed", stats.Failed).
		Msgf("Indexed %s", filePath)
}

func searchContent(ctx context.Context, r *rag.RAG, query string) {
	results, err := r.Query(ctx, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)

	for i, res := range results {
		log.Info().Msgf("Match %d: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>", i+1)
		fmt.Printf("%s (page %d, chunk %d, similarity %.4f)\n%s\n\n", res.Source, res.PageNumber, res.ChunkIndex, res.Similarity, res.Content)
	}
}

// openStore returns the configured store and a function releasing it
func openStore(ctx context.Context, cfg *config.Config, reset bool) (rag.Store, func()) {
	switch cfg.Store.Type {
	case config.StorePostgres:
		sqldb, err := db.ConnectDB(&cfg.Store.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to database")
		}
		bunDB := db.NewDB(sqldb, cfg.Store.Database.Debug)
		if reset {
			if err := db.DropDocuments(ctx, bunDB); err != nil {
				log.Fatal().Err(err).Msg("Error clearing documents")
			}
		}
		if err := db.InitDB(ctx, bunDB); err != nil {
			log.Fatal().Err(err).Msg("Error initializing database")
		}
		store := db.NewStore(bunDB)
		return store, func() {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing database")
			}
		}
	default:
		manager, err := chromemdb.NewVectorDBManager(&cfg.Store.Chromem)
		if err != nil {
			log.Fatal().Err(err).Msg("Error creating vector database manager")
		}
		if cfg.Store.Chromem.InMemory && manager.HasExport() {
			if err := manager.Import(ctx); err != nil {
				log.Fatal().Err(err).Msg("Error importing collection")
			}
		}
		if reset {
			if err := manager.DeleteCollection(); err != nil {
				log.Fatal().Err(err).Msg("Error deleting collection")
			}
		}
		return manager, func() {
			if !cfg.Store.Chromem.InMemory || cfg.Store.Chromem.EncryptionKey == "" {
				return
			}
			if err := manager.Export(ctx); err != nil {
				log.Warn().Err(err).Msg("Error exporting collection")
			}
		}
	}
}
