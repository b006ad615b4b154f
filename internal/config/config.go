package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chunked-embedder/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	StoreChromem  = "chromem"
	StorePostgres = "postgres"

	DriverPgdriver = "pgdriver"
	DriverPQ       = "pq"
)

const (
	defaultModelName  = models.TextEmbedding3Small
	defaultTopK       = 5
	defaultChromemDir = "./chromemdb"
	defaultCollection = "chunk_embeddings"
	defaultLogLevel   = "info"
)

type Config struct {
	EmbedLLM  LLMConfig       `yaml:"embed_llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Store     StoreConfig     `yaml:"store"`
	Log       LogConfig       `yaml:"log"`
}

// LLMConfig describes how to reach the embedding provider.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
}

// EmbeddingConfig holds the chunking parameters. ModelName selects the
// token limit, OverlapSize must stay below it.
type EmbeddingConfig struct {
	ModelName   string `yaml:"model_name"`
	OverlapSize int    `yaml:"overlap_size"`
	Concurrency int    `yaml:"concurrency"`
	TopK        int    `yaml:"top_k"`
}

type StoreConfig struct {
	Type     string         `yaml:"type"`
	Chromem  ChromemConfig  `yaml:"chromem"`
	Database DatabaseConfig `yaml:"database"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Driver   string `yaml:"driver"`
	Debug    bool   `yaml:"debug"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document, fills in defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every empty field that has a sensible default.
func (c *Config) SetDefaults() {
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = ProviderOpenAI
	}
	if c.Embedding.ModelName == "" {
		c.Embedding.ModelName = string(defaultModelName)
	}
	if c.EmbedLLM.Model == "" {
		c.EmbedLLM.Model = c.Embedding.ModelName
	}
	if c.Embedding.TopK == 0 {
		c.Embedding.TopK = defaultTopK
	}
	if c.Store.Type == "" {
		c.Store.Type = StoreChromem
	}
	if c.Store.Chromem.Path == "" {
		c.Store.Chromem.Path = defaultChromemDir
	}
	if c.Store.Chromem.Collection == "" {
		c.Store.Chromem.Collection = defaultCollection
	}
	if c.Store.Database.Driver == "" {
		c.Store.Database.Driver = DriverPgdriver
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

func (c *Config) Validate() error {
	switch c.EmbedLLM.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.EmbedLLM.Provider)
	}

	limit, err := models.TokenLimit(c.ModelName())
	if err != nil {
		return err
	}
	if c.Embedding.OverlapSize < 0 || c.Embedding.OverlapSize >= limit {
		return fmt.Errorf("overlap_size must be in [0, %d), got %d", limit, c.Embedding.OverlapSize)
	}
	if c.Embedding.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", c.Embedding.Concurrency)
	}
	if c.Embedding.TopK < 0 {
		return fmt.Errorf("top_k must not be negative, got %d", c.Embedding.TopK)
	}

	switch c.Store.Type {
	case StoreChromem:
	case StorePostgres:
		if c.Store.Database.DSN == "" {
			return fmt.Errorf("store.database.dsn is required for the %s store", StorePostgres)
		}
		if d := c.Store.Database.Driver; d != DriverPgdriver && d != DriverPQ {
			return fmt.Errorf("unsupported database driver: %s", d)
		}
	default:
		return fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}
	return nil
}

func (c *Config) ModelName() models.ModelName {
	return models.ModelName(c.Embedding.ModelName)
}
