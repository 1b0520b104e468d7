// Package config builds the immutable process-wide configuration from
// environment variables. It is constructed once at startup and passed into
// each component; nothing reads the environment after Load returns.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	VectorBackendQdrant   = "qdrant"
	VectorBackendPgvector = "pgvector"
)

type EmbeddingConfig struct {
	Provider  string
	Model     string
	Dimension int
}

type LLMConfig struct {
	Provider string
	Model    string
	Timeout  time.Duration
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

type ChunkConfig struct {
	// TargetTokens is the budget a chunk is filled toward; OverlapTokens is
	// carried across a split so cross-references survive the boundary.
	TargetTokens  int
	MaxTokens     int
	OverlapTokens int
}

type SearchConfig struct {
	LexicalWeight  float64
	VectorWeight   float64
	FuzzyThreshold float64
	TopK           int
}

type Config struct {
	PostgresDSN string

	VectorBackend string
	Qdrant        QdrantConfig

	Embeddings EmbeddingConfig
	LLM        LLMConfig
	Chunks     ChunkConfig
	Search     SearchConfig

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	VersionTag   string
	BatchSize    int
	Concurrency  int
	EmbedRate    float64
	MaxRetries   int
	StoreTimeout time.Duration

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("postgres_dsn", "postgres://localhost:5432/manpage_rag?sslmode=disable")
	v.SetDefault("vector_backend", VectorBackendQdrant)
	v.SetDefault("qdrant_url", "http://localhost:6333")
	v.SetDefault("qdrant_collection", "manpages")
	v.SetDefault("qdrant_timeout", "15s")
	v.SetDefault("embedding_provider", ProviderOpenAI)
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("embedding_dimension", 1536)
	v.SetDefault("llm_provider", ProviderOpenAI)
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_timeout", "60s")
	v.SetDefault("ollama_host", "http://localhost:11434")
	v.SetDefault("chunk_target_tokens", 550)
	v.SetDefault("chunk_max_tokens", 700)
	v.SetDefault("chunk_overlap_tokens", 60)
	v.SetDefault("search_lexical_weight", 0.5)
	v.SetDefault("search_vector_weight", 0.5)
	v.SetDefault("search_fuzzy_threshold", 0.1)
	v.SetDefault("search_top_k", 5)
	v.SetDefault("version_tag", "6.9")
	v.SetDefault("batch_size", 1000)
	v.SetDefault("concurrency", 4)
	v.SetDefault("embed_rate", 8)
	v.SetDefault("max_retries", 3)
	v.SetDefault("store_timeout", "30s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	cfg := Config{
		PostgresDSN:   v.GetString("postgres_dsn"),
		VectorBackend: v.GetString("vector_backend"),
		Qdrant: QdrantConfig{
			URL:        v.GetString("qdrant_url"),
			APIKey:     v.GetString("qdrant_api_key"),
			Collection: v.GetString("qdrant_collection"),
			Timeout:    v.GetDuration("qdrant_timeout"),
		},
		Embeddings: EmbeddingConfig{
			Provider:  v.GetString("embedding_provider"),
			Model:     v.GetString("embedding_model"),
			Dimension: v.GetInt("embedding_dimension"),
		},
		LLM: LLMConfig{
			Provider: v.GetString("llm_provider"),
			Model:    v.GetString("llm_model"),
			Timeout:  v.GetDuration("llm_timeout"),
		},
		Chunks: ChunkConfig{
			TargetTokens:  v.GetInt("chunk_target_tokens"),
			MaxTokens:     v.GetInt("chunk_max_tokens"),
			OverlapTokens: v.GetInt("chunk_overlap_tokens"),
		},
		Search: SearchConfig{
			LexicalWeight:  v.GetFloat64("search_lexical_weight"),
			VectorWeight:   v.GetFloat64("search_vector_weight"),
			FuzzyThreshold: v.GetFloat64("search_fuzzy_threshold"),
			TopK:           v.GetInt("search_top_k"),
		},
		OllamaHost:    v.GetString("ollama_host"),
		OpenAIAPIKey:  v.GetString("openai_api_key"),
		OpenAIBaseURL: v.GetString("openai_base_url"),
		VersionTag:    v.GetString("version_tag"),
		BatchSize:     v.GetInt("batch_size"),
		Concurrency:   v.GetInt("concurrency"),
		EmbedRate:     v.GetFloat64("embed_rate"),
		MaxRetries:    v.GetInt("max_retries"),
		StoreTimeout:  v.GetDuration("store_timeout"),
		LogLevel:      v.GetString("log_level"),
		LogFormat:     v.GetString("log_format"),
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.Chunks.TargetTokens <= 0 || c.Chunks.MaxTokens < c.Chunks.TargetTokens {
		return fmt.Errorf("invalid chunk token budget: target=%d max=%d", c.Chunks.TargetTokens, c.Chunks.MaxTokens)
	}
	if c.Chunks.OverlapTokens < 0 || c.Chunks.OverlapTokens >= c.Chunks.TargetTokens {
		return fmt.Errorf("chunk overlap %d must be non-negative and smaller than the target budget", c.Chunks.OverlapTokens)
	}
	if c.Search.LexicalWeight < 0 || c.Search.VectorWeight < 0 || c.Search.LexicalWeight+c.Search.VectorWeight == 0 {
		return fmt.Errorf("combined search weights must be non-negative and not both zero")
	}
	switch c.VectorBackend {
	case VectorBackendQdrant, VectorBackendPgvector:
	default:
		return fmt.Errorf("unknown vector backend: %s", c.VectorBackend)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	return nil
}
