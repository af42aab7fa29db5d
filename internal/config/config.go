// Package config loads and validates the figurechat configuration.
//
// Configuration is resolved in three layers, later layers winning:
//  1. Built-in defaults (DefaultConfig)
//  2. YAML config file (figurechat.yaml)
//  3. Environment variables (MAX_CHUNK_CHARS, EMBEDDING_SOURCE, ...)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "github.com/figurechat/figurechat/internal/errors"
)

// Duration decodes from yaml as a Go duration string ("30s", "24h") or as
// integer nanoseconds.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %v", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Embedding source selectors.
const (
	EmbeddingSourceLocal    = "local"
	EmbeddingSourceExternal = "external"
)

// Chunking bounds. Values outside the clamp range are clamped; a configured
// chunk size below the hard floor aborts startup.
const (
	MinChunkChars      = 500
	MaxChunkChars      = 3000
	HardMinChunkChars  = 100
	MaxOverlapPercent  = 50
	DefaultChunkChars  = 1000
	DefaultOverlapPct  = 20
)

// Config is the complete figurechat configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Server     ServerConfig     `yaml:"server"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	LLM        LLMConfig        `yaml:"llm"`
	Paths      PathsConfig      `yaml:"paths"`
	Sessions   SessionsConfig   `yaml:"sessions"`
	Logging    LoggingConfig    `yaml:"logging"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ChunkingConfig configures the document chunker.
type ChunkingConfig struct {
	// MaxChunkChars is the chunk size target in characters (clamped 500-3000).
	MaxChunkChars int `yaml:"max_chunk_chars"`
	// OverlapPercent is the chunk overlap percentage (clamped 0-50).
	OverlapPercent int `yaml:"overlap_percent"`
}

// SearchConfig configures the hybrid search pipeline.
type SearchConfig struct {
	// MinCosineSimilarity filters dense results and fused results (0-1).
	MinCosineSimilarity float64 `yaml:"min_cosine_similarity"`
	// SearchMultiplier widens each retrieval list: N = n_results * multiplier.
	SearchMultiplier int `yaml:"search_multiplier"`
	// MaxSearchResults caps the widened retrieval list size.
	MaxSearchResults int `yaml:"max_search_results"`
	// RRFConstant is the RRF smoothing parameter k (default: 60).
	RRFConstant int `yaml:"rrf_k"`
	// DefaultNResults is the result count when the caller does not specify one.
	DefaultNResults int `yaml:"default_n_results"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Source selects the provider: "local" (Ollama) or "external"
	// (OpenAI-shape /embeddings endpoint).
	Source string `yaml:"source"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Endpoint is the provider base URL. For local this is the Ollama host.
	Endpoint string `yaml:"endpoint"`
	// APIKey authenticates external requests. Required when Source=external.
	APIKey string `yaml:"api_key"`
	// Dimensions is the embedding dimension; 0 auto-detects from the provider.
	Dimensions int `yaml:"dimensions"`
	// Timeout bounds each embedding HTTP call.
	Timeout Duration `yaml:"timeout"`
	// CacheSize is the query-embedding LRU size.
	CacheSize int `yaml:"cache_size"`
}

// LLMConfig configures the chat completion collaborator.
type LLMConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Model    string   `yaml:"model"`
	APIKey   string   `yaml:"api_key"`
	Timeout  Duration `yaml:"timeout"`
	// RewriteQueries enables LLM retrieval-query rewriting before search.
	RewriteQueries bool `yaml:"rewrite_queries"`
}

// PathsConfig configures on-disk locations. Relative paths are resolved
// against DataDir.
type PathsConfig struct {
	Figures       string `yaml:"figures"`
	VectorStore   string `yaml:"vector_store"`
	BM25Indexes   string `yaml:"bm25_indexes"`
	Stopwords     string `yaml:"stopwords"`
	Conversations string `yaml:"conversations"`
	FigureImages  string `yaml:"figure_images"`
}

// SessionsConfig configures conversation session management.
type SessionsConfig struct {
	// InactivityTimeout is how long before an idle session is reaped.
	InactivityTimeout Duration `yaml:"inactivity_timeout"`
	// SweepInterval is how often the reaper runs.
	SweepInterval Duration `yaml:"sweep_interval"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level    string `yaml:"level"`
	FilePath string `yaml:"file_path"`
}

// IngestConfig configures upload limits.
type IngestConfig struct {
	// MaxFileBytes is the per-file upload limit (default: 50 MB).
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	// MaxRequestBytes is the per-request total limit (default: 500 MB).
	MaxRequestBytes int64 `yaml:"max_request_bytes"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Server: ServerConfig{
			Addr: ":8080",
		},
		Chunking: ChunkingConfig{
			MaxChunkChars:  DefaultChunkChars,
			OverlapPercent: DefaultOverlapPct,
		},
		Search: SearchConfig{
			MinCosineSimilarity: 0.05,
			SearchMultiplier:    3,
			MaxSearchResults:    30,
			RRFConstant:         60,
			DefaultNResults:     5,
		},
		Embeddings: EmbeddingsConfig{
			Source:    EmbeddingSourceLocal,
			Model:     "qwen3-embedding:0.6b",
			Endpoint:  "http://localhost:11434",
			Timeout:   Duration(30 * time.Second),
			CacheSize: 1000,
		},
		LLM: LLMConfig{
			Endpoint: "http://localhost:11434/v1",
			Model:    "qwen3:4b",
			Timeout:  Duration(30 * time.Second),
		},
		Paths: PathsConfig{
			Figures:       "figures",
			VectorStore:   "vector_store",
			BM25Indexes:   "bm25_indexes",
			Stopwords:     "stopwords",
			Conversations: "conversations",
			FigureImages:  "figure_images",
		},
		Sessions: SessionsConfig{
			InactivityTimeout: Duration(24 * time.Hour),
			SweepInterval:     Duration(time.Hour),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Ingest: IngestConfig{
			MaxFileBytes:    50 * 1024 * 1024,
			MaxRequestBytes: 500 * 1024 * 1024,
		},
	}
}

// Load reads configuration from the given YAML path (if it exists), applies
// environment overrides, validates, and resolves paths.
// An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults + env only.
		case err != nil:
			return nil, ferrors.Wrap(ferrors.ErrCodeConfigNotFound, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, ferrors.Config(fmt.Sprintf("parse %s: %v", path, err), err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.resolvePaths()
	return cfg, nil
}

// applyEnv applies the enumerated environment overrides.
func (c *Config) applyEnv() {
	envInt("MAX_CHUNK_CHARS", &c.Chunking.MaxChunkChars)
	envInt("OVERLAP_PERCENT", &c.Chunking.OverlapPercent)
	envFloat("MIN_COSINE_SIMILARITY", &c.Search.MinCosineSimilarity)
	envInt("SEARCH_MULTIPLIER", &c.Search.SearchMultiplier)
	envInt("MAX_SEARCH_RESULTS", &c.Search.MaxSearchResults)
	envInt("RRF_K", &c.Search.RRFConstant)
	envString("EMBEDDING_SOURCE", &c.Embeddings.Source)
	envString("EMBEDDING_MODEL", &c.Embeddings.Model)
	envString("EMBEDDING_ENDPOINT", &c.Embeddings.Endpoint)
	envString("EMBEDDING_API_KEY", &c.Embeddings.APIKey)
	envString("LLM_ENDPOINT", &c.LLM.Endpoint)
	envString("LLM_MODEL", &c.LLM.Model)
	envString("LLM_API_KEY", &c.LLM.APIKey)
	envString("STOPWORDS_DIR", &c.Paths.Stopwords)
	envString("FIGURES_DIR", &c.Paths.Figures)
	envString("VECTOR_STORE_DIR", &c.Paths.VectorStore)
	envString("FIGURECHAT_DATA_DIR", &c.DataDir)
	envString("FIGURECHAT_ADDR", &c.Server.Addr)
	envString("FIGURECHAT_LOG_LEVEL", &c.Logging.Level)
}

// Validate checks fatal startup conditions and clamps tunable ranges.
// Invalid EMBEDDING_SOURCE, a missing API key for the external source, and a
// chunk size below the hard floor abort startup.
func (c *Config) Validate() error {
	switch c.Embeddings.Source {
	case EmbeddingSourceLocal, EmbeddingSourceExternal:
	default:
		return ferrors.Config(fmt.Sprintf("invalid embedding source %q (expected %q or %q)",
			c.Embeddings.Source, EmbeddingSourceLocal, EmbeddingSourceExternal), nil)
	}

	if c.Embeddings.Source == EmbeddingSourceExternal {
		if c.Embeddings.APIKey == "" {
			return ferrors.Config("embeddings.api_key is required when source is external", nil)
		}
		if c.Embeddings.Endpoint == "" {
			return ferrors.Config("embeddings.endpoint is required when source is external", nil)
		}
	}

	if c.Chunking.MaxChunkChars < HardMinChunkChars {
		return ferrors.Config(fmt.Sprintf("max_chunk_chars %d below minimum %d",
			c.Chunking.MaxChunkChars, HardMinChunkChars), nil)
	}

	// Clamp tunables to their documented ranges.
	if c.Chunking.MaxChunkChars < MinChunkChars {
		c.Chunking.MaxChunkChars = MinChunkChars
	}
	if c.Chunking.MaxChunkChars > MaxChunkChars {
		c.Chunking.MaxChunkChars = MaxChunkChars
	}
	if c.Chunking.OverlapPercent < 0 {
		c.Chunking.OverlapPercent = 0
	}
	if c.Chunking.OverlapPercent > MaxOverlapPercent {
		c.Chunking.OverlapPercent = MaxOverlapPercent
	}
	if c.Search.MinCosineSimilarity < 0 {
		c.Search.MinCosineSimilarity = 0
	}
	if c.Search.MinCosineSimilarity > 1 {
		c.Search.MinCosineSimilarity = 1
	}
	if c.Search.SearchMultiplier <= 0 {
		c.Search.SearchMultiplier = 3
	}
	if c.Search.MaxSearchResults <= 0 {
		c.Search.MaxSearchResults = 30
	}
	if c.Search.RRFConstant <= 0 {
		c.Search.RRFConstant = 60
	}
	if c.Search.DefaultNResults <= 0 {
		c.Search.DefaultNResults = 5
	}

	return nil
}

// resolvePaths resolves relative store paths against DataDir.
func (c *Config) resolvePaths() {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.DataDir, *p)
		}
	}
	resolve(&c.Paths.Figures)
	resolve(&c.Paths.VectorStore)
	resolve(&c.Paths.BM25Indexes)
	resolve(&c.Paths.Stopwords)
	resolve(&c.Paths.Conversations)
	resolve(&c.Paths.FigureImages)
	if c.Logging.FilePath != "" && !filepath.IsAbs(c.Logging.FilePath) {
		c.Logging.FilePath = filepath.Join(c.DataDir, c.Logging.FilePath)
	}
}

// LockPath returns the path of the process lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "figurechat.lock")
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(name string, dst *int) {
	if v, ok := os.LookupEnv(name); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v, ok := os.LookupEnv(name); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = f
		}
	}
}
