// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vector store backends.
const (
	VectorStoreMemory = "memory"
	VectorStoreQdrant = "qdrant"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheSQLite = "sqlite"
	CacheQdrant = "qdrant"
)

// Config is the full process configuration.
type Config struct {
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	LLMModel            string
	LLMFallbackModel    string
	EmbeddingModel      string
	EmbeddingDimensions int

	VectorStore      string
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string

	CacheBackend             string
	CacheSQLitePath          string
	CacheSimilarityThreshold float64
	CacheTTL                 time.Duration

	HybridEnabled     bool
	SafetyEnabled     bool
	ModerationEnabled bool
	ModerateOutput    bool
	MetadataEnabled   bool

	TopK         int
	ChunkSize    int
	ChunkOverlap int
	DocumentsDir string

	Port       string
	ServerMode bool

	LogLevel  string
	LogFormat string

	GitHubToken    string
	GitHubOwner    string
	GitHubRepo     string
	GitHubBasePath string
}

// Load reads a .env file when present, then the environment, and validates
// the result.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a Config from the environment without validating it.
func FromEnv() *Config {
	return &Config{
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:       os.Getenv("OPENAI_BASE_URL"),
		LLMModel:            getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMFallbackModel:    os.Getenv("LLM_FALLBACK_MODEL"),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 1536),

		VectorStore:      strings.ToLower(getEnv("VECTOR_STORE", VectorStoreQdrant)),
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "documents"),

		CacheBackend:             strings.ToLower(getEnv("CACHE_BACKEND", CacheSQLite)),
		CacheSQLitePath:          getEnv("CACHE_SQLITE_PATH", "data/cache.db"),
		CacheSimilarityThreshold: getEnvFloat("CACHE_SIMILARITY_THRESHOLD", 0.95),
		CacheTTL:                 getEnvDuration("CACHE_TTL", 24*time.Hour),

		HybridEnabled:     getEnvBool("HYBRID_ENABLED", true),
		SafetyEnabled:     getEnvBool("SAFETY_ENABLED", true),
		ModerationEnabled: getEnvBool("MODERATION_ENABLED", true),
		ModerateOutput:    getEnvBool("MODERATE_OUTPUT", false),
		MetadataEnabled:   getEnvBool("METADATA_ENABLED", false),

		TopK:         getEnvInt("TOP_K", 5),
		ChunkSize:    getEnvInt("CHUNK_SIZE", 1500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 800),
		DocumentsDir: getEnv("DOCUMENTS_DIR", "documents"),

		Port:       getEnv("PORT", "8080"),
		ServerMode: getEnvBool("SERVER_MODE", false),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		GitHubToken:    os.Getenv("GITHUB_TOKEN"),
		GitHubOwner:    os.Getenv("GITHUB_OWNER"),
		GitHubRepo:     os.Getenv("GITHUB_REPO"),
		GitHubBasePath: os.Getenv("GITHUB_BASE_PATH"),
	}
}

// Validate rejects values no component can work with. The API key is not
// checked here; the OpenAI client reports it when it is needed.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.VectorStore == VectorStoreMemory || c.VectorStore == VectorStoreQdrant,
		"VECTOR_STORE must be memory or qdrant, got %q", c.VectorStore)
	switch c.CacheBackend {
	case CacheNone, CacheMemory, CacheSQLite, CacheQdrant:
	default:
		errs = append(errs, fmt.Errorf("CACHE_BACKEND must be none, memory, sqlite or qdrant, got %q", c.CacheBackend))
	}
	check(c.CacheBackend != CacheQdrant || c.VectorStore == VectorStoreQdrant,
		"CACHE_BACKEND=qdrant requires VECTOR_STORE=qdrant")
	check(c.CacheSimilarityThreshold > 0 && c.CacheSimilarityThreshold <= 1,
		"CACHE_SIMILARITY_THRESHOLD must be in (0, 1], got %v", c.CacheSimilarityThreshold)
	check(c.CacheTTL > 0, "CACHE_TTL must be positive, got %s", c.CacheTTL)
	check(c.EmbeddingDimensions > 0, "EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	check(c.QdrantPort > 0 && c.QdrantPort < 65536, "QDRANT_PORT out of range: %d", c.QdrantPort)
	check(c.TopK > 0, "TOP_K must be positive, got %d", c.TopK)
	check(c.ChunkSize > 0, "CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	check(c.ChunkOverlap >= 0 && c.ChunkOverlap < c.ChunkSize,
		"CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	check(c.LogFormat == "text" || c.LogFormat == "json", "LOG_FORMAT must be text or json, got %q", c.LogFormat)
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// NewLogger builds the process logger. Logs go to w (stderr in the
// binaries, since stdout carries the MCP stdio transport).
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", s)
	}
	return level, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts a Go duration ("36h") or a bare number of hours.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if h, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(h * float64(time.Hour))
	}
	return defaultValue
}
