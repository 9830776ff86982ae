package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Vector store backend: "memory", "redis" or "mongo".
	StoreBackend string

	MongoURI string
	DBName   string

	RedisURL      string
	RedisPassword string
	RedisDB       int

	GeminiAPIKey    string
	EmbeddingModel  string
	GenerationModel string

	// Chunking defaults; requests may override per call.
	ChunkSize    int
	ChunkOverlap int

	DefaultTopK int

	// Remote store budgets.
	StoreTimeout     time.Duration
	StoreMaxRetries  int
	StoreBackoffBase time.Duration

	// Cache TTLs; zero disables the cache.
	EmbeddingCacheTTL time.Duration
	QueryCacheTTL     time.Duration
	CacheBackend      string // "memory" or "redis"
	CacheSweepEvery   time.Duration

	// Embedding provider throttle, requests per second.
	EmbedRateLimit   float64
	EmbedBurst       int
	GenerateTimeout  time.Duration
	AnswerGeneration bool

	RateLimitReqs   int
	RateLimitWindow int

	// Documents larger than this are pushed to the async queue.
	SyncIngestLimit int
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ","),

		StoreBackend: getEnv("STORE_BACKEND", "memory"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/rag_retrieval"),
		DBName:   getEnv("DB_NAME", "rag_retrieval"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		GenerationModel: getEnv("GENERATION_MODEL", "gemini-2.0-flash"),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),

		DefaultTopK: getEnvInt("DEFAULT_TOP_K", 4),

		StoreTimeout:     getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		StoreMaxRetries:  getEnvInt("STORE_MAX_RETRIES", 2),
		StoreBackoffBase: getEnvDuration("STORE_BACKOFF_BASE", 100*time.Millisecond),

		EmbeddingCacheTTL: getEnvDuration("EMBEDDING_CACHE_TTL", time.Hour),
		QueryCacheTTL:     getEnvDuration("QUERY_CACHE_TTL", 5*time.Minute),
		CacheBackend:      getEnv("CACHE_BACKEND", "memory"),
		CacheSweepEvery:   getEnvDuration("CACHE_SWEEP_EVERY", time.Minute),

		EmbedRateLimit:   getEnvFloat64("EMBED_RATE_LIMIT", 10),
		EmbedBurst:       getEnvInt("EMBED_BURST", 20),
		GenerateTimeout:  getEnvDuration("GENERATE_TIMEOUT", 30*time.Second),
		AnswerGeneration: getEnvBool("ANSWER_GENERATION", true),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		SyncIngestLimit: getEnvInt("SYNC_INGEST_LIMIT", 1<<20),
	}

	switch cfg.StoreBackend {
	case "memory", "redis", "mongo":
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be memory, redis or mongo, got %q", cfg.StoreBackend)
	}

	if cfg.ChunkSize < 0 || cfg.ChunkOverlap < 0 {
		return nil, fmt.Errorf("CHUNK_SIZE and CHUNK_OVERLAP must be non-negative")
	}
	if cfg.ChunkSize > 0 && cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	return cfg, nil
}
