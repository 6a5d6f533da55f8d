package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full environment-driven configuration surface of the
// gateway. Defaults mirror a local development setup; Validate reports
// every violated constraint at once.
type Config struct {
	Port string
	Env  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OpenRouterAPIKey string
	DefaultModel     string

	EmbeddingsBaseURL string
	EmbeddingsAPIKey  string
	EmbeddingModel    string

	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	ScoreThreshold float64
	MaxResults     int

	GlobalDailyLimit int64
	IPDailyLimit     int64
	SkippedIP        string

	CacheEnabled  bool
	CacheBackend  string // "memory" or "redis"
	CacheStrategy string // "hash" or "semantic"
	CacheTTL      time.Duration
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Port: getenv("PORT", "3001"),
		Env:  getenv("ENV", "development"),

		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getenvInt("REDIS_DB", 0),

		OpenRouterAPIKey: os.Getenv("OPENROUTER_API_KEY"),
		DefaultModel:     getenv("DEFAULT_MODEL", "deepseek/deepseek-chat-v3-0324"),

		EmbeddingsBaseURL: getenv("EMBEDDINGS_BASE_URL", "https://router.huggingface.co/v1"),
		EmbeddingsAPIKey:  os.Getenv("EMBEDDINGS_API_KEY"),
		EmbeddingModel:    getenv("EMBEDDING_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),

		QdrantURL:        getenv("QDRANT_URL", "http://127.0.0.1:6333"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: getenv("QDRANT_COLLECTION", "mia_collection"),

		ScoreThreshold: getenvFloat("SCORE_THRESHOLD", 0.5),
		MaxResults:     getenvInt("MAX_RESULTS", 100),

		GlobalDailyLimit: int64(getenvInt("GLOBAL_DAILY_LIMIT", 10)),
		IPDailyLimit:     int64(getenvInt("IP_DAILY_LIMIT", 10)),
		SkippedIP:        skippedIP(),

		CacheEnabled:  getenvBool("ENABLE_CACHE", false),
		CacheBackend:  getenv("CACHE_BACKEND", "redis"),
		CacheStrategy: getenv("CACHE_STRATEGY", "semantic"),
		CacheTTL:      time.Duration(getenvInt("CACHE_TTL", 86400)) * time.Second,
	}
}

// Validate checks the loaded configuration and returns a single error
// listing every problem found.
func (c Config) Validate() error {
	var problems []string

	if c.OpenRouterAPIKey == "" {
		problems = append(problems, "OPENROUTER_API_KEY is required")
	}
	if c.QdrantURL == "" {
		problems = append(problems, "QDRANT_URL is required")
	}
	if c.ScoreThreshold < 0 || c.ScoreThreshold > 1 {
		problems = append(problems, "SCORE_THRESHOLD must be between 0 and 1")
	}
	if c.MaxResults <= 0 {
		problems = append(problems, "MAX_RESULTS must be positive")
	}
	if c.GlobalDailyLimit <= 0 {
		problems = append(problems, "GLOBAL_DAILY_LIMIT must be positive")
	}
	if c.IPDailyLimit <= 0 {
		problems = append(problems, "IP_DAILY_LIMIT must be positive")
	}
	switch c.CacheBackend {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("CACHE_BACKEND %q is not supported (memory, redis)", c.CacheBackend))
	}
	switch c.CacheStrategy {
	case "hash", "semantic":
	default:
		problems = append(problems, fmt.Sprintf("CACHE_STRATEGY %q is not supported (hash, semantic)", c.CacheStrategy))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// skippedIP returns the rate-limit bypass address. Local development
// always bypasses via loopback.
func skippedIP() string {
	env := getenv("ENV", "development")
	if env == "dev" || env == "development" {
		return getenv("SKIPPED_IP", "::1")
	}
	return os.Getenv("SKIPPED_IP")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
