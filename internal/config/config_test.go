package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// t.Setenv guards against a leaked environment and restores after.
	for _, key := range []string{
		"PORT", "ENV", "REDIS_ADDR", "OPENROUTER_API_KEY", "QDRANT_URL",
		"SCORE_THRESHOLD", "MAX_RESULTS", "GLOBAL_DAILY_LIMIT", "IP_DAILY_LIMIT",
		"SKIPPED_IP", "ENABLE_CACHE", "CACHE_BACKEND", "CACHE_STRATEGY", "CACHE_TTL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "3001" {
		t.Fatalf("Port = %q, want 3001", cfg.Port)
	}
	if cfg.QdrantCollection != "mia_collection" {
		t.Fatalf("QdrantCollection = %q", cfg.QdrantCollection)
	}
	if cfg.ScoreThreshold != 0.5 {
		t.Fatalf("ScoreThreshold = %v, want 0.5", cfg.ScoreThreshold)
	}
	if cfg.GlobalDailyLimit != 10 || cfg.IPDailyLimit != 10 {
		t.Fatalf("daily limits = %d/%d, want 10/10", cfg.GlobalDailyLimit, cfg.IPDailyLimit)
	}
	if cfg.CacheEnabled {
		t.Fatalf("cache must default to disabled")
	}
	if cfg.CacheStrategy != "semantic" || cfg.CacheBackend != "redis" {
		t.Fatalf("cache defaults = %s/%s", cfg.CacheBackend, cfg.CacheStrategy)
	}
	if cfg.CacheTTL != 86400*time.Second {
		t.Fatalf("CacheTTL = %v, want 24h", cfg.CacheTTL)
	}
	// Development bypasses the limiters via loopback.
	if cfg.SkippedIP != "::1" {
		t.Fatalf("SkippedIP = %q, want ::1 in development", cfg.SkippedIP)
	}
}

func TestSkippedIPEmptyInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("SKIPPED_IP", "")

	cfg := Load()
	if cfg.SkippedIP != "" {
		t.Fatalf("SkippedIP = %q, want empty in production", cfg.SkippedIP)
	}
}

func TestValidateListsAllProblems(t *testing.T) {
	cfg := Config{
		QdrantURL:        "http://127.0.0.1:6333",
		ScoreThreshold:   1.5,
		MaxResults:       0,
		GlobalDailyLimit: 10,
		IPDailyLimit:     0,
		CacheBackend:     "redis",
		CacheStrategy:    "telepathy",
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	for _, want := range []string{
		"OPENROUTER_API_KEY is required",
		"SCORE_THRESHOLD must be between 0 and 1",
		"MAX_RESULTS must be positive",
		"IP_DAILY_LIMIT must be positive",
		`CACHE_STRATEGY "telepathy" is not supported`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err.Error(), want)
		}
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := Config{
		OpenRouterAPIKey: "key",
		QdrantURL:        "http://127.0.0.1:6333",
		ScoreThreshold:   0.5,
		MaxResults:       100,
		GlobalDailyLimit: 10,
		IPDailyLimit:     10,
		CacheBackend:     "memory",
		CacheStrategy:    "hash",
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
