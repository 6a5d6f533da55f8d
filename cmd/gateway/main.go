package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"artrag-gateway/internal/cache"
	"artrag-gateway/internal/config"
	"artrag-gateway/internal/embedding"
	"artrag-gateway/internal/handlers"
	"artrag-gateway/internal/httpserver"
	"artrag-gateway/internal/llm"
	"artrag-gateway/internal/metrics"
	"artrag-gateway/internal/rag"
	"artrag-gateway/internal/ratelimit"
	"artrag-gateway/internal/vectorstore"
	"artrag-gateway/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// ----- Config -----
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ----- Logger -----
	logger := logging.DefaultLogger()
	defer logger.Sync()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("redis_addr", cfg.RedisAddr),
		zap.String("qdrant_collection", cfg.QdrantCollection),
		zap.Bool("cache_enabled", cfg.CacheEnabled),
		zap.String("cache_strategy", cfg.CacheStrategy),
		zap.String("default_model", cfg.DefaultModel),
	)

	// ----- Redis client -----
	// A failed ping is not fatal: the cache degrades to misses and the
	// limiters to in-memory counting.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, cache and limits degrade to in-memory", zap.Error(err))
	} else {
		logger.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	}
	cancelPing()

	// ----- Embeddings -----
	embedder, err := embedding.NewClient(embedding.Config{
		BaseURL: cfg.EmbeddingsBaseURL,
		APIKey:  cfg.EmbeddingsAPIKey,
		Model:   cfg.EmbeddingModel,
	}, logger)
	if err != nil {
		return err
	}

	// ----- Vector store -----
	store, err := vectorstore.New(vectorstore.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
	}, embedder, logger)
	if err != nil {
		return err
	}

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.Init(initCtx); err != nil {
		// Keep serving; RAG requests answer 503 until the collection
		// is indexed and the process restarted.
		logger.Error("failed to initialize vector store", zap.Error(err))
	}
	cancelInit()

	// ----- Cache -----
	questionCache := cache.New(cache.Config{
		Backend:  cfg.CacheBackend,
		Strategy: cfg.CacheStrategy,
		Prefix:   "rag:cache:",
		TTL:      cfg.CacheTTL,
		Enabled:  cfg.CacheEnabled,
	}, redisClient, embedder, logger)

	// ----- Daily limiters -----
	globalLimit := ratelimit.New(redisClient, "rag-ai:global-limit:", cfg.GlobalDailyLimit, logger)
	defer globalLimit.Close()

	ipLimit := ratelimit.New(redisClient, "rag-ai:ip-limit:", cfg.IPDailyLimit, logger)
	defer ipLimit.Close()

	// ----- LLM client -----
	llmClient, err := llm.NewClient(llm.Config{
		BaseURL: "https://openrouter.ai/api",
		APIKey:  cfg.OpenRouterAPIKey,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Orchestrator + handlers -----
	orchestrator := rag.New(store, llmClient, questionCache, rag.Config{
		ScoreThreshold: cfg.ScoreThreshold,
		MaxResults:     cfg.MaxResults,
		DefaultModel:   cfg.DefaultModel,
	}, logger)

	askHandler := handlers.NewAskHandler(orchestrator, globalLimit, cfg.SkippedIP)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, askHandler, ipLimit, cfg.SkippedIP)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute, // streamed generations run long
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway", zap.String("addr", srv.Addr))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
