package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"artrag-gateway/internal/cache"
	"artrag-gateway/internal/llm"
	"artrag-gateway/internal/metrics"
	"artrag-gateway/internal/vectorstore"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 512
	cacheWriteTimeout  = 10 * time.Second
)

// VectorSearcher is the similarity-search dependency.
type VectorSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]vectorstore.SearchHit, error)
}

type Config struct {
	ScoreThreshold float64
	MaxResults     int
	DefaultModel   string
}

// Stream is a streamed answer. CacheHit marks answers replayed from
// the question cache.
type Stream struct {
	Chunks   <-chan llm.StreamResult
	CacheHit bool
}

// Orchestrator runs the query pipeline: cache lookup, retrieval,
// prompt assembly, generation, and the write-through to cache.
type Orchestrator struct {
	store  VectorSearcher
	llm    llm.Client
	cache  *cache.Cache
	cfg    Config
	logger *zap.Logger
}

func New(store VectorSearcher, llmClient llm.Client, questionCache *cache.Cache, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:  store,
		llm:    llmClient,
		cache:  questionCache,
		cfg:    cfg,
		logger: logger.Named("rag"),
	}
}

// AskRAG answers question grounded in retrieved context. Retrieval
// failures are fatal for the request; a cache hit replays the stored
// answer without touching the vector store or the LLM.
func (o *Orchestrator) AskRAG(ctx context.Context, question string, history []llm.ChatMessage, model string) (*Stream, error) {
	start := time.Now()

	if o.cache.Enabled() {
		if entry, hit := o.cache.Get(ctx, question); hit {
			o.logger.Info("cache hit, replaying answer",
				zap.String("question", question),
			)
			return &Stream{Chunks: replayStream(ctx, entry.Answer), CacheHit: true}, nil
		}
	}

	searchStart := time.Now()
	hits, err := o.store.Search(ctx, question, o.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	filtered := filterAndSort(hits, o.cfg.ScoreThreshold)
	metrics.RetrievedDocuments.Observe(float64(len(filtered)))

	o.logger.Info("vector search completed",
		zap.Duration("duration", time.Since(searchStart)),
		zap.Int("documents", len(filtered)),
	)

	sources, contexts := extractSourcesAndContexts(filtered)
	o.logger.Info("retrieved sources", zap.Strings("sources", sources))

	messages := buildPrompt(question, strings.Join(contexts, "\n\n"), sources, history)

	upstream, err := o.llm.ChatCompletionStream(ctx, &llm.ChatRequest{
		Model:       llm.ResolveModel(model, o.cfg.DefaultModel),
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	return &Stream{Chunks: o.forwardAndCache(upstream, question, sources, start)}, nil
}

// AskGeneral sends the full conversation straight to the LLM: no
// retrieval, no prompt augmentation, no caching.
func (o *Orchestrator) AskGeneral(ctx context.Context, messages []llm.ChatMessage, model string) (*Stream, error) {
	upstream, err := o.llm.ChatCompletionStream(ctx, &llm.ChatRequest{
		Model:       llm.ResolveModel(model, o.cfg.DefaultModel),
		Messages:    messages,
		Temperature: defaultTemperature,
		MaxTokens:   defaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	return &Stream{Chunks: upstream}, nil
}

// forwardAndCache passes stream chunks through while accumulating the
// full text; when the stream ends cleanly the answer is written to the
// cache without blocking the response.
func (o *Orchestrator) forwardAndCache(upstream <-chan llm.StreamResult, question string, sources []string, start time.Time) <-chan llm.StreamResult {
	out := make(chan llm.StreamResult, 16)

	go func() {
		defer close(out)

		var answer strings.Builder
		var usage *llm.Usage
		failed := false

		for res := range upstream {
			if res.Err != nil {
				failed = true
			}
			if res.Chunk != nil {
				answer.WriteString(res.Chunk.Delta)
			}
			if res.Usage != nil {
				usage = res.Usage
			}
			out <- res
		}

		if failed || answer.Len() == 0 {
			return
		}

		totalTokens := 0
		if usage != nil {
			totalTokens = usage.TotalTokens
		}
		o.logger.Info("answer generated",
			zap.Int("chars", answer.Len()),
			zap.Int("total_tokens", totalTokens),
			zap.Duration("duration", time.Since(start)),
		)

		if o.cache.Enabled() {
			// Detached from the request context: the response is
			// already finished streaming by now.
			go func(text string) {
				cctx, cancel := context.WithTimeout(context.Background(), cacheWriteTimeout)
				defer cancel()
				o.cache.Set(cctx, question, cache.Entry{
					Answer:    text,
					Sources:   sources,
					Timestamp: time.Now().UnixMilli(),
				})
			}(answer.String())
		}
	}()

	return out
}

// filterAndSort drops hits at or below threshold and orders the rest
// by descending score.
func filterAndSort(hits []vectorstore.SearchHit, threshold float64) []vectorstore.SearchHit {
	filtered := make([]vectorstore.SearchHit, 0, len(hits))
	for _, h := range hits {
		if h.Score > threshold {
			filtered = append(filtered, h)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	return filtered
}

// extractSourcesAndContexts produces one human-readable source label
// and one passage per hit, preserving the ranked order.
func extractSourcesAndContexts(hits []vectorstore.SearchHit) (sources, contexts []string) {
	sources = make([]string, 0, len(hits))
	contexts = make([]string, 0, len(hits))

	for _, h := range hits {
		base := h.Metadata.Title
		if base == "" {
			base = h.Metadata.ObjectID
		}
		if base == "" {
			base = "Unknown"
		}
		if h.Metadata.Filename != "" {
			base = fmt.Sprintf("%s (%s)", base, h.Metadata.Filename)
		}

		sources = append(sources, base)
		contexts = append(contexts, h.Content)
	}

	return sources, contexts
}
