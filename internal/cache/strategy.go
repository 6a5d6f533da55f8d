package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	defaultSimilarityThreshold = 0.8
	// Very short questions carry little signal, so the bar is lowered.
	shortQuestionThreshold = 0.6
	shortQuestionRunes     = 10
)

// Strategy derives the cache key for a question.
type Strategy interface {
	// Tier names the strategy for logs and metrics.
	Tier() string
	// Key returns a stable key for normalized-equal questions.
	Key(question string) string
}

// SimilaritySearcher is the optional lookup side of a strategy that can
// match questions that are semantically close but not byte-identical.
type SimilaritySearcher interface {
	FindSimilar(ctx context.Context, question string) (*Entry, bool)
}

// Normalize lowercases, trims, and collapses whitespace so that
// differently-spaced spellings of a question share one key.
func Normalize(question string) string {
	return strings.Join(strings.Fields(strings.ToLower(question)), " ")
}

func hashKey(question string) string {
	sum := sha256.Sum256([]byte(Normalize(question)))
	return hex.EncodeToString(sum[:])
}

// HashStrategy matches only byte-identical normalized questions.
type HashStrategy struct{}

func (HashStrategy) Tier() string { return "hash" }

func (HashStrategy) Key(question string) string {
	return hashKey(question)
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SemanticStrategy keys entries the same way as HashStrategy but stores
// the question's embedding alongside each entry, so lookups can scan
// stored vectors and return the closest match above a threshold.
type SemanticStrategy struct {
	embedder  Embedder
	store     KV
	threshold float64
	logger    *zap.Logger
}

// NewSemanticStrategy creates a semantic strategy over the given
// backing store. A non-positive threshold uses the default (0.8).
func NewSemanticStrategy(embedder Embedder, store KV, threshold float64, logger *zap.Logger) *SemanticStrategy {
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SemanticStrategy{
		embedder:  embedder,
		store:     store,
		threshold: threshold,
		logger:    logger,
	}
}

func (*SemanticStrategy) Tier() string { return "semantic" }

func (*SemanticStrategy) Key(question string) string {
	return hashKey(question)
}

// FindSimilar scans every stored entry and returns the single best
// match whose cosine similarity exceeds the threshold. Any failure is
// treated as a miss.
func (s *SemanticStrategy) FindSimilar(ctx context.Context, question string) (*Entry, bool) {
	threshold := s.threshold
	if utf8.RuneCountInString(question) < shortQuestionRunes {
		threshold = shortQuestionThreshold
	}

	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		s.logger.Warn("semantic lookup: embed failed", zap.Error(err))
		return nil, false
	}

	keys, err := s.store.Keys(ctx)
	if err != nil {
		s.logger.Warn("semantic lookup: key scan failed", zap.Error(err))
		return nil, false
	}

	var best *semanticEntry
	bestSimilarity := 0.0

	for _, key := range keys {
		raw, ok, err := s.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}

		var cached semanticEntry
		if err := json.Unmarshal(raw, &cached); err != nil {
			continue
		}

		similarity := CosineSimilarity(queryVector, cached.Embedding)
		if similarity > threshold && similarity > bestSimilarity {
			entry := cached
			best = &entry
			bestSimilarity = similarity
		}
	}

	if best == nil {
		return nil, false
	}

	s.logger.Debug("semantic cache match",
		zap.String("original_question", best.OriginalQuestion),
		zap.Float64("similarity", bestSimilarity),
	)

	return &best.Entry, true
}

// encode embeds the question and attaches the vector to the entry.
func (s *SemanticStrategy) encode(ctx context.Context, question string, entry Entry) ([]byte, error) {
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}
	return json.Marshal(semanticEntry{
		Entry:            entry,
		OriginalQuestion: question,
		Embedding:        vector,
	})
}

// CosineSimilarity returns dot(a,b) / (||a||*||b||). Mismatched lengths
// and zero-norm vectors score 0, treated as no-match rather than an
// error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
