package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestHashStrategyNormalizedEquality(t *testing.T) {
	s := HashStrategy{}

	variants := []string{
		"Who painted the Water Lilies?",
		"who painted the water lilies?",
		"  Who   painted the\tWater Lilies?  ",
		"WHO PAINTED THE WATER LILIES?",
	}

	base := s.Key(variants[0])
	for _, v := range variants[1:] {
		if got := s.Key(v); got != base {
			t.Fatalf("expected equal keys for %q, got %s vs %s", v, got, base)
		}
	}

	if s.Key("a different question") == base {
		t.Fatalf("different questions must not share a key")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{3, 2, 1}

	if got, want := CosineSimilarity(a, b), CosineSimilarity(b, a); got != want {
		t.Fatalf("cosine similarity not symmetric: %f vs %f", got, want)
	}

	if got := CosineSimilarity(a, a); got < 0.9999 || got > 1.0001 {
		t.Fatalf("similarity(v, v) = %f, want 1", got)
	}

	if got := CosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Fatalf("zero-norm vector should score 0, got %f", got)
	}
	if got := CosineSimilarity(a, []float32{1, 2}); got != 0 {
		t.Fatalf("mismatched lengths should score 0, got %f", got)
	}
}

// fakeEmbedder returns canned vectors per input text.
type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestSemanticStrategyFindSimilar(t *testing.T) {
	kv := NewMemoryKV(time.Minute)
	t.Cleanup(func() { kv.Close() })

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"who painted the water lilies?":       {1, 0, 0},
		"Who was the Water Lilies painter?":   {0.95, 0.05, 0},
		"what is the tallest building in oz?": {0, 1, 0},
	}}

	s := NewSemanticStrategy(embedder, kv, 0, zaptest.NewLogger(t))
	ctx := context.Background()

	stored := "who painted the water lilies?"
	raw, err := s.encode(ctx, stored, Entry{
		Answer:    "Claude Monet painted the Water Lilies series.",
		Sources:   []string{"Water Lilies"},
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := kv.Set(ctx, s.Key(stored), raw, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	entry, hit := s.FindSimilar(ctx, "Who was the Water Lilies painter?")
	if !hit {
		t.Fatalf("expected semantic hit for near-duplicate question")
	}
	if entry.Answer != "Claude Monet painted the Water Lilies series." {
		t.Fatalf("unexpected cached answer: %q", entry.Answer)
	}

	if _, hit := s.FindSimilar(ctx, "what is the tallest building in oz?"); hit {
		t.Fatalf("dissimilar question must miss")
	}
}

func TestSemanticStrategyBestMatchWins(t *testing.T) {
	kv := NewMemoryKV(time.Minute)
	t.Cleanup(func() { kv.Close() })

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"close":   {0.9, 0.1, 0},
		"closer":  {0.99, 0.01, 0},
		"a query": {1, 0, 0},
	}}

	s := NewSemanticStrategy(embedder, kv, 0, zaptest.NewLogger(t))
	ctx := context.Background()

	for i, q := range []string{"close", "closer"} {
		raw, err := s.encode(ctx, q, Entry{Answer: fmt.Sprintf("answer-%d", i)})
		if err != nil {
			t.Fatalf("encode %q: %v", q, err)
		}
		if err := kv.Set(ctx, s.Key(q), raw, time.Minute); err != nil {
			t.Fatalf("set %q: %v", q, err)
		}
	}

	entry, hit := s.FindSimilar(ctx, "a query")
	if !hit {
		t.Fatalf("expected a hit")
	}
	if entry.Answer != "answer-1" {
		t.Fatalf("expected the highest-scoring entry, got %q", entry.Answer)
	}
}

func TestSemanticStrategyEmbedFailureIsMiss(t *testing.T) {
	kv := NewMemoryKV(time.Minute)
	t.Cleanup(func() { kv.Close() })

	embedder := &fakeEmbedder{err: fmt.Errorf("embedding service down")}
	s := NewSemanticStrategy(embedder, kv, 0, zaptest.NewLogger(t))

	if _, hit := s.FindSimilar(context.Background(), "anything"); hit {
		t.Fatalf("embed failure must degrade to a miss")
	}
}
