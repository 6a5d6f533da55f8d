package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotInitialized is returned by Search when the collection could not
// be reached at startup. The HTTP layer maps it to 503.
var ErrNotInitialized = errors.New("vector store not initialized")

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Metadata is the per-document payload stored at ingestion time.
type Metadata struct {
	ObjectID string `json:"objectId"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Filename string `json:"filename,omitempty"`
	Source   string `json:"source"`
}

// SearchHit is one ranked result from the similarity search.
type SearchHit struct {
	Content  string
	Metadata Metadata
	Score    float64
}

// Store is a minimal REST client to a pre-populated Qdrant collection.
type Store struct {
	url        string
	apiKey     string
	collection string
	embedder   Embedder
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.RWMutex
	initialized bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration

	HTTPClient *http.Client
}

// New creates a Store. Call Init before Search; an uninitialized store
// rejects searches with ErrNotInitialized.
func New(cfg Config, embedder Embedder, logger *zap.Logger) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("vectorstore: URL is required")
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("vectorstore: Collection is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("vectorstore: embedder is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		embedder:   embedder,
		httpClient: httpClient,
		logger:     logger.Named("vectorstore"),
	}, nil
}

// Init verifies that the collection exists. The collection is populated
// by an offline ingestion job; the gateway never creates it.
func (s *Store) Init(ctx context.Context) error {
	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: build collection check: %w", err)
	}
	s.setHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vectorstore: collection check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vectorstore: collection %q unavailable: %s", s.collection, resp.Status)
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()

	s.logger.Info("vector store initialized",
		zap.String("collection", s.collection),
	)
	return nil
}

// Ready reports whether Init has succeeded.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type searchResponse struct {
	Result []struct {
		Score   float64 `json:"score"`
		Payload struct {
			Content  string   `json:"content"`
			Metadata Metadata `json:"metadata"`
		} `json:"payload"`
	} `json:"result"`
}

// Search embeds query and returns up to limit ranked hits.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if !s.Ready() {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 100
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}

	body, err := json.Marshal(searchRequest{
		Vector:      vector,
		Limit:       limit,
		WithPayload: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore: marshal search: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vectorstore: build search request: %w", err)
	}
	s.setHeaders(req)

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vectorstore: search on collection %q: %s", s.collection, resp.Status)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vectorstore: decode search response: %w", err)
	}

	hits := make([]SearchHit, 0, len(out.Result))
	for _, r := range out.Result {
		hits = append(hits, SearchHit{
			Content:  r.Payload.Content,
			Metadata: r.Payload.Metadata,
			Score:    r.Score,
		})
	}

	s.logger.Debug("vector search completed",
		zap.Int("hits", len(hits)),
		zap.Duration("duration", time.Since(start)),
	)

	return hits, nil
}

func (s *Store) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}
