package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

type staticEmbedder struct {
	vector []float32
	err    error
}

func (e staticEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return e.vector, e.err
}

func newFakeQdrant(t *testing.T, collection string, hits []map[string]any) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/collections/"+collection, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":{"status":"green"},"status":"ok"}`)
	})
	mux.HandleFunc("/collections/"+collection+"/points/search", func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode search request: %v", err)
		}
		if !req.WithPayload {
			t.Errorf("search must request payloads")
		}
		if len(req.Vector) == 0 {
			t.Errorf("search must carry the query vector")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	})

	return httptest.NewServer(mux)
}

func TestSearch(t *testing.T) {
	srv := newFakeQdrant(t, "mia_collection", []map[string]any{
		{
			"score": 0.91,
			"payload": map[string]any{
				"content": "Olive Trees, painted by Vincent van Gogh in 1889.",
				"metadata": map[string]any{
					"objectId": "1218",
					"title":    "Olive Trees",
					"filename": "1218.json",
				},
			},
		},
		{
			"score": 0.42,
			"payload": map[string]any{
				"content": "A bronze vessel from the Shang dynasty.",
				"metadata": map[string]any{"objectId": "77"},
			},
		},
	})
	defer srv.Close()

	store, err := New(Config{
		URL:        srv.URL,
		Collection: "mia_collection",
	}, staticEmbedder{vector: []float32{0.1, 0.2, 0.3}}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !store.Ready() {
		t.Fatalf("store should be ready after Init")
	}

	hits, err := store.Search(ctx, "van gogh olive trees", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Score != 0.91 {
		t.Fatalf("hits[0].Score = %v, want 0.91", hits[0].Score)
	}
	if hits[0].Metadata.Title != "Olive Trees" || hits[0].Metadata.Filename != "1218.json" {
		t.Fatalf("metadata not decoded: %+v", hits[0].Metadata)
	}
	if hits[1].Metadata.ObjectID != "77" {
		t.Fatalf("hits[1].Metadata.ObjectID = %q, want 77", hits[1].Metadata.ObjectID)
	}
}

func TestSearchBeforeInit(t *testing.T) {
	store, err := New(Config{
		URL:        "http://localhost:0",
		Collection: "mia_collection",
	}, staticEmbedder{vector: []float32{1}}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := store.Search(context.Background(), "q", 10); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestInitMissingCollection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := New(Config{
		URL:        srv.URL,
		Collection: "missing",
	}, staticEmbedder{vector: []float32{1}}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := store.Init(context.Background()); err == nil {
		t.Fatalf("expected Init to fail for a missing collection")
	}
	if store.Ready() {
		t.Fatalf("store must stay not-ready after failed Init")
	}
}

func TestSearchEmbedFailure(t *testing.T) {
	srv := newFakeQdrant(t, "mia_collection", nil)
	defer srv.Close()

	store, err := New(Config{
		URL:        srv.URL,
		Collection: "mia_collection",
	}, staticEmbedder{err: errors.New("embeddings down")}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, err := store.Search(context.Background(), "q", 10); err == nil {
		t.Fatalf("expected embed failure to propagate")
	}
}
