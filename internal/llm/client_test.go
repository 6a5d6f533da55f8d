package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL: baseURL,
		APIKey:  "test-key",
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func validRequest() *ChatRequest {
	return &ChatRequest{
		Model: "deepseek/deepseek-chat-v3-0324",
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "Who painted the Water Lilies?"},
		},
		Temperature: 0.3,
		MaxTokens:   512,
	}
}

func TestChatCompletionStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if !req.Stream {
			t.Errorf("stream flag must be set on the wire")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Claude \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Monet.\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}],\"usage\":{\"prompt_tokens\":10,\"completion_tokens\":4,\"total_tokens\":14}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	results, err := c.ChatCompletionStream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}

	var text strings.Builder
	var usage *Usage
	finish := ""
	for res := range results {
		if res.Err != nil {
			t.Fatalf("unexpected stream error: %v", res.Err)
		}
		if res.Usage != nil {
			usage = res.Usage
		}
		if res.Chunk != nil {
			text.WriteString(res.Chunk.Delta)
			if res.Chunk.FinishReason != "" {
				finish = res.Chunk.FinishReason
			}
		}
	}

	if text.String() != "Claude Monet." {
		t.Fatalf("unexpected text: %q", text.String())
	}
	if finish != "stop" {
		t.Fatalf("finish reason = %q, want stop", finish)
	}
	if usage == nil || usage.TotalTokens != 14 {
		t.Fatalf("usage not forwarded: %+v", usage)
	}
}

func TestChatCompletionStreamProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	results, err := c.ChatCompletionStream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}

	var last StreamResult
	for res := range results {
		last = res
	}
	if last.Err == nil {
		t.Fatalf("expected terminal error result")
	}
	if !strings.Contains(last.Err.Error(), "rate limited") {
		t.Fatalf("provider message not surfaced: %v", last.Err)
	}
}

func TestChatCompletionStreamValidation(t *testing.T) {
	c := newTestClient(t, "http://localhost:0")

	cases := []struct {
		name string
		req  *ChatRequest
	}{
		{"nil request", nil},
		{"missing model", &ChatRequest{Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}}}},
		{"no messages", &ChatRequest{Model: "m"}},
		{"bad role", &ChatRequest{Model: "m", Messages: []ChatMessage{{Role: "oracle", Content: "hi"}}}},
		{"empty user content", &ChatRequest{Model: "m", Messages: []ChatMessage{{Role: RoleUser}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := c.ChatCompletionStream(context.Background(), tc.req); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestChatCompletionStreamUpstreamTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(Config{
		BaseURL:         srv.URL,
		APIKey:          "test-key",
		UpstreamTimeout: 50 * time.Millisecond,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	results, err := c.ChatCompletionStream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}

	var last StreamResult
	for res := range results {
		last = res
	}
	if last.Err == nil {
		t.Fatalf("expected timeout error result")
	}
}

func TestResolveModel(t *testing.T) {
	def := "deepseek/deepseek-chat-v3-0324"

	if got := ResolveModel("", def); got != def {
		t.Fatalf("empty name should resolve to default, got %q", got)
	}
	if got := ResolveModel("totally-unknown", def); got != def {
		t.Fatalf("unknown name should resolve to default, got %q", got)
	}
	if got := ResolveModel("qwen3-32b:free", def); got != "qwen/qwen3-32b:free" {
		t.Fatalf("short name not resolved, got %q", got)
	}
}

func TestMessageSizeLimit(t *testing.T) {
	c := newTestClient(t, "http://localhost:0")

	req := validRequest()
	req.Messages[0].Content = strings.Repeat("x", maxMessageSize+1)

	if _, err := c.ChatCompletionStream(context.Background(), req); err == nil {
		t.Fatalf("oversized message must be rejected before dialing")
	}
}
