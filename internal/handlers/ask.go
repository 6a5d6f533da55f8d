package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"artrag-gateway/internal/llm"
	"artrag-gateway/internal/metrics"
	"artrag-gateway/internal/middleware"
	"artrag-gateway/internal/rag"
	"artrag-gateway/internal/ratelimit"
	"artrag-gateway/internal/vectorstore"
	"artrag-gateway/pkg/logging"
)

// AskHandler serves POST /ask: the RAG and general-chat entry point.
type AskHandler struct {
	orchestrator *rag.Orchestrator
	globalLimit  *ratelimit.DailyLimiter
	skippedIP    string
}

func NewAskHandler(orchestrator *rag.Orchestrator, globalLimit *ratelimit.DailyLimiter, skippedIP string) *AskHandler {
	return &AskHandler{
		orchestrator: orchestrator,
		globalLimit:  globalLimit,
		skippedIP:    skippedIP,
	}
}

type askRequest struct {
	Messages []llm.ChatMessage `json:"messages"`
}

// Ask handles POST /ask?mode=&model=.
func (h *AskHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	if ip := clientIP(r); h.skippedIP == "" || ip != h.skippedIP {
		res := h.globalLimit.Allow(ctx, "")
		if !res.Allowed {
			metrics.RateLimitedTotal.WithLabelValues("global").Inc()
			logger.Warn("global daily limit reached",
				zap.Int64("count", res.Count),
				zap.Int64("limit", res.Limit),
			)
			writeJSONError(w, http.StatusTooManyRequests,
				"Global daily limit has been reached. Please try again later.")
			return
		}
	}

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid request body", zap.Error(err))
		writeJSONError(w, http.StatusBadRequest, "Invalid request: malformed JSON body")
		return
	}

	if problems := validateMessages(req.Messages); len(problems) > 0 {
		writeJSONError(w, http.StatusBadRequest,
			"Invalid request: "+strings.Join(problems, ", "))
		return
	}

	question, history := extractQuestionAndHistory(req.Messages)
	mode := r.URL.Query().Get("mode")
	model := r.URL.Query().Get("model")

	logger.Info("question received",
		zap.String("question", question),
		zap.String("mode", mode),
		zap.String("model", model),
	)

	var stream *rag.Stream
	var err error
	if mode == "general-chat" {
		stream, err = h.orchestrator.AskGeneral(ctx, req.Messages, model)
	} else {
		stream, err = h.orchestrator.AskRAG(ctx, question, history, model)
	}
	if err != nil {
		logger.Error("query processing failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)

		if isIndexUnavailable(err) {
			writeJSONError(w, http.StatusServiceUnavailable,
				"Service unavailable. Please ensure data is indexed first.")
			return
		}

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "RAG Error: %s", err.Error())
		return
	}

	h.writeStream(w, r, stream)
}

// writeStream forwards chunks to the client framed as "0:<json>\n"
// segments. Errors after the stream has started are sent as a "3:"
// frame; text already delivered is not retracted.
func (h *AskHandler) writeStream(w http.ResponseWriter, r *http.Request, stream *rag.Stream) {
	logger := logging.L(r.Context())

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if stream.CacheHit {
		w.Header().Set("X-Cache-Hit", "true")
	}

	flusher, _ := w.(http.Flusher)

	for res := range stream.Chunks {
		if res.Err != nil {
			logger.Error("stream error", zap.Error(res.Err))
			writeFrame(w, "3", res.Err.Error())
			if flusher != nil {
				flusher.Flush()
			}
			return
		}
		if res.Chunk == nil || res.Chunk.Delta == "" {
			continue
		}

		writeFrame(w, "0", res.Chunk.Delta)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// writeFrame writes one framed segment: "<type>:<json-encoded text>\n".
func writeFrame(w http.ResponseWriter, frameType, text string) {
	encoded, err := json.Marshal(text)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "%s:%s\n", frameType, encoded)
}

// validateMessages collects every constraint violation in the request.
func validateMessages(messages []llm.ChatMessage) []string {
	var problems []string

	if len(messages) == 0 {
		return []string{"messages is required and must not be empty"}
	}

	hasUser := false
	for i, m := range messages {
		switch m.Role {
		case llm.RoleUser:
			hasUser = true
		case llm.RoleAssistant, llm.RoleSystem:
		default:
			problems = append(problems, fmt.Sprintf("messages[%d].role %q is invalid", i, m.Role))
		}
		if m.Content == "" {
			problems = append(problems, fmt.Sprintf("messages[%d].content is required", i))
		}
	}

	if !hasUser {
		problems = append(problems, "no user message found")
	}

	return problems
}

// extractQuestionAndHistory pulls the latest user utterance out of the
// message list; everything before the final message is history.
func extractQuestionAndHistory(messages []llm.ChatMessage) (string, []llm.ChatMessage) {
	question := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			question = messages[i].Content
			break
		}
	}
	return question, messages[:len(messages)-1]
}

func isIndexUnavailable(err error) bool {
	return errors.Is(err, vectorstore.ErrNotInitialized) ||
		strings.Contains(err.Error(), "collection")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	middleware.SetCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
