package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const maxMessageSize = 512 * 1024 // 512KB per message content

// providerStreamChunk is the shape of each SSE "data:" event from an
// OpenAI-compatible provider.
type providerStreamChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

type providerErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatCompletionStream opens a streamed completion and returns a
// channel of deltas. The channel is closed when the provider finishes,
// errors, or the context is cancelled; a terminal error is delivered as
// the last StreamResult.
func (c *client) ChatCompletionStream(parentCtx context.Context, req *ChatRequest) (<-chan StreamResult, error) {
	if req == nil {
		return nil, fmt.Errorf("llmclient: request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("llmclient: invalid request: %w", err)
	}
	for i, m := range req.Messages {
		if len(m.Content) > maxMessageSize {
			return nil, fmt.Errorf(
				"llmclient: message[%d] content too large (%d bytes, max %d)",
				i, len(m.Content), maxMessageSize,
			)
		}
	}

	c.logger.Debug("llm stream request starting",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	var ctx context.Context
	var cancel context.CancelFunc
	if c.cfg.UpstreamTimeout > 0 {
		ctx, cancel = context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	} else {
		ctx, cancel = context.WithCancel(parentCtx)
	}

	results := make(chan StreamResult, 16)

	go func() {
		defer close(results)
		defer cancel()

		streamed := *req
		streamed.Stream = true

		body, err := json.Marshal(&streamed)
		if err != nil {
			results <- StreamResult{Err: fmt.Errorf("llmclient: marshal stream request: %w", err)}
			return
		}

		url := c.cfg.BaseURL + "/v1/chat/completions"
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			results <- StreamResult{Err: fmt.Errorf("llmclient: build HTTP stream request: %w", err)}
			return
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.logger.Error("llm stream connect failed",
				zap.String("model", req.Model),
				zap.Error(err),
			)
			results <- StreamResult{Err: fmt.Errorf("llmclient: connect stream: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

			var perr providerErrorResponse
			if err := json.Unmarshal(raw, &perr); err == nil && perr.Error.Message != "" {
				c.logger.Error("llm stream provider error",
					zap.String("model", req.Model),
					zap.Int("status", resp.StatusCode),
					zap.String("error_type", perr.Error.Type),
					zap.String("error_message", perr.Error.Message),
				)
				results <- StreamResult{Err: fmt.Errorf("llmclient: upstream stream %d: %s (%s)",
					resp.StatusCode, perr.Error.Message, perr.Error.Type)}
				return
			}

			results <- StreamResult{Err: fmt.Errorf("llmclient: upstream stream %d: %s",
				resp.StatusCode, truncate(string(raw), 200))}
			return
		}

		c.readStream(ctx, resp.Body, req.Model, results)
	}()

	return results, nil
}

func (c *client) readStream(ctx context.Context, body io.Reader, model string, results chan<- StreamResult) {
	reader := bufio.NewReader(body)
	chunkCount := 0

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("llm stream cancelled",
				zap.String("model", model),
				zap.Error(ctx.Err()),
			)
			return
		default:
		}

		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// Normal end of stream without explicit [DONE]
				c.logger.Info("llm stream completed",
					zap.String("model", model),
					zap.Int("chunks", chunkCount),
				)
				return
			}
			results <- StreamResult{Err: fmt.Errorf("llmclient: read stream line: %w", err)}
			return
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		const prefix = "data: "
		if !bytes.HasPrefix(line, []byte(prefix)) {
			// Ignore non-data SSE lines
			continue
		}
		payload := bytes.TrimSpace(line[len(prefix):])

		if bytes.Equal(payload, []byte("[DONE]")) {
			c.logger.Info("llm stream received [DONE]",
				zap.String("model", model),
				zap.Int("chunks", chunkCount),
			)
			return
		}

		var chunk providerStreamChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			results <- StreamResult{Err: fmt.Errorf("llmclient: unmarshal stream chunk: %w", err)}
			return
		}

		if chunk.Usage != nil {
			select {
			case <-ctx.Done():
				return
			case results <- StreamResult{Usage: chunk.Usage}:
			}
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" && choice.FinishReason == "" {
				continue
			}

			chunkCount++
			select {
			case <-ctx.Done():
				return
			case results <- StreamResult{Chunk: &StreamChunk{
				Delta:        choice.Delta.Content,
				FinishReason: choice.FinishReason,
			}}:
			}
		}
	}
}

// truncate limits string length for logging and error text.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
