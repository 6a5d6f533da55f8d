package rag

import (
	"context"
	"strings"
	"time"

	"artrag-gateway/internal/llm"
)

const (
	replayChunkSize  = 25
	replayChunkDelay = 30 * time.Millisecond
)

// replayStream re-emits a cached answer as a simulated token stream so
// the client-side streaming UX is preserved on cache hits.
func replayStream(ctx context.Context, answer string) <-chan llm.StreamResult {
	out := make(chan llm.StreamResult)

	go func() {
		defer close(out)

		chunks := chunkText(answer)
		for i, chunk := range chunks {
			select {
			case <-ctx.Done():
				return
			case out <- llm.StreamResult{Chunk: &llm.StreamChunk{Delta: chunk}}:
			}

			if i < len(chunks)-1 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(replayChunkDelay):
				}
			}
		}
	}()

	return out
}

// chunkText splits text into word chunks of at most replayChunkSize
// characters, keeping word boundaries intact.
func chunkText(text string) []string {
	words := strings.Split(text, " ")
	var chunks []string
	current := ""

	for i, word := range words {
		separator := " "
		if i == len(words)-1 {
			separator = ""
		}

		if len(current)+len(word)+len(separator) <= replayChunkSize {
			current += word + separator
		} else {
			if current != "" {
				chunks = append(chunks, current)
			}
			current = word + separator
		}
	}

	if current != "" {
		chunks = append(chunks, current)
	}

	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
