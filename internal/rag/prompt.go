package rag

import (
	"fmt"
	"strings"

	"artrag-gateway/internal/llm"
)

const systemPromptFormat = `You are a knowledgeable art historian and museum curator. Using the provided context about artworks from the Minneapolis Institute of Art collection, answer the user's question accurately and informatively.

Context:
%s

Instructions:
- Base your answer only on the provided context
- If the context doesn't contain relevant information, say so
- Be specific about artworks, artists, and details when possible
- Keep your response concise but informative
- Do not make up information not present in the context
- Do NOT include source numbers or references in the main text of your answer
- At the end of your answer, include a Sources section with ONLY the sources you actually used in your answer
- Number the sources consecutively starting from 1 (1, 2, 3, etc.) in the Sources section
- Sources format: "**Sources:**\n1. [Source Title]\n2. [Source Title]\n3. [Source Title]"

Available sources:
%s`

// buildPrompt assembles the message sequence: the constructed system
// message, the conversation history verbatim, then the raw question as
// the final user turn.
func buildPrompt(question, context string, sources []string, history []llm.ChatMessage) []llm.ChatMessage {
	system := llm.ChatMessage{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(systemPromptFormat, context, formatSources(sources)),
	}

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, llm.ChatMessage{
		Role:    llm.RoleUser,
		Content: question,
	})

	return messages
}

// formatSources renders the available-sources list for the system
// message, numbered from 1.
func formatSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n**Sources:**\n")
	for i, source := range sources {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, source)
	}
	return b.String()
}
