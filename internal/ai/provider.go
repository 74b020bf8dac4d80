package ai

import (
	"context"
	"errors"
	"strings"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema constrains the provider output to a JSON schema.
type Schema struct {
	Name       string
	Definition map[string]any
}

type ChatRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Schema      *Schema
}

type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ErrContextLength is wrapped by providers when the request exceeded the model context window.
var ErrContextLength = errors.New("ai: context length exceeded")

func isContextLengthMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "context_length_exceeded") ||
		strings.Contains(m, "context length") ||
		strings.Contains(m, "maximum context") ||
		strings.Contains(m, "too many tokens")
}
