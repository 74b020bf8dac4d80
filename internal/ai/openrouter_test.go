package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/suPer8Hu/coursegen/internal/config"
)

func TestOpenRouterChat_SendsStructuredOutput(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"ok\":true}"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "k", "m", "", "")
	out, err := p.Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "system", Content: "s"}, {Role: "user", Content: "u"}},
		Temperature: 0.7,
		MaxTokens:   100,
		Schema:      &Schema{Name: "syllabus", Definition: map[string]any{"type": "object"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out != `{"ok":true}` {
		t.Fatalf("unexpected content %q", out)
	}
	if got["temperature"] != 0.7 || got["max_tokens"] != float64(100) || got["model"] != "m" {
		t.Fatalf("unexpected body: %v", got)
	}
	rf := got["response_format"].(map[string]any)
	js := rf["json_schema"].(map[string]any)
	if rf["type"] != "json_schema" || js["name"] != "syllabus" || js["strict"] != true {
		t.Fatalf("unexpected response_format: %v", rf)
	}
}

func TestOpenRouterChat_ContextLengthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"This model's maximum context length is 8192 tokens","code":"context_length_exceeded"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "k", "gpt")
	_, err := p.Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrContextLength) {
		t.Fatalf("expected ErrContextLength, got %v", err)
	}
}

func TestOllamaChat_SendsFormatAndOptions(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{}"},"done":true}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama")
	if _, err := p.Chat(context.Background(), ChatRequest{
		Temperature: 0.5,
		MaxTokens:   50,
		Schema:      &Schema{Name: "content", Definition: map[string]any{"type": "object"}},
	}); err != nil {
		t.Fatalf("chat: %v", err)
	}
	if got["format"].(map[string]any)["type"] != "object" {
		t.Fatalf("format not sent: %v", got)
	}
	opts := got["options"].(map[string]any)
	if opts["temperature"] != 0.5 || opts["num_predict"] != float64(50) {
		t.Fatalf("unexpected options: %v", opts)
	}
}

func TestConfiguredRegistry(t *testing.T) {
	r := NewConfiguredRegistry(config.Config{OllamaBaseURL: "http://ollama:11434", OllamaModel: "qwen", OpenAIModel: "gpt"})

	p, err := r.Get(context.Background(), " Ollama ", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if op, ok := p.(*OllamaProvider); !ok || op.Model != "qwen" {
		t.Fatalf("unexpected provider %#v", p)
	}
	p, err = r.Get(context.Background(), "openai", "gpt-override")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if op := p.(*OpenRouterProvider); op.Name != "openai" || op.Model != "gpt-override" {
		t.Fatalf("unexpected provider %#v", p)
	}
	if _, err := r.Get(context.Background(), "nope", ""); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
