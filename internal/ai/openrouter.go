package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenRouterProvider speaks the OpenAI-compatible chat completions API.
// OpenAI itself is served by the same type via NewOpenAIProvider.
type OpenRouterProvider struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

type openRouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict"`
}

type responseFormat struct {
	Type       string           `json:"type"`
	JSONSchema jsonSchemaFormat `json:"json_schema"`
}

type openRouterChatReq struct {
	Model          string          `json:"model"`
	Messages       []openRouterMsg `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Stream         bool            `json:"stream"`
}

type openRouterError struct {
	Message string `json:"message"`
	Code    any    `json:"code,omitempty"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message      openRouterMsg `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *openRouterError `json:"error,omitempty"`
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		Name:    "openrouter",
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	p := NewOpenRouterProvider(baseURL, apiKey, model, "", "")
	p.Name = "openai"
	return p
}

func (p *OpenRouterProvider) errorf(format string, args ...any) error {
	return fmt.Errorf(p.Name+": "+format, args...)
}

func (p *OpenRouterProvider) Chat(ctx context.Context, in ChatRequest) (string, error) {
	if p.Client == nil {
		return "", p.errorf("http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return "", p.errorf("api key is required")
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return "", p.errorf("model is required")
	}

	reqBody := openRouterChatReq{
		Model:       model,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxTokens,
		Stream:      false,
		Messages: func() []openRouterMsg {
			out := make([]openRouterMsg, 0, len(in.Messages))
			for _, m := range in.Messages {
				out = append(out, openRouterMsg{Role: m.Role, Content: m.Content})
			}
			return out
		}(),
	}
	if in.Schema != nil {
		reqBody.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaFormat{
				Name:   in.Schema.Name,
				Schema: in.Schema.Definition,
				Strict: true,
			},
		}
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if isContextLengthMessage(msg) {
			return "", fmt.Errorf("%s: %w: %s", p.Name, ErrContextLength, msg)
		}
		return "", p.errorf("%s", msg)
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		if isContextLengthMessage(decoded.Error.Message) {
			return "", fmt.Errorf("%s: %w: %s", p.Name, ErrContextLength, decoded.Error.Message)
		}
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", p.errorf("empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}
