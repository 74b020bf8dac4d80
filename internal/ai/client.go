package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/coursegen/internal/config"
	"github.com/suPer8Hu/coursegen/internal/logger"
)

const rawSnippetRunes = 500

// GenerationError covers provider transport failures and unparseable output.
type GenerationError struct {
	Message string
	// Raw holds the start of the model output when parsing failed.
	Raw string
	Err error
}

func (e *GenerationError) Error() string {
	var b strings.Builder
	b.WriteString("ai generation failed: ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Raw != "" {
		b.WriteString("; raw=")
		b.WriteString(e.Raw)
	}
	return b.String()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Recorder receives call outcomes. metrics.Collector implements it.
type Recorder interface {
	AIRequest(outcome string)
	PromptTruncated()
}

type Options struct {
	Temperature    float64
	MaxTokens      int
	TokenCeiling   int
	TruncateTokens int
	Timeout        time.Duration
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Temperature:    cfg.AITemperature,
		MaxTokens:      cfg.AIMaxTokens,
		TokenCeiling:   cfg.AITokenCeiling,
		TruncateTokens: cfg.AITruncateTokens,
		Timeout:        cfg.AITimeout,
	}
}

type Client struct {
	provider Provider
	opts     Options
	rec      Recorder
	log      *logger.Logger
	now      func() time.Time
}

func NewClient(provider Provider, opts Options, rec Recorder, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	return &Client{provider: provider, opts: opts, rec: rec, log: log, now: time.Now}
}

// WithClock overrides the clock used for citation access dates.
func (c *Client) WithClock(now func() time.Time) *Client {
	cp := *c
	cp.now = now
	return &cp
}

// Generate sends one structured-output request and returns the parsed JSON object.
// An oversized user prompt is trimmed before sending, and once more if the
// provider still reports a context-length error.
func (c *Client) Generate(ctx context.Context, system, user string, schema Schema) (map[string]any, error) {
	truncated := false
	if c.opts.TokenCeiling > 0 && EstimateTokens(system+user) > c.opts.TokenCeiling {
		user = c.truncate(system, user)
		truncated = true
	}

	text, err := c.chat(ctx, system, user, schema)
	if err != nil && errors.Is(err, ErrContextLength) && !truncated {
		c.log.Warn("ai context length exceeded, retrying with truncated prompt", "schema", schema.Name)
		user = c.truncate(system, user)
		text, err = c.chat(ctx, system, user, schema)
	}
	if err != nil {
		c.record("error")
		return nil, &GenerationError{Message: "provider call failed", Err: err}
	}

	obj, err := parseObject(text)
	if err != nil {
		c.record("invalid_json")
		return nil, &GenerationError{Message: "response is not a JSON object", Raw: clip(text, rawSnippetRunes), Err: err}
	}

	backfillAccessDates(obj, c.now().UTC().Format("2006-01-02"))
	c.record("ok")
	return obj, nil
}

func (c *Client) truncate(system, user string) string {
	target := c.opts.TruncateTokens
	if target <= 0 {
		target = c.opts.TokenCeiling * 2 / 3
	}
	out := TruncateUserPrompt(user, target)
	if out != user {
		if c.rec != nil {
			c.rec.PromptTruncated()
		}
		c.log.Warn("ai prompt truncated",
			"estimated_tokens", EstimateTokens(system+user),
			"target_tokens", target,
		)
	}
	return out
}

func (c *Client) chat(ctx context.Context, system, user string, schema Schema) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	req := ChatRequest{
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
	}
	if schema.Definition != nil {
		s := schema
		req.Schema = &s
	}
	return c.provider.Chat(ctx, req)
}

func (c *Client) record(outcome string) {
	if c.rec != nil {
		c.rec.AIRequest(outcome)
	}
}

func parseObject(text string) (map[string]any, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, errors.New("empty output")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("output is null")
	}
	return obj, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models add despite structured output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func backfillAccessDates(obj map[string]any, today string) {
	citations, ok := obj["citations"].([]any)
	if !ok {
		return
	}
	for _, c := range citations {
		m, ok := c.(map[string]any)
		if !ok {
			continue
		}
		if v, _ := m["access_date"].(string); strings.TrimSpace(v) == "" {
			m["access_date"] = today
		}
	}
}

func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return fmt.Sprintf("%s...(%d more chars)", string(rs[:n]), len(rs)-n)
}
