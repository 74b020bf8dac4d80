package ai

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TruncationNotice is appended to a user prompt that was cut to fit the budget.
const TruncationNotice = "\n\n[Context truncated to fit the model context window.]"

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// TruncateUserPrompt keeps whole leading sentences of prompt so that the
// result, notice included, stays within maxTokens. A prompt that already fits
// is returned unchanged. When not even the first sentence fits, it is cut at
// the character limit.
func TruncateUserPrompt(prompt string, maxTokens int) string {
	if EstimateTokens(prompt) <= maxTokens {
		return prompt
	}
	maxRunes := maxTokens * 4
	notice := []rune(TruncationNotice)
	budget := maxRunes - len(notice)
	if budget <= 0 {
		if maxRunes <= 0 {
			return ""
		}
		return string(notice[:maxRunes])
	}

	var kept strings.Builder
	used := 0
	for _, s := range splitSentences(prompt) {
		n := utf8.RuneCountInString(s)
		if used+n > budget {
			break
		}
		kept.WriteString(s)
		used += n
	}

	body := strings.TrimRightFunc(kept.String(), unicode.IsSpace)
	if body == "" {
		body = strings.TrimRightFunc(string([]rune(prompt)[:budget]), unicode.IsSpace)
	}
	return body + TruncationNotice
}

// splitSentences cuts after ".", "!" or "?" followed by whitespace, and after
// newlines. Trailing whitespace stays with the sentence it follows, so the
// parts concatenate back to s.
func splitSentences(s string) []string {
	var out []string
	rs := []rune(s)
	start := 0
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		end := false
		switch {
		case r == '\n':
			end = true
		case r == '.' || r == '!' || r == '?':
			end = i+1 == len(rs) || unicode.IsSpace(rs[i+1])
		}
		if !end {
			continue
		}
		j := i + 1
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		out = append(out, string(rs[start:j]))
		start = j
		i = j - 1
	}
	if start < len(rs) {
		out = append(out, string(rs[start:]))
	}
	return out
}
