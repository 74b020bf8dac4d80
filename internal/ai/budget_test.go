package ai

import (
	"fmt"
	"strings"
	"testing"
)

func sentencePrompt(n int) (string, []string) {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		letter := string(rune('A' + i%26))
		parts = append(parts, fmt.Sprintf("%s sentence number %d explains one more idea in plain words.", letter, i))
	}
	return strings.Join(parts, " "), parts
}

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{"": 0, "abc": 1, "abcd": 1, "abcde": 2, "ééééé": 2}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Fatalf("EstimateTokens(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestTruncateUserPrompt_WholeSentences(t *testing.T) {
	prompt, parts := sentencePrompt(400)
	const target = 500

	out := TruncateUserPrompt(prompt, target)

	if got := EstimateTokens(out); got > target {
		t.Fatalf("truncated prompt is %d tokens, want <= %d", got, target)
	}
	if !strings.HasSuffix(out, TruncationNotice) {
		t.Fatalf("missing truncation notice: %q", out[len(out)-80:])
	}
	body := strings.TrimSuffix(out, TruncationNotice)
	if !strings.HasPrefix(prompt, body) {
		t.Fatalf("truncated body is not a prefix of the prompt")
	}
	kept := 0
	for _, p := range parts {
		if strings.Contains(body, p) {
			kept++
		}
	}
	if kept == 0 || kept == len(parts) {
		t.Fatalf("kept %d of %d sentences", kept, len(parts))
	}
	// every kept sentence is complete and the body ends on a boundary
	if body != strings.Join(parts[:kept], " ") {
		t.Fatalf("body cuts a sentence mid-way")
	}
}

func TestTruncateUserPrompt_FitsUnchanged(t *testing.T) {
	prompt, _ := sentencePrompt(3)
	if out := TruncateUserPrompt(prompt, 1000); out != prompt {
		t.Fatalf("prompt within budget was changed")
	}
}

func TestTruncateUserPrompt_OversizedFirstSentenceIsHardCut(t *testing.T) {
	prompt := strings.Repeat("x", 10000) + ". Short tail."
	out := TruncateUserPrompt(prompt, 100)

	if got := EstimateTokens(out); got > 100 {
		t.Fatalf("got %d tokens, want <= 100", got)
	}
	if !strings.HasSuffix(out, TruncationNotice) {
		t.Fatalf("missing truncation notice")
	}
	if !strings.HasPrefix(out, "xxxx") {
		t.Fatalf("expected leading characters to be kept, got %q", out[:10])
	}
}

func TestSplitSentences_RoundTrip(t *testing.T) {
	in := "First one. Second?  Third!\nFourth line\nv1.2 stays whole."
	parts := splitSentences(in)
	if strings.Join(parts, "") != in {
		t.Fatalf("parts do not concatenate back: %q", parts)
	}
	if len(parts) != 5 {
		t.Fatalf("got %d parts: %q", len(parts), parts)
	}
}
