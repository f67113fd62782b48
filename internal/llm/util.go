// Package llm - util.go provides shared utilities for LLM response processing.
package llm

import "strings"

// StripCodeFence removes a markdown code fence wrapped around the whole
// response. Models often answer "```markdown ... ```" even when asked for
// plain Markdown; inner fences are left alone.
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}

	body := strings.TrimPrefix(text, "```")
	// Skip potential language identifier on first line
	if idx := strings.Index(body, "\n"); idx >= 0 {
		firstLine := body[:idx]
		if len(firstLine) < 20 && !strings.Contains(firstLine, " ") {
			body = body[idx+1:]
		}
	}
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
