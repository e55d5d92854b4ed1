package extract

import "strings"

// StripThinking removes <think>...</think> blocks some reasoning models put
// ahead of their answer. An unclosed block drops everything after it.
func StripThinking(s string) string {
	const open, closing = "<think>", "</think>"
	for {
		start := strings.Index(s, open)
		if start == -1 {
			break
		}
		end := strings.Index(s[start:], closing)
		if end == -1 {
			s = s[:start]
			break
		}
		s = s[:start] + s[start+end+len(closing):]
	}
	return strings.TrimSpace(s)
}
