// Package sqltext turns raw SQL script text into comment-free lines and
// top-level statements. It knows nothing about SQL grammar beyond comment
// markers, a fixed set of leading keywords and the ';' terminator.
package sqltext

import "strings"

// StripLine removes comments from a single line. inBlock reports whether the
// line starts inside an unterminated /* ... */ comment; the returned bool is
// the same flag for the line that follows.
//
// A line whose trimmed form starts with '#' is dropped whole and leaves the
// block state untouched. Inside a block comment only "*/" has meaning.
// Quoted string literals are not recognised, so markers inside them are
// treated as comments too.
func StripLine(line string, inBlock bool) (string, bool) {
	if strings.HasPrefix(strings.TrimSpace(line), "#") {
		return "", inBlock
	}

	var b strings.Builder
	i := 0
	for i < len(line) {
		if inBlock {
			end := strings.Index(line[i:], "*/")
			if end < 0 {
				return b.String(), true
			}
			i += end + 2
			inBlock = false
			continue
		}
		if strings.HasPrefix(line[i:], "/*") {
			inBlock = true
			i += 2
			continue
		}
		if strings.HasPrefix(line[i:], "--") {
			break
		}
		b.WriteByte(line[i])
		i++
	}
	return b.String(), inBlock
}

// StripComments folds StripLine over lines and returns the non-blank results
// in their original order.
func StripComments(lines []string) []string {
	out := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		var cleaned string
		cleaned, inBlock = StripLine(line, inBlock)
		if strings.TrimSpace(cleaned) == "" {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}

// StripText is StripComments over newline-separated text. Each kept line is
// followed by a single '\n'.
func StripText(text string) string {
	var b strings.Builder
	for _, line := range StripComments(SplitLines(text)) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// SplitLines splits on "\n", "\r\n" and lone "\r".
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}
