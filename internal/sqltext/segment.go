package sqltext

import (
	"regexp"
	"strings"
)

var startKeyword = regexp.MustCompile(`(?i)^(SELECT|INSERT|UPDATE|DELETE|MERGE|CREATE|ALTER|DROP|TRUNCATE|WITH)`)

// IsStatementStart reports whether a trimmed line opens a statement. The match
// is an anchored prefix, so "SELECTED_ROWS" counts as well.
func IsStatementStart(trimmed string) bool {
	return startKeyword.MatchString(trimmed)
}

// Segment groups comment-free lines into top-level statements.
//
// A statement opens on a line starting with a recognised keyword and closes on
// the first line whose trimmed form ends with ';'. Lines outside any statement
// are dropped, a keyword seen inside an open statement is ordinary text, and
// an unterminated tail is still returned. Each statement is trimmed.
func Segment(lines []string) []string {
	var (
		out         []string
		cur         strings.Builder
		inStatement bool
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !inStatement && IsStatementStart(trimmed) {
			inStatement = true
		}
		if !inStatement {
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
			inStatement = false
		}
	}
	if tail := strings.TrimSpace(cur.String()); tail != "" {
		out = append(out, tail)
	}
	return out
}
