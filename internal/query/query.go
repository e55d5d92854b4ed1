// Package query holds the statement model produced by segmenting a SQL file.
package query

import (
	"strings"

	"github.com/efebarandurmaz/sqllineage/internal/sqltext"
)

// Query is one top-level statement taken from a source file.
type Query struct {
	FilePath     string `json:"file_path"`
	Index        int    `json:"index"`
	Text         string `json:"text"`
	NeedsLineage bool   `json:"needs_lineage"`
}

// New builds a Query and classifies it.
func New(path string, index int, text string) Query {
	return Query{
		FilePath:     path,
		Index:        index,
		Text:         text,
		NeedsLineage: NeedsLineageAnalysis(text),
	}
}

// NeedsLineageAnalysis reports whether a statement can move data between
// tables: INSERT, UPDATE, MERGE, or a CREATE containing "AS SELECT".
// This is a text heuristic; a string literal containing "AS SELECT" is enough
// to classify a CREATE as needing analysis.
func NeedsLineageAnalysis(text string) bool {
	s := strings.ToUpper(strings.TrimSpace(text))
	if s == "" {
		return false
	}
	switch {
	case strings.HasPrefix(s, "INSERT"),
		strings.HasPrefix(s, "UPDATE"),
		strings.HasPrefix(s, "MERGE"):
		return true
	case strings.HasPrefix(s, "CREATE"):
		return strings.Contains(s, "AS SELECT")
	}
	return false
}

// FromLines strips comments from the raw lines of one file and returns its
// statements in order.
func FromLines(path string, lines []string) []Query {
	stmts := sqltext.Segment(sqltext.StripComments(lines))
	out := make([]Query, 0, len(stmts))
	for i, s := range stmts {
		out = append(out, New(path, i, s))
	}
	return out
}

// Analyzable returns the queries that need lineage analysis.
func Analyzable(qs []Query) []Query {
	var out []Query
	for _, q := range qs {
		if q.NeedsLineage {
			out = append(out, q)
		}
	}
	return out
}
