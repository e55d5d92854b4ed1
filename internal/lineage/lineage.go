// Package lineage holds table-to-table lineage pairs and the validation
// applied to the names a classifier proposes for a statement.
package lineage

import (
	"strings"
	"time"
)

// Candidate is a source/target pair exactly as the classifier reported it.
type Candidate struct {
	Source string `json:"sourceTable"`
	Target string `json:"targetTable"`
}

// Pair is a validated, normalized lineage pair.
type Pair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Key is the deduplication key of a pair.
func (p Pair) Key() string { return p.Source + "|" + p.Target }

// SelfReference reports whether a statement reads and writes the same table.
func (p Pair) SelfReference() bool { return p.Source == p.Target }

// Edge is a pair together with where it was found. It is the unit persisted
// by every store.
type Edge struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	FilePath  string    `json:"file_path"`
	QueryText string    `json:"query_text"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEdge stamps a pair with its origin.
func NewEdge(p Pair, filePath, queryText, model string) Edge {
	return Edge{
		Source:    p.Source,
		Target:    p.Target,
		FilePath:  filePath,
		QueryText: queryText,
		Model:     model,
		CreatedAt: time.Now(),
	}
}

// Pair returns the edge's source and target.
func (e Edge) Pair() Pair { return Pair{Source: e.Source, Target: e.Target} }

// NormalizeName trims, upper-cases and drops any schema qualifier and
// identifier quoting: ` "dw"."Orders" ` becomes "ORDERS".
func NormalizeName(name string) string {
	s := strings.TrimSpace(name)
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	s = strings.Trim(s, "\"`[] ")
	return strings.ToUpper(s)
}
