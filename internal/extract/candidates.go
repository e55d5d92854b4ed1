package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/efebarandurmaz/sqllineage/internal/lineage"
)

var (
	// ErrEmptyContent is returned when the classifier answered with nothing.
	ErrEmptyContent = errors.New("extract: empty content")
	// ErrNoLineages is returned when the payload has no "lineages" array.
	ErrNoLineages = errors.New("extract: lineages is not an array")
)

var fenceReplacer = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// StripFences removes markdown code fence markers anywhere in s and trims the
// result.
func StripFences(s string) string {
	return strings.TrimSpace(fenceReplacer.Replace(s))
}

// BoundJSON cuts s down to the text between its first '{' and last '}'
// inclusive, dropping prose a model put around the object. s is returned
// unchanged when it has no such span.
func BoundJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

type payload struct {
	Lineages json.RawMessage `json:"lineages"`
}

// Candidates decodes {"lineages":[{"sourceTable":..,"targetTable":..}]} from
// the classifier's answer. Names are trimmed and upper-cased; entries with
// missing fields come back as empty names for the validator to reject.
func Candidates(content string) ([]lineage.Candidate, error) {
	cleaned := BoundJSON(StripFences(content))
	if cleaned == "" {
		return nil, ErrEmptyContent
	}

	var p payload
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil {
		return nil, fmt.Errorf("extract: decode lineages: %w", err)
	}
	raw := strings.TrimSpace(string(p.Lineages))
	if !strings.HasPrefix(raw, "[") {
		return nil, ErrNoLineages
	}

	var entries []map[string]any
	if err := json.Unmarshal(p.Lineages, &entries); err != nil {
		return nil, fmt.Errorf("extract: decode lineages: %w", err)
	}
	out := make([]lineage.Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, lineage.Candidate{
			Source: strings.ToUpper(strings.TrimSpace(asText(e["sourceTable"]))),
			Target: strings.ToUpper(strings.TrimSpace(asText(e["targetTable"]))),
		})
	}
	return out, nil
}

func asText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
