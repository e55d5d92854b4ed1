package lineage

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Validator filters classifier candidates down to pairs whose names both
// appear in the statement text. It never corrects a name.
type Validator struct {
	logger zerolog.Logger
}

// NewValidator returns a Validator that logs rejected candidates at debug
// level on logger.
func NewValidator(logger zerolog.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate returns the accepted pairs in candidate order with duplicates
// removed; the first occurrence of a (source, target) key wins. Pairs with an
// empty side are dropped. A pair whose source equals its target is kept.
func (v *Validator) Validate(statement string, candidates []Candidate) []Pair {
	if v == nil {
		v = &Validator{logger: zerolog.Nop()}
	}
	upper := strings.ToUpper(statement)
	seen := make(map[string]struct{}, len(candidates))
	var out []Pair
	for _, c := range candidates {
		p := Pair{Source: NormalizeName(c.Source), Target: NormalizeName(c.Target)}
		if p.Source == "" || p.Target == "" {
			v.logger.Debug().Str("source", c.Source).Str("target", c.Target).Msg("empty table name")
			continue
		}
		if !ContainsTable(upper, p.Source) {
			v.logger.Warn().Str("table", p.Source).Msg("source table not found in statement")
			continue
		}
		if !ContainsTable(upper, p.Target) {
			v.logger.Warn().Str("table", p.Target).Msg("target table not found in statement")
			continue
		}
		if _, dup := seen[p.Key()]; dup {
			v.logger.Debug().Str("pair", p.Key()).Msg("duplicate pair")
			continue
		}
		seen[p.Key()] = struct{}{}
		out = append(out, p)
	}
	return out
}

// ContainsTable reports whether name occurs in text as a whole token,
// ignoring case. The characters on either side must be non-word characters
// (anything but a letter, digit or '_') or the ends of text. '.' is a
// non-word character, so SCHEMA.NAME matches NAME.
func ContainsTable(text, name string) bool {
	if name == "" {
		return false
	}
	text = strings.ToUpper(text)
	name = strings.ToUpper(name)
	for from := 0; from <= len(text)-len(name); {
		i := strings.Index(text[from:], name)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(name)
		if boundaryBefore(text, start) && boundaryAfter(text, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWord(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !isWord(r)
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
