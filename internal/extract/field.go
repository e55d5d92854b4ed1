// Package extract pulls the classifier's answer out of a response body and
// decodes the lineage candidates it contains.
package extract

import "strings"

// Field returns the unescaped value of the first "key":"..." string field in
// body. It is a literal scan, not a JSON parse: the pattern must appear with no
// whitespace around the colon, and only the escapes \n \r \t \" \\ are
// translated; any other escaped character is kept as is. A value with no
// closing quote yields everything scanned up to the end of body.
func Field(body, key string) (string, bool) {
	marker := `"` + key + `":"`
	start := strings.Index(body, marker)
	if start < 0 {
		return "", false
	}

	var b strings.Builder
	escaped := false
	for i := start + len(marker); i < len(body); i++ {
		c := body[i]
		if escaped {
			switch c {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(c)
			}
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			return b.String(), true
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}
