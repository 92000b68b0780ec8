package extract

import "strings"

// repairSoftWraps joins lines that a terminal wrapped inside JSON string
// literals. A newline inside a string, together with the indentation that
// follows it, becomes a single space. Text outside strings is untouched.
func repairSoftWraps(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = false
		case c == '\r':
			continue
		case c == '\n':
			b.WriteByte(' ')
			for i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				i++
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
