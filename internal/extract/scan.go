package extract

import "strings"

// balancedForward returns the end index (inclusive) of the object that
// opens at text[start], honoring string literals and escapes.
// It returns -1 when the braces never balance.
func balancedForward(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// balancedBackward returns the index of the opening brace that matches
// the closing brace at text[end], scanning towards the start of text.
// It returns -1 when no match exists.
func balancedBackward(text string, end int) int {
	depth := 0
	inString := false
	for i := end; i >= 0; i-- {
		c := text[i]
		if c == '"' && !escapedAt(text, i) {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// escapedAt reports whether the byte at i is preceded by an odd number
// of backslashes.
func escapedAt(text string, i int) bool {
	n := 0
	for j := i - 1; j >= 0 && text[j] == '\\'; j-- {
		n++
	}
	return n%2 == 1
}

// lastBalancedSpan returns the span that ends at the last closing brace.
func lastBalancedSpan(text string) (string, bool) {
	end := strings.LastIndexByte(text, '}')
	if end < 0 {
		return "", false
	}
	start := balancedBackward(text, end)
	if start < 0 {
		return "", false
	}
	return text[start : end+1], true
}

// forwardSpans calls yield with each balanced span in order of its
// opening brace until yield returns false.
func forwardSpans(text string, yield func(string) bool) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := balancedForward(text, start); end >= 0 {
			if !yield(text[start : end+1]) {
				return
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			return
		}
		start += next + 1
	}
}
