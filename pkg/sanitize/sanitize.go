// Package sanitize repairs and validates structured filter queries
// before they are sent to a log or metrics engine. Query text that has
// passed through several JSON serialization layers arrives with
// over-escaped quotes, unicode quotation marks pasted from chat tools,
// and stray newlines; Sanitize normalizes all of that without touching
// content inside quoted literals.
//
// The transform is four ordered stages:
//
//  1. trim outer whitespace
//  2. unwrap over-escaped quotes adjacent to a selector operator
//  3. normalize unicode quote variants and backtick selector values
//  4. collapse whitespace runs outside quoted spans
//
// Sanitize is idempotent: applying it twice yields the same text.
package sanitize

import (
	"strings"
)

// Sanitize applies the four-stage transform to a query
func Sanitize(query string) string {
	s := strings.TrimSpace(query)
	s = unwrapEscapedQuotes(s)
	s = normalizeQuoteVariants(s)
	s = collapseWhitespace(s)
	return s
}

// unwrapEscapedQuotes strips backslash-escaping from quote pairs that
// delimit selector values. Escaping is unwrapped only when the opening
// escaped quote sits directly after a matcher operator (`=` or `~`);
// escaped quotes inside free-text content are left alone. Triple
// escaping (two JSON layers) is handled before single escaping so a
// doubly serialized query unwraps in one pass.
func unwrapEscapedQuotes(s string) string {
	for _, depth := range []int{3, 2, 1} {
		esc := strings.Repeat(`\`, depth) + `"`
		for {
			open := indexOperatorEscape(s, esc)
			if open < 0 {
				break
			}
			rest := open + len(esc)
			end := strings.Index(s[rest:], esc)
			if end < 0 {
				break
			}
			end += rest
			s = s[:open] + `"` + s[rest:end] + `"` + s[end+len(esc):]
		}
	}
	return s
}

// indexOperatorEscape finds an escaped quote immediately preceded by a
// matcher operator character, or -1. The scan tracks unescaped
// double-quoted spans so that an operator inside free-text content (a
// key=value pair in a line-filter literal, say) never counts as a
// selector operator.
func indexOperatorEscape(s, esc string) int {
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if !inQuote && i > 0 && (s[i-1] == '=' || s[i-1] == '~') && strings.HasPrefix(s[i:], esc) {
				return i
			}
			// The escaped character never toggles quote state.
			i++
		case '"':
			inQuote = !inQuote
		}
	}
	return -1
}

// quoteVariants maps unicode quotation marks to their ASCII forms
var quoteVariants = strings.NewReplacer(
	"“", `"`, // left double quotation mark
	"”", `"`, // right double quotation mark
	"‘", `'`, // left single quotation mark
	"’", `'`, // right single quotation mark
)

// normalizeQuoteVariants maps unicode quotes to plain ASCII quotes and
// rewrites backtick-delimited selector values to double-quoted form.
// Backticks outside a brace selector (a raw regex body in a line
// filter, for instance) are left untouched.
func normalizeQuoteVariants(s string) string {
	s = quoteVariants.Replace(s)

	var b strings.Builder
	b.Grow(len(s))

	braceDepth := 0
	inQuote := false
	inBacktickValue := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inQuote {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
				continue
			}
			if c == '"' {
				inQuote = false
			}
			continue
		}

		if inBacktickValue {
			if c == '`' {
				b.WriteByte('"')
				inBacktickValue = false
			} else {
				b.WriteByte(c)
			}
			continue
		}

		switch c {
		case '{':
			braceDepth++
			b.WriteByte(c)
		case '}':
			if braceDepth > 0 {
				braceDepth--
			}
			b.WriteByte(c)
		case '"':
			inQuote = true
			b.WriteByte(c)
		case '`':
			// Only a backtick opening a selector value is rewritten.
			if braceDepth > 0 && i > 0 && (s[i-1] == '=' || s[i-1] == '~') {
				b.WriteByte('"')
				inBacktickValue = true
			} else {
				b.WriteByte(c)
				// Skip over the raw span so its content stays verbatim.
				for i+1 < len(s) {
					i++
					b.WriteByte(s[i])
					if s[i] == '`' {
						break
					}
				}
			}
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// collapseWhitespace reduces every run of whitespace outside of
// double-quoted or backtick-quoted spans to a single space. Content
// inside such spans, including internal whitespace and backslash
// escapes, is preserved verbatim.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inQuote := false
	inBacktick := false
	pendingSpace := false

	for i := 0; i < len(s); i++ {
		c := s[i]

		if inQuote {
			b.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				b.WriteByte(s[i])
				continue
			}
			if c == '"' {
				inQuote = false
			}
			continue
		}

		if inBacktick {
			b.WriteByte(c)
			if c == '`' {
				inBacktick = false
			}
			continue
		}

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			pendingSpace = true
			continue
		}

		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}

		b.WriteByte(c)
		if c == '"' {
			inQuote = true
		} else if c == '`' {
			inBacktick = true
		}
	}

	return b.String()
}
