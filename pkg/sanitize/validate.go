package sanitize

import (
	"strings"

	"github.com/opsmux/opsmux/pkg/errors"
)

// matcher is one label matcher parsed from a brace selector
type matcher struct {
	label string
	op    string // =, !=, =~, !~
	value string // unquoted
	quote byte   // delimiter observed: '"', '\'' or '`'; 0 for bare
}

// Validate checks the structural validity of a selector-based query.
// It rejects an empty selector, a selector whose matchers all match
// everything, single-quoted values, and line-filter regexes with
// unbalanced parentheses or brackets. The returned error is a
// validation error carrying a human-readable reason.
func Validate(query string) error {
	ok, reason := Check(query)
	if !ok {
		return errors.New(errors.ErrorTypeValidation, reason)
	}
	return nil
}

// Check performs the same structural validation as Validate but never
// raises: it reports validity plus a human-readable reason.
func Check(query string) (bool, string) {
	q := strings.TrimSpace(query)
	if q == "" {
		return false, "query is empty"
	}

	open := strings.IndexByte(q, '{')
	if open < 0 {
		return false, "query has no selector"
	}
	end := closingBrace(q, open)
	if end < 0 {
		return false, "selector braces are unbalanced"
	}

	matchers, perr := parseMatchers(q[open+1 : end])
	if perr != "" {
		return false, perr
	}

	if len(matchers) == 0 {
		return false, "selector is empty"
	}

	discriminating := false
	for _, m := range matchers {
		if m.quote == '\'' {
			return false, "single-quoted values are not valid in this query language; use double quotes"
		}
		if !matchesEverything(m) {
			discriminating = true
		}
	}
	if !discriminating {
		return false, "selector matches everything; add at least one discriminating matcher"
	}

	if ok, reason := checkLineFilters(q[end+1:]); !ok {
		return false, reason
	}

	return true, ""
}

// matchesEverything reports whether a single matcher is semantically
// equivalent to "match everything": an empty value, or a regex match
// against .*
func matchesEverything(m matcher) bool {
	if m.value == "" {
		return true
	}
	if (m.op == "=~" || m.op == "!~") && m.value == ".*" {
		return true
	}
	return false
}

// closingBrace returns the index of the brace closing the one at open,
// ignoring braces inside quoted values, or -1.
func closingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '"', '\'', '`':
			i = skipQuoted(s, i)
			if i < 0 {
				return -1
			}
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

// skipQuoted returns the index of the quote closing the one at i,
// honoring backslash escapes inside double quotes, or -1.
func skipQuoted(s string, i int) int {
	delim := s[i]
	for j := i + 1; j < len(s); j++ {
		if delim == '"' && s[j] == '\\' {
			j++
			continue
		}
		if s[j] == delim {
			return j
		}
	}
	return -1
}

// parseMatchers splits the selector body into matchers. Returns a
// non-empty reason string on malformed input.
func parseMatchers(body string) ([]matcher, string) {
	var matchers []matcher

	for _, part := range splitTopLevel(body, ',') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		opIdx, op := findOperator(part)
		if opIdx < 0 {
			return nil, "matcher " + strings.TrimSpace(part) + " has no operator"
		}

		label := strings.TrimSpace(part[:opIdx])
		rawValue := strings.TrimSpace(part[opIdx+len(op):])
		if label == "" {
			return nil, "matcher has no label name"
		}

		m := matcher{label: label, op: op}
		if len(rawValue) >= 2 {
			first := rawValue[0]
			last := rawValue[len(rawValue)-1]
			if (first == '"' || first == '\'' || first == '`') && last == first {
				m.quote = first
				m.value = rawValue[1 : len(rawValue)-1]
			} else {
				m.value = rawValue
			}
		} else {
			m.value = rawValue
		}

		matchers = append(matchers, m)
	}

	return matchers, ""
}

// splitTopLevel splits on sep outside of quoted spans
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', '\'', '`':
			j := skipQuoted(s, i)
			if j < 0 {
				i = len(s)
			} else {
				i = j
			}
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// findOperator locates the matcher operator in one selector entry
func findOperator(s string) (int, string) {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '=':
			if i+1 < len(s) && s[i+1] == '~' {
				return i, "=~"
			}
			return i, "="
		case '!':
			if i+1 < len(s) {
				if s[i+1] == '=' {
					return i, "!="
				}
				if s[i+1] == '~' {
					return i, "!~"
				}
			}
		}
	}
	return -1, ""
}

// checkLineFilters validates every regex line filter (`|~`, `!~`)
// following the selector for balanced parentheses and brackets.
func checkLineFilters(rest string) (bool, string) {
	for i := 0; i+1 < len(rest); i++ {
		if (rest[i] != '|' && rest[i] != '!') || rest[i+1] != '~' {
			continue
		}

		j := i + 2
		for j < len(rest) && (rest[j] == ' ' || rest[j] == '\t') {
			j++
		}
		if j >= len(rest) || (rest[j] != '"' && rest[j] != '`') {
			continue
		}

		end := skipQuoted(rest, j)
		if end < 0 {
			return false, "line-filter literal is unterminated"
		}

		literal := rest[j+1 : end]
		if !balanced(literal, '(', ')') {
			return false, "line-filter regex has unbalanced parentheses: " + literal
		}
		if !balanced(literal, '[', ']') {
			return false, "line-filter regex has unbalanced brackets: " + literal
		}
		i = end
	}
	return true, ""
}

// balanced reports whether open/close pairs in a regex literal are
// balanced, ignoring escaped characters.
func balanced(s string, open, closeCh byte) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case open:
			depth++
		case closeCh:
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
