package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsmux/opsmux/pkg/errors"
)

func TestValidate_AcceptsDiscriminatingSelectors(t *testing.T) {
	queries := []string{
		`{job="api"}`,
		`{job="api", env="prod"}`,
		`{job=~".+"}`,
		`{job!="api", env="prod"}`,
		`{job="api"} |= "error"`,
		`{job="api"} |~ "(timeout|refused)"`,
		`{job="api"} |~ ` + "`\\[error\\]`",
	}

	for _, q := range queries {
		assert.NoError(t, Validate(q), "query %q", q)
	}
}

func TestValidate_RejectsInvalidQueries(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		reason string
	}{
		{
			name:   "empty query",
			query:  "",
			reason: "query is empty",
		},
		{
			name:   "no selector",
			query:  `job="api"`,
			reason: "no selector",
		},
		{
			name:   "empty selector",
			query:  `{}`,
			reason: "selector is empty",
		},
		{
			name:   "unbalanced braces",
			query:  `{job="api"`,
			reason: "unbalanced",
		},
		{
			name:   "match-everything regex",
			query:  `{job=~".*"}`,
			reason: "matches everything",
		},
		{
			name:   "empty value",
			query:  `{job=""}`,
			reason: "matches everything",
		},
		{
			name:   "all matchers vacuous",
			query:  `{job=~".*", env=""}`,
			reason: "matches everything",
		},
		{
			name:   "single-quoted value",
			query:  `{job='api'}`,
			reason: "single-quoted",
		},
		{
			name:   "matcher without operator",
			query:  `{job}`,
			reason: "no operator",
		},
		{
			name:   "unbalanced line-filter parens",
			query:  `{job="api"} |~ "(timeout"`,
			reason: "unbalanced parentheses",
		},
		{
			name:   "unbalanced line-filter brackets",
			query:  `{job="api"} |~ "[0-9"`,
			reason: "unbalanced brackets",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.query)
			assert.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
			assert.Contains(t, err.Error(), tt.reason)

			ok, reason := Check(tt.query)
			assert.False(t, ok)
			assert.Contains(t, reason, tt.reason)
		})
	}
}

func TestValidate_EscapedDelimitersInRegex(t *testing.T) {
	// Escaped parens and brackets do not count toward balance.
	assert.NoError(t, Validate(`{job="api"} |~ "\(pending\)"`))
	assert.NoError(t, Validate(`{job="api"} |~ "\[core\]"`))
}
