package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_TrimsOuterWhitespace(t *testing.T) {
	assert.Equal(t, `{job="api"}`, Sanitize("  \n\t"+`{job="api"}`+"  \n"))
}

func TestSanitize_UnwrapsEscapedQuotes(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "single escaping",
			input: `{job=\"api\"}`,
			want:  `{job="api"}`,
		},
		{
			name:  "double escaping",
			input: `{job=\\\"api\\\"}`,
			want:  `{job="api"}`,
		},
		{
			name:  "regex matcher",
			input: `{job=~\"api.*\"}`,
			want:  `{job=~"api.*"}`,
		},
		{
			name:  "negative matcher",
			input: `{job!=\"api\"}`,
			want:  `{job!="api"}`,
		},
		{
			name:  "escaped quote in free text untouched",
			input: `{job="api"} |= "say \"hi\""`,
			want:  `{job="api"} |= "say \"hi\""`,
		},
		{
			name:  "operator inside line filter literal untouched",
			input: `{app="x"} |= "key=\"value\""`,
			want:  `{app="x"} |= "key=\"value\""`,
		},
		{
			name:  "selector unwrap with operator in trailing free text",
			input: `{app=\"x\"} |= "key=\"value\""`,
			want:  `{app="x"} |= "key=\"value\""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitize_NormalizesQuoteVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "unicode double quotes",
			input: `{job=“api”}`,
			want:  `{job="api"}`,
		},
		{
			name:  "backtick selector value",
			input: "{job=`api`}",
			want:  `{job="api"}`,
		},
		{
			name:  "backtick regex value",
			input: "{job=~`api.*`}",
			want:  `{job=~"api.*"}`,
		},
		{
			name:  "backtick line filter preserved",
			input: `{job="api"} |~ ` + "`\\d+ errors`",
			want:  `{job="api"} |~ ` + "`\\d+ errors`",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitize_CollapsesWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "newlines between selectors",
			input: "{job=\"a  b\"}\n\n{x=\"y\"}",
			want:  `{job="a  b"} {x="y"}`,
		},
		{
			name:  "tabs and spaces",
			input: "{job=\"api\"}\t \t|=\t\"error\"",
			want:  `{job="api"} |= "error"`,
		},
		{
			name:  "whitespace inside quoted value preserved",
			input: `{msg="two  spaces"}`,
			want:  `{msg="two  spaces"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		`{job=\"api\"}`,
		`{job=\\\"api\\\"}`,
		"{job=`api`}  |=  \"error\"",
		"  {job=“api”}\n|~ `\\d+`  ",
		`{job="a  b"}` + "\n\n" + `{x="y"}`,
		`{job="api", env!="dev"} |= "say \"hi\""`,
	}

	for _, input := range inputs {
		once := Sanitize(input)
		assert.Equal(t, once, Sanitize(once), "input %q", input)
	}
}
