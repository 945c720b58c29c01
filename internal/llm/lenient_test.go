package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n[1, 2]\n```", `[1, 2]`},
		{"surrounding whitespace", "  \n```json\n{}\n```\n ", `{}`},
		{"no fence", `  {"a": 1}  `, `{"a": 1}`},
		{"fence on one line", "```json{\"a\":1}```", `{"a":1}`},
		{"unclosed fence", "```json\n{\"a\": 1}\n", `{"a": 1}`},
		{"closing fence only", "{\"a\": 1}\n```", `{"a": 1}`},
		{"crlf fence", "```json\r\n{\"a\": 1}\r\n```\r\n", `{"a": 1}`},
		{"repeated markers", "```\n```json\n[1]\n```", `[1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestStripComments(t *testing.T) {
	in := "{\n  // leading comment\n  \"a\": 1, // trailing\n  /* block\n  comment */ \"b\": 2\n}"
	got := StripComments(in)
	assert.NotContains(t, got, "comment")
	assert.NotContains(t, got, "trailing")
	assert.Contains(t, got, `"a": 1,`)
	assert.Contains(t, got, `"b": 2`)
}

func TestStripCommentsKeepsURLs(t *testing.T) {
	in := `{"link": "https://example.com/path"}`
	assert.Equal(t, in, StripComments(in))
}

func TestStripTrailingCommas(t *testing.T) {
	assert.Equal(t, `{"a": [1, 2]}`, StripTrailingCommas(`{"a": [1, 2,]}`))
	assert.Equal(t, `{"a": 1}`, StripTrailingCommas(`{"a": 1,}`))
	assert.Equal(t, `{"a": 1}`, StripTrailingCommas("{\"a\": 1,\n}"))
	assert.Equal(t, `{"a": "x, y"}`, StripTrailingCommas(`{"a": "x, y"}`))
}

func TestExtractJSON(t *testing.T) {
	raw := "```json\n{\n  \"topic\": \"Fractions\", // what we teach\n  \"items\": [\"a\", \"b\",],\n}\n```"

	var out struct {
		Topic string   `json:"topic"`
		Items []string `json:"items"`
	}
	require.NoError(t, ExtractJSON(raw, &out))
	assert.Equal(t, "Fractions", out.Topic)
	assert.Equal(t, []string{"a", "b"}, out.Items)
}

func TestExtractJSONUnclosedFence(t *testing.T) {
	var out struct {
		A int `json:"a"`
	}
	require.NoError(t, ExtractJSON("```json\n{\"a\": 1}\n", &out))
	assert.Equal(t, 1, out.A)

	out.A = 0
	require.NoError(t, ExtractJSON("```json\n{\"a\": 2,}", &out))
	assert.Equal(t, 2, out.A)
}

func TestExtractJSONFailure(t *testing.T) {
	var out map[string]any
	err := ExtractJSON("I'm sorry, I can't do that.", &out)
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "I'm sorry, I can't do that.", perr.Raw)
	assert.Contains(t, err.Error(), "response was not valid JSON")
	assert.NotContains(t, err.Error(), "sorry")
	assert.NotNil(t, errors.Unwrap(err))
}
