package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	fenceLinePattern     = regexp.MustCompile("(?m)^[ \\t]*```[a-zA-Z0-9_-]*[ \\t]*\\r?$\\n?")
	fenceOpenPattern     = regexp.MustCompile("^```[a-zA-Z0-9_-]*")
	blockCommentPattern  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentPattern   = regexp.MustCompile(`(?m)(^|\s)//.*$`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([\]}])`)
)

// StripCodeFences removes Markdown code fence markers such as ```json and ```.
// Lines holding only a marker are dropped wherever they appear, so an unclosed
// or unopened fence is handled too. A marker glued to the text at either end is
// also removed. Text without a fence is returned trimmed.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(fenceLinePattern.ReplaceAllString(text, ""))
	text = fenceOpenPattern.ReplaceAllString(text, "")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// StripComments removes /* */ block comments and // line comments. A line comment
// only starts at the beginning of a line or after whitespace, so "https://" survives.
func StripComments(text string) string {
	text = blockCommentPattern.ReplaceAllString(text, "")
	return lineCommentPattern.ReplaceAllString(text, "$1")
}

// StripTrailingCommas drops commas that directly precede a closing ] or }.
func StripTrailingCommas(text string) string {
	return trailingCommaPattern.ReplaceAllString(text, "$1")
}

// Clean runs every cleanup stage in order and returns the text handed to the JSON decoder.
func Clean(text string) string {
	return StripTrailingCommas(StripComments(StripCodeFences(text)))
}

// ExtractJSON cleans text and decodes it into out.
func ExtractJSON(text string, out any) error {
	cleaned := Clean(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &ParseError{Raw: text, Cleaned: cleaned, Err: err}
	}
	return nil
}
