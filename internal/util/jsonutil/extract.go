package jsonutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrNoJSON is returned when no JSON object or array can be located in the input.
var ErrNoJSON = errors.New("jsonutil: no JSON value found")

var markdown = goldmark.New()

// ExtractJSON pulls the first well-formed JSON object or array out of model
// output. Fenced code blocks tagged json (or untagged) are searched first,
// then the whole text. Trailing commas are repaired before validation.
func ExtractJSON(s string) (json.RawMessage, error) {
	return ExtractJSONFunc(s, nil)
}

// ExtractJSONFunc is ExtractJSON with a filter: well-formed candidates that
// accept rejects are skipped and the scan moves on. A nil accept takes the
// first well-formed candidate.
func ExtractJSONFunc(s string, accept func(json.RawMessage) bool) (json.RawMessage, error) {
	for _, block := range FencedBlocks(s, "json", "") {
		if raw, ok := scanJSON(block, accept); ok {
			return raw, nil
		}
	}
	if raw, ok := scanJSON(s, accept); ok {
		return raw, nil
	}
	return nil, ErrNoJSON
}

// FencedBlocks returns the bodies of fenced code blocks whose info string
// matches one of langs (case-insensitive). No langs means every block.
func FencedBlocks(s string, langs ...string) []string {
	src := []byte(s)
	doc := markdown.Parser().Parse(text.NewReader(src))
	var out []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fcb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if !langMatches(string(fcb.Language(src)), langs) {
			return ast.WalkSkipChildren, nil
		}
		var b bytes.Buffer
		lines := fcb.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
		}
		out = append(out, b.String())
		return ast.WalkSkipChildren, nil
	})
	return out
}

func langMatches(lang string, langs []string) bool {
	if len(langs) == 0 {
		return true
	}
	for _, l := range langs {
		if strings.EqualFold(strings.TrimSpace(lang), l) {
			return true
		}
	}
	return false
}

// scanJSON tries every '{' or '[' as a start, finds its balanced end outside
// string literals, and returns the first candidate that parses and passes accept.
func scanJSON(s string, accept func(json.RawMessage) bool) (json.RawMessage, bool) {
	for start := 0; start < len(s); start++ {
		if s[start] != '{' && s[start] != '[' {
			continue
		}
		end := balancedEnd(s, start)
		if end < 0 {
			continue
		}
		candidate := []byte(s[start : end+1])
		if !json.Valid(candidate) {
			candidate = RemoveTrailingCommas(candidate)
			if !json.Valid(candidate) {
				continue
			}
		}
		if accept == nil || accept(candidate) {
			return json.RawMessage(candidate), true
		}
	}
	return nil, false
}

func balancedEnd(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
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
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// RemoveTrailingCommas drops commas that directly precede a closing bracket,
// ignoring string contents.
func RemoveTrailingCommas(raw []byte) []byte {
	out := make([]byte, 0, len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			out = append(out, c)
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
		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(raw) && (raw[j] == ' ' || raw[j] == '\n' || raw[j] == '\r' || raw[j] == '\t') {
				j++
			}
			if j < len(raw) && (raw[j] == '}' || raw[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
