package render

import (
	"strconv"
	"strings"
	"unicode"
)

// Words the Mermaid parsers treat as keywords when used as a bare node id.
var reservedIDs = map[string]struct{}{
	"end": {}, "graph": {}, "flowchart": {}, "subgraph": {}, "style": {},
	"class": {}, "classdef": {}, "click": {}, "linkstyle": {}, "direction": {},
	"default": {}, "participant": {}, "actor": {}, "loop": {}, "alt": {},
	"else": {}, "opt": {}, "par": {}, "and": {}, "note": {}, "rect": {},
	"activate": {}, "deactivate": {}, "critical": {}, "break": {}, "box": {},
}

// idTable maps source node ids to unique Mermaid-safe identifiers. Assignment
// depends only on the order ids are added, so output is stable.
type idTable struct {
	byID  map[string]string
	taken map[string]struct{}
}

func newIDTable(n int) *idTable {
	return &idTable{byID: make(map[string]string, n), taken: make(map[string]struct{}, n)}
}

func (t *idTable) add(id string) (string, bool) {
	if _, dup := t.byID[id]; dup {
		return "", false
	}
	base := safeID(id)
	out := base
	for i := 2; ; i++ {
		if _, used := t.taken[out]; !used {
			break
		}
		out = base + "_" + strconv.Itoa(i)
	}
	t.byID[id] = out
	t.taken[out] = struct{}{}
	return out, true
}

func (t *idTable) lookup(id string) (string, bool) {
	out, ok := t.byID[id]
	return out, ok
}

// safeID keeps ASCII letters, digits and underscores, folding every other run
// of characters into one underscore.
func safeID(id string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.TrimSpace(id) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) || r == '_' {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	out := b.String()
	switch {
	case out == "":
		return "node"
	case out[0] >= '0' && out[0] <= '9':
		out = "n" + out
	}
	if _, reserved := reservedIDs[strings.ToLower(out)]; reserved {
		out += "_"
	}
	return out
}

var labelReplacer = strings.NewReplacer(
	"\r\n", "<br/>",
	"\n", "<br/>",
	"\r", "<br/>",
	`"`, "#quot;",
)

// escapeLabel makes text safe inside a quoted flowchart label.
func escapeLabel(s string) string {
	return labelReplacer.Replace(strings.TrimSpace(s))
}

var sequenceReplacer = strings.NewReplacer(
	"\r\n", "<br/>",
	"\n", "<br/>",
	"\r", "<br/>",
	`"`, "#quot;",
	";", "#59;",
)

// escapeSequenceText makes text safe for unquoted participant aliases and
// message text, where a semicolon would end the statement.
func escapeSequenceText(s string) string {
	return sequenceReplacer.Replace(strings.TrimSpace(s))
}
