// Package render turns validated diagram specs into Mermaid text. Rendering is
// pure: identical input always yields byte-identical output.
package render

import (
	"fmt"
	"strings"

	"ultraflow/internal/diagram"
)

type Option func(*Renderer)

// WithInitDirective prefixes every diagram with a Mermaid %%{init: ...}%% line.
// config is the JSON object body, for example {"theme":"neutral"}.
func WithInitDirective(config string) Option {
	return func(r *Renderer) { r.init = strings.TrimSpace(config) }
}

// WithIndent sets the indentation used for statements. Default is four spaces.
func WithIndent(indent string) Option {
	return func(r *Renderer) { r.indent = indent }
}

type Renderer struct {
	init   string
	indent string
}

func New(opts ...Option) *Renderer {
	r := &Renderer{indent: "    "}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Render renders every spec it can. The returned diagrams keep input order;
// specs that cannot be rendered are reported in failures by index.
func (r *Renderer) Render(specs []diagram.DiagramSpec) ([]diagram.RenderedDiagram, []Failure) {
	out := make([]diagram.RenderedDiagram, 0, len(specs))
	var failures []Failure
	for i, spec := range specs {
		rd, err := r.RenderOne(spec)
		if err != nil {
			failures = append(failures, Failure{Index: i, Title: spec.Title, Err: err})
			continue
		}
		out = append(out, rd)
	}
	return out, failures
}

// RenderOne renders a single spec or explains why it cannot be rendered.
func (r *Renderer) RenderOne(spec diagram.DiagramSpec) (diagram.RenderedDiagram, error) {
	if len(spec.Nodes) == 0 {
		return diagram.RenderedDiagram{}, &RenderError{Kind: KindEmptyDiagram, Msg: "diagram has no nodes"}
	}
	ids := newIDTable(len(spec.Nodes))
	mermaidIDs := make([]string, len(spec.Nodes))
	for i, n := range spec.Nodes {
		id := strings.TrimSpace(n.ID)
		mid, ok := ids.add(id)
		if !ok {
			return diagram.RenderedDiagram{}, &RenderError{Kind: KindDuplicateNode, Msg: fmt.Sprintf("node id %q is repeated", id)}
		}
		mermaidIDs[i] = mid
	}
	type link struct{ from, to, label string }
	links := make([]link, len(spec.Edges))
	for i, e := range spec.Edges {
		from, okFrom := ids.lookup(strings.TrimSpace(e.From))
		to, okTo := ids.lookup(strings.TrimSpace(e.To))
		if !okFrom || !okTo {
			return diagram.RenderedDiagram{}, &RenderError{
				Kind: KindInvalidReference,
				Msg:  fmt.Sprintf("edge %d (%q -> %q) references an unknown node", i, e.From, e.To),
			}
		}
		links[i] = link{from: from, to: to, label: strings.TrimSpace(e.Label)}
	}

	var sb strings.Builder
	if r.init != "" {
		sb.WriteString("%%{init: " + r.init + "}%%\n")
	}
	if spec.Type == diagram.TypeSequence {
		sb.WriteString("sequenceDiagram\n")
		for i, n := range spec.Nodes {
			fmt.Fprintf(&sb, "%sparticipant %s as %s\n", r.indent, mermaidIDs[i], escapeSequenceText(n.DisplayLabel()))
		}
		for _, l := range links {
			fmt.Fprintf(&sb, "%s%s->>%s: %s\n", r.indent, l.from, l.to, escapeSequenceText(l.label))
		}
	} else {
		fmt.Fprintf(&sb, "flowchart %s\n", diagram.ParseDirection(string(spec.Direction)))
		for i, n := range spec.Nodes {
			open, closing := shapeBrackets(n.Shape)
			fmt.Fprintf(&sb, "%s%s%s\"%s\"%s\n", r.indent, mermaidIDs[i], open, escapeLabel(n.DisplayLabel()), closing)
		}
		for _, l := range links {
			if l.label == "" {
				fmt.Fprintf(&sb, "%s%s --> %s\n", r.indent, l.from, l.to)
				continue
			}
			fmt.Fprintf(&sb, "%s%s -->|\"%s\"| %s\n", r.indent, l.from, escapeLabel(l.label), l.to)
		}
	}
	return diagram.RenderedDiagram{MMD: strings.TrimRight(sb.String(), "\n"), SourceTitle: spec.Title}, nil
}

func shapeBrackets(s diagram.Shape) (string, string) {
	switch s {
	case diagram.ShapeRound:
		return "(", ")"
	case diagram.ShapeStadium:
		return "([", "])"
	case diagram.ShapeDiamond:
		return "{", "}"
	case diagram.ShapeCircle:
		return "((", "))"
	case diagram.ShapeSubroutine:
		return "[[", "]]"
	case diagram.ShapeDatabase:
		return "[(", ")]"
	case diagram.ShapeHexagon:
		return "{{", "}}"
	case diagram.ShapeParallelogram:
		return "[/", "/]"
	default:
		return "[", "]"
	}
}
