package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ultraflow/internal/diagram"
	"ultraflow/internal/util/jsonutil"
)

var errNotObject = errors.New("diagram entry is not an object")

// candidate is one parsed diagram, or the reason it could not be read.
type candidate struct {
	spec diagram.DiagramSpec
	err  error
}

// parseResponse locates the JSON payload in text and converts it to candidates.
// Well-formed JSON that does not look like diagram data, such as a "[1]"
// citation in leading prose, is skipped. An error means the response had no
// usable structure at all.
func parseResponse(text string) ([]candidate, error) {
	var firstErr error
	raw, err := jsonutil.ExtractJSONFunc(text, func(raw json.RawMessage) bool {
		_, err := decodeItems(raw)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return err == nil
	})
	if err != nil {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, err
	}
	items, err := decodeItems(raw)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			out[i] = candidate{err: errNotObject}
			continue
		}
		out[i] = candidate{spec: toSpec(obj)}
	}
	return out, nil
}

func decodeItems(raw json.RawMessage) ([]any, error) {
	var root any
	if err := jsonutil.UnmarshalFlex(raw, &root); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return diagramItems(root)
}

// diagramItems accepts {"diagrams": [...]}, a bare array, or a single diagram object.
func diagramItems(root any) ([]any, error) {
	switch v := root.(type) {
	case []any:
		if len(v) > 0 && !hasObject(v) {
			return nil, errors.New("array holds no diagram objects")
		}
		return v, nil
	case map[string]any:
		for _, key := range []string{"diagrams", "flowcharts", "charts", "results"} {
			if arr, ok := lookup(v, key).([]any); ok {
				return arr, nil
			}
		}
		if lookup(v, "nodes") != nil {
			return []any{v}, nil
		}
		return nil, errors.New("payload has no diagrams array")
	default:
		return nil, fmt.Errorf("payload is a %T, not an object or array", root)
	}
}

func hasObject(items []any) bool {
	for _, it := range items {
		if _, ok := it.(map[string]any); ok {
			return true
		}
	}
	return false
}

func toSpec(obj map[string]any) diagram.DiagramSpec {
	spec := diagram.DiagramSpec{
		Title:     firstString(obj, "title", "name", "heading"),
		Type:      diagram.ParseType(firstString(obj, "type", "diagramType", "diagram_type", "kind")),
		Direction: diagram.ParseDirection(firstString(obj, "direction", "dir", "orientation")),
	}
	for _, n := range asSlice(firstOf(obj, "nodes", "steps", "vertices")) {
		spec.Nodes = append(spec.Nodes, toNode(n))
	}
	for _, e := range asSlice(firstOf(obj, "edges", "links", "connections", "arrows")) {
		spec.Edges = append(spec.Edges, toEdge(e))
	}
	return spec
}

func toNode(v any) diagram.NodeSpec {
	switch n := v.(type) {
	case map[string]any:
		id := firstString(n, "id", "key")
		label := firstString(n, "label", "text", "name", "title")
		if id == "" {
			id = label
		}
		return diagram.NodeSpec{
			ID:    id,
			Label: label,
			Shape: diagram.ParseShape(firstString(n, "shape", "type", "kind")),
		}
	default:
		s := scalarString(v)
		return diagram.NodeSpec{ID: s, Label: s}
	}
}

func toEdge(v any) diagram.EdgeSpec {
	switch e := v.(type) {
	case map[string]any:
		return diagram.EdgeSpec{
			From:  firstString(e, "from", "source", "src", "start"),
			To:    firstString(e, "to", "target", "dst", "end"),
			Label: firstString(e, "label", "text", "condition"),
		}
	case []any:
		var out diagram.EdgeSpec
		if len(e) > 0 {
			out.From = scalarString(e[0])
		}
		if len(e) > 1 {
			out.To = scalarString(e[1])
		}
		if len(e) > 2 {
			out.Label = scalarString(e[2])
		}
		return out
	default:
		return diagram.EdgeSpec{}
	}
}

// lookup finds key case-insensitively.
func lookup(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

func firstOf(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v := lookup(obj, k); v != nil {
			return v
		}
	}
	return nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(lookup(obj, k)); s != "" {
			return s
		}
	}
	return ""
}

func asSlice(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}
	return nil
}

// scalarString renders strings, numbers and booleans; anything else is "".
func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
