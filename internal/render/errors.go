package render

import "fmt"

type Kind string

const (
	KindInvalidReference Kind = "invalid_reference"
	KindEmptyDiagram     Kind = "empty_diagram"
	KindDuplicateNode    Kind = "duplicate_node"
)

// RenderError rejects a single diagram. Other diagrams in the same call are unaffected.
type RenderError struct {
	Kind Kind
	Msg  string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: %s: %s", e.Kind, e.Msg)
}

// Failure reports a diagram that was skipped, by its position in the input.
type Failure struct {
	Index int
	Title string
	Err   error
}

func (f Failure) Reason() Kind {
	if re, ok := f.Err.(*RenderError); ok {
		return re.Kind
	}
	return ""
}
