package diagram

import (
	"fmt"
	"strings"
)

type IssueCode string

const (
	IssueNoNodes        IssueCode = "no_nodes"
	IssueEmptyNodeID    IssueCode = "empty_node_id"
	IssueDuplicateID    IssueCode = "duplicate_node_id"
	IssueDanglingEdge   IssueCode = "dangling_edge"
	IssueEmptyEndpoints IssueCode = "empty_edge_endpoint"
)

// Issue is one invariant violation found in a DiagramSpec.
type Issue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

func (i Issue) String() string { return string(i.Code) + ": " + i.Message }

// Issues is the failure side of Checked.
type Issues []Issue

func (is Issues) Error() string {
	parts := make([]string, len(is))
	for i, issue := range is {
		parts[i] = issue.String()
	}
	return strings.Join(parts, "; ")
}

// Validate reports every invariant violation in spec. A nil result means valid.
// Self-loops and parallel edges are allowed.
func Validate(spec DiagramSpec) Issues {
	var out Issues
	if len(spec.Nodes) == 0 {
		out = append(out, Issue{Code: IssueNoNodes, Message: "diagram has no nodes"})
	}
	ids := make(map[string]struct{}, len(spec.Nodes))
	for i, n := range spec.Nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			out = append(out, Issue{Code: IssueEmptyNodeID, Message: fmt.Sprintf("node %d has an empty id", i)})
			continue
		}
		if _, dup := ids[id]; dup {
			out = append(out, Issue{Code: IssueDuplicateID, Message: fmt.Sprintf("node id %q is repeated", id)})
			continue
		}
		ids[id] = struct{}{}
	}
	for i, e := range spec.Edges {
		from, to := strings.TrimSpace(e.From), strings.TrimSpace(e.To)
		if from == "" || to == "" {
			out = append(out, Issue{Code: IssueEmptyEndpoints, Message: fmt.Sprintf("edge %d has an empty endpoint", i)})
			continue
		}
		for _, end := range []string{from, to} {
			if _, ok := ids[end]; !ok {
				out = append(out, Issue{Code: IssueDanglingEdge, Message: fmt.Sprintf("edge %d references unknown node %q", i, end)})
			}
		}
	}
	return out
}

// Checked is the result of validating one candidate: exactly one of Spec or
// Issues is meaningful, selected by OK.
type Checked struct {
	Index  int
	Spec   DiagramSpec
	Issues Issues
}

func (c Checked) OK() bool { return len(c.Issues) == 0 }

// Check validates specs in order without failing on the first bad one.
func Check(specs []DiagramSpec) []Checked {
	out := make([]Checked, len(specs))
	for i, s := range specs {
		out[i] = Checked{Index: i, Spec: s, Issues: Validate(s)}
	}
	return out
}

// ValidOnly returns the specs that passed, preserving order.
func ValidOnly(checked []Checked) []DiagramSpec {
	var out []DiagramSpec
	for _, c := range checked {
		if c.OK() {
			out = append(out, c.Spec)
		}
	}
	return out
}
