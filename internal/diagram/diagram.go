// Package diagram holds the structured diagram model shared by extraction and
// rendering.
package diagram

import "strings"

type DiagramType string

const (
	TypeFlowchart DiagramType = "flowchart"
	TypeSequence  DiagramType = "sequence"
)

// ParseType maps loose model output onto a DiagramType. Unknown values are flowcharts.
func ParseType(s string) DiagramType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequence", "sequencediagram", "seq":
		return TypeSequence
	default:
		return TypeFlowchart
	}
}

type Direction string

const (
	DirectionTD Direction = "TD"
	DirectionTB Direction = "TB"
	DirectionBT Direction = "BT"
	DirectionLR Direction = "LR"
	DirectionRL Direction = "RL"
)

func ParseDirection(s string) Direction {
	switch d := Direction(strings.ToUpper(strings.TrimSpace(s))); d {
	case DirectionTB, DirectionBT, DirectionLR, DirectionRL, DirectionTD:
		return d
	default:
		return DirectionTD
	}
}

// Shape is an optional rendering hint for a node.
type Shape string

const (
	ShapeRect          Shape = "rect"
	ShapeRound         Shape = "round"
	ShapeStadium       Shape = "stadium"
	ShapeDiamond       Shape = "diamond"
	ShapeCircle        Shape = "circle"
	ShapeSubroutine    Shape = "subroutine"
	ShapeDatabase      Shape = "database"
	ShapeHexagon       Shape = "hexagon"
	ShapeParallelogram Shape = "parallelogram"
)

var shapeAliases = map[string]Shape{
	"rect": ShapeRect, "rectangle": ShapeRect, "box": ShapeRect, "process": ShapeRect,
	"round": ShapeRound, "rounded": ShapeRound,
	"stadium": ShapeStadium, "terminal": ShapeStadium, "start": ShapeStadium, "end": ShapeStadium,
	"diamond": ShapeDiamond, "decision": ShapeDiamond, "rhombus": ShapeDiamond,
	"circle": ShapeCircle,
	"subroutine": ShapeSubroutine,
	"database": ShapeDatabase, "cylinder": ShapeDatabase, "db": ShapeDatabase,
	"hexagon": ShapeHexagon,
	"parallelogram": ShapeParallelogram, "io": ShapeParallelogram, "input": ShapeParallelogram,
}

// ParseShape returns "" for unknown hints so the renderer picks its default.
func ParseShape(s string) Shape {
	return shapeAliases[strings.ToLower(strings.TrimSpace(s))]
}

type NodeSpec struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Shape Shape  `json:"shape,omitempty"`
}

// DisplayLabel is the label to show, falling back to the id.
func (n NodeSpec) DisplayLabel() string {
	if strings.TrimSpace(n.Label) == "" {
		return n.ID
	}
	return n.Label
}

type EdgeSpec struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label,omitempty"`
}

// DiagramSpec is one structured diagram description.
type DiagramSpec struct {
	Title     string      `json:"title"`
	Type      DiagramType `json:"type"`
	Direction Direction   `json:"direction,omitempty"`
	Nodes     []NodeSpec  `json:"nodes"`
	Edges     []EdgeSpec  `json:"edges"`
}

// RenderedDiagram is the Mermaid text for one DiagramSpec.
type RenderedDiagram struct {
	MMD         string `json:"mmd"`
	SourceTitle string `json:"sourceTitle"`
}
