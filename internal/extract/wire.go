package extract

// Wire shapes describe the JSON requested from the backend. They feed the
// prompt's output section and the response schema; parsing itself is looser.
type wireNode struct {
	ID    string `json:"id" prompt_desc:"short unique identifier, letters digits and underscores"`
	Label string `json:"label" prompt_desc:"text shown inside the node"`
	Shape string `json:"shape" prompt:"optional" prompt_enum:"rect|round|stadium|diamond|circle|subroutine|database|hexagon|parallelogram" prompt_desc:"diamond for decisions, stadium for start and end"`
}

type wireEdge struct {
	From  string `json:"from" prompt_desc:"id of the source node"`
	To    string `json:"to" prompt_desc:"id of the target node"`
	Label string `json:"label" prompt:"optional" prompt_desc:"condition or action on the arrow"`
}

type wireDiagram struct {
	Title     string     `json:"title" prompt_desc:"short descriptive title"`
	Type      string     `json:"type" prompt_enum:"flowchart|sequence" prompt_desc:"flowchart unless the content is an interaction between actors"`
	Direction string     `json:"direction" prompt:"optional" prompt_enum:"TD|LR|BT|RL"`
	Nodes     []wireNode `json:"nodes"`
	Edges     []wireEdge `json:"edges"`
}

type wireResponse struct {
	Diagrams []wireDiagram `json:"diagrams"`
}
