package pipeline

import "fmt"

type Stage string

const (
	StageExtract Stage = "extract"
	StageRender  Stage = "render"
)

// Error reports the stage that stopped a run.
type Error struct {
	Stage Stage
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline: %s: %s: %v", e.Stage, e.Msg, e.Err)
	}
	return fmt.Sprintf("pipeline: %s: %s", e.Stage, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }
