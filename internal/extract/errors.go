package extract

import (
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindBackend           Kind = "backend"
	KindMalformedResponse Kind = "malformed_response"
	KindNoValidDiagrams   Kind = "no_valid_diagrams"
)

// ExtractError is returned by Extract. Backend failures wrap the *aiengine.Error.
type ExtractError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("extract: %s: %s", e.Kind, e.Msg)
}

func (e *ExtractError) Unwrap() error { return e.Err }
