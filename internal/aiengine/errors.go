package aiengine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"ultraflow/internal/llm"
	"ultraflow/internal/llmclient"
)

// Kind classifies why a backend call failed.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindConfig       Kind = "config"
	KindTransport    Kind = "transport"
	KindTimeout      Kind = "timeout"
	KindMalformed    Kind = "malformed"
	KindQuota        Kind = "quota"
	KindAuth         Kind = "auth"
	KindProvider     Kind = "provider"
	KindUnavailable  Kind = "unavailable"
)

// Error is the failure returned by Engine. It always carries a Kind and, when
// known, the provider and model that were called.
type Error struct {
	Kind     Kind
	Provider string
	Model    string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	prefix := "ai engine"
	if e.Provider != "" {
		prefix += " (" + e.Provider
		if e.Model != "" {
			prefix += "/" + e.Model
		}
		prefix += ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", prefix, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// classify maps a backend failure onto an *Error.
func classify(err error, provider, model string) *Error {
	out := &Error{Provider: provider, Model: model, Err: err}
	var perr *llmclient.ProviderError
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind, out.Msg = KindTimeout, "backend did not answer in time"
	case errors.Is(err, context.Canceled):
		out.Kind, out.Msg = KindTransport, "request was canceled"
	case errors.Is(err, llm.ErrCircuitOpen):
		out.Kind, out.Msg = KindUnavailable, "backend temporarily disabled after repeated failures"
	case errors.Is(err, llmclient.ErrEmptyResponse):
		out.Kind, out.Msg = KindMalformed, "backend returned no text"
	case errors.Is(err, llmclient.ErrMissingAPIKey):
		out.Kind, out.Msg = KindConfig, "backend credentials are not configured"
	case errors.As(err, &perr):
		switch perr.Reason {
		case llmclient.ReasonQuota:
			out.Kind, out.Msg = KindQuota, "backend quota exhausted"
		case llmclient.ReasonAuth:
			out.Kind, out.Msg = KindAuth, "backend rejected the credentials"
		default:
			out.Kind, out.Msg = KindProvider, "backend reported an error"
		}
	case errors.As(err, &netErr), errors.As(err, &urlErr):
		out.Kind, out.Msg = KindTransport, "backend unreachable"
	default:
		out.Kind, out.Msg = KindProvider, "backend call failed"
	}
	return out
}
