package llmclient

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyResponse = errors.New("llmclient: empty response from model")
	ErrMissingAPIKey = errors.New("llmclient: api key is not configured")
)

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// FailureReason classifies a provider-reported failure.
type FailureReason string

const (
	ReasonQuota      FailureReason = "quota"
	ReasonAuth       FailureReason = "auth"
	ReasonBadRequest FailureReason = "bad_request"
	ReasonServer     FailureReason = "server"
	ReasonUnknown    FailureReason = "unknown"
)

// ProviderError is returned when the backend answered with an error status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Reason     FailureReason
	RetryAfter int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Reason, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func reasonForStatus(code int) FailureReason {
	switch {
	case code == 429:
		return ReasonQuota
	case code == 401 || code == 403:
		return ReasonAuth
	case code >= 400 && code < 500:
		return ReasonBadRequest
	case code >= 500:
		return ReasonServer
	default:
		return ReasonUnknown
	}
}
