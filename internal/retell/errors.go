package retell

import (
	"errors"
	"fmt"
)

// Kind classifies a failed provider call so callers can pick a retry or
// response policy by inspecting data instead of error types.
type Kind string

const (
	KindTimeout           Kind = "timeout"
	KindConnection        Kind = "connection"
	KindRejected          Kind = "rejected"
	KindMalformedResponse Kind = "malformed_response"
)

// Error is returned by every Client operation that reached (or tried to reach)
// the provider and failed.
type Error struct {
	Kind Kind
	Op   string

	// StatusCode and Body are set for KindRejected.
	StatusCode int
	Body       string

	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindRejected:
		return fmt.Sprintf("retell: %s: rejected with status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("retell: %s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("retell: %s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of a provider error anywhere in err's chain, or ""
// when err did not come from the provider boundary.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
