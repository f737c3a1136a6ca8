package agent

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an agent failure.
type Kind string

const (
	KindOutput  Kind = "output"  // malformed or schema-violating response
	KindBackend Kind = "backend" // transport, provider or breaker failure
	KindTimeout Kind = "timeout"
)

// Error is returned by agents that have no safe fallback and recorded on
// fallback records by those that do.
type Error struct {
	Agent string
	Kind  Kind
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("agent %s: %s: %v", e.Agent, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(agent string, kind Kind, err error) *Error {
	return &Error{Agent: agent, Kind: kind, Err: err}
}

func classify(agent string, err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(agent, KindTimeout, err)
	}
	return newError(agent, KindBackend, err)
}

// IsKind reports whether err is an agent Error of kind k.
func IsKind(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}
