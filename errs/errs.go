// Package errs provides the SpeechFlow error taxonomy: a single structured
// error type tagged with a Kind from the runtime's error handling design,
// plus a normalizer that turns any recovered value into one.
package errs

import "fmt"

// Kind classifies an error by how the runtime must react to it.
type Kind int

const (
	// Configuration errors are fatal at graph construction.
	Configuration Kind = iota
	// Resource errors are fatal at node open and trigger rollback.
	Resource
	// Transient errors are retried locally with backoff before surfacing.
	Transient
	// Stream errors surface via runtime teardown.
	Stream
	// Shutdown errors are dropped silently or reported as "destroyed", never upward.
	Shutdown
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Resource:
		return "resource"
	case Transient:
		return "transient"
	case Stream:
		return "stream"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error is a structured failure carrying the component and operation that
// produced it, its Kind, and an optional wrapped cause.
type Error struct {
	Component string
	Operation string
	Kind      Kind
	Details   map[string]any
	Cause     error
}

// New builds an Error for the given component/operation/kind, wrapping cause.
func New(component, operation string, kind Kind, cause error) *Error {
	return &Error{Component: component, Operation: operation, Kind: kind, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	base := fmt.Sprintf("[%s/%s] %s", e.Component, e.Operation, e.Kind)
	if e.Cause != nil {
		base += ": " + e.Cause.Error()
	}
	return base
}

// Unwrap exposes the cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails attaches structured metadata and returns the receiver.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Destroyed is the sentinel cause used for operations rejected because a
// node or stream is closing.
var Destroyed = New("runtime", "shutdown", Shutdown, fmt.Errorf("destroyed"))

// Ensure normalizes any recovered panic value or arbitrary error into an
// *Error, using the optional prefix as its Operation. If v is already an
// *Error it is returned as is; the prefix is only written into its
// Operation when that field is empty.
func Ensure(v any, prefix ...string) *Error {
	desc := ""
	if len(prefix) > 0 {
		desc = prefix[0]
	}

	switch val := v.(type) {
	case nil:
		return nil
	case *Error:
		if desc != "" && val.Operation == "" {
			val.Operation = desc
		}
		return val
	case error:
		return New("unknown", desc, Stream, val)
	case string:
		return New("unknown", desc, Stream, fmt.Errorf("%s", val))
	default:
		return New("unknown", desc, Stream, fmt.Errorf("%v", val))
	}
}
