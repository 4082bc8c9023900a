// Package kberr defines the error taxonomy of the knowledge-base query layer.
//
// Every failure returned by the layer wraps exactly one of the sentinel
// errors below, so callers branch with errors.Is and never parse messages.
// Caller-input errors are raised before any network I/O; transport errors
// come from the connection manager unchanged.
package kberr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Transport.
	ErrConnection = errors.New("store unreachable")
	ErrTimeout    = errors.New("store timeout")
	ErrAuth       = errors.New("store rejected credentials")

	// Developer error: a generated query was refused by the store.
	ErrQuerySyntax = errors.New("query rejected by store")

	// Caller input.
	ErrUnknownIntent    = errors.New("unknown intent")
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Class groups errors by who is expected to act on them.
type Class int

const (
	ClassUnknown Class = iota
	// ClassInput errors are recoverable by the caller fixing its request.
	ClassInput
	// ClassTransport errors may succeed if the caller retries later.
	ClassTransport
	// ClassDeveloper errors point at a broken template.
	ClassDeveloper
)

func (c Class) String() string {
	switch c {
	case ClassInput:
		return "input"
	case ClassTransport:
		return "transport"
	case ClassDeveloper:
		return "developer"
	default:
		return "unknown"
	}
}

// Error carries the operation and detail for one of the sentinel kinds.
type Error struct {
	Kind   error  // one of the Err* sentinels
	Op     string // e.g. "resolve", "bind", "select"
	Detail string
	Err    error // underlying cause, optional
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.Error())
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Is matches the sentinel kind.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error of the given kind.
func New(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around cause.
func Wrap(kind error, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// ClassOf classifies err. Unrecognised errors are ClassUnknown.
func ClassOf(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrUnknownIntent),
		errors.Is(err, ErrMissingParameter),
		errors.Is(err, ErrInvalidParameter):
		return ClassInput
	case errors.Is(err, ErrConnection),
		errors.Is(err, ErrTimeout),
		errors.Is(err, ErrAuth):
		return ClassTransport
	case errors.Is(err, ErrQuerySyntax):
		return ClassDeveloper
	default:
		return ClassUnknown
	}
}

// KindName returns a stable short name for err's kind, suitable as a
// metric label or a key for caller-side message catalogs.
func KindName(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnknownIntent):
		return "unknown_intent"
	case errors.Is(err, ErrMissingParameter):
		return "missing_parameter"
	case errors.Is(err, ErrInvalidParameter):
		return "invalid_parameter"
	case errors.Is(err, ErrConnection):
		return "connection"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrQuerySyntax):
		return "query_syntax"
	default:
		return "error"
	}
}

// PartialResultWarning is attached to successful results whose rows were
// partly dropped during normalization. It is not returned as an error.
type PartialResultWarning struct {
	Intent  string
	Dropped int
	Kept    int
}

func (w *PartialResultWarning) Error() string {
	return fmt.Sprintf("partial result for %s: %d row(s) dropped, %d kept", w.Intent, w.Dropped, w.Kept)
}
