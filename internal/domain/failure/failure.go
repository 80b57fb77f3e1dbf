package failure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
)

// Kind classifies why a remote operation failed.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindTransient
	KindConflict
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTransient:
		return "transient"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrTransient  = errors.New("temporarily unavailable")
	ErrConflict   = errors.New("conflict")
)

// Error is a classified failure. Fields carries per-field messages for
// validation failures, keyed by the payload's JSON field name.
type Error struct {
	Kind    Kind
	Status  int // HTTP status, 0 when the failure never reached the server
	Message string
	Fields  map[string][]string
	Cause   error
}

// Error returns the message, with field details for validation failures.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.sentinel().Error()
	}
	if len(e.Fields) == 0 {
		return msg
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], ", ")))
	}
	return fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.sentinel()
	return s != nil && target == s
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	case KindTransient:
		return ErrTransient
	case KindConflict:
		return ErrConflict
	default:
		return nil
	}
}

// Validation builds a validation failure with field messages.
func Validation(message string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

// NotFound builds a not-found failure.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Transient wraps a connection or timeout failure.
func Transient(message string, cause error) *Error {
	return &Error{Kind: KindTransient, Message: message, Cause: cause}
}

// Conflict builds a conflict failure carrying the server's message verbatim.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// KindOf classifies any error. Context deadlines and network errors are
// transient; unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindUnknown
}

// FieldErrors returns the per-field messages of a validation failure.
func FieldErrors(err error) map[string][]string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Fields
	}
	return nil
}
