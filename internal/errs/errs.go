// Package errs defines the typed error taxonomy shared by every tool
// operation. Each error carries a stable code, the failing object when
// known, and a context bag that has already been sanitized for display.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error category on the wire.
type Code string

// Error codes surfaced to callers.
const (
	CodeMissingRequiredField    Code = "MISSING_REQUIRED_FIELD"
	CodeInvalidField            Code = "INVALID_FIELD"
	CodeParentNotExist          Code = "PARENT_NOT_EXIST"
	CodeParentInvalid           Code = "PARENT_INVALID"
	CodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	CodePrerequisitesIncomplete Code = "PREREQUISITES_INCOMPLETE"
	CodeCircularDependency      Code = "CIRCULAR_DEPENDENCY"
	CodeProtectedObject         Code = "PROTECTED_OBJECT"
	CodeNoAvailableTask         Code = "NO_AVAILABLE_TASK"
	CodeCascadeError            Code = "CASCADE_ERROR"
	CodeInternal                Code = "INTERNAL_ERROR"
)

// Error is a typed Trellis error.
type Error struct {
	Code     Code
	Message  string
	ObjectID string
	Kind     string
	Context  map[string]string
	wrapped  error
}

// New creates an Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error around an underlying cause. The cause is kept
// for errors.Is/As chains but its text never reaches the message.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// WithObject attaches the failing object's id and kind.
func (e *Error) WithObject(id, kind string) *Error {
	e.ObjectID = id
	e.Kind = kind
	return e
}

// WithContext attaches a key/value pair to the context bag. Values must
// already be sanitized by the caller.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func (e *Error) Error() string {
	if e.ObjectID != "" {
		return fmt.Sprintf("%s: %s (object %s)", e.Code, e.Message, e.ObjectID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// CodeOf extracts the taxonomy code from any error chain. Untyped
// errors map to INTERNAL_ERROR.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code anywhere in its
// chain, including inside an accumulated List.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) && e.Code == code {
		return true
	}
	var l *List
	if errors.As(err, &l) {
		for _, item := range l.Errors {
			if HasCode(item, code) {
				return true
			}
		}
	}
	return false
}

// List accumulates validation errors so a single response can report
// every violation instead of the first one found.
type List struct {
	Errors []*Error
}

// Add appends an error to the list. Nil errors are ignored; a nested
// List is flattened.
func (l *List) Add(err error) {
	if err == nil {
		return
	}
	var nested *List
	if errors.As(err, &nested) {
		l.Errors = append(l.Errors, nested.Errors...)
		return
	}
	var e *Error
	if errors.As(err, &e) {
		l.Errors = append(l.Errors, e)
		return
	}
	l.Errors = append(l.Errors, Wrap(CodeInternal, err, "%s", err.Error()))
}

// Addf appends a freshly built error.
func (l *List) Addf(code Code, format string, args ...any) {
	l.Errors = append(l.Errors, New(code, format, args...))
}

// Err returns the list as an error, or nil when empty. A single-element
// list collapses to that element.
func (l *List) Err() error {
	switch len(l.Errors) {
	case 0:
		return nil
	case 1:
		return l.Errors[0]
	default:
		return l
	}
}

func (l *List) Error() string {
	msgs := make([]string, len(l.Errors))
	for i, e := range l.Errors {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Codes returns the distinct codes present in the list, in order of
// first appearance.
func (l *List) Codes() []Code {
	seen := make(map[Code]bool)
	var out []Code
	for _, e := range l.Errors {
		if !seen[e.Code] {
			seen[e.Code] = true
			out = append(out, e.Code)
		}
	}
	return out
}
