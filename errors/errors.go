// Package errors provides the structured error type shared by the compiler,
// the runtime and the algebraic core. Every failure carries a stable code so
// callers can branch with errors.Is against the exported sentinels.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Category classifies where in the pipeline an error originated.
type Category string

const (
	CategoryState   Category = "state"   // canonical state construction
	CategoryCompile Category = "compile" // descriptor, IR and lowering errors
	CategoryRuntime Category = "runtime" // plan execution errors
	CategoryIO      Category = "io"      // plan files and the plan store
)

// Error is a structured error with a stable code and key-value context.
type Error struct {
	// Code identifies the failure kind, e.g. "NOT_RANK1".
	Code string

	Category Category
	Message  string

	// Context holds details such as the op name or the offending value.
	Context map[string]string

	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if ctx := e.ContextString(); ctx != "" {
		b.WriteString(" (")
		b.WriteString(ctx)
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with the given code, category and message.
func New(code string, category Category, message string) *Error {
	return &Error{
		Code:     code,
		Category: category,
		Message:  message,
		Context:  make(map[string]string),
	}
}

// Newf is New with a formatted message.
func Newf(code string, category Category, format string, args ...any) *Error {
	return New(code, category, fmt.Sprintf(format, args...))
}

// Wrap creates an error caused by err.
func Wrap(err error, code string, category Category, message string) *Error {
	return New(code, category, message).WithCause(err)
}

// WithContext adds a context entry and returns e for chaining.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithCause sets the underlying cause and returns e for chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// ContextString renders the context map with keys in sorted order.
func (e *Error) ContextString() string {
	if len(e.Context) == 0 {
		return ""
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, e.Context[k]))
	}
	return strings.Join(parts, ", ")
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode checks whether err's chain contains an *Error with the given code.
func IsCode(err error, code string) bool {
	if e, ok := As(err); ok {
		return e.Code == code
	}
	return false
}

// IsCategory checks whether err's chain contains an *Error of the given category.
func IsCategory(err error, category Category) bool {
	if e, ok := As(err); ok {
		return e.Category == category
	}
	return false
}

// IsRecoverable reports whether a caller may retry the same work on the
// other backend. Only NotRank1 qualifies.
func IsRecoverable(err error) bool {
	return IsCode(err, CodeNotRank1)
}
