package errors

import (
	"fmt"

	"github.com/vango-dev/framepipe/pkg/node"
)

// Category represents the type of error.
type Category string

const (
	CategoryPipeline Category = "pipeline"
	CategoryConfig   Category = "config"
	CategoryCLI      Category = "cli"
	CategoryReport   Category = "report"
)

// Error is a structured pipeline error carrying a stable code, the node it
// concerns, and the underlying cause.
type Error struct {
	// Code is a unique error identifier (e.g., "P010").
	Code string

	// Category is the error type (pipeline, config, etc.).
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Node is the node the error concerns, or node.None.
	Node node.ID

	// Phase names the pipeline phase that failed ("layout", "paint", ...).
	Phase string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Node != node.None {
		msg = fmt.Sprintf("%s (node %d)", msg, e.Node)
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error with the same code. This lets
// sentinel values built with New match any error carrying that code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// WithNode records the node the error concerns.
func (e *Error) WithNode(id node.ID) *Error {
	e.Node = id
	return e
}

// WithPhase records the pipeline phase.
func (e *Error) WithPhase(phase string) *Error {
	e.Phase = phase
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:       code,
		Category:   template.Category,
		Message:    template.Message,
		Detail:     template.Detail,
		Suggestion: template.Suggestion,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error. Errors that already are
// *Error are returned unchanged.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(code).Wrap(err)
}
