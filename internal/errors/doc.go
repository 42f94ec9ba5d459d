// Package errors provides the coded, structured errors used across framepipe.
//
// Each error has a stable code that maps to a registered template:
//   - P0xx: pipeline errors (missing node, wrong node kind, layout/paint failure)
//   - C0xx: configuration errors
//   - X0xx: command line errors
//   - R0xx: run report export errors
//
// Errors created from the same code match each other with errors.Is, so a
// package can export a template instance as a sentinel:
//
//	var ErrLayoutFailed = errors.New(errors.CodeLayoutFailed)
//
//	err := errors.New(errors.CodeLayoutFailed).WithNode(id).Wrap(cause)
//	stderrors.Is(err, ErrLayoutFailed) // true
//	stderrors.Is(err, cause)           // true
//
// Format renders an error for the terminal; FormatJSON renders it for logs
// and HTTP responses.
package errors
