// Package errmodel implements the sandbox error type, stack sanitization,
// and the composable error-decoration helpers (spec §4.H, §7), grounded on
// the teacher's errext package: the same WithHint/HasHint/HasExitCode
// composition shape, adapted from a CLI-process error model to a sandbox
// value/cause model.
package errmodel

import (
	"errors"
	"fmt"
)

// Kind is the sandbox error kind tag (spec §4.H, §6).
type Kind string

const (
	TypeError      Kind = "TypeError"
	ReferenceError Kind = "ReferenceError"
	SyntaxError    Kind = "SyntaxError"
	RangeError     Kind = "RangeError"
	SecurityError  Kind = "SecurityError"
	ModuleError    Kind = "ModuleError"
	Generic        Kind = "Error"
)

// Error is the single sandbox-error variant (spec §4.H): a kind, a
// message, an optional cause (the original sandbox-thrown value, carried
// as `any` since it is a value.Value in practice but errmodel must not
// import value to avoid a cycle with the barrier/evaluator), and a
// sanitized stack.
type Error struct {
	ErrKind Kind
	Message string
	Cause   any
	Stack   string

	// Fatal marks conditions that bypass try/catch entirely (spec §7):
	// feature-gate rejections, module depth exceeded, cancellation.
	Fatal bool

	wrapped error
}

func New(kind Kind, message string) *Error {
	return &Error{ErrKind: kind, Message: message}
}

func Fatal(kind Kind, message string) *Error {
	return &Error{ErrKind: kind, Message: message, Fatal: true}
}

func (e *Error) Error() string {
	if e.Stack != "" {
		return e.Stack
	}
	return fmt.Sprintf("%s: %s", e.ErrKind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// WithCause attaches the original sandbox-thrown value.
func (e *Error) WithCause(cause any) *Error {
	e2 := *e
	e2.Cause = cause
	return &e2
}

// WithStack attaches an already-sanitized stack trace.
func (e *Error) WithStack(stack string) *Error {
	e2 := *e
	e2.Stack = stack
	return &e2
}

// hintedError and exitCodeError mirror the teacher's errext composition
// pattern: wrap once per concern, unwrap via errors.As at the boundary
// that cares. Neither the evaluator core nor the CLI in cmd/ unwraps them.

type hintedError struct {
	error
	hint string
}

func (h hintedError) Hint() string { return h.hint }
func (h hintedError) Unwrap() error { return h.error }

// HasHint is implemented by errors carrying a user-facing hint.
type HasHint interface {
	Hint() string
}

// WithHint decorates err with a hint, composing with any existing hint the
// way errext.WithHint does ("best hint (better hint (test hint))").
func WithHint(err error, hint string) error {
	if err == nil {
		return nil
	}
	var existing HasHint
	if errors.As(err, &existing) {
		hint = fmt.Sprintf("%s (%s)", hint, existing.Hint())
	}
	return hintedError{error: err, hint: hint}
}

type exitCodeError struct {
	error
	code int
}

func (e exitCodeError) ExitCode() int { return e.code }
func (e exitCodeError) Unwrap() error { return e.error }

// HasExitCode is implemented by errors carrying a process exit code.
type HasExitCode interface {
	ExitCode() int
}

// WithExitCodeIfNone sets code only if err does not already carry one,
// matching errext's "first exit code wins" behavior.
func WithExitCodeIfNone(err error, code int) error {
	if err == nil {
		return nil
	}
	var existing HasExitCode
	if errors.As(err, &existing) {
		return err
	}
	return exitCodeError{error: err, code: code}
}

// Exception is implemented by errors that carry a formatted stack trace
// distinct from Error().
type Exception interface {
	error
	StackTrace() string
}

// Format renders err the way the CLI's error path does: stack trace if
// available, otherwise Error(), plus any hint field — grounded on
// errext.Format.
func Format(err error) (string, map[string]any) {
	if err == nil {
		return "", nil
	}
	text := err.Error()
	var exc Exception
	if errors.As(err, &exc) {
		text = exc.StackTrace()
	}
	fields := map[string]any{}
	var h HasHint
	if errors.As(err, &h) {
		fields["hint"] = h.Hint()
	}
	if len(fields) == 0 {
		fields = nil
	}
	return text, fields
}
