// Package ctrlerr defines the error taxonomy shared by the PWM Registry,
// Encoder Pipeline, and RPM Controller: every command-path failure is one of
// these four typed errors, wrapped with fmt.Errorf("...: %w", ...) the way
// the rest of this codebase constructs errors.
package ctrlerr

import (
	"errors"
	"fmt"
)

// ValidationError marks an out-of-range input (pin, duty, frequency,
// target_rpm). No state change has occurred when this is returned.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

// Validationf constructs a ValidationError with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ResourceError marks a GPIO backend open/write failure.
type ResourceError struct {
	msg string
	err error
}

func (e *ResourceError) Error() string { return e.msg }
func (e *ResourceError) Unwrap() error { return e.err }

// Resourcef constructs a ResourceError with a formatted message. A trailing
// %w verb wraps the underlying error so errors.Is/errors.As still see it.
func Resourcef(format string, args ...interface{}) error {
	wrapped := fmt.Errorf(format, args...)
	return &ResourceError{msg: wrapped.Error(), err: errors.Unwrap(wrapped)}
}

// PreconditionError marks an operation attempted against a state that
// forbids it — rpm.start with a disabled sensor, pwm.stop on an unknown pin.
type PreconditionError struct{ msg string }

func (e *PreconditionError) Error() string { return e.msg }

func Preconditionf(format string, args ...interface{}) error {
	return &PreconditionError{msg: fmt.Sprintf(format, args...)}
}

// ConflictError marks an attempt to use the same pin as both a PWM output
// and an encoder input simultaneously.
type ConflictError struct{ msg string }

func (e *ConflictError) Error() string { return e.msg }

func Conflictf(format string, args ...interface{}) error {
	return &ConflictError{msg: fmt.Sprintf(format, args...)}
}
