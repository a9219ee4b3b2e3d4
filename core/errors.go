package core

import (
	"errors"
	"fmt"
)

// Common errors returned by the executor.
var (
	// ErrRejected is matched by every *RejectedError.
	ErrRejected = errors.New("task rejected")

	// ErrNilTask is returned when a nil task is submitted.
	ErrNilTask = errors.New("task is nil")

	// ErrInterrupted is returned by blocking queue operations whose
	// interrupt channel fired before an element arrived.
	ErrInterrupted = errors.New("interrupted")

	// ErrInvalidConfig is matched by every *ConfigError.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrCancelled is the result of a future that was cancelled before
	// it completed.
	ErrCancelled = errors.New("task cancelled")

	// ErrTimeout is returned when a bounded wait elapses.
	ErrTimeout = errors.New("operation timed out")
)

// Rejection reasons reported to handlers, metrics and logs.
const (
	ReasonShutdown  = "shutdown"
	ReasonSaturated = "saturated"
)

// RejectedError is returned by AbortPolicy.
type RejectedError struct {
	Pool   string
	Reason string
	Task   Runnable
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("executor %s: task rejected: %s", e.Pool, e.Reason)
}

// Is reports ErrRejected so callers can use errors.Is.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// PanicError wraps a value recovered from a panicking task or hook together
// with the stack at the point of the panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ConfigError describes an invalid configuration field.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Msg)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

func errConfig(field, msg string) error {
	return &ConfigError{Field: field, Msg: msg}
}
