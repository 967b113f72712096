package durable

import (
	"errors"
	"fmt"
)

var (
	// ErrAttemptTimeout is the cause of an attempt exceeding its timeout.
	ErrAttemptTimeout = errors.New("task attempt timed out")
	// ErrHeartbeatTimeout is the cause of an attempt that stopped heartbeating.
	ErrHeartbeatTimeout = errors.New("task heartbeat timed out")
)

type nonRetryableError struct {
	err error
}

func (e *nonRetryableError) Error() string { return e.err.Error() }
func (e *nonRetryableError) Unwrap() error { return e.err }

// NonRetryable marks err so the runner gives up immediately.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}

	return &nonRetryableError{err: err}
}

// IsNonRetryable reports whether err was marked with NonRetryable.
func IsNonRetryable(err error) bool {
	var nr *nonRetryableError
	return errors.As(err, &nr)
}

// ContinueAsNewError asks the supervisor to restart the instance with Input.
type ContinueAsNewError[T any] struct {
	Input T
}

func (e *ContinueAsNewError[T]) Error() string {
	return "continue as new"
}

// ContinueAsNew returns the error that ends an instance and restarts it with input.
func ContinueAsNew[T any](input T) error {
	return &ContinueAsNewError[T]{Input: input}
}

// AsContinueAsNew extracts the restart argument from err.
func AsContinueAsNew[T any](err error) (T, bool) {
	var can *ContinueAsNewError[T]
	if errors.As(err, &can) {
		return can.Input, true
	}

	var zero T

	return zero, false
}

// TaskError is returned when a task failed after all attempts.
type TaskError struct {
	Task     string
	Attempts uint64
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed after %d attempt(s): %v", e.Task, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
