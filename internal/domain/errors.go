package domain

import "fmt"

// ValidationError rejects a candidate in-game name. The session survives it.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Input, e.Reason)
}

// ExecutionError is a remote console transport failure
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %q: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// PersistenceError is a mapping store write failure
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("mapping store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// CollaborationError is a failed chat platform call
type CollaborationError struct {
	Op  string
	Err error
}

func (e *CollaborationError) Error() string {
	return fmt.Sprintf("chat platform %s: %v", e.Op, e.Err)
}

func (e *CollaborationError) Unwrap() error {
	return e.Err
}
