// Package core provides the shared types, errors, and configuration for the
// villager memory lifecycle engine.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrAgentNotFound indicates that no store exists for the requested agent.
	ErrAgentNotFound = errors.New("agent memory not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStorageOperation indicates that a record store read or write failed.
	ErrStorageOperation = errors.New("storage operation failed")

	// ErrCorruptData indicates that a persisted store could not be decoded.
	ErrCorruptData = errors.New("corrupt agent data")

	// ErrGenerationFailed indicates that the external response generator failed.
	ErrGenerationFailed = errors.New("response generation failed")

	// ErrBackupFailed indicates that a snapshot could not be created or restored.
	ErrBackupFailed = errors.New("backup operation failed")

	// ErrInvalidInput indicates that the provided input is invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// EngineError annotates an error with the name of the failing operation.
//
// Example:
//
//	err := NewEngineError("CleanupExpired", ErrStorageOperation)
//	// err.Error() == "villagemem: CleanupExpired: storage operation failed"
type EngineError struct {
	Op  string // operation that failed, e.g. "RestoreFromBackup"
	Err error  // underlying cause
}

// Error formats the message as "villagemem: <Op>: <Err>".
func (e *EngineError) Error() string {
	return fmt.Sprintf("villagemem: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError wraps err with operation context. A nil err yields nil, so
// return values can be wrapped unconditionally.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &EngineError{Op: op, Err: err}
}
