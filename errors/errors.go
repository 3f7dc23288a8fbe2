/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrNotFound is returned when an entity, blob or queue is not found
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity that already exists
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidInput is returned when argument validation fails
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidConfiguration is returned when a manager cannot be built from its settings
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrConditionFailed is returned when a concurrency token does not match the stored one
	ErrConditionFailed = errors.New("condition check failed")

	// ErrOperationFailed is returned when a blob operation fails in the provider
	ErrOperationFailed = errors.New("operation failed")
)

// ArgumentError reports an empty or malformed parameter. It is raised before any
// provider call.
type ArgumentError struct {
	Param   string
	Message string
}

func (e *ArgumentError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s (Parameter '%s')", e.Message, e.Param)
	}
	return e.Message
}

func (e *ArgumentError) Is(target error) bool {
	return target == ErrInvalidInput
}

// ConfigurationError represents settings a manager cannot be built from, such as a
// disallowed table name or a malformed connection string.
type ConfigurationError struct {
	Setting string
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Message
	if e.Setting != "" {
		msg = fmt.Sprintf("%s (Setting '%s')", e.Message, e.Setting)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Type string
	Key  string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// AlreadyExistsError represents an error when an entity already exists
type AlreadyExistsError struct {
	Type string
	Key  string
	Err  error
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s with key %q already exists", e.Type, e.Key)
}

func (e *AlreadyExistsError) Is(target error) bool {
	return target == ErrAlreadyExists
}

func (e *AlreadyExistsError) Unwrap() error { return e.Err }

// ConditionFailedError represents a failed conditional operation
type ConditionFailedError struct {
	Operation string
	Condition string
	Err       error
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("condition check failed for %s operation: %s", e.Operation, e.Condition)
}

func (e *ConditionFailedError) Is(target error) bool {
	return target == ErrConditionFailed
}

func (e *ConditionFailedError) Unwrap() error { return e.Err }

// OperationError is the uniform wrapper for blob failures. Its message is generic but the
// provider error stays reachable through errors.As.
type OperationError struct {
	Op      string
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OperationError) Is(target error) bool {
	return target == ErrOperationFailed
}

func (e *OperationError) Unwrap() error { return e.Err }

// Helper functions for creating errors

// NewArgumentError creates a new ArgumentError
func NewArgumentError(param, message string) error {
	return &ArgumentError{Param: param, Message: message}
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(setting, message string, cause error) error {
	return &ConfigurationError{Setting: setting, Message: message, Err: cause}
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string, cause error) error {
	return &NotFoundError{Type: entityType, Key: key, Err: cause}
}

// NewAlreadyExistsError creates a new AlreadyExistsError
func NewAlreadyExistsError(entityType, key string, cause error) error {
	return &AlreadyExistsError{Type: entityType, Key: key, Err: cause}
}

// NewValidationError creates an ArgumentError for a field of an entity.
func NewValidationError(field, message string) error {
	return &ArgumentError{Param: field, Message: message}
}

// NewConditionFailedError creates a new ConditionFailedError
func NewConditionFailedError(operation, condition string, cause error) error {
	return &ConditionFailedError{Operation: operation, Condition: condition, Err: cause}
}

// NewOperationError creates a new OperationError
func NewOperationError(op, message string, cause error) error {
	return &OperationError{Op: op, Message: message, Err: cause}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidationError checks if an error is an argument validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

// IsConditionFailed checks if an error is a condition failed error
func IsConditionFailed(err error) bool {
	return errors.Is(err, ErrConditionFailed)
}

// IsOperationFailed checks if an error is a wrapped blob operation failure
func IsOperationFailed(err error) bool {
	return errors.Is(err, ErrOperationFailed)
}
