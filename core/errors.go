// Package core provides the fundamental building blocks of the golem ODM.
// This file defines the error taxonomy returned by models, queries and the
// relationship resolver.
package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors.
var (
	// ErrNotFound is returned by the ...OrFail variants when nothing matched.
	ErrNotFound = errors.New("golem: entity not found")

	// ErrConfiguration is returned when a schema declaration cannot be used,
	// e.g. a relation whose related schema cannot be resolved.
	ErrConfiguration = errors.New("golem: invalid configuration")

	// Abort is returned by a before-hook to veto the operation. It is not
	// reported to the caller as an error.
	Abort = errors.New("golem: operation aborted by hook")
)

// DatabaseError wraps a failed store call.
type DatabaseError struct {
	Op         Operation
	Collection string
	Err        error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("golem: %s on %q failed: %v", e.Op, e.Collection, e.Err)
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// IsDatabaseError returns true if the error is a DatabaseError.
func IsDatabaseError(err error) bool {
	var e *DatabaseError
	return errors.As(err, &e)
}

// HookError wraps a failure raised by a hook callback.
type HookError struct {
	Kind   HookKind
	Hook   string
	Entity string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("golem: %s hook %s on %s failed: %v", e.Kind, e.Hook, e.Entity, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// IsHookError returns true if the error is a HookError.
func IsHookError(err error) bool {
	var e *HookError
	return errors.As(err, &e)
}

// RelationError wraps a failure while resolving a relationship.
type RelationError struct {
	Relation string
	Entity   string
	Err      error
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("golem: loading relation %q of %s failed: %v", e.Relation, e.Entity, e.Err)
}

func (e *RelationError) Unwrap() error {
	return e.Err
}

// IsRelationError returns true if the error is a RelationError.
func IsRelationError(err error) bool {
	var e *RelationError
	return errors.As(err, &e)
}

// NotFoundError represents an error when an entity is not found.
type NotFoundError struct {
	Entity string
	ID     any // Optional: the ID that was searched for
}

func (e *NotFoundError) Error() string {
	if e.ID != nil {
		return fmt.Sprintf("golem: %s not found (id=%v)", e.Entity, e.ID)
	}
	return fmt.Sprintf("golem: %s not found", e.Entity)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConfigurationError reports an unusable schema declaration.
type ConfigurationError struct {
	Entity   string
	Relation string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("golem: %s.%s: %s", e.Entity, e.Relation, e.Reason)
	}
	return fmt.Sprintf("golem: %s: %s", e.Entity, e.Reason)
}

func (e *ConfigurationError) Is(err error) bool {
	return err == ErrConfiguration
}

// IsConfigurationError returns true if the error is a ConfigurationError.
func IsConfigurationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConfigurationError
	return errors.As(err, &e) || errors.Is(err, ErrConfiguration)
}
