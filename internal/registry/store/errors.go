package store

import "fmt"

// NotFoundError indicates the resource was not found (or is not shared).
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// PersistenceConflictError is returned when a map could not be created or
// found for an owner after the bounded retry.
type PersistenceConflictError struct {
	OwnerID string
	Err     error
}

func (e *PersistenceConflictError) Error() string {
	return fmt.Sprintf("map for owner %s: persistent conflict: %v", e.OwnerID, e.Err)
}

func (e *PersistenceConflictError) Unwrap() error { return e.Err }
