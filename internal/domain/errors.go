package domain

import "errors"

// Store and access failures. Repositories and the authorizer wrap these and
// the HTTP and WebSocket layers turn them into status codes.
var (
	ErrNotFound  = errors.New("domain: not found")
	ErrConflict  = errors.New("domain: conflict")
	ErrForbidden = errors.New("domain: forbidden")
)

// ErrInvalid matches every ValidationError.
var ErrInvalid = errors.New("domain: invalid")

// ValidationError names the field a task, project or comment was rejected on.
type ValidationError struct {
	Entity string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Entity + ": " + e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

func required(entity, field string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: "is required"}
}

var (
	ErrInvalidStatus   error = &ValidationError{Entity: "task", Field: "status", Reason: "is not a board column"}
	ErrInvalidPriority error = &ValidationError{Entity: "task", Field: "priority", Reason: "is unknown"}
)
