package services

import (
	"fmt"

	"github.com/google/uuid"
)

// The service layer reports failures through a small set of typed
// errors. Handlers translate them to HTTP statuses: invalid input maps
// to 400, illegal state transitions and store-level policy conflicts to
// 409, missing records to 404.

// InvalidInputError is a malformed or contradictory caller-supplied
// combination of fields.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string { return e.Reason }

// InvalidShareGroupError is valid input against a share group in a
// state that forbids the operation.
type InvalidShareGroupError struct {
	Reason string
}

func (e *InvalidShareGroupError) Error() string { return e.Reason }

// InvalidGroupSnapshotError is valid input against a group snapshot in
// a state that forbids the operation.
type InvalidGroupSnapshotError struct {
	Reason string
}

func (e *InvalidGroupSnapshotError) Error() string { return e.Reason }

// InvalidShareGroupTypeError is a malformed reference to a group type.
type InvalidShareGroupTypeError struct {
	Reason string
}

func (e *InvalidShareGroupTypeError) Error() string { return e.Reason }

// InvalidExtraSpecError is a malformed extra-spec value.
type InvalidExtraSpecError struct {
	Reason string
}

func (e *InvalidExtraSpecError) Error() string { return e.Reason }

// NotFoundError is returned when a referenced record does not exist.
// Services translate the store's record-not-found at the repository
// boundary instead of leaking gorm errors upward.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// GroupTypeCreateFailedError wraps a store-level failure (typically a
// name uniqueness violation) while creating a group type.
type GroupTypeCreateFailedError struct {
	Name string
	Err  error
}

func (e *GroupTypeCreateFailedError) Error() string {
	return fmt.Sprintf("failed creating share group type %q", e.Name)
}

func (e *GroupTypeCreateFailedError) Unwrap() error { return e.Err }

// GroupTypeInUseError means the type is still referenced by at least
// one share group.
type GroupTypeInUseError struct {
	ID uuid.UUID
}

func (e *GroupTypeInUseError) Error() string {
	return fmt.Sprintf("share group type %s is still in use", e.ID)
}

// GroupTypeAccessExistsError means the project already has access to
// the group type.
type GroupTypeAccessExistsError struct {
	TypeID    uuid.UUID
	ProjectID uuid.UUID
}

func (e *GroupTypeAccessExistsError) Error() string {
	return fmt.Sprintf("project %s already has access to share group type %s", e.ProjectID, e.TypeID)
}

// GroupTypeAccessNotFoundError means no access grant exists for the
// project on the group type.
type GroupTypeAccessNotFoundError struct {
	TypeID    uuid.UUID
	ProjectID uuid.UUID
}

func (e *GroupTypeAccessNotFoundError) Error() string {
	return fmt.Sprintf("project %s has no access to share group type %s", e.ProjectID, e.TypeID)
}
