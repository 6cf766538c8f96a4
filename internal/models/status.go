package models

// Status is the lifecycle state shared by groups, snapshots, members
// and shares. Transitions out of creating happen asynchronously on the
// backend host; this layer only ever moves records into creating or
// deleting.
type Status string

const (
	StatusCreating  Status = "creating"
	StatusAvailable Status = "available"
	StatusError     Status = "error"
	StatusDeleting  Status = "deleting"
)

// Deletable reports whether a record in this status may be deleted.
func (s Status) Deletable() bool {
	return s == StatusAvailable || s == StatusError
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusCreating, StatusAvailable, StatusError, StatusDeleting:
		return true
	default:
		return false
	}
}
