package models

import "time"

// ChangeOperation is the kind of write that produced a change notification.
type ChangeOperation string

const (
	ChangeOperationCreate ChangeOperation = "CREATE"
	ChangeOperationUpdate ChangeOperation = "UPDATE"
	ChangeOperationDelete ChangeOperation = "DELETE"
)

// Record is implemented by every persisted entity.
type Record interface {
	// Created is the server-assigned creation instant.
	Created() time.Time
	// Key is the canonical string form of the record's ID.
	Key() string
}
