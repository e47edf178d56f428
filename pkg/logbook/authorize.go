package logbook

import "github.com/realitylog/realitylog/pkg/models"

// CanMutate reports whether identity may edit or delete entry.
//
// Admins and loggers may change any entry; anyone may change an entry they created.
// The check must be made against the entry as currently stored, never a cached copy.
func CanMutate(identity *models.User, entry *models.LogEntry) bool {
	if identity == nil || entry == nil {
		return false
	}
	switch identity.Role.OrDefault() {
	case models.RoleAdmin, models.RoleLogger:
		return true
	}
	return entry.CreatedBy == identity.ID
}

func requireIdentity(op string, identity *models.User) error {
	if identity == nil || identity.ID.IsZero() {
		return &PermissionError{Op: op, Reason: "not authenticated"}
	}
	return nil
}
