// Package store provides the persistence layer for the production log.
//
// [Store] is the single interface the application talks to. Three backends
// implement it:
//
//   - [github.com/realitylog/realitylog/pkg/store/memory.MemoryStore]: in-process maps,
//     used for development and tests
//   - [github.com/realitylog/realitylog/pkg/store/gormstore.GormStore]: GORM over
//     PostgreSQL, or SQLite for single-node installs
//   - [github.com/realitylog/realitylog/pkg/store/surrealdb.SurrealStore]: SurrealDB
//     over its RPC protocol, with live queries for change notification
//
// # Ownership of identifiers and timestamps
//
// Create methods always assign a new ID and set CreatedAt and UpdatedAt from the
// server clock, overwriting whatever the caller supplied. Clients never choose IDs.
//
// # Missing records
//
// Get methods return (nil, nil) when nothing matches. Update and Delete methods
// return an error wrapping [ErrNotFound]. List methods return empty slices, never nil,
// ordered newest first by CreatedAt.
//
// # Change notification
//
// Backends that can observe their own writes from other processes implement
// [Watcher] directly (SurrealDB). Others are wrapped in a [NotifyingStore], which
// publishes a [Change] after every successful write made through it.
//
// # Maintenance mode
//
// [ReadOnlyStore] rejects every write with [ErrReadOnly] while a toggle is set,
// leaving reads untouched.
package store

import (
	"context"
	"time"

	"github.com/realitylog/realitylog/pkg/models"
)

// Store is the full persistence interface.
type Store interface {
	UserStore
	ReferenceStore
	LogEntryStore

	// Migrate creates or upgrades the schema. It is idempotent.
	Migrate(ctx context.Context) error

	// Close releases connections. The store is unusable afterwards.
	Close() error
}

// UserStore persists identity profiles.
type UserStore interface {
	// CreateUser stores a new profile. It fails with ErrConflict when the email is taken.
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id models.UserID) (*models.User, error)
	// GetUserByEmail matches the email case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateUser replaces display name, role and password hash.
	UpdateUser(ctx context.Context, user *models.User) error
	// TouchUser records activity for the user.
	TouchUser(ctx context.Context, id models.UserID, at time.Time) error
	DeleteUser(ctx context.Context, id models.UserID) error
	ListUsers(ctx context.Context) ([]*models.User, error)
}

// ReferenceStore persists the data operators pick from while logging.
// Updates replace every mutable field; CreatedAt is preserved.
type ReferenceStore interface {
	CreateParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, id models.ParticipantID) (*models.Participant, error)
	UpdateParticipant(ctx context.Context, p *models.Participant) error
	DeleteParticipant(ctx context.Context, id models.ParticipantID) error
	ListParticipants(ctx context.Context) ([]*models.Participant, error)

	CreateLocation(ctx context.Context, l *models.Location) error
	GetLocation(ctx context.Context, id models.LocationID) (*models.Location, error)
	UpdateLocation(ctx context.Context, l *models.Location) error
	DeleteLocation(ctx context.Context, id models.LocationID) error
	ListLocations(ctx context.Context) ([]*models.Location, error)

	CreateActionCategory(ctx context.Context, a *models.ActionCategory) error
	GetActionCategory(ctx context.Context, id models.ActionCategoryID) (*models.ActionCategory, error)
	UpdateActionCategory(ctx context.Context, a *models.ActionCategory) error
	DeleteActionCategory(ctx context.Context, id models.ActionCategoryID) error
	ListActionCategories(ctx context.Context) ([]*models.ActionCategory, error)

	CreateTag(ctx context.Context, t *models.Tag) error
	GetTag(ctx context.Context, id models.TagID) (*models.Tag, error)
	UpdateTag(ctx context.Context, t *models.Tag) error
	DeleteTag(ctx context.Context, id models.TagID) error
	ListTags(ctx context.Context) ([]*models.Tag, error)
}

// LogEntryStore persists log entries.
//
// There is deliberately no general update: after creation only the notes,
// UpdatedAt and UpdatedBy of an entry can change, and UpdateLogEntryNotes is the
// only way to change them.
type LogEntryStore interface {
	// CreateLogEntry stores a new entry. CreatedBy must be set by the caller from
	// the authenticated identity.
	CreateLogEntry(ctx context.Context, entry *models.LogEntry) error
	GetLogEntry(ctx context.Context, id models.LogEntryID) (*models.LogEntry, error)
	// UpdateLogEntryNotes sets notes, UpdatedAt and UpdatedBy and returns the stored entry.
	UpdateLogEntryNotes(ctx context.Context, id models.LogEntryID, update NotesUpdate) (*models.LogEntry, error)
	DeleteLogEntry(ctx context.Context, id models.LogEntryID) error
	// ListLogEntries returns matching entries, newest first, honoring Limit and Offset.
	ListLogEntries(ctx context.Context, filter LogEntryFilter) ([]*models.LogEntry, error)
	// CountLogEntries counts matching entries, ignoring Limit and Offset.
	CountLogEntries(ctx context.Context, filter LogEntryFilter) (int, error)
}

// NotesUpdate is the complete payload of an entry edit.
type NotesUpdate struct {
	Notes     string
	UpdatedBy models.UserID
	UpdatedAt time.Time
}
