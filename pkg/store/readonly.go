package store

import (
	"context"
	"time"

	"github.com/realitylog/realitylog/pkg/models"
)

// ReadOnlyStore wraps a Store and rejects write operations while in read-only mode.
//
// The mode is read from isReadOnly on every write, so maintenance windows can be
// opened and closed at runtime without recreating the store. Reads always pass through.
// Every rejected write returns an error wrapping ErrReadOnly.
type ReadOnlyStore struct {
	Store
	isReadOnly func() bool
}

// NewReadOnlyStore creates a new read-only wrapper for a store
func NewReadOnlyStore(store Store, isReadOnly func() bool) Store {
	return &ReadOnlyStore{
		Store:      store,
		isReadOnly: isReadOnly,
	}
}

// Unwrap returns the underlying store
func (r *ReadOnlyStore) Unwrap() Store {
	return r.Store
}

// checkReadOnly returns an error if the store is in read-only mode
func (r *ReadOnlyStore) checkReadOnly() error {
	if r.isReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// Write operations - check read-only mode first

func (r *ReadOnlyStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateUser(ctx, user)
}

func (r *ReadOnlyStore) UpdateUser(ctx context.Context, user *models.User) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.UpdateUser(ctx, user)
}

func (r *ReadOnlyStore) TouchUser(ctx context.Context, id models.UserID, at time.Time) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.TouchUser(ctx, id, at)
}

func (r *ReadOnlyStore) DeleteUser(ctx context.Context, id models.UserID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteUser(ctx, id)
}

func (r *ReadOnlyStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateParticipant(ctx, p)
}

func (r *ReadOnlyStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.UpdateParticipant(ctx, p)
}

func (r *ReadOnlyStore) DeleteParticipant(ctx context.Context, id models.ParticipantID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteParticipant(ctx, id)
}

func (r *ReadOnlyStore) CreateLocation(ctx context.Context, l *models.Location) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateLocation(ctx, l)
}

func (r *ReadOnlyStore) UpdateLocation(ctx context.Context, l *models.Location) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.UpdateLocation(ctx, l)
}

func (r *ReadOnlyStore) DeleteLocation(ctx context.Context, id models.LocationID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteLocation(ctx, id)
}

func (r *ReadOnlyStore) CreateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateActionCategory(ctx, a)
}

func (r *ReadOnlyStore) UpdateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.UpdateActionCategory(ctx, a)
}

func (r *ReadOnlyStore) DeleteActionCategory(ctx context.Context, id models.ActionCategoryID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteActionCategory(ctx, id)
}

func (r *ReadOnlyStore) CreateTag(ctx context.Context, t *models.Tag) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateTag(ctx, t)
}

func (r *ReadOnlyStore) UpdateTag(ctx context.Context, t *models.Tag) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.UpdateTag(ctx, t)
}

func (r *ReadOnlyStore) DeleteTag(ctx context.Context, id models.TagID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteTag(ctx, id)
}

func (r *ReadOnlyStore) CreateLogEntry(ctx context.Context, entry *models.LogEntry) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.CreateLogEntry(ctx, entry)
}

func (r *ReadOnlyStore) DeleteLogEntry(ctx context.Context, id models.LogEntryID) error {
	if err := r.checkReadOnly(); err != nil {
		return err
	}
	return r.Store.DeleteLogEntry(ctx, id)
}

func (r *ReadOnlyStore) UpdateLogEntryNotes(ctx context.Context, id models.LogEntryID, update NotesUpdate) (*models.LogEntry, error) {
	if err := r.checkReadOnly(); err != nil {
		return nil, err
	}
	return r.Store.UpdateLogEntryNotes(ctx, id, update)
}
