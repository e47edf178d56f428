package store

import (
	"context"
	"time"

	"github.com/realitylog/realitylog/pkg/models"
)

// NotifyingStore wraps a Store and publishes a Change after every successful write.
//
// It only sees writes made through itself, which is enough for a single process
// owning its database (memory, SQLite, or PostgreSQL without other writers).
type NotifyingStore struct {
	Store
	broker *Broker
}

// NewNotifyingStore wraps s. Watch on the result observes writes made through it.
func NewNotifyingStore(s Store) *NotifyingStore {
	return &NotifyingStore{Store: s, broker: NewBroker()}
}

// Unwrap returns the underlying store
func (n *NotifyingStore) Unwrap() Store {
	return n.Store
}

func (n *NotifyingStore) Watch(ctx context.Context, c Collection) (<-chan Change, error) {
	return n.broker.Watch(ctx, c)
}

func (n *NotifyingStore) publish(err error, c Collection, op models.ChangeOperation, id string) error {
	if err == nil {
		n.broker.Publish(Change{Collection: c, Operation: op, ID: id})
	}
	return err
}

func (n *NotifyingStore) CreateUser(ctx context.Context, user *models.User) error {
	err := n.Store.CreateUser(ctx, user)
	return n.publish(err, CollectionUsers, models.ChangeOperationCreate, user.ID.String())
}

func (n *NotifyingStore) UpdateUser(ctx context.Context, user *models.User) error {
	err := n.Store.UpdateUser(ctx, user)
	return n.publish(err, CollectionUsers, models.ChangeOperationUpdate, user.ID.String())
}

func (n *NotifyingStore) TouchUser(ctx context.Context, id models.UserID, at time.Time) error {
	err := n.Store.TouchUser(ctx, id, at)
	return n.publish(err, CollectionUsers, models.ChangeOperationUpdate, id.String())
}

func (n *NotifyingStore) DeleteUser(ctx context.Context, id models.UserID) error {
	err := n.Store.DeleteUser(ctx, id)
	return n.publish(err, CollectionUsers, models.ChangeOperationDelete, id.String())
}

func (n *NotifyingStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	err := n.Store.CreateParticipant(ctx, p)
	return n.publish(err, CollectionParticipants, models.ChangeOperationCreate, p.ID.String())
}

func (n *NotifyingStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	err := n.Store.UpdateParticipant(ctx, p)
	return n.publish(err, CollectionParticipants, models.ChangeOperationUpdate, p.ID.String())
}

func (n *NotifyingStore) DeleteParticipant(ctx context.Context, id models.ParticipantID) error {
	err := n.Store.DeleteParticipant(ctx, id)
	return n.publish(err, CollectionParticipants, models.ChangeOperationDelete, id.String())
}

func (n *NotifyingStore) CreateLocation(ctx context.Context, l *models.Location) error {
	err := n.Store.CreateLocation(ctx, l)
	return n.publish(err, CollectionLocations, models.ChangeOperationCreate, l.ID.String())
}

func (n *NotifyingStore) UpdateLocation(ctx context.Context, l *models.Location) error {
	err := n.Store.UpdateLocation(ctx, l)
	return n.publish(err, CollectionLocations, models.ChangeOperationUpdate, l.ID.String())
}

func (n *NotifyingStore) DeleteLocation(ctx context.Context, id models.LocationID) error {
	err := n.Store.DeleteLocation(ctx, id)
	return n.publish(err, CollectionLocations, models.ChangeOperationDelete, id.String())
}

func (n *NotifyingStore) CreateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	err := n.Store.CreateActionCategory(ctx, a)
	return n.publish(err, CollectionActionCategories, models.ChangeOperationCreate, a.ID.String())
}

func (n *NotifyingStore) UpdateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	err := n.Store.UpdateActionCategory(ctx, a)
	return n.publish(err, CollectionActionCategories, models.ChangeOperationUpdate, a.ID.String())
}

func (n *NotifyingStore) DeleteActionCategory(ctx context.Context, id models.ActionCategoryID) error {
	err := n.Store.DeleteActionCategory(ctx, id)
	return n.publish(err, CollectionActionCategories, models.ChangeOperationDelete, id.String())
}

func (n *NotifyingStore) CreateTag(ctx context.Context, t *models.Tag) error {
	err := n.Store.CreateTag(ctx, t)
	return n.publish(err, CollectionTags, models.ChangeOperationCreate, t.ID.String())
}

func (n *NotifyingStore) UpdateTag(ctx context.Context, t *models.Tag) error {
	err := n.Store.UpdateTag(ctx, t)
	return n.publish(err, CollectionTags, models.ChangeOperationUpdate, t.ID.String())
}

func (n *NotifyingStore) DeleteTag(ctx context.Context, id models.TagID) error {
	err := n.Store.DeleteTag(ctx, id)
	return n.publish(err, CollectionTags, models.ChangeOperationDelete, id.String())
}

func (n *NotifyingStore) CreateLogEntry(ctx context.Context, entry *models.LogEntry) error {
	err := n.Store.CreateLogEntry(ctx, entry)
	return n.publish(err, CollectionLogEntries, models.ChangeOperationCreate, entry.ID.String())
}

func (n *NotifyingStore) UpdateLogEntryNotes(ctx context.Context, id models.LogEntryID, update NotesUpdate) (*models.LogEntry, error) {
	entry, err := n.Store.UpdateLogEntryNotes(ctx, id, update)
	return entry, n.publish(err, CollectionLogEntries, models.ChangeOperationUpdate, id.String())
}

func (n *NotifyingStore) DeleteLogEntry(ctx context.Context, id models.LogEntryID) error {
	err := n.Store.DeleteLogEntry(ctx, id)
	return n.publish(err, CollectionLogEntries, models.ChangeOperationDelete, id.String())
}
