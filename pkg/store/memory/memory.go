// Package memory provides an in-process implementation of [store.Store].
//
// Records live in maps guarded by a single RWMutex. Every value handed in or out is
// copied, so callers can never alias stored state. Data is lost on restart; use it
// for development, tests and demos.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

// MemoryStore implements store.Store in memory.
type MemoryStore struct {
	mu  sync.RWMutex
	now func() time.Time

	users            map[models.UserID]*models.User
	participants     map[models.ParticipantID]*models.Participant
	locations        map[models.LocationID]*models.Location
	actionCategories map[models.ActionCategoryID]*models.ActionCategory
	tags             map[models.TagID]*models.Tag
	logEntries       map[models.LogEntryID]*models.LogEntry
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock replaces time.Now for server-assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		now:              time.Now,
		users:            make(map[models.UserID]*models.User),
		participants:     make(map[models.ParticipantID]*models.Participant),
		locations:        make(map[models.LocationID]*models.Location),
		actionCategories: make(map[models.ActionCategoryID]*models.ActionCategory),
		tags:             make(map[models.TagID]*models.Tag),
		logEntries:       make(map[models.LogEntryID]*models.LogEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*MemoryStore)(nil)

// Migrate is a no-op; maps need no schema.
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// Generic helpers. Shallow copies are enough for every type except LogEntry,
// which has its own Clone.

func copyOf[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func get[K comparable, T any](ctx context.Context, s *MemoryStore, m map[K]*T, id K) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyOf(m[id]), nil
}

func list[K comparable, T any, PT interface {
	*T
	models.Record
}](ctx context.Context, s *MemoryStore, m map[K]*T) ([]PT, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]PT, 0, len(m))
	for _, v := range m {
		out = append(out, PT(copyOf(v)))
	}
	s.mu.RUnlock()
	store.SortNewestFirst(out)
	return out, nil
}

func remove[K interface {
	comparable
	String() string
}, T any](ctx context.Context, s *MemoryStore, m map[K]*T, c store.Collection, id K) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := m[id]; !ok {
		return store.NotFound(c, id)
	}
	delete(m, id)
	return nil
}

// Users

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return store.ErrConflict
		}
	}
	user.AssignID()
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	user.Role = user.Role.OrDefault()
	s.users[user.ID] = copyOf(user)
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	return get(ctx, s, s.users, id)
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return copyOf(u), nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return store.NotFound(store.CollectionUsers, user.ID)
	}
	existing.DisplayName = user.DisplayName
	existing.Role = user.Role.OrDefault()
	existing.PasswordHash = user.PasswordHash
	existing.UpdatedAt = s.now()
	*user = *copyOf(existing)
	return nil
}

func (s *MemoryStore) TouchUser(ctx context.Context, id models.UserID, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[id]
	if !ok {
		return store.NotFound(store.CollectionUsers, id)
	}
	existing.LastActive = &at
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, id models.UserID) error {
	return remove(ctx, s, s.users, store.CollectionUsers, id)
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return list[models.UserID, models.User, *models.User](ctx, s, s.users)
}

// Participants

func (s *MemoryStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.AssignID()
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.participants[p.ID] = copyOf(p)
	return nil
}

func (s *MemoryStore) GetParticipant(ctx context.Context, id models.ParticipantID) (*models.Participant, error) {
	return get(ctx, s, s.participants, id)
}

func (s *MemoryStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.participants[p.ID]
	if !ok {
		return store.NotFound(store.CollectionParticipants, p.ID)
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = s.now()
	s.participants[p.ID] = copyOf(p)
	return nil
}

func (s *MemoryStore) DeleteParticipant(ctx context.Context, id models.ParticipantID) error {
	return remove(ctx, s, s.participants, store.CollectionParticipants, id)
}

func (s *MemoryStore) ListParticipants(ctx context.Context) ([]*models.Participant, error) {
	return list[models.ParticipantID, models.Participant, *models.Participant](ctx, s, s.participants)
}

// Locations

func (s *MemoryStore) CreateLocation(ctx context.Context, l *models.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	l.AssignID()
	now := s.now()
	l.CreatedAt, l.UpdatedAt = now, now
	s.locations[l.ID] = copyOf(l)
	return nil
}

func (s *MemoryStore) GetLocation(ctx context.Context, id models.LocationID) (*models.Location, error) {
	return get(ctx, s, s.locations, id)
}

func (s *MemoryStore) UpdateLocation(ctx context.Context, l *models.Location) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.locations[l.ID]
	if !ok {
		return store.NotFound(store.CollectionLocations, l.ID)
	}
	l.CreatedAt = existing.CreatedAt
	l.UpdatedAt = s.now()
	s.locations[l.ID] = copyOf(l)
	return nil
}

func (s *MemoryStore) DeleteLocation(ctx context.Context, id models.LocationID) error {
	return remove(ctx, s, s.locations, store.CollectionLocations, id)
}

func (s *MemoryStore) ListLocations(ctx context.Context) ([]*models.Location, error) {
	return list[models.LocationID, models.Location, *models.Location](ctx, s, s.locations)
}

// Action categories

func (s *MemoryStore) CreateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.AssignID()
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.actionCategories[a.ID] = copyOf(a)
	return nil
}

func (s *MemoryStore) GetActionCategory(ctx context.Context, id models.ActionCategoryID) (*models.ActionCategory, error) {
	return get(ctx, s, s.actionCategories, id)
}

func (s *MemoryStore) UpdateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.actionCategories[a.ID]
	if !ok {
		return store.NotFound(store.CollectionActionCategories, a.ID)
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = s.now()
	s.actionCategories[a.ID] = copyOf(a)
	return nil
}

func (s *MemoryStore) DeleteActionCategory(ctx context.Context, id models.ActionCategoryID) error {
	return remove(ctx, s, s.actionCategories, store.CollectionActionCategories, id)
}

func (s *MemoryStore) ListActionCategories(ctx context.Context) ([]*models.ActionCategory, error) {
	return list[models.ActionCategoryID, models.ActionCategory, *models.ActionCategory](ctx, s, s.actionCategories)
}

// Tags

func (s *MemoryStore) CreateTag(ctx context.Context, t *models.Tag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.AssignID()
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.tags[t.ID] = copyOf(t)
	return nil
}

func (s *MemoryStore) GetTag(ctx context.Context, id models.TagID) (*models.Tag, error) {
	return get(ctx, s, s.tags, id)
}

func (s *MemoryStore) UpdateTag(ctx context.Context, t *models.Tag) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.tags[t.ID]
	if !ok {
		return store.NotFound(store.CollectionTags, t.ID)
	}
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = s.now()
	s.tags[t.ID] = copyOf(t)
	return nil
}

func (s *MemoryStore) DeleteTag(ctx context.Context, id models.TagID) error {
	return remove(ctx, s, s.tags, store.CollectionTags, id)
}

func (s *MemoryStore) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return list[models.TagID, models.Tag, *models.Tag](ctx, s, s.tags)
}

// Log entries

func (s *MemoryStore) CreateLogEntry(ctx context.Context, entry *models.LogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.AssignID()
	now := s.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	entry.UpdatedBy = nil
	s.logEntries[entry.ID] = entry.Clone()
	return nil
}

func (s *MemoryStore) GetLogEntry(ctx context.Context, id models.LogEntryID) (*models.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logEntries[id].Clone(), nil
}

func (s *MemoryStore) UpdateLogEntryNotes(ctx context.Context, id models.LogEntryID, update store.NotesUpdate) (*models.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.logEntries[id]
	if !ok {
		return nil, store.NotFound(store.CollectionLogEntries, id)
	}
	by := update.UpdatedBy
	existing.Notes = update.Notes
	existing.UpdatedBy = &by
	existing.UpdatedAt = update.UpdatedAt
	return existing.Clone(), nil
}

func (s *MemoryStore) DeleteLogEntry(ctx context.Context, id models.LogEntryID) error {
	return remove(ctx, s, s.logEntries, store.CollectionLogEntries, id)
}

func (s *MemoryStore) ListLogEntries(ctx context.Context, filter store.LogEntryFilter) ([]*models.LogEntry, error) {
	matched, err := s.matchLogEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	return store.Page(matched, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) CountLogEntries(ctx context.Context, filter store.LogEntryFilter) (int, error) {
	matched, err := s.matchLogEntries(ctx, filter)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

func (s *MemoryStore) matchLogEntries(ctx context.Context, filter store.LogEntryFilter) ([]*models.LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*models.LogEntry, 0, len(s.logEntries))
	for _, e := range s.logEntries {
		if filter.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()
	store.SortNewestFirst(out)
	return out, nil
}
