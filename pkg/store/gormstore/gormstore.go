// Package gormstore implements [store.Store] on relational databases through GORM.
//
// Two dialects are supported: PostgreSQL for shared deployments and SQLite for a
// single production laptop or tests. Both use the same schema, derived from the
// GORM tags on [models] types by [GormStore.Migrate].
//
// Participant and tag lists are stored as JSON text columns. Filtering on them uses
// a LIKE match on the quoted identifier, which is exact because identifiers are
// fixed-width UUIDs.
//
// All timestamps are written in UTC and truncated to microseconds so they compare
// the same way in Go and in either database.
//
// GormStore does not observe writes made by other processes. Wrap it in a
// [store.NotifyingStore] to get change notification for writes made through it.
//
//	s, err := gormstore.NewPostgresStore(dsn)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	if err := s.Migrate(ctx); err != nil {
//		return err
//	}
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

// GormStore implements the Store interface with GORM.
type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// Options tunes the connection pool. Zero values keep database/sql defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Debug logs every SQL statement through GORM's logger.
	Debug bool
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NewPostgresStore connects to PostgreSQL.
func NewPostgresStore(dsn string, opts Options) (*GormStore, error) {
	return open(postgres.Open(dsn), opts)
}

// NewSQLiteStore opens or creates a SQLite database file. Use ":memory:" for a
// private in-memory database.
func NewSQLiteStore(path string, opts Options) (*GormStore, error) {
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		opts.MaxOpenConns = 1
	}
	return open(sqlite.Open(path), opts)
}

func open(dialector gorm.Dialector, opts Options) (*GormStore, error) {
	level := logger.Silent
	if opts.Debug {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc:        now,
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, store.Unavailable(fmt.Errorf("failed to connect to database: %w", err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return &GormStore{db: db}, nil
}

// Migrate creates missing tables, columns and indexes. It never drops anything.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.User{},
		&models.Participant{},
		&models.Location{},
		&models.ActionCategory{},
		&models.Tag{},
		&models.LogEntry{},
	)
}

// Close closes the database connection
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity for health probes.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return store.Unavailable(sqlDB.PingContext(ctx))
}

// Generic helpers

func get[T any](ctx context.Context, db *gorm.DB, id any) (*T, error) {
	var v T
	err := db.WithContext(ctx).First(&v, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

func list[T any](ctx context.Context, db *gorm.DB) ([]*T, error) {
	out := []*T{}
	err := db.WithContext(ctx).Order("created_at DESC, id").Find(&out).Error
	return out, err
}

// update replaces every column of v except id and created_at, then reloads v so
// the caller sees the preserved CreatedAt.
func update(ctx context.Context, db *gorm.DB, c store.Collection, id fmt.Stringer, v any) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(v).Select("*").Omit("id", "created_at").Updates(v)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.NotFound(c, id)
		}
		return tx.First(v, "id = ?", id.String()).Error
	})
}

func remove[T any](ctx context.Context, db *gorm.DB, c store.Collection, id fmt.Stringer) error {
	res := db.WithContext(ctx).Delete(new(T), "id = ?", id.String())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.NotFound(c, id)
	}
	return nil
}

func stamp(created, updated *time.Time) {
	t := now()
	*created, *updated = t, t
}

// Users

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.User{}).Where("LOWER(email) = LOWER(?)", user.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return store.ErrConflict
		}
		user.Role = user.Role.OrDefault()
		stamp(&user.CreatedAt, &user.UpdatedAt)
		err := tx.Create(user).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return store.ErrConflict
		}
		return err
	})
}

func (s *GormStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	return get[models.User](ctx, s.db, id)
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) UpdateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
			"display_name":  user.DisplayName,
			"role":          user.Role.OrDefault(),
			"password_hash": user.PasswordHash,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.NotFound(store.CollectionUsers, user.ID)
		}
		return tx.First(user, "id = ?", user.ID).Error
	})
}

func (s *GormStore) TouchUser(ctx context.Context, id models.UserID, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("last_active", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.NotFound(store.CollectionUsers, id)
	}
	return nil
}

func (s *GormStore) DeleteUser(ctx context.Context, id models.UserID) error {
	return remove[models.User](ctx, s.db, store.CollectionUsers, id)
}

func (s *GormStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return list[models.User](ctx, s.db)
}

// Participants

func (s *GormStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	stamp(&p.CreatedAt, &p.UpdatedAt)
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *GormStore) GetParticipant(ctx context.Context, id models.ParticipantID) (*models.Participant, error) {
	return get[models.Participant](ctx, s.db, id)
}

func (s *GormStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	return update(ctx, s.db, store.CollectionParticipants, p.ID, p)
}

func (s *GormStore) DeleteParticipant(ctx context.Context, id models.ParticipantID) error {
	return remove[models.Participant](ctx, s.db, store.CollectionParticipants, id)
}

func (s *GormStore) ListParticipants(ctx context.Context) ([]*models.Participant, error) {
	return list[models.Participant](ctx, s.db)
}

// Locations

func (s *GormStore) CreateLocation(ctx context.Context, l *models.Location) error {
	stamp(&l.CreatedAt, &l.UpdatedAt)
	return s.db.WithContext(ctx).Create(l).Error
}

func (s *GormStore) GetLocation(ctx context.Context, id models.LocationID) (*models.Location, error) {
	return get[models.Location](ctx, s.db, id)
}

func (s *GormStore) UpdateLocation(ctx context.Context, l *models.Location) error {
	return update(ctx, s.db, store.CollectionLocations, l.ID, l)
}

func (s *GormStore) DeleteLocation(ctx context.Context, id models.LocationID) error {
	return remove[models.Location](ctx, s.db, store.CollectionLocations, id)
}

func (s *GormStore) ListLocations(ctx context.Context) ([]*models.Location, error) {
	return list[models.Location](ctx, s.db)
}

// Action categories

func (s *GormStore) CreateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	stamp(&a.CreatedAt, &a.UpdatedAt)
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *GormStore) GetActionCategory(ctx context.Context, id models.ActionCategoryID) (*models.ActionCategory, error) {
	return get[models.ActionCategory](ctx, s.db, id)
}

func (s *GormStore) UpdateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	return update(ctx, s.db, store.CollectionActionCategories, a.ID, a)
}

func (s *GormStore) DeleteActionCategory(ctx context.Context, id models.ActionCategoryID) error {
	return remove[models.ActionCategory](ctx, s.db, store.CollectionActionCategories, id)
}

func (s *GormStore) ListActionCategories(ctx context.Context) ([]*models.ActionCategory, error) {
	return list[models.ActionCategory](ctx, s.db)
}

// Tags

func (s *GormStore) CreateTag(ctx context.Context, t *models.Tag) error {
	stamp(&t.CreatedAt, &t.UpdatedAt)
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *GormStore) GetTag(ctx context.Context, id models.TagID) (*models.Tag, error) {
	return get[models.Tag](ctx, s.db, id)
}

func (s *GormStore) UpdateTag(ctx context.Context, t *models.Tag) error {
	return update(ctx, s.db, store.CollectionTags, t.ID, t)
}

func (s *GormStore) DeleteTag(ctx context.Context, id models.TagID) error {
	return remove[models.Tag](ctx, s.db, store.CollectionTags, id)
}

func (s *GormStore) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return list[models.Tag](ctx, s.db)
}

// Log entries

func (s *GormStore) CreateLogEntry(ctx context.Context, entry *models.LogEntry) error {
	stamp(&entry.CreatedAt, &entry.UpdatedAt)
	entry.UpdatedBy = nil
	if entry.Participants == nil {
		entry.Participants = []models.ParticipantID{}
	}
	if entry.Tags == nil {
		entry.Tags = []models.TagID{}
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

func (s *GormStore) GetLogEntry(ctx context.Context, id models.LogEntryID) (*models.LogEntry, error) {
	return get[models.LogEntry](ctx, s.db, id)
}

func (s *GormStore) UpdateLogEntryNotes(ctx context.Context, id models.LogEntryID, u store.NotesUpdate) (*models.LogEntry, error) {
	var entry models.LogEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.LogEntry{}).Where("id = ?", id).Updates(map[string]any{
			"notes":      u.Notes,
			"updated_by": u.UpdatedBy,
			"updated_at": u.UpdatedAt.UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.NotFound(store.CollectionLogEntries, id)
		}
		return tx.First(&entry, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *GormStore) DeleteLogEntry(ctx context.Context, id models.LogEntryID) error {
	return remove[models.LogEntry](ctx, s.db, store.CollectionLogEntries, id)
}

func (s *GormStore) ListLogEntries(ctx context.Context, filter store.LogEntryFilter) ([]*models.LogEntry, error) {
	q := applyFilter(s.db.WithContext(ctx).Model(&models.LogEntry{}), filter).
		Order("created_at DESC, id")
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	out := []*models.LogEntry{}
	err := q.Find(&out).Error
	return out, err
}

func (s *GormStore) CountLogEntries(ctx context.Context, filter store.LogEntryFilter) (int, error) {
	var n int64
	err := applyFilter(s.db.WithContext(ctx).Model(&models.LogEntry{}), filter).Count(&n).Error
	return int(n), err
}

func applyFilter(q *gorm.DB, f store.LogEntryFilter) *gorm.DB {
	if !f.ParticipantID.IsZero() {
		q = q.Where("participants LIKE ?", quotedLike(f.ParticipantID.String()))
	}
	if !f.LocationID.IsZero() {
		q = q.Where("location_id = ?", f.LocationID)
	}
	if !f.ActionCategoryID.IsZero() {
		q = q.Where("action_category_id = ?", f.ActionCategoryID)
	}
	if !f.TagID.IsZero() {
		q = q.Where("tags LIKE ?", quotedLike(f.TagID.String()))
	}
	if !f.CreatedBy.IsZero() {
		q = q.Where("created_by = ?", f.CreatedBy)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		q = q.Where("created_at < ?", f.Until.UTC())
	}
	if f.Search != "" {
		cond := `LOWER(notes) LIKE ? ESCAPE '\'`
		args := []any{"%" + escapeLike(strings.ToLower(f.Search)) + "%"}
		for _, id := range f.SearchParticipants {
			cond += " OR participants LIKE ?"
			args = append(args, quotedLike(id.String()))
		}
		q = q.Where("("+cond+")", args...)
	}
	return q
}

// quotedLike matches a JSON string element inside a serialized array.
func quotedLike(id string) string {
	return `%"` + id + `"%`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
