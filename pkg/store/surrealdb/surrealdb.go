// Package surrealdb implements [store.Store] on SurrealDB using parameterized
// SurrealQL over the RPC protocol.
//
// # Record IDs
//
// Every typed ID in [models] marshals to a SurrealDB record link (table:uuid), so
// foreign keys such as a log entry's location are stored as links and can be
// passed to queries as parameters:
//
//	SELECT * FROM log_entries WHERE location = $location
//
// Never build queries by string interpolation of caller data. The only values
// formatted into query text here are integers for LIMIT and START.
//
// # Missing records
//
// Reads go through SELECT on a record ID, which yields an empty result rather than
// an error when nothing matches. UPDATE and DELETE use RETURN so an empty result
// can be reported as [store.ErrNotFound].
//
// # Change notification
//
// [SurrealStore.Watch] starts a LIVE SELECT on the collection's table, so writes
// from any process connected to the same database are observed. The live query is
// killed when the watch context ends.
//
// # Usage Example
//
//	s, err := surrealdb.NewSurrealStore(ctx, surrealdb.Config{
//		URL:       "ws://localhost:8000/rpc",
//		Namespace: "realitylog",
//		Database:  "production",
//		Username:  "root",
//		Password:  "root",
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	sdbmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

// Config holds connection settings.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
}

// SurrealStore implements the Store interface using SurrealDB.
type SurrealStore struct {
	db  *surrealdb.DB
	now func() time.Time
}

var (
	_ store.Store   = (*SurrealStore)(nil)
	_ store.Watcher = (*SurrealStore)(nil)
)

// NewSurrealStore connects, signs in when credentials are given, and selects the
// namespace and database.
func NewSurrealStore(ctx context.Context, cfg Config) (*SurrealStore, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, cfg.URL)
	if err != nil {
		return nil, store.Unavailable(fmt.Errorf("failed to connect to SurrealDB: %w", err))
	}

	if cfg.Username != "" && cfg.Password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": cfg.Username,
			"pass": cfg.Password,
		}); err != nil {
			_ = db.Close(ctx)
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &SurrealStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// schema is idempotent. Tables stay schemaless; the indexes back list ordering,
// the common filters and case-insensitive email uniqueness.
const schema = `
DEFINE TABLE IF NOT EXISTS users SCHEMALESS;
DEFINE INDEX IF NOT EXISTS users_email_key ON TABLE users FIELDS email_key UNIQUE;
DEFINE TABLE IF NOT EXISTS participants SCHEMALESS;
DEFINE TABLE IF NOT EXISTS locations SCHEMALESS;
DEFINE TABLE IF NOT EXISTS action_categories SCHEMALESS;
DEFINE TABLE IF NOT EXISTS tags SCHEMALESS;
DEFINE TABLE IF NOT EXISTS log_entries SCHEMALESS;
DEFINE INDEX IF NOT EXISTS log_entries_created_at ON TABLE log_entries FIELDS created_at;
DEFINE INDEX IF NOT EXISTS log_entries_location ON TABLE log_entries FIELDS location;
DEFINE INDEX IF NOT EXISTS log_entries_action_category ON TABLE log_entries FIELDS action_category;
DEFINE INDEX IF NOT EXISTS log_entries_created_by ON TABLE log_entries FIELDS created_by;
`

func (s *SurrealStore) Migrate(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, s.db, schema, nil); err != nil {
		return fmt.Errorf("failed to define schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SurrealStore) Close() error {
	return s.db.Close(context.Background())
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already contains")
}

// Generic helpers

// queryRecords runs a single statement and converts every row to its model.
func queryRecords[M any, R record[M]](ctx context.Context, db *surrealdb.DB, q string, vars map[string]any) ([]*M, error) {
	res, err := surrealdb.Query[[]R](ctx, db, q, vars)
	if err != nil {
		return nil, err
	}
	out := []*M{}
	if res == nil || len(*res) == 0 {
		return out, nil
	}
	for _, r := range (*res)[0].Result {
		m, err := r.model()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func selectOne[M any, R record[M]](ctx context.Context, db *surrealdb.DB, id sdbmodels.RecordID) (*M, error) {
	rows, err := queryRecords[M, R](ctx, db, "SELECT * FROM $id", map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func selectAll[M any, R record[M]](ctx context.Context, db *surrealdb.DB, c store.Collection) ([]*M, error) {
	q := "SELECT * FROM type::table($tb) ORDER BY created_at DESC, id ASC"
	return queryRecords[M, R](ctx, db, q, map[string]any{"tb": string(c)})
}

// create writes data under id. The record must not already exist.
func create[M any, R record[M]](ctx context.Context, db *surrealdb.DB, id sdbmodels.RecordID, data R) error {
	rows, err := queryRecords[M, R](ctx, db, "CREATE $id CONTENT $data", map[string]any{"id": id, "data": data})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("create %s returned no record", id.Table)
	}
	return nil
}

// merge applies data to an existing record and returns it. data must leave
// created_at unset.
func merge[M any, R record[M]](ctx context.Context, db *surrealdb.DB, c store.Collection, id fmt.Stringer, rid sdbmodels.RecordID, data any) (*M, error) {
	rows, err := queryRecords[M, R](ctx, db, "UPDATE $id MERGE $data RETURN AFTER", map[string]any{"id": rid, "data": data})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.NotFound(c, id)
	}
	return rows[0], nil
}

func remove(ctx context.Context, db *surrealdb.DB, c store.Collection, id fmt.Stringer, rid sdbmodels.RecordID) error {
	res, err := surrealdb.Query[[]map[string]any](ctx, db, "DELETE $id RETURN BEFORE", map[string]any{"id": rid})
	if err != nil {
		return err
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return store.NotFound(c, id)
	}
	return nil
}

// Users

func (s *SurrealStore) CreateUser(ctx context.Context, user *models.User) error {
	existing, err := s.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return store.ErrConflict
	}
	user.AssignID()
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	user.Role = user.Role.OrDefault()

	err = create[models.User](ctx, s.db, user.ID.RecordID(), newUserRecord(user))
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetUser(ctx context.Context, id models.UserID) (*models.User, error) {
	return selectOne[models.User, *userRecord](ctx, s.db, id.RecordID())
}

func (s *SurrealStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	rows, err := queryRecords[models.User, *userRecord](ctx, s.db,
		"SELECT * FROM users WHERE email_key = $key LIMIT 1",
		map[string]any{"key": emailKey(email)})
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *SurrealStore) UpdateUser(ctx context.Context, user *models.User) error {
	updated, err := merge[models.User, *userRecord](ctx, s.db, store.CollectionUsers, user.ID, user.ID.RecordID(), map[string]any{
		"display_name":  user.DisplayName,
		"role":          string(user.Role.OrDefault()),
		"password_hash": user.PasswordHash,
		"updated_at":    datetime(s.now()),
	})
	if err != nil {
		return err
	}
	*user = *updated
	return nil
}

func (s *SurrealStore) TouchUser(ctx context.Context, id models.UserID, at time.Time) error {
	_, err := merge[models.User, *userRecord](ctx, s.db, store.CollectionUsers, id, id.RecordID(), map[string]any{
		"last_active": datetime(at),
	})
	return err
}

func (s *SurrealStore) DeleteUser(ctx context.Context, id models.UserID) error {
	return remove(ctx, s.db, store.CollectionUsers, id, id.RecordID())
}

func (s *SurrealStore) ListUsers(ctx context.Context) ([]*models.User, error) {
	return selectAll[models.User, *userRecord](ctx, s.db, store.CollectionUsers)
}

// Participants

func (s *SurrealStore) CreateParticipant(ctx context.Context, p *models.Participant) error {
	p.AssignID()
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := create[models.Participant](ctx, s.db, p.ID.RecordID(), newParticipantRecord(p)); err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetParticipant(ctx context.Context, id models.ParticipantID) (*models.Participant, error) {
	return selectOne[models.Participant, *participantRecord](ctx, s.db, id.RecordID())
}

func (s *SurrealStore) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	r := newParticipantRecord(p)
	r.CreatedAt, r.UpdatedAt = nil, datetime(s.now())
	updated, err := merge[models.Participant, *participantRecord](ctx, s.db, store.CollectionParticipants, p.ID, p.ID.RecordID(), r)
	if err != nil {
		return err
	}
	*p = *updated
	return nil
}

func (s *SurrealStore) DeleteParticipant(ctx context.Context, id models.ParticipantID) error {
	return remove(ctx, s.db, store.CollectionParticipants, id, id.RecordID())
}

func (s *SurrealStore) ListParticipants(ctx context.Context) ([]*models.Participant, error) {
	return selectAll[models.Participant, *participantRecord](ctx, s.db, store.CollectionParticipants)
}

// Locations

func (s *SurrealStore) CreateLocation(ctx context.Context, l *models.Location) error {
	l.AssignID()
	now := s.now()
	l.CreatedAt, l.UpdatedAt = now, now
	if err := create[models.Location](ctx, s.db, l.ID.RecordID(), newLocationRecord(l)); err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetLocation(ctx context.Context, id models.LocationID) (*models.Location, error) {
	return selectOne[models.Location, *locationRecord](ctx, s.db, id.RecordID())
}

func (s *SurrealStore) UpdateLocation(ctx context.Context, l *models.Location) error {
	r := newLocationRecord(l)
	r.CreatedAt, r.UpdatedAt = nil, datetime(s.now())
	updated, err := merge[models.Location, *locationRecord](ctx, s.db, store.CollectionLocations, l.ID, l.ID.RecordID(), r)
	if err != nil {
		return err
	}
	*l = *updated
	return nil
}

func (s *SurrealStore) DeleteLocation(ctx context.Context, id models.LocationID) error {
	return remove(ctx, s.db, store.CollectionLocations, id, id.RecordID())
}

func (s *SurrealStore) ListLocations(ctx context.Context) ([]*models.Location, error) {
	return selectAll[models.Location, *locationRecord](ctx, s.db, store.CollectionLocations)
}

// Action categories

func (s *SurrealStore) CreateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	a.AssignID()
	now := s.now()
	a.CreatedAt, a.UpdatedAt = now, now
	if err := create[models.ActionCategory](ctx, s.db, a.ID.RecordID(), newActionCategoryRecord(a)); err != nil {
		return fmt.Errorf("failed to create action category: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetActionCategory(ctx context.Context, id models.ActionCategoryID) (*models.ActionCategory, error) {
	return selectOne[models.ActionCategory, *actionCategoryRecord](ctx, s.db, id.RecordID())
}

func (s *SurrealStore) UpdateActionCategory(ctx context.Context, a *models.ActionCategory) error {
	r := newActionCategoryRecord(a)
	r.CreatedAt, r.UpdatedAt = nil, datetime(s.now())
	updated, err := merge[models.ActionCategory, *actionCategoryRecord](ctx, s.db, store.CollectionActionCategories, a.ID, a.ID.RecordID(), r)
	if err != nil {
		return err
	}
	*a = *updated
	return nil
}

func (s *SurrealStore) DeleteActionCategory(ctx context.Context, id models.ActionCategoryID) error {
	return remove(ctx, s.db, store.CollectionActionCategories, id, id.RecordID())
}

func (s *SurrealStore) ListActionCategories(ctx context.Context) ([]*models.ActionCategory, error) {
	return selectAll[models.ActionCategory, *actionCategoryRecord](ctx, s.db, store.CollectionActionCategories)
}

// Tags

func (s *SurrealStore) CreateTag(ctx context.Context, t *models.Tag) error {
	t.AssignID()
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	if err := create[models.Tag](ctx, s.db, t.ID.RecordID(), newTagRecord(t)); err != nil {
		return fmt.Errorf("failed to create tag: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetTag(ctx context.Context, id models.TagID) (*models.Tag, error) {
	return selectOne[models.Tag, *tagRecord](ctx, s.db, id.RecordID())
}

func (s *SurrealStore) UpdateTag(ctx context.Context, t *models.Tag) error {
	r := newTagRecord(t)
	r.CreatedAt, r.UpdatedAt = nil, datetime(s.now())
	updated, err := merge[models.Tag, *tagRecord](ctx, s.db, store.CollectionTags, t.ID, t.ID.RecordID(), r)
	if err != nil {
		return err
	}
	*t = *updated
	return nil
}

func (s *SurrealStore) DeleteTag(ctx context.Context, id models.TagID) error {
	return remove(ctx, s.db, store.CollectionTags, id, id.RecordID())
}

func (s *SurrealStore) ListTags(ctx context.Context) ([]*models.Tag, error) {
	return selectAll[models.Tag, *tagRecord](ctx, s.db, store.CollectionTags)
}

// Log entries

func (s *SurrealStore) CreateLogEntry(ctx context.Context, entry *models.LogEntry) error {
	entry.AssignID()
	now := s.now()
	entry.CreatedAt, entry.UpdatedAt = now, now
	entry.UpdatedBy = nil
	if err := create[models.LogEntry](ctx, s.db, entry.ID.RecordID(), newLogEntryRecord(entry)); err != nil {
		return fmt.Errorf("failed to create log entry: %w", err)
	}
	return nil
}

func (s *SurrealStore) GetLogEntry(ctx context.Context, id models.LogEntryID) (*models.LogEntry, error) {
	return selectOne[models.LogEntry, *logEntryRecord](ctx, s.db, id.RecordID())
}

func (s *SurrealStore) UpdateLogEntryNotes(ctx context.Context, id models.LogEntryID, u store.NotesUpdate) (*models.LogEntry, error) {
	return merge[models.LogEntry, *logEntryRecord](ctx, s.db, store.CollectionLogEntries, id, id.RecordID(), map[string]any{
		"notes":      u.Notes,
		"updated_by": u.UpdatedBy,
		"updated_at": datetime(u.UpdatedAt),
	})
}

func (s *SurrealStore) DeleteLogEntry(ctx context.Context, id models.LogEntryID) error {
	return remove(ctx, s.db, store.CollectionLogEntries, id, id.RecordID())
}

func (s *SurrealStore) ListLogEntries(ctx context.Context, filter store.LogEntryFilter) ([]*models.LogEntry, error) {
	where, vars := filterClause(filter)
	q := "SELECT * FROM log_entries" + where + " ORDER BY created_at DESC, id ASC"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		q += fmt.Sprintf(" START %d", filter.Offset)
	}
	entries, err := queryRecords[models.LogEntry, *logEntryRecord](ctx, s.db, q, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	return entries, nil
}

func (s *SurrealStore) CountLogEntries(ctx context.Context, filter store.LogEntryFilter) (int, error) {
	where, vars := filterClause(filter)
	type countRow struct {
		Count int `json:"count"`
	}
	res, err := surrealdb.Query[[]countRow](ctx, s.db, "SELECT count() FROM log_entries"+where+" GROUP ALL", vars)
	if err != nil {
		return 0, fmt.Errorf("failed to count log entries: %w", err)
	}
	if res == nil || len(*res) == 0 || len((*res)[0].Result) == 0 {
		return 0, nil
	}
	return (*res)[0].Result[0].Count, nil
}

func filterClause(f store.LogEntryFilter) (string, map[string]any) {
	var conds []string
	vars := map[string]any{}
	add := func(cond, name string, v any) {
		conds = append(conds, cond)
		vars[name] = v
	}

	if !f.ParticipantID.IsZero() {
		add("participants CONTAINS $participant", "participant", f.ParticipantID)
	}
	if !f.LocationID.IsZero() {
		add("location = $location", "location", f.LocationID)
	}
	if !f.ActionCategoryID.IsZero() {
		add("action_category = $action_category", "action_category", f.ActionCategoryID)
	}
	if !f.TagID.IsZero() {
		add("tags CONTAINS $tag", "tag", f.TagID)
	}
	if !f.CreatedBy.IsZero() {
		add("created_by = $created_by", "created_by", f.CreatedBy)
	}
	if !f.Since.IsZero() {
		add("created_at >= $since", "since", datetime(f.Since))
	}
	if !f.Until.IsZero() {
		add("created_at < $until", "until", datetime(f.Until))
	}
	if f.Search != "" {
		if len(f.SearchParticipants) == 0 {
			add("string::lowercase(notes) CONTAINS $search", "search", strings.ToLower(f.Search))
		} else {
			add("(string::lowercase(notes) CONTAINS $search OR participants CONTAINSANY $search_participants)",
				"search", strings.ToLower(f.Search))
			vars["search_participants"] = f.SearchParticipants
		}
	}

	if len(conds) == 0 {
		return "", vars
	}
	return " WHERE " + strings.Join(conds, " AND "), vars
}

// Watch starts a live query on the collection's table. The channel closes when
// ctx ends or the server drops the live query.
func (s *SurrealStore) Watch(ctx context.Context, c store.Collection) (<-chan store.Change, error) {
	live, err := surrealdb.Live(ctx, s.db, sdbmodels.Table(c), false)
	if err != nil {
		return nil, store.Unavailable(fmt.Errorf("failed to start live query on %s: %w", c, err))
	}
	liveID := live.String()

	notifications, err := s.db.LiveNotifications(liveID)
	if err != nil {
		_ = surrealdb.Kill(context.Background(), s.db, liveID)
		return nil, store.Unavailable(fmt.Errorf("failed to subscribe to live query: %w", err))
	}

	out := make(chan store.Change, 1)
	go func() {
		defer close(out)
		defer func() {
			killCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = surrealdb.Kill(killCtx, s.db, liveID)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notifications:
				if !ok {
					return
				}
				change := store.Change{
					Collection: c,
					Operation:  operation(n.Action),
					ID:         notificationID(n.Result),
				}
				select {
				case out <- change:
				default:
				}
			}
		}
	}()
	return out, nil
}

func operation(a connection.Action) models.ChangeOperation {
	switch a {
	case connection.CreateAction:
		return models.ChangeOperationCreate
	case connection.DeleteAction:
		return models.ChangeOperationDelete
	default:
		return models.ChangeOperationUpdate
	}
}

// notificationID extracts the UUID part of the record ID in a live notification.
func notificationID(result any) string {
	m, ok := result.(map[string]any)
	if !ok {
		return ""
	}
	switch id := m["id"].(type) {
	case sdbmodels.RecordID:
		return fmt.Sprint(id.ID)
	case *sdbmodels.RecordID:
		if id != nil {
			return fmt.Sprint(id.ID)
		}
	case string:
		if _, after, found := strings.Cut(id, ":"); found {
			return strings.Trim(after, "⟨⟩`")
		}
		return id
	}
	return ""
}

// Ping checks connectivity for health probes.
func (s *SurrealStore) Ping(ctx context.Context) error {
	_, err := surrealdb.Query[any](ctx, s.db, "RETURN true", nil)
	if err != nil {
		return store.Unavailable(err)
	}
	return nil
}
