// Package transfer copies the production log from one backend to another,
// for example when a single-node SQLite install moves to PostgreSQL or SurrealDB.
//
// Backends assign identifiers on create, so records get new IDs in the
// destination. Copy keeps a mapping from source to destination IDs and rewrites
// every reference an entry holds (participants, location, action category,
// tags, author and editor) before creating it.
//
// Users are matched by email and reference data by name, both case-insensitively;
// records that already exist in the destination are reused instead of duplicated.
// Log entries have no natural key, so they are only copied into a destination
// that holds none in the copied window.
//
//	res, err := transfer.Copy(ctx, sqliteStore, surrealStore, transfer.Options{Logger: logger})
package transfer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

// ErrDestinationNotEmpty is returned when the destination already holds log
// entries in the window being copied.
var ErrDestinationNotEmpty = errors.New("destination already holds log entries")

type Options struct {
	// Since and Until bound the log entries copied, by creation time.
	// Since is inclusive, Until is exclusive. Zero values do not bound.
	Since time.Time
	Until time.Time

	Logger zerolog.Logger
}

// Result counts what Copy did per collection.
type Result struct {
	Copied  map[store.Collection]int
	Reused  map[store.Collection]int
	Failed  map[store.Collection]int
	Elapsed time.Duration
}

func (r Result) String() string {
	var b strings.Builder
	for _, c := range store.Collections {
		fmt.Fprintf(&b, "%s: %d copied, %d reused, %d failed\n", c, r.Copied[c], r.Reused[c], r.Failed[c])
	}
	return b.String()
}

type copier struct {
	from, to store.Store
	opts     Options
	res      *Result

	users        map[models.UserID]models.UserID
	participants map[models.ParticipantID]models.ParticipantID
	locations    map[models.LocationID]models.LocationID
	actions      map[models.ActionCategoryID]models.ActionCategoryID
	tags         map[models.TagID]models.TagID
}

// Copy writes every user, reference record and log entry of from into to.
//
// Failures to list or read the source stop the copy. A record that cannot be
// written to the destination is logged, counted as failed and skipped; entries
// that reference it are skipped too.
func Copy(ctx context.Context, from, to store.Store, opts Options) (Result, error) {
	start := time.Now()
	res := Result{
		Copied: make(map[store.Collection]int),
		Reused: make(map[store.Collection]int),
		Failed: make(map[store.Collection]int),
	}
	c := &copier{
		from:         from,
		to:           to,
		opts:         opts,
		res:          &res,
		users:        make(map[models.UserID]models.UserID),
		participants: make(map[models.ParticipantID]models.ParticipantID),
		locations:    make(map[models.LocationID]models.LocationID),
		actions:      make(map[models.ActionCategoryID]models.ActionCategoryID),
		tags:         make(map[models.TagID]models.TagID),
	}

	window := store.LogEntryFilter{Since: opts.Since, Until: opts.Until}
	n, err := to.CountLogEntries(ctx, window)
	if err != nil {
		return res, fmt.Errorf("failed to count destination log entries: %w", err)
	}
	if n > 0 {
		return res, fmt.Errorf("%w (%d)", ErrDestinationNotEmpty, n)
	}

	steps := []func(context.Context) error{
		c.copyUsers,
		c.copyParticipants,
		c.copyLocations,
		c.copyActionCategories,
		c.copyTags,
		c.copyLogEntries,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			res.Elapsed = time.Since(start)
			return res, err
		}
	}
	res.Elapsed = time.Since(start)
	opts.Logger.Info().
		Interface("copied", res.Copied).
		Interface("reused", res.Reused).
		Interface("failed", res.Failed).
		Dur("elapsed", res.Elapsed).
		Msg("transfer finished")
	return res, nil
}

func (c *copier) warn(coll store.Collection, id fmt.Stringer, err error) {
	c.res.Failed[coll]++
	c.opts.Logger.Warn().Err(err).Str("collection", string(coll)).Stringer("id", id).Msg("failed to copy record")
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// copyNamed copies one reference collection, reusing destination records with
// the same name. mapping receives source ID to destination ID.
func copyNamed[T any, K comparable](
	ctx context.Context,
	c *copier,
	coll store.Collection,
	list func(store.Store) func(context.Context) ([]T, error),
	name func(T) string,
	id func(T) K,
	create func(store.Store) func(context.Context, T) error,
	mapping map[K]K,
) error {
	src, err := list(c.from)(ctx)
	if err != nil {
		return fmt.Errorf("failed to list source %s: %w", coll, err)
	}
	dst, err := list(c.to)(ctx)
	if err != nil {
		return fmt.Errorf("failed to list destination %s: %w", coll, err)
	}
	byName := make(map[string]K, len(dst))
	for _, it := range dst {
		byName[key(name(it))] = id(it)
	}

	for _, it := range src {
		srcID := id(it)
		if existing, ok := byName[key(name(it))]; ok {
			mapping[srcID] = existing
			c.res.Reused[coll]++
			continue
		}
		if err := create(c.to)(ctx, it); err != nil {
			c.warn(coll, stringer(fmt.Sprint(srcID)), err)
			continue
		}
		mapping[srcID] = id(it)
		byName[key(name(it))] = id(it)
		c.res.Copied[coll]++
	}
	return nil
}

type stringer string

func (s stringer) String() string { return string(s) }

func (c *copier) copyUsers(ctx context.Context) error {
	users, err := c.from.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list source users: %w", err)
	}
	for _, u := range users {
		srcID := u.ID
		existing, err := c.to.GetUserByEmail(ctx, u.Email)
		if err != nil {
			return fmt.Errorf("failed to look up destination user %s: %w", u.Email, err)
		}
		if existing != nil {
			c.users[srcID] = existing.ID
			c.res.Reused[store.CollectionUsers]++
			continue
		}
		lastActive := u.LastActive
		if err := c.to.CreateUser(ctx, u); err != nil {
			c.warn(store.CollectionUsers, srcID, err)
			continue
		}
		if lastActive != nil {
			if err := c.to.TouchUser(ctx, u.ID, *lastActive); err != nil {
				c.opts.Logger.Debug().Err(err).Stringer("id", u.ID).Msg("failed to carry last activity")
			}
		}
		c.users[srcID] = u.ID
		c.res.Copied[store.CollectionUsers]++
	}
	return nil
}

func (c *copier) copyParticipants(ctx context.Context) error {
	return copyNamed(ctx, c, store.CollectionParticipants,
		func(s store.Store) func(context.Context) ([]*models.Participant, error) { return s.ListParticipants },
		func(p *models.Participant) string { return p.Name },
		func(p *models.Participant) models.ParticipantID { return p.ID },
		func(s store.Store) func(context.Context, *models.Participant) error { return s.CreateParticipant },
		c.participants)
}

func (c *copier) copyLocations(ctx context.Context) error {
	return copyNamed(ctx, c, store.CollectionLocations,
		func(s store.Store) func(context.Context) ([]*models.Location, error) { return s.ListLocations },
		func(l *models.Location) string { return l.Name },
		func(l *models.Location) models.LocationID { return l.ID },
		func(s store.Store) func(context.Context, *models.Location) error { return s.CreateLocation },
		c.locations)
}

func (c *copier) copyActionCategories(ctx context.Context) error {
	return copyNamed(ctx, c, store.CollectionActionCategories,
		func(s store.Store) func(context.Context) ([]*models.ActionCategory, error) { return s.ListActionCategories },
		func(a *models.ActionCategory) string { return a.Name },
		func(a *models.ActionCategory) models.ActionCategoryID { return a.ID },
		func(s store.Store) func(context.Context, *models.ActionCategory) error { return s.CreateActionCategory },
		c.actions)
}

func (c *copier) copyTags(ctx context.Context) error {
	return copyNamed(ctx, c, store.CollectionTags,
		func(s store.Store) func(context.Context) ([]*models.Tag, error) { return s.ListTags },
		func(t *models.Tag) string { return t.Name },
		func(t *models.Tag) models.TagID { return t.ID },
		func(s store.Store) func(context.Context, *models.Tag) error { return s.CreateTag },
		c.tags)
}

func remap[K comparable](ids []K, mapping map[K]K) ([]K, bool) {
	out := make([]K, 0, len(ids))
	for _, id := range ids {
		to, ok := mapping[id]
		if !ok {
			return nil, false
		}
		out = append(out, to)
	}
	return out, true
}

// rewrite points every reference of e at destination IDs. It reports false
// when a referenced record was not copied.
func (c *copier) rewrite(e *models.LogEntry) bool {
	var ok bool
	if e.Participants, ok = remap(e.Participants, c.participants); !ok {
		return false
	}
	if e.Tags, ok = remap(e.Tags, c.tags); !ok {
		return false
	}
	if e.LocationID, ok = c.locations[e.LocationID]; !ok {
		return false
	}
	if e.ActionCategoryID, ok = c.actions[e.ActionCategoryID]; !ok {
		return false
	}
	if e.CreatedBy, ok = c.users[e.CreatedBy]; !ok {
		return false
	}
	if e.UpdatedBy != nil {
		by, ok := c.users[*e.UpdatedBy]
		if !ok {
			return false
		}
		e.UpdatedBy = &by
	}
	return true
}

// copyLogEntries creates entries oldest first so newest-first listings keep
// their order in the destination. Edited entries are replayed as a notes edit
// carrying the original editor and edit time.
func (c *copier) copyLogEntries(ctx context.Context) error {
	entries, err := c.from.ListLogEntries(ctx, store.LogEntryFilter{Since: c.opts.Since, Until: c.opts.Until})
	if err != nil {
		return fmt.Errorf("failed to list source log entries: %w", err)
	}
	slices.Reverse(entries)

	for _, e := range entries {
		srcID := e.ID
		if !c.rewrite(e) {
			c.warn(store.CollectionLogEntries, srcID, fmt.Errorf("references a record that was not copied"))
			continue
		}
		updatedBy, updatedAt := e.UpdatedBy, e.UpdatedAt
		if err := c.to.CreateLogEntry(ctx, e); err != nil {
			c.warn(store.CollectionLogEntries, srcID, err)
			continue
		}
		if updatedBy != nil {
			_, err := c.to.UpdateLogEntryNotes(ctx, e.ID, store.NotesUpdate{
				Notes:     e.Notes,
				UpdatedBy: *updatedBy,
				UpdatedAt: updatedAt,
			})
			if err != nil {
				c.warn(store.CollectionLogEntries, srcID, fmt.Errorf("replay edit: %w", err))
				continue
			}
		}
		c.res.Copied[store.CollectionLogEntries]++
	}
	return nil
}
