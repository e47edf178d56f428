package logbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

const kindLogEntry = "log entry"

// Editor changes and removes existing entries.
//
// Every mutation re-reads the entry from the store and checks CanMutate against
// what is stored now. Edits go through store.UpdateLogEntryNotes, which can only
// touch notes, UpdatedAt and UpdatedBy.
type Editor struct {
	store  store.LogEntryStore
	now    func() time.Time
	logger zerolog.Logger
}

func NewEditor(s store.LogEntryStore, logger zerolog.Logger) *Editor {
	return &Editor{
		store:  s,
		now:    time.Now,
		logger: logger.With().Str("component", "editor").Logger(),
	}
}

// BulkResult counts the outcome of DeleteAll.
type BulkResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// BulkDeleteError reports a partially completed DeleteAll.
type BulkDeleteError struct {
	Deleted int
	Failed  int
	Err     error
}

func (e *BulkDeleteError) Error() string {
	return fmt.Sprintf("delete all: %d deleted, %d failed: %v", e.Deleted, e.Failed, e.Err)
}

func (e *BulkDeleteError) Unwrap() error { return e.Err }

// load fetches the current entry and checks that identity may change it.
func (e *Editor) load(ctx context.Context, op string, identity *models.User, id models.LogEntryID) (*models.LogEntry, error) {
	if err := requireIdentity(op, identity); err != nil {
		return nil, err
	}
	entry, err := e.store.GetLogEntry(ctx, id)
	if err != nil {
		return nil, Classify(err)
	}
	if entry == nil {
		return nil, &NotFoundError{Kind: kindLogEntry, ID: id.String()}
	}
	if !CanMutate(identity, entry) {
		return nil, &PermissionError{Op: op, Reason: "only admins, loggers and the entry's author may change it"}
	}
	return entry, nil
}

// EditNotes replaces the notes of entry id.
func (e *Editor) EditNotes(ctx context.Context, identity *models.User, id models.LogEntryID, notes string) (*models.LogEntry, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, &ValidationError{Fields: []string{FieldNotes}}
	}
	if _, err := e.load(ctx, "edit", identity, id); err != nil {
		return nil, err
	}

	updated, err := e.store.UpdateLogEntryNotes(ctx, id, store.NotesUpdate{
		Notes:     notes,
		UpdatedBy: identity.ID,
		UpdatedAt: e.now(),
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &NotFoundError{Kind: kindLogEntry, ID: id.String()}
		}
		return nil, Classify(err)
	}
	e.logger.Debug().Str("entry", id.String()).Str("user", identity.ID.String()).Msg("notes edited")
	return updated, nil
}

// Delete removes entry id. Deleting an entry that is already gone is a NotFoundError.
func (e *Editor) Delete(ctx context.Context, identity *models.User, id models.LogEntryID) error {
	if _, err := e.load(ctx, "delete", identity, id); err != nil {
		return err
	}
	if err := e.store.DeleteLogEntry(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{Kind: kindLogEntry, ID: id.String()}
		}
		return Classify(err)
	}
	e.logger.Debug().Str("entry", id.String()).Str("user", identity.ID.String()).Msg("entry deleted")
	return nil
}

// DeleteAll removes every entry. Only admins may call it. It is not atomic: on
// failure it keeps going and returns a *BulkDeleteError with the counts. Entries
// that vanish concurrently count as neither deleted nor failed.
func (e *Editor) DeleteAll(ctx context.Context, identity *models.User) (BulkResult, error) {
	if err := requireIdentity("delete all", identity); err != nil {
		return BulkResult{}, err
	}
	if identity.Role.OrDefault() != models.RoleAdmin {
		return BulkResult{}, &PermissionError{Op: "delete all", Reason: "admin role required"}
	}

	entries, err := e.store.ListLogEntries(ctx, store.LogEntryFilter{})
	if err != nil {
		return BulkResult{}, Classify(err)
	}

	var (
		res      BulkResult
		firstErr error
	)
	for _, entry := range entries {
		err := e.store.DeleteLogEntry(ctx, entry.ID)
		switch {
		case err == nil:
			res.Deleted++
		case errors.Is(err, store.ErrNotFound):
		default:
			res.Failed++
			if firstErr == nil {
				firstErr = Classify(err)
			}
		}
	}

	e.logger.Info().
		Int("deleted", res.Deleted).
		Int("failed", res.Failed).
		Str("user", identity.ID.String()).
		Msg("delete all")
	if firstErr != nil {
		return res, &BulkDeleteError{Deleted: res.Deleted, Failed: res.Failed, Err: firstErr}
	}
	return res, nil
}
