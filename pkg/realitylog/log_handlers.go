package realitylog

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/realitylog/realitylog/pkg/analytics"
	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/export"
	"github.com/realitylog/realitylog/pkg/logbook"
	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

func (a *App) handleListLogEntries(w http.ResponseWriter, r *http.Request, _ *models.User) {
	filter, page, limit, err := parseFilter(r.URL.Query(), time.Local)
	if err != nil {
		fail(w, r, err)
		return
	}
	ctx := r.Context()
	if filter, err = store.ResolveSearch(ctx, a.store, filter); err != nil {
		fail(w, r, err)
		return
	}
	entries, err := a.store.ListLogEntries(ctx, filter)
	if err != nil {
		fail(w, r, err)
		return
	}
	count := filter
	count.Limit, count.Offset = 0, 0
	total, err := a.store.CountLogEntries(ctx, count)
	if err != nil {
		fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []*models.LogEntry{}
	}
	respondJSON(w, http.StatusOK, client.LogEntryPage{Entries: entries, Total: total, Page: page, Limit: limit})
}

func (a *App) handleGetLogEntry(w http.ResponseWriter, r *http.Request, _ *models.User) {
	id, err := pathID(r, models.ParseLogEntryID)
	if err != nil {
		fail(w, r, err)
		return
	}
	entry, err := a.store.GetLogEntry(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	if entry == nil {
		fail(w, r, &logbook.NotFoundError{Kind: "log entry", ID: id.String()})
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (a *App) handleEditLogEntry(w http.ResponseWriter, r *http.Request, u *models.User) {
	id, err := pathID(r, models.ParseLogEntryID)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req client.EditNotesRequest
	if err := a.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	entry, err := a.editor.EditNotes(r.Context(), u, id, *req.Notes)
	if err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (a *App) handleDeleteLogEntry(w http.ResponseWriter, r *http.Request, u *models.User) {
	id, err := pathID(r, models.ParseLogEntryID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := a.editor.Delete(r.Context(), u, id); err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleDeleteAllLogEntries reports counts even on partial failure, with the
// status of the first error.
func (a *App) handleDeleteAllLogEntries(w http.ResponseWriter, r *http.Request, u *models.User) {
	res, err := a.editor.DeleteAll(r.Context(), u)
	var bulk *logbook.BulkDeleteError
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, client.BulkResult(res))
	case errors.As(err, &bulk):
		status, body := classify(bulk.Err)
		respondJSON(w, status, map[string]any{
			"error":   body.Error,
			"deleted": bulk.Deleted,
			"failed":  bulk.Failed,
		})
	default:
		fail(w, r, err)
	}
}

// handleExport renders entries matching the list filters. Paging parameters
// are ignored: the export always holds every match.
func (a *App) handleExport(w http.ResponseWriter, r *http.Request, _ *models.User) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		fail(w, r, invalidParam("format", err))
		return
	}
	filter, _, _, err := parseFilter(q, time.Local)
	if err != nil {
		fail(w, r, err)
		return
	}
	filter.Limit, filter.Offset = 0, 0

	doc, err := a.buildDocument(r.Context(), filter, q.Get("title"))
	if err != nil {
		fail(w, r, err)
		return
	}
	name := fmt.Sprintf("production-log-%s.%s", doc.GeneratedAt.Format("20060102-150405"), format.Extension())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := export.Write(w, format, doc); err != nil {
		// Headers are gone; all that is left is to log it.
		a.logger.Error().Err(err).Str("format", string(format)).Msg("export failed")
	}
}

func (a *App) handleDashboard(w http.ResponseWriter, r *http.Request, _ *models.User) {
	ctx := r.Context()
	refs, err := a.loadReferences(ctx)
	if err != nil {
		fail(w, r, err)
		return
	}
	entries, err := a.store.ListLogEntries(ctx, store.LogEntryFilter{})
	if err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, analytics.Summarize(entries, refs.participants, refs.resolver(), analytics.Options{
		Location: time.Local,
	}))
}
