package realitylog

import (
	"context"
	"net/http"
	"strings"

	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/logbook"
	"github.com/realitylog/realitylog/pkg/models"
)

// console returns the caller's console, keyed by session token.
func (a *App) console(r *http.Request) (*logbook.Console, error) {
	return a.consoles.Get(sessionToken(r.Context()))
}

// withConsole resolves the caller's console before calling h.
func (a *App) withConsole(h func(w http.ResponseWriter, r *http.Request, u *models.User, c *logbook.Console)) userHandler {
	return func(w http.ResponseWriter, r *http.Request, u *models.User) {
		c, err := a.console(r)
		if err != nil {
			fail(w, r, err)
			return
		}
		h(w, r, u, c)
	}
}

// exists reports a NotFoundError when get finds nothing.
func exists[K interface{ String() string }, M any](ctx context.Context, kind string, id K, get func(context.Context, K) (*M, error)) error {
	v, err := get(ctx, id)
	if err != nil {
		return logbook.Classify(err)
	}
	if v == nil {
		return &logbook.NotFoundError{Kind: kind, ID: id.String()}
	}
	return nil
}

func (a *App) handleConsoleState(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, _ *models.User, c *logbook.Console) {
		respondJSON(w, http.StatusOK, c.State())
	})(w, r, u)
}

func (a *App) handleToggleParticipant(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, _ *models.User, c *logbook.Console) {
		id, err := pathID(r, models.ParseParticipantID)
		if err != nil {
			fail(w, r, err)
			return
		}
		// Deselecting a participant that has since been deleted is allowed.
		if !c.Selection().HasParticipant(id) {
			if err := exists(r.Context(), "participant", id, a.store.GetParticipant); err != nil {
				fail(w, r, err)
				return
			}
		}
		c.ToggleParticipant(id)
		respondJSON(w, http.StatusOK, c.State())
	})(w, r, u)
}

func (a *App) handleToggleTag(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, _ *models.User, c *logbook.Console) {
		id, err := pathID(r, models.ParseTagID)
		if err != nil {
			fail(w, r, err)
			return
		}
		if !c.Selection().HasTag(id) {
			if err := exists(r.Context(), "tag", id, a.store.GetTag); err != nil {
				fail(w, r, err)
				return
			}
		}
		c.ToggleTag(id)
		respondJSON(w, http.StatusOK, c.State())
	})(w, r, u)
}

func (a *App) handleSetLocation(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, _ *models.User, c *logbook.Console) {
		var req client.SelectRequest
		if err := a.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		var id models.LocationID
		if s := strings.TrimSpace(req.ID); s != "" {
			var err error
			if id, err = models.ParseLocationID(s); err != nil {
				fail(w, r, invalidParam("id", err))
				return
			}
			if err := exists(r.Context(), "location", id, a.store.GetLocation); err != nil {
				fail(w, r, err)
				return
			}
		}
		c.SetLocation(id)
		respondJSON(w, http.StatusOK, c.State())
	})(w, r, u)
}

func (a *App) handleSetActionCategory(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, _ *models.User, c *logbook.Console) {
		var req client.SelectRequest
		if err := a.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		var id models.ActionCategoryID
		if s := strings.TrimSpace(req.ID); s != "" {
			var err error
			if id, err = models.ParseActionCategoryID(s); err != nil {
				fail(w, r, invalidParam("id", err))
				return
			}
			if err := exists(r.Context(), "action category", id, a.store.GetActionCategory); err != nil {
				fail(w, r, err)
				return
			}
		}
		c.SetActionCategory(id)
		respondJSON(w, http.StatusOK, c.State())
	})(w, r, u)
}

func (a *App) handleSetNotes(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, _ *models.User, c *logbook.Console) {
		var req client.NotesRequest
		if err := a.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		c.SetNotes(req.Notes)
		respondJSON(w, http.StatusOK, c.State())
	})(w, r, u)
}

// handleEditTimecode pins the console timecode. A malformed value is rejected
// with 400 and the running value is kept.
func (a *App) handleEditTimecode(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, _ *models.User, c *logbook.Console) {
		var req client.TimecodeRequest
		if err := a.decode(w, r, &req); err != nil {
			fail(w, r, err)
			return
		}
		if err := c.EditTimecode(req.Timecode); err != nil {
			fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, c.State())
	})(w, r, u)
}

func (a *App) handleResyncTimecode(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, _ *models.User, c *logbook.Console) {
		c.ResyncTimecode()
		respondJSON(w, http.StatusOK, c.State())
	})(w, r, u)
}

// handleSubmit creates a log entry from the console. The selection is kept for
// the next entry and the notes draft is cleared.
func (a *App) handleSubmit(w http.ResponseWriter, r *http.Request, u *models.User) {
	a.withConsole(func(w http.ResponseWriter, r *http.Request, u *models.User, c *logbook.Console) {
		if r.ContentLength != 0 {
			var req client.SubmitRequest
			if err := a.decode(w, r, &req); err != nil {
				fail(w, r, err)
				return
			}
			if req.Notes != nil {
				c.SetNotes(*req.Notes)
			}
		}
		entry, err := c.Submit(r.Context(), u)
		if err != nil {
			fail(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, entry)
	})(w, r, u)
}
