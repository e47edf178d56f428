package realitylog

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/models"
)

func pathID[K any](r *http.Request, parse func(string) (K, error)) (K, error) {
	return param(r, "id", parse)
}

func param[K any](r *http.Request, name string, parse func(string) (K, error)) (K, error) {
	id, err := parse(mux.Vars(r)[name])
	if err != nil {
		return id, invalidParam(name, err)
	}
	return id, nil
}

// resource describes CRUD over one reference collection. Reads are open to any
// signed-in user; writes need an admin.
type resource[M any, R any, K any] struct {
	kind   string
	parse  func(string) (K, error)
	list   func(context.Context) ([]*M, error)
	get    func(context.Context, K) (*M, error)
	create func(context.Context, *M) error
	update func(context.Context, *M) error
	remove func(context.Context, K) error
	// build turns a request into a record. id is zero on create.
	build  func(req *R, id K) *M
	decode func(http.ResponseWriter, *http.Request, any) error
}

func mountResource[M any, R any, K any](api *mux.Router, path string, res resource[M, R, K]) {
	api.HandleFunc(path, signedIn(res.handleList)).Methods(http.MethodGet)
	api.HandleFunc(path, adminOnly(res.handleCreate)).Methods(http.MethodPost)
	api.HandleFunc(path+"/{id}", signedIn(res.handleGet)).Methods(http.MethodGet)
	api.HandleFunc(path+"/{id}", adminOnly(res.handleUpdate)).Methods(http.MethodPut)
	api.HandleFunc(path+"/{id}", adminOnly(res.handleDelete)).Methods(http.MethodDelete)
}

func (res resource[M, R, K]) handleList(w http.ResponseWriter, r *http.Request, _ *models.User) {
	items, err := res.list(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	if items == nil {
		items = []*M{}
	}
	respondJSON(w, http.StatusOK, items)
}

func (res resource[M, R, K]) handleGet(w http.ResponseWriter, r *http.Request, _ *models.User) {
	id, err := pathID(r, res.parse)
	if err != nil {
		fail(w, r, err)
		return
	}
	item, err := res.get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	if item == nil {
		respondError(w, http.StatusNotFound, res.kind+" not found")
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (res resource[M, R, K]) handleCreate(w http.ResponseWriter, r *http.Request, _ *models.User) {
	var req R
	if err := res.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	var zero K
	item := res.build(&req, zero)
	if err := res.create(r.Context(), item); err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, item)
}

// handleUpdate replaces every editable field of the record.
func (res resource[M, R, K]) handleUpdate(w http.ResponseWriter, r *http.Request, _ *models.User) {
	id, err := pathID(r, res.parse)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req R
	if err := res.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	item := res.build(&req, id)
	if err := res.update(r.Context(), item); err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func (res resource[M, R, K]) handleDelete(w http.ResponseWriter, r *http.Request, _ *models.User) {
	id, err := pathID(r, res.parse)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := res.remove(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (a *App) participants() resource[models.Participant, client.ParticipantRequest, models.ParticipantID] {
	return resource[models.Participant, client.ParticipantRequest, models.ParticipantID]{
		kind:   "participant",
		parse:  models.ParseParticipantID,
		list:   a.store.ListParticipants,
		get:    a.store.GetParticipant,
		create: a.store.CreateParticipant,
		update: a.store.UpdateParticipant,
		remove: a.store.DeleteParticipant,
		decode: a.decode,
		build: func(req *client.ParticipantRequest, id models.ParticipantID) *models.Participant {
			return &models.Participant{
				ID:             id,
				Name:           strings.TrimSpace(req.Name),
				Bio:            req.Bio,
				ProfilePicture: req.ProfilePicture,
				IsActive:       req.IsActive == nil || *req.IsActive,
			}
		},
	}
}

func (a *App) locations() resource[models.Location, client.LocationRequest, models.LocationID] {
	return resource[models.Location, client.LocationRequest, models.LocationID]{
		kind:   "location",
		parse:  models.ParseLocationID,
		list:   a.store.ListLocations,
		get:    a.store.GetLocation,
		create: a.store.CreateLocation,
		update: a.store.UpdateLocation,
		remove: a.store.DeleteLocation,
		decode: a.decode,
		build: func(req *client.LocationRequest, id models.LocationID) *models.Location {
			return &models.Location{
				ID:          id,
				Name:        strings.TrimSpace(req.Name),
				Description: req.Description,
				Color:       req.Color,
			}
		},
	}
}

func (a *App) actionCategories() resource[models.ActionCategory, client.ActionCategoryRequest, models.ActionCategoryID] {
	return resource[models.ActionCategory, client.ActionCategoryRequest, models.ActionCategoryID]{
		kind:   "action category",
		parse:  models.ParseActionCategoryID,
		list:   a.store.ListActionCategories,
		get:    a.store.GetActionCategory,
		create: a.store.CreateActionCategory,
		update: a.store.UpdateActionCategory,
		remove: a.store.DeleteActionCategory,
		decode: a.decode,
		build: func(req *client.ActionCategoryRequest, id models.ActionCategoryID) *models.ActionCategory {
			return &models.ActionCategory{
				ID:          id,
				Name:        strings.TrimSpace(req.Name),
				Description: req.Description,
				Color:       req.Color,
				Icon:        req.Icon,
			}
		},
	}
}

func (a *App) tags() resource[models.Tag, client.TagRequest, models.TagID] {
	return resource[models.Tag, client.TagRequest, models.TagID]{
		kind:   "tag",
		parse:  models.ParseTagID,
		list:   a.store.ListTags,
		get:    a.store.GetTag,
		create: a.store.CreateTag,
		update: a.store.UpdateTag,
		remove: a.store.DeleteTag,
		decode: a.decode,
		build: func(req *client.TagRequest, id models.TagID) *models.Tag {
			return &models.Tag{
				ID:       id,
				Name:     strings.TrimSpace(req.Name),
				Color:    req.Color,
				Category: req.Category,
			}
		},
	}
}
