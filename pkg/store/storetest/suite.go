// Package storetest is a conformance suite for store.Store implementations.
//
// Backends call [Run] from their own tests with a constructor that returns a
// fresh, migrated store.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/timecode"
)

// Factory returns an empty store ready for use. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"UserLifecycle", testUserLifecycle},
		{"UserEmailConflict", testUserEmailConflict},
		{"ReferenceData", testReferenceData},
		{"StoreAssignsIdentifiers", testStoreAssignsIdentifiers},
		{"LogEntryRoundTrip", testLogEntryRoundTrip},
		{"LogEntryMissing", testLogEntryMissing},
		{"LogEntryOrdering", testLogEntryOrdering},
		{"LogEntryFilters", testLogEntryFilters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func newEntry(by models.UserID, loc models.LocationID, act models.ActionCategoryID, notes string) *models.LogEntry {
	return &models.LogEntry{
		Timestamp:        time.Now().UTC().Truncate(time.Millisecond),
		Timecode:         timecode.MustParse("10:11:12:13"),
		Participants:     []models.ParticipantID{},
		LocationID:       loc,
		ActionCategoryID: act,
		Tags:             []models.TagID{},
		Notes:            notes,
		CreatedBy:        by,
	}
}

func testUserLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()

	u := &models.User{Email: "Ops@Example.com", DisplayName: "ops", Role: models.RoleLogger, PasswordHash: "x"}
	require.NoError(t, s.CreateUser(ctx, u))
	require.False(t, u.ID.IsZero())
	assert.False(t, u.CreatedAt.IsZero())

	got, err := s.GetUserByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, models.RoleLogger, got.Role)

	got.Role = models.RoleAdmin
	got.DisplayName = "Operations"
	require.NoError(t, s.UpdateUser(ctx, got))

	again, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, models.RoleAdmin, again.Role)
	assert.Equal(t, "Operations", again.DisplayName)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.TouchUser(ctx, u.ID, at))
	again, err = s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, again.LastActive)
	assert.True(t, at.Equal(again.LastActive.UTC()))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	missing, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.ErrorIs(t, s.DeleteUser(ctx, u.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateUser(ctx, u), store.ErrNotFound)
}

func testUserEmailConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, &models.User{Email: "a@example.com", DisplayName: "a"}))
	err := s.CreateUser(ctx, &models.User{Email: "A@example.com", DisplayName: "b"})
	assert.ErrorIs(t, err, store.ErrConflict)
}

func testReferenceData(t *testing.T, s store.Store) {
	ctx := context.Background()

	p := &models.Participant{Name: "Alex", Bio: "Contestant", IsActive: true}
	require.NoError(t, s.CreateParticipant(ctx, p))
	l := &models.Location{Name: "Kitchen", Color: "#ff0000"}
	require.NoError(t, s.CreateLocation(ctx, l))
	a := &models.ActionCategory{Name: "Argument", Icon: "flame"}
	require.NoError(t, s.CreateActionCategory(ctx, a))
	tag := &models.Tag{Name: "drama", Category: "tone"}
	require.NoError(t, s.CreateTag(ctx, tag))

	p.Name = "Alexandra"
	require.NoError(t, s.UpdateParticipant(ctx, p))
	gotP, err := s.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, gotP)
	assert.Equal(t, "Alexandra", gotP.Name)

	l.Description = "Main kitchen"
	require.NoError(t, s.UpdateLocation(ctx, l))
	gotL, err := s.GetLocation(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Main kitchen", gotL.Description)

	a.Color = "#00ff00"
	require.NoError(t, s.UpdateActionCategory(ctx, a))
	gotA, err := s.GetActionCategory(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "#00ff00", gotA.Color)

	tag.Color = "#0000ff"
	require.NoError(t, s.UpdateTag(ctx, tag))
	gotT, err := s.GetTag(ctx, tag.ID)
	require.NoError(t, err)
	assert.Equal(t, "#0000ff", gotT.Color)

	ps, err := s.ListParticipants(ctx)
	require.NoError(t, err)
	assert.Len(t, ps, 1)
	ls, err := s.ListLocations(ctx)
	require.NoError(t, err)
	assert.Len(t, ls, 1)
	as, err := s.ListActionCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, as, 1)
	ts, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, ts, 1)

	require.NoError(t, s.DeleteParticipant(ctx, p.ID))
	require.NoError(t, s.DeleteLocation(ctx, l.ID))
	require.NoError(t, s.DeleteActionCategory(ctx, a.ID))
	require.NoError(t, s.DeleteTag(ctx, tag.ID))

	assert.ErrorIs(t, s.DeleteTag(ctx, tag.ID), store.ErrNotFound)
	assert.ErrorIs(t, s.UpdateLocation(ctx, l), store.ErrNotFound)

	gone, err := s.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	empty, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testStoreAssignsIdentifiers(t *testing.T, s store.Store) {
	ctx := context.Background()

	chosen := models.NewLocationID()
	l := &models.Location{ID: chosen, Name: "Pool"}
	require.NoError(t, s.CreateLocation(ctx, l))
	assert.NotEqual(t, chosen, l.ID)

	backdated := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	e := newEntry(models.NewUserID(), l.ID, models.NewActionCategoryID(), "hello")
	e.ID = models.NewLogEntryID()
	chosenEntry := e.ID
	e.CreatedAt = backdated
	require.NoError(t, s.CreateLogEntry(ctx, e))
	assert.NotEqual(t, chosenEntry, e.ID)
	assert.True(t, e.CreatedAt.After(backdated))

	missing, err := s.GetLogEntry(ctx, chosenEntry)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testLogEntryRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	author := models.NewUserID()
	editor := models.NewUserID()
	p1, p2 := models.NewParticipantID(), models.NewParticipantID()
	tag := models.NewTagID()

	e := newEntry(author, models.NewLocationID(), models.NewActionCategoryID(), "first take")
	e.Participants = []models.ParticipantID{p1, p2}
	e.Tags = []models.TagID{tag}
	require.NoError(t, s.CreateLogEntry(ctx, e))

	created, err := s.GetLogEntry(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, created)

	at := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
	updated, err := s.UpdateLogEntryNotes(ctx, e.ID, store.NotesUpdate{Notes: "x", UpdatedBy: editor, UpdatedAt: at})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "x", updated.Notes)

	got, err := s.GetLogEntry(ctx, e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "x", got.Notes)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, editor, *got.UpdatedBy)
	assert.True(t, at.Equal(got.UpdatedAt), "updated_at %v != %v", got.UpdatedAt, at)

	// Everything else is untouched.
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.Timecode, got.Timecode)
	assert.True(t, created.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, []models.ParticipantID{p1, p2}, got.Participants)
	assert.Equal(t, created.LocationID, got.LocationID)
	assert.Equal(t, created.ActionCategoryID, got.ActionCategoryID)
	assert.Equal(t, []models.TagID{tag}, got.Tags)
	assert.Equal(t, author, got.CreatedBy)
	assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
}

func testLogEntryMissing(t *testing.T, s store.Store) {
	ctx := context.Background()
	id := models.NewLogEntryID()

	got, err := s.GetLogEntry(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.UpdateLogEntryNotes(ctx, id, store.NotesUpdate{Notes: "x", UpdatedBy: models.NewUserID(), UpdatedAt: time.Now()})
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
	assert.ErrorIs(t, s.DeleteLogEntry(ctx, id), store.ErrNotFound)
}

func testLogEntryOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	by := models.NewUserID()
	loc, act := models.NewLocationID(), models.NewActionCategoryID()

	var ids []models.LogEntryID
	for _, notes := range []string{"one", "two", "three"} {
		e := newEntry(by, loc, act, notes)
		require.NoError(t, s.CreateLogEntry(ctx, e))
		ids = append(ids, e.ID)
		time.Sleep(5 * time.Millisecond)
	}

	list, err := s.ListLogEntries(ctx, store.LogEntryFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[1], list[1].ID)
	assert.Equal(t, ids[0], list[2].ID)

	page, err := s.ListLogEntries(ctx, store.LogEntryFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].ID)

	n, err := s.CountLogEntries(ctx, store.LogEntryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testLogEntryFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice, bob := models.NewUserID(), models.NewUserID()
	kitchen, pool := models.NewLocationID(), models.NewLocationID()
	fight, chat := models.NewActionCategoryID(), models.NewActionCategoryID()
	p1 := models.NewParticipantID()
	drama := models.NewTagID()

	e1 := newEntry(alice, kitchen, fight, "Shouting about DISHES")
	e1.Participants = []models.ParticipantID{p1}
	e1.Tags = []models.TagID{drama}
	require.NoError(t, s.CreateLogEntry(ctx, e1))

	time.Sleep(5 * time.Millisecond)
	e2 := newEntry(bob, pool, chat, "quiet chat by the pool")
	require.NoError(t, s.CreateLogEntry(ctx, e2))

	cases := []struct {
		name   string
		filter store.LogEntryFilter
		want   []models.LogEntryID
	}{
		{"all", store.LogEntryFilter{}, []models.LogEntryID{e2.ID, e1.ID}},
		{"participant", store.LogEntryFilter{ParticipantID: p1}, []models.LogEntryID{e1.ID}},
		{"location", store.LogEntryFilter{LocationID: pool}, []models.LogEntryID{e2.ID}},
		{"action", store.LogEntryFilter{ActionCategoryID: fight}, []models.LogEntryID{e1.ID}},
		{"tag", store.LogEntryFilter{TagID: drama}, []models.LogEntryID{e1.ID}},
		{"author", store.LogEntryFilter{CreatedBy: bob}, []models.LogEntryID{e2.ID}},
		{"search folds case", store.LogEntryFilter{Search: "dishes"}, []models.LogEntryID{e1.ID}},
		{"since", store.LogEntryFilter{Since: e2.CreatedAt}, []models.LogEntryID{e2.ID}},
		{"until", store.LogEntryFilter{Until: e2.CreatedAt}, []models.LogEntryID{e1.ID}},
		{"no match", store.LogEntryFilter{Search: "helicopter"}, nil},
		{"search participant", store.LogEntryFilter{Search: "bob", SearchParticipants: []models.ParticipantID{p1}}, []models.LogEntryID{e1.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			list, err := s.ListLogEntries(ctx, tc.filter)
			require.NoError(t, err)
			got := make([]models.LogEntryID, 0, len(list))
			for _, e := range list {
				got = append(got, e.ID)
			}
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tc.want, got)

			n, err := s.CountLogEntries(ctx, tc.filter)
			require.NoError(t, err)
			assert.Equal(t, len(tc.want), n)
		})
	}
}
