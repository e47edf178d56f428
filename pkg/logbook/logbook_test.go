package logbook

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/selection"
	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/store/memory"
	"github.com/realitylog/realitylog/pkg/timecode"
)

// countingStore records create calls and can be told to fail or block them.
type countingStore struct {
	store.Store
	creates atomic.Int32
	failNext error
	release  chan struct{}
}

func newCountingStore() *countingStore {
	return &countingStore{Store: memory.New()}
}

func (s *countingStore) CreateLogEntry(ctx context.Context, e *models.LogEntry) error {
	s.creates.Add(1)
	if s.release != nil {
		<-s.release
	}
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	return s.Store.CreateLogEntry(ctx, e)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testTime = time.Date(2024, 7, 4, 14, 30, 15, 500_000_000, time.UTC)

func user(role models.Role) *models.User {
	return &models.User{ID: models.NewUserID(), Role: role, Email: string(role) + "@example.com"}
}

func newTestConsole(s store.Store) *Console {
	return NewConsole(NewSubmitter(s, zerolog.Nop()), ConsoleOptions{Clock: fixedClock{testTime}})
}

func TestSelectionPersistsAcrossSubmit(t *testing.T) {
	s := newCountingStore()
	c := newTestConsole(s)

	p1, l1, a1, t1 := models.NewParticipantID(), models.NewLocationID(), models.NewActionCategoryID(), models.NewTagID()
	c.ToggleParticipant(p1)
	c.SetLocation(l1)
	c.SetActionCategory(a1)
	c.ToggleTag(t1)
	c.SetNotes("hello")
	before := c.Selection()

	entry, err := c.Submit(context.Background(), user(models.RoleLogger))
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.True(t, before.Equal(c.Selection()))
	assert.Equal(t, []models.ParticipantID{p1}, c.Selection().Participants)
	assert.Equal(t, l1, c.Selection().Location)
	assert.Equal(t, "", c.Notes())

	assert.Equal(t, "hello", entry.Notes)
	assert.Equal(t, l1, entry.LocationID)
	assert.Equal(t, a1, entry.ActionCategoryID)
	assert.Equal(t, []models.TagID{t1}, entry.Tags)
	assert.Equal(t, timecode.FromTime(testTime, timecode.DefaultFrameRate), entry.Timecode)
	assert.Equal(t, testTime, entry.Timestamp)
}

func TestSubmitPreconditions(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(c *Console)
		missing []string
	}{
		{
			name: "location unset",
			setup: func(c *Console) {
				c.SetActionCategory(models.NewActionCategoryID())
				c.SetNotes("plenty of notes")
			},
			missing: []string{FieldLocation},
		},
		{
			name: "action unset",
			setup: func(c *Console) {
				c.SetLocation(models.NewLocationID())
				c.SetNotes("notes")
			},
			missing: []string{FieldActionCategory},
		},
		{
			name: "blank notes",
			setup: func(c *Console) {
				c.SetLocation(models.NewLocationID())
				c.SetActionCategory(models.NewActionCategoryID())
				c.SetNotes("   \n\t")
			},
			missing: []string{FieldNotes},
		},
		{
			name:    "everything missing",
			setup:   func(c *Console) {},
			missing: []string{FieldLocation, FieldActionCategory, FieldNotes},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newCountingStore()
			c := newTestConsole(s)
			tc.setup(c)
			notes := c.Notes()

			_, err := c.Submit(context.Background(), user(models.RoleAdmin))
			require.ErrorIs(t, err, ErrValidation)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.missing, ve.Fields)
			assert.Zero(t, s.creates.Load(), "store must not be called")
			assert.Equal(t, notes, c.Notes())
		})
	}
}

func TestCandidateIsValueSnapshot(t *testing.T) {
	sel := selection.New()
	t1 := models.NewTagID()
	sel.SetLocation(models.NewLocationID())
	sel.SetActionCategory(models.NewActionCategoryID())
	sel.ToggleTag(t1)

	c, err := BuildCandidate(sel.Snapshot(), "  hello  ", timecode.Reading{}, testTime)
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Notes)

	sel.ToggleTag(models.NewTagID())
	sel.ToggleTag(t1)
	sel.ClearLocation()

	assert.Equal(t, []models.TagID{t1}, c.Tags)
	assert.False(t, c.Location.IsZero())
}

func TestSubmitFailureKeepsNotes(t *testing.T) {
	s := newCountingStore()
	s.failNext = store.Unavailable(errors.New("dial tcp: connection refused"))
	c := newTestConsole(s)
	c.SetLocation(models.NewLocationID())
	c.SetActionCategory(models.NewActionCategoryID())
	c.SetNotes("do not lose me")

	_, err := c.Submit(context.Background(), user(models.RoleLogger))
	require.ErrorIs(t, err, ErrConnectivity)
	assert.Equal(t, "do not lose me", c.Notes())
	assert.False(t, c.State().InFlight)

	// Retry succeeds with the same text.
	entry, err := c.Submit(context.Background(), user(models.RoleLogger))
	require.NoError(t, err)
	assert.Equal(t, "do not lose me", entry.Notes)
	assert.Equal(t, "", c.Notes())
}

func TestViewerCannotSubmit(t *testing.T) {
	s := newCountingStore()
	c := newTestConsole(s)
	c.SetLocation(models.NewLocationID())
	c.SetActionCategory(models.NewActionCategoryID())
	c.SetNotes("x")

	_, err := c.Submit(context.Background(), user(models.RoleViewer))
	require.ErrorIs(t, err, ErrPermission)
	assert.Zero(t, s.creates.Load())
	assert.Equal(t, "x", c.Notes())

	_, err = c.Submit(context.Background(), nil)
	require.ErrorIs(t, err, ErrPermission)
}

func TestSubmitInFlightGuard(t *testing.T) {
	s := newCountingStore()
	s.release = make(chan struct{})
	c := newTestConsole(s)
	c.SetLocation(models.NewLocationID())
	c.SetActionCategory(models.NewActionCategoryID())
	c.SetNotes("first")

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), user(models.RoleLogger))
		done <- err
	}()

	require.Eventually(t, func() bool { return c.State().InFlight }, time.Second, time.Millisecond)

	// Selection can still change while the call is pending.
	c.ToggleTag(models.NewTagID())
	c.SetNotes("second")

	_, err := c.Submit(context.Background(), user(models.RoleLogger))
	assert.ErrorIs(t, err, ErrSubmitInFlight)

	close(s.release)
	require.NoError(t, <-done)
	assert.EqualValues(t, 1, s.creates.Load())
	// The operator typed more while the first submit was pending; that draft stays.
	assert.Equal(t, "second", c.Notes())
	assert.False(t, c.State().InFlight)
}

func TestEditTimecodeRejectsInvalid(t *testing.T) {
	c := newTestConsole(memory.New())
	require.NoError(t, c.EditTimecode("01:02:03:04"))

	for _, bad := range []string{"25:00:00:00", "12:60:00:00"} {
		err := c.EditTimecode(bad)
		require.ErrorIs(t, err, ErrValidation)
		require.ErrorIs(t, err, timecode.ErrInvalidTimecode)
		assert.Equal(t, "01:02:03:04", c.Timecode().Timecode.String())
	}

	r := c.ResyncTimecode()
	assert.False(t, r.Manual)
	assert.Equal(t, timecode.FromTime(testTime, timecode.DefaultFrameRate), r.Timecode)
}

func TestCanMutateMatrix(t *testing.T) {
	u1 := models.NewUserID()
	u2 := models.NewUserID()
	entry := &models.LogEntry{CreatedBy: u1}

	cases := []struct {
		name     string
		identity *models.User
		want     bool
	}{
		{"other viewer", &models.User{ID: u2, Role: models.RoleViewer}, false},
		{"other logger", &models.User{ID: u2, Role: models.RoleLogger}, true},
		{"other admin", &models.User{ID: u2, Role: models.RoleAdmin}, true},
		{"own entry as viewer", &models.User{ID: u1, Role: models.RoleViewer}, true},
		{"missing role is viewer", &models.User{ID: u2}, false},
		{"no identity", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanMutate(tc.identity, entry))
		})
	}
}

func seedEntry(t *testing.T, s store.Store, by models.UserID) *models.LogEntry {
	t.Helper()
	e := &models.LogEntry{
		Timestamp:        testTime,
		Timecode:         timecode.MustParse("14:30:15:15"),
		Participants:     []models.ParticipantID{models.NewParticipantID()},
		LocationID:       models.NewLocationID(),
		ActionCategoryID: models.NewActionCategoryID(),
		Tags:             []models.TagID{models.NewTagID()},
		Notes:            "original",
		CreatedBy:        by,
	}
	require.NoError(t, s.CreateLogEntry(context.Background(), e))
	return e
}

func TestEditorAuthorization(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ed := NewEditor(s, zerolog.Nop())

	u1 := &models.User{ID: models.NewUserID(), Role: models.RoleViewer}
	entry := seedEntry(t, s, u1.ID)

	_, err := ed.EditNotes(ctx, &models.User{ID: models.NewUserID(), Role: models.RoleViewer}, entry.ID, "x")
	assert.ErrorIs(t, err, ErrPermission)

	logger := &models.User{ID: models.NewUserID(), Role: models.RoleLogger}
	got, err := ed.EditNotes(ctx, logger, entry.ID, "by logger")
	require.NoError(t, err)
	assert.Equal(t, "by logger", got.Notes)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, logger.ID, *got.UpdatedBy)

	got, err = ed.EditNotes(ctx, u1, entry.ID, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Notes)
}

func TestEditorRoundTripKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ed := NewEditor(s, zerolog.Nop())
	admin := user(models.RoleAdmin)
	entry := seedEntry(t, s, models.NewUserID())

	_, err := ed.EditNotes(ctx, admin, entry.ID, "x")
	require.NoError(t, err)

	got, err := s.GetLogEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Notes)
	assert.Equal(t, entry.Participants, got.Participants)
	assert.Equal(t, entry.Tags, got.Tags)
	assert.Equal(t, entry.LocationID, got.LocationID)
	assert.Equal(t, entry.ActionCategoryID, got.ActionCategoryID)
	assert.Equal(t, entry.Timecode, got.Timecode)
	assert.Equal(t, entry.Timestamp, got.Timestamp)
	assert.Equal(t, entry.CreatedBy, got.CreatedBy)
	assert.Equal(t, entry.CreatedAt, got.CreatedAt)
}

func TestEditorValidationAndMissing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ed := NewEditor(s, zerolog.Nop())
	admin := user(models.RoleAdmin)

	_, err := ed.EditNotes(ctx, admin, models.NewLogEntryID(), "  ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ed.EditNotes(ctx, admin, models.NewLogEntryID(), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	entry := seedEntry(t, s, admin.ID)
	require.NoError(t, ed.Delete(ctx, admin, entry.ID))
	assert.ErrorIs(t, ed.Delete(ctx, admin, entry.ID), ErrNotFound)
}

func TestEditorDeleteRequiresPermission(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ed := NewEditor(s, zerolog.Nop())
	entry := seedEntry(t, s, models.NewUserID())

	err := ed.Delete(ctx, user(models.RoleViewer), entry.ID)
	assert.ErrorIs(t, err, ErrPermission)

	still, err := s.GetLogEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.NotNil(t, still)
}

// failingDeletes fails deletes of the listed IDs.
type failingDeletes struct {
	store.Store
	fail map[models.LogEntryID]bool
}

func (s *failingDeletes) DeleteLogEntry(ctx context.Context, id models.LogEntryID) error {
	if s.fail[id] {
		return errors.New("disk on fire")
	}
	return s.Store.DeleteLogEntry(ctx, id)
}

func TestDeleteAll(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	var ids []models.LogEntryID
	for i := 0; i < 4; i++ {
		ids = append(ids, seedEntry(t, mem, models.NewUserID()).ID)
	}

	s := &failingDeletes{Store: mem, fail: map[models.LogEntryID]bool{ids[1]: true}}
	ed := NewEditor(s, zerolog.Nop())

	_, err := ed.DeleteAll(ctx, user(models.RoleLogger))
	require.ErrorIs(t, err, ErrPermission)

	res, err := ed.DeleteAll(ctx, user(models.RoleAdmin))
	var bulk *BulkDeleteError
	require.ErrorAs(t, err, &bulk)
	assert.Equal(t, 3, bulk.Deleted)
	assert.Equal(t, 1, bulk.Failed)
	assert.ErrorIs(t, err, ErrUnknown)
	assert.Equal(t, BulkResult{Deleted: 3, Failed: 1}, res)

	delete(s.fail, ids[1])
	res, err = ed.DeleteAll(ctx, user(models.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Deleted: 1}, res)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"read only", store.ErrReadOnly, ErrConnectivity},
		{"unavailable", store.Unavailable(errors.New("down")), ErrConnectivity},
		{"deadline", context.DeadlineExceeded, ErrConnectivity},
		{"net error", &net.OpError{Op: "dial", Err: timeoutErr{}}, ErrConnectivity},
		{"not found", store.NotFound(store.CollectionLogEntries, models.NewLogEntryID()), ErrNotFound},
		{"timecode", &timecode.ParseError{Input: "x"}, ErrValidation},
		{"typed passes through", &PermissionError{Op: "x"}, ErrPermission},
		{"other", errors.New("boom"), ErrUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, Classify(tc.err), tc.want)
		})
	}

	unknown := Classify(errors.New("boom"))
	assert.Equal(t, "boom", unknown.Error())
}

func TestConsoleRegistry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewConsoleRegistry(ctx, NewSubmitter(memory.New(), zerolog.Nop()), ConsoleOptions{})
	a, err := r.Get("a")
	require.NoError(t, err)
	again, err := r.Get("a")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.True(t, a.Generator().Running())

	_, err = r.Get("")
	assert.Error(t, err)

	r.Rename("a", "b")
	_, ok := r.Lookup("a")
	assert.False(t, ok)
	moved, ok := r.Lookup("b")
	require.True(t, ok)
	assert.Same(t, a, moved)

	r.Close("b")
	assert.False(t, a.Generator().Running())
	assert.Zero(t, r.Len())
}

func TestConsoleRegistryPrune(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewConsoleRegistry(ctx, NewSubmitter(memory.New(), zerolog.Nop()), ConsoleOptions{})
	keep, err := r.Get("keep")
	require.NoError(t, err)
	drop, err := r.Get("drop")
	require.NoError(t, err)

	n := r.Prune(func(session string) bool { return session == "keep" })
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.Len())
	assert.True(t, keep.Generator().Running())
	assert.False(t, drop.Generator().Running())

	r.CloseAll()
	assert.False(t, keep.Generator().Running())
}
