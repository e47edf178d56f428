package realitylog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/realitylog/realitylog/pkg/auth"
	"github.com/realitylog/realitylog/pkg/client"
	"github.com/realitylog/realitylog/pkg/config"
	"github.com/realitylog/realitylog/pkg/logbook"
	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/realtime"
	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/store/gormstore"
	"github.com/realitylog/realitylog/pkg/store/memory"
	"github.com/realitylog/realitylog/pkg/store/transfer"
	"github.com/realitylog/realitylog/pkg/timecode"
)

const adminPassword = "admin-password"

type testEnv struct {
	app    *App
	srv    *httptest.Server
	admin  *client.Client
	ctx    context.Context
	seeded struct {
		participant *models.Participant
		location    *models.Location
		action      *models.ActionCategory
		tag         *models.Tag
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Auth.BcryptCost = bcrypt.MinCost

	app := NewWithStore(&cfg, memory.New(), zerolog.Nop())
	t.Cleanup(func() { _ = app.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = app.Hub().Run(ctx) }()

	srv := httptest.NewServer(app.Router())
	t.Cleanup(srv.Close)

	_, err := app.CreateUser(ctx, &UserCreateCommand{Email: "admin@example.com", Password: adminPassword, Role: "admin"})
	require.NoError(t, err)

	admin := client.NewClient(srv.URL)
	_, err = admin.Login(ctx, "admin@example.com", adminPassword)
	require.NoError(t, err)

	env := &testEnv{app: app, srv: srv, admin: admin, ctx: ctx}
	env.seeded.participant, err = admin.CreateParticipant(ctx, client.ParticipantRequest{Name: "Alice"})
	require.NoError(t, err)
	env.seeded.location, err = admin.CreateLocation(ctx, client.LocationRequest{Name: "Kitchen", Color: "#ff8800"})
	require.NoError(t, err)
	env.seeded.action, err = admin.CreateActionCategory(ctx, client.ActionCategoryRequest{Name: "Argument"})
	require.NoError(t, err)
	env.seeded.tag, err = admin.CreateTag(ctx, client.TagRequest{Name: "Drama"})
	require.NoError(t, err)
	return env
}

// user creates an account with role and returns a client signed in as it.
func (e *testEnv) user(t *testing.T, email string, role models.Role) (*client.Client, *models.User) {
	t.Helper()
	_, err := e.admin.CreateUser(e.ctx, client.CreateUserRequest{Email: email, Password: "password1", Role: string(role)})
	require.NoError(t, err)
	c := client.NewClient(e.srv.URL)
	sess, err := c.Login(e.ctx, email, "password1")
	require.NoError(t, err)
	return c, sess.User
}

// fillConsole selects the seeded participant, location and action and sets notes.
func (e *testEnv) fillConsole(t *testing.T, c *client.Client, notes string) {
	t.Helper()
	state, err := c.Console(e.ctx)
	require.NoError(t, err)
	if !state.Selection.HasParticipant(e.seeded.participant.ID) {
		_, err = c.ToggleParticipant(e.ctx, e.seeded.participant.ID)
		require.NoError(t, err)
	}
	_, err = c.SetLocation(e.ctx, e.seeded.location.ID)
	require.NoError(t, err)
	_, err = c.SetActionCategory(e.ctx, e.seeded.action.ID)
	require.NoError(t, err)
	_, err = c.SetNotes(e.ctx, notes)
	require.NoError(t, err)
}

func (e *testEnv) submit(t *testing.T, c *client.Client, notes string) *models.LogEntry {
	t.Helper()
	e.fillConsole(t, c, notes)
	entry, err := c.Submit(e.ctx, nil)
	require.NoError(t, err)
	return entry
}

func requireAPIError(t *testing.T, err error, status int, fields ...string) {
	t.Helper()
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.StatusCode, apiErr.Message)
	if len(fields) > 0 {
		assert.ElementsMatch(t, fields, apiErr.Fields)
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	c := client.NewClient(env.srv.URL)

	sess, err := c.Register(env.ctx, "viewer@example.com", "password1", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleViewer, sess.User.Role)
	assert.Equal(t, "viewer", sess.User.DisplayName)
	assert.True(t, sess.ExpiresAt.After(time.Now()))

	me, err := c.Me(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, me.ID)

	old := c.AuthToken()
	refreshed, err := c.Refresh(env.ctx)
	require.NoError(t, err)
	assert.NotEqual(t, old, refreshed.Token)

	stale := client.NewClient(env.srv.URL)
	stale.SetAuthToken(old)
	_, err = stale.Me(env.ctx)
	requireAPIError(t, err, http.StatusUnauthorized)

	require.NoError(t, c.Logout(env.ctx))
	c.SetAuthToken(refreshed.Token)
	_, err = c.Me(env.ctx)
	requireAPIError(t, err, http.StatusUnauthorized)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	c := client.NewClient(env.srv.URL)

	_, err := c.Register(env.ctx, "not-an-email", "password1", "")
	requireAPIError(t, err, http.StatusBadRequest, "email")

	_, err = c.Register(env.ctx, "short@example.com", "abc", "")
	requireAPIError(t, err, http.StatusBadRequest, "password")

	_, err = c.Register(env.ctx, "admin@example.com", "password1", "")
	requireAPIError(t, err, http.StatusConflict)

	_, err = c.Login(env.ctx, "admin@example.com", "wrong-password")
	requireAPIError(t, err, http.StatusUnauthorized)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	env := newTestEnv(t)
	anon := client.NewClient(env.srv.URL)

	_, err := anon.ListParticipants(env.ctx)
	requireAPIError(t, err, http.StatusUnauthorized)
	_, err = anon.Submit(env.ctx, nil)
	requireAPIError(t, err, http.StatusUnauthorized)
}

func TestReferenceCRUDRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	viewer, _ := env.user(t, "viewer@example.com", models.RoleViewer)

	_, err := viewer.CreateParticipant(env.ctx, client.ParticipantRequest{Name: "Bob"})
	requireAPIError(t, err, http.StatusForbidden)

	list, err := viewer.ListParticipants(env.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsActive)

	inactive := false
	bob, err := env.admin.CreateParticipant(env.ctx, client.ParticipantRequest{Name: "  Bob ", IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, bob.ID.IsZero())
	assert.Equal(t, "Bob", bob.Name)
	assert.False(t, bob.IsActive)

	updated, err := env.admin.UpdateParticipant(env.ctx, bob.ID, client.ParticipantRequest{Name: "Robert", Bio: "Chef"})
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated.Name)
	assert.True(t, updated.IsActive)

	got, err := viewer.GetParticipant(env.ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chef", got.Bio)

	require.NoError(t, env.admin.DeleteParticipant(env.ctx, bob.ID))
	_, err = viewer.GetParticipant(env.ctx, bob.ID)
	requireAPIError(t, err, http.StatusNotFound)

	_, err = env.admin.CreateLocation(env.ctx, client.LocationRequest{Name: "Pool", Color: "blue"})
	requireAPIError(t, err, http.StatusBadRequest, "color")

	_, err = env.admin.CreateTag(env.ctx, client.TagRequest{})
	requireAPIError(t, err, http.StatusBadRequest, "name")
}

func TestUnknownFieldsRejected(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/tags", strings.NewReader(`{"nmae":"typo"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.admin.AuthToken())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var body client.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Error, "invalid request payload")
}

func TestSubmitFlow(t *testing.T) {
	env := newTestEnv(t)
	logger, loggerUser := env.user(t, "logger@example.com", models.RoleLogger)

	env.fillConsole(t, logger, "  Alice storms out  ")
	_, err := logger.ToggleTag(env.ctx, env.seeded.tag.ID)
	require.NoError(t, err)

	entry, err := logger.Submit(env.ctx, nil)
	require.NoError(t, err)
	assert.False(t, entry.ID.IsZero())
	assert.Equal(t, "Alice storms out", entry.Notes)
	assert.Equal(t, []models.ParticipantID{env.seeded.participant.ID}, entry.Participants)
	assert.Equal(t, []models.TagID{env.seeded.tag.ID}, entry.Tags)
	assert.Equal(t, env.seeded.location.ID, entry.LocationID)
	assert.Equal(t, env.seeded.action.ID, entry.ActionCategoryID)
	assert.Equal(t, loggerUser.ID, entry.CreatedBy)

	state, err := logger.Console(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Notes, "notes are cleared after a successful submit")
	assert.True(t, state.Selection.HasParticipant(env.seeded.participant.ID), "selection persists")
	assert.Equal(t, env.seeded.location.ID, state.Selection.Location)
	assert.False(t, state.InFlight)

	// Selection kept: only notes are needed for the next entry.
	notes := "Alice comes back"
	second, err := logger.Submit(env.ctx, &notes)
	require.NoError(t, err)
	assert.Equal(t, notes, second.Notes)

	_, err = logger.Submit(env.ctx, nil)
	requireAPIError(t, err, http.StatusBadRequest, logbook.FieldNotes)
}

func TestSubmitReportsEveryMissingField(t *testing.T) {
	env := newTestEnv(t)
	logger, _ := env.user(t, "logger@example.com", models.RoleLogger)

	_, err := logger.Submit(env.ctx, nil)
	requireAPIError(t, err, http.StatusBadRequest, logbook.FieldLocation, logbook.FieldActionCategory, logbook.FieldNotes)

	page, err := env.admin.ListLogEntries(env.ctx, client.LogEntryQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestViewerCannotSubmit(t *testing.T) {
	env := newTestEnv(t)
	viewer, _ := env.user(t, "viewer@example.com", models.RoleViewer)

	env.fillConsole(t, viewer, "should not be stored")
	_, err := viewer.Submit(env.ctx, nil)
	requireAPIError(t, err, http.StatusForbidden)

	state, err := viewer.Console(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, "should not be stored", state.Notes, "failed submit keeps the draft")
}

func TestConsoleSelectionChecks(t *testing.T) {
	env := newTestEnv(t)
	logger, _ := env.user(t, "logger@example.com", models.RoleLogger)

	_, err := logger.ToggleParticipant(env.ctx, models.NewParticipantID())
	requireAPIError(t, err, http.StatusNotFound)

	_, err = logger.SetLocation(env.ctx, models.NewLocationID())
	requireAPIError(t, err, http.StatusNotFound)

	state, err := logger.SetLocation(env.ctx, env.seeded.location.ID)
	require.NoError(t, err)
	assert.True(t, state.Selection.HasLocation())

	state, err = logger.SetLocation(env.ctx, models.LocationID{})
	require.NoError(t, err)
	assert.False(t, state.Selection.HasLocation())

	// Deselecting a participant that no longer exists is allowed.
	_, err = logger.ToggleParticipant(env.ctx, env.seeded.participant.ID)
	require.NoError(t, err)
	require.NoError(t, env.admin.DeleteParticipant(env.ctx, env.seeded.participant.ID))
	state, err = logger.ToggleParticipant(env.ctx, env.seeded.participant.ID)
	require.NoError(t, err)
	assert.Empty(t, state.Selection.Participants)
}

func TestConsolesAreIsolatedPerSession(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.user(t, "a@example.com", models.RoleLogger)
	b, _ := env.user(t, "b@example.com", models.RoleLogger)

	_, err := a.SetNotes(env.ctx, "from a")
	require.NoError(t, err)

	state, err := b.Console(env.ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Notes)

	// Refresh keeps the console.
	_, err = a.Refresh(env.ctx)
	require.NoError(t, err)
	state, err = a.Console(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, "from a", state.Notes)
}

func TestTimecodeEditAndResync(t *testing.T) {
	env := newTestEnv(t)
	logger, _ := env.user(t, "logger@example.com", models.RoleLogger)

	for _, bad := range []string{"25:00:00:00", "1:2:3:4", "00:00:00:30", ""} {
		_, err := logger.EditTimecode(env.ctx, bad)
		requireAPIError(t, err, http.StatusBadRequest, logbook.FieldTimecode)
	}

	state, err := logger.EditTimecode(env.ctx, "01:02:03:04")
	require.NoError(t, err)
	assert.True(t, state.Timecode.Manual)
	assert.Equal(t, timecode.MustParse("01:02:03:04"), state.Timecode.Timecode)

	entry := env.submit(t, logger, "pinned")
	assert.Equal(t, "01:02:03:04", entry.Timecode.String())

	state, err = logger.ResyncTimecode(env.ctx)
	require.NoError(t, err)
	assert.False(t, state.Timecode.Manual)
}

func TestEditDeletePermissions(t *testing.T) {
	env := newTestEnv(t)
	author, _ := env.user(t, "author@example.com", models.RoleLogger)
	colleague, colleagueUser := env.user(t, "colleague@example.com", models.RoleLogger)
	viewer, _ := env.user(t, "viewer@example.com", models.RoleViewer)

	entry := env.submit(t, author, "original")

	_, err := viewer.EditLogEntryNotes(env.ctx, entry.ID, "hijacked")
	requireAPIError(t, err, http.StatusForbidden)
	err = viewer.DeleteLogEntry(env.ctx, entry.ID)
	requireAPIError(t, err, http.StatusForbidden)

	// Loggers may change entries they did not create.
	edited, err := colleague.EditLogEntryNotes(env.ctx, entry.ID, "by a colleague")
	require.NoError(t, err)
	assert.Equal(t, "by a colleague", edited.Notes)
	require.NotNil(t, edited.UpdatedBy)
	assert.Equal(t, colleagueUser.ID, *edited.UpdatedBy)

	_, err = author.EditLogEntryNotes(env.ctx, entry.ID, "   ")
	requireAPIError(t, err, http.StatusBadRequest, logbook.FieldNotes)

	edited, err = author.EditLogEntryNotes(env.ctx, entry.ID, "corrected")
	require.NoError(t, err)
	assert.Equal(t, "corrected", edited.Notes)
	assert.Equal(t, entry.Timecode, edited.Timecode)

	me, err := env.admin.Me(env.ctx)
	require.NoError(t, err)
	edited, err = env.admin.EditLogEntryNotes(env.ctx, entry.ID, "admin note")
	require.NoError(t, err)
	require.NotNil(t, edited.UpdatedBy)
	assert.Equal(t, me.ID, *edited.UpdatedBy)

	require.NoError(t, author.DeleteLogEntry(env.ctx, entry.ID))
	_, err = author.GetLogEntry(env.ctx, entry.ID)
	requireAPIError(t, err, http.StatusNotFound)
	err = author.DeleteLogEntry(env.ctx, entry.ID)
	requireAPIError(t, err, http.StatusNotFound)
}

func TestDeleteAllLogEntries(t *testing.T) {
	env := newTestEnv(t)
	logger, _ := env.user(t, "logger@example.com", models.RoleLogger)
	env.submit(t, logger, "one")
	env.submit(t, logger, "two")

	_, err := logger.DeleteAllLogEntries(env.ctx)
	requireAPIError(t, err, http.StatusForbidden)

	res, err := env.admin.DeleteAllLogEntries(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.Zero(t, res.Failed)

	page, err := env.admin.ListLogEntries(env.ctx, client.LogEntryQuery{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.NotNil(t, page.Entries)
}

func TestListLogEntriesFilters(t *testing.T) {
	env := newTestEnv(t)
	logger, loggerUser := env.user(t, "logger@example.com", models.RoleLogger)
	for _, notes := range []string{"Kitchen fight", "Pool party", "Late night kitchen chat"} {
		env.submit(t, logger, notes)
	}

	page, err := logger.ListLogEntries(env.ctx, client.LogEntryQuery{Search: "KITCHEN"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	// Participant names are searched as well as notes.
	page, err = logger.ListLogEntries(env.ctx, client.LogEntryQuery{Search: "alic"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, err = logger.ListLogEntries(env.ctx, client.LogEntryQuery{Limit: 2, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Entries, 1)
	assert.Equal(t, 2, page.Page)

	page, err = logger.ListLogEntries(env.ctx, client.LogEntryQuery{CreatedBy: loggerUser.ID, TagID: env.seeded.tag.ID})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	page, err = logger.ListLogEntries(env.ctx, client.LogEntryQuery{EndDate: time.Now().Add(-24 * time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = logger.ListLogEntries(env.ctx, client.LogEntryQuery{Page: -1})
	require.NoError(t, err, "non-positive paging fields are not sent")

	resp, err := http.Get(env.srv.URL + "/api/log-entries?limit=zero&token=" + url.QueryEscape(logger.AuthToken()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExportAndDashboard(t *testing.T) {
	env := newTestEnv(t)
	logger, _ := env.user(t, "logger@example.com", models.RoleLogger)
	env.submit(t, logger, "Alice cooks")
	env.submit(t, logger, "Alice argues")

	var buf bytes.Buffer
	require.NoError(t, logger.Export(env.ctx, &buf, "csv", client.LogEntryQuery{Search: "cooks"}))
	out := buf.String()
	assert.Contains(t, out, "Alice cooks")
	assert.NotContains(t, out, "Alice argues")
	assert.Contains(t, out, "Kitchen")

	err := logger.Export(env.ctx, &buf, "docx", client.LogEntryQuery{})
	requireAPIError(t, err, http.StatusBadRequest, "format")

	dash, err := logger.Dashboard(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, dash.TotalEntries)
	require.NotEmpty(t, dash.TopLocations)
	assert.Equal(t, 2, dash.TopLocations[0].Count)
}

func TestUserManagement(t *testing.T) {
	env := newTestEnv(t)
	viewer, viewerUser := env.user(t, "viewer@example.com", models.RoleViewer)

	_, err := viewer.ListUsers(env.ctx)
	requireAPIError(t, err, http.StatusForbidden)

	role := string(models.RoleLogger)
	updated, err := env.admin.UpdateUser(env.ctx, viewerUser.ID, client.UpdateUserRequest{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, models.RoleLogger, updated.Role)

	bad := "owner"
	_, err = env.admin.UpdateUser(env.ctx, viewerUser.ID, client.UpdateUserRequest{Role: &bad})
	requireAPIError(t, err, http.StatusBadRequest, "role")

	// The promotion applies to the open session.
	entry := env.submit(t, viewer, "promoted")
	assert.Equal(t, viewerUser.ID, entry.CreatedBy)

	me, err := env.admin.Me(env.ctx)
	require.NoError(t, err)
	err = env.admin.DeleteUser(env.ctx, me.ID)
	requireAPIError(t, err, http.StatusConflict)

	require.NoError(t, env.admin.DeleteUser(env.ctx, viewerUser.ID))
	_, err = viewer.Me(env.ctx)
	requireAPIError(t, err, http.StatusUnauthorized)

	users, err := env.admin.ListUsers(env.ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestHealthAndReadOnly(t *testing.T) {
	env := newTestEnv(t)

	health, err := env.admin.Health(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, false, health["read_only"])

	env.app.SetReadOnly(true)
	_, err = env.admin.CreateTag(env.ctx, client.TagRequest{Name: "Blocked"})
	requireAPIError(t, err, http.StatusServiceUnavailable)

	tags, err := env.admin.ListTags(env.ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 1)

	health, err = env.admin.Health(env.ctx)
	require.NoError(t, err)
	assert.Equal(t, true, health["read_only"])

	env.app.SetReadOnly(false)
	_, err = env.admin.CreateTag(env.ctx, client.TagRequest{Name: "Allowed"})
	require.NoError(t, err)
}

func TestUnknownRouteIsJSON(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/api/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestWebSocketStreamsSnapshots(t *testing.T) {
	env := newTestEnv(t)
	logger, _ := env.user(t, "logger@example.com", models.RoleLogger)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws?token=" + url.QueryEscape(logger.AuthToken())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	// Snapshots of different types interleave, so the latest payload of each
	// type is kept while waiting for another.
	latest := make(map[string]json.RawMessage)
	// readUntil returns once the latest message of typ passes ok.
	readUntil := func(typ string, ok func(json.RawMessage) bool) {
		t.Helper()
		if p, seen := latest[typ]; seen && ok(p) {
			delete(latest, typ)
			return
		}
		for {
			var msg client.Message
			require.NoError(t, conn.ReadJSON(&msg))
			latest[msg.Type] = msg.Payload
			if msg.Type == typ && ok(msg.Payload) {
				delete(latest, typ)
				return
			}
		}
	}
	entryCount := func(n int) func(json.RawMessage) bool {
		return func(p json.RawMessage) bool {
			var snap realtime.Snapshot[*models.LogEntry]
			return json.Unmarshal(p, &snap) == nil && snap.Len() == n
		}
	}

	readUntil(client.MessageLogEntries, entryCount(0))
	readUntil(client.MessageParticipants, func(p json.RawMessage) bool {
		var snap realtime.Snapshot[*models.Participant]
		return json.Unmarshal(p, &snap) == nil && snap.Len() == 1
	})
	readUntil(client.MessageTimecode, func(p json.RawMessage) bool {
		var r timecode.Reading
		return json.Unmarshal(p, &r) == nil
	})

	env.submit(t, logger, "seen over the wire")
	readUntil(client.MessageLogEntries, entryCount(1))

	require.NoError(t, conn.WriteJSON(client.Message{Type: client.MessagePing}))
	readUntil(client.MessagePong, func(json.RawMessage) bool { return true })
}

func TestWebSocketRequiresSession(t *testing.T) {
	env := newTestEnv(t)
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		fields []string
	}{
		{"bad param", invalidParam("id", errors.New("nope")), http.StatusBadRequest, []string{"id"}},
		{"validation", &logbook.ValidationError{Fields: []string{"notes"}}, http.StatusBadRequest, []string{"notes"}},
		{"timecode", &timecode.ParseError{Input: "x"}, http.StatusBadRequest, []string{"timecode"}},
		{"unauthenticated", auth.ErrUnauthenticated, http.StatusUnauthorized, nil},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, nil},
		{"permission", &logbook.PermissionError{Op: "edit"}, http.StatusForbidden, nil},
		{"forbidden", auth.ErrForbidden, http.StatusForbidden, nil},
		{"not found", &logbook.NotFoundError{Kind: "tag", ID: "1"}, http.StatusNotFound, nil},
		{"store not found", store.ErrNotFound, http.StatusNotFound, nil},
		{"in flight", logbook.ErrSubmitInFlight, http.StatusConflict, nil},
		{"email taken", auth.ErrEmailTaken, http.StatusConflict, nil},
		{"read only", store.ErrReadOnly, http.StatusServiceUnavailable, nil},
		{"connectivity", &logbook.ConnectivityError{Err: errors.New("dial")}, http.StatusServiceUnavailable, nil},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.fields, body.Fields)
			if status == http.StatusInternalServerError {
				assert.Equal(t, "internal server error", body.Error)
			}
		})
	}
}

func TestParseFilter(t *testing.T) {
	pid := models.NewParticipantID()
	q := url.Values{
		"participantId": {pid.String()},
		"startDate":     {"2024-07-01"},
		"endDate":       {"2024-07-04"},
		"search":        {"  fight "},
		"page":          {"3"},
		"limit":         {"1000"},
	}
	f, page, limit, err := parseFilter(q, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, pid, f.ParticipantID)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), f.Since)
	assert.Equal(t, time.Date(2024, 7, 5, 0, 0, 0, 0, time.UTC), f.Until, "a bare end date includes that day")
	assert.Equal(t, "fight", f.Search)
	assert.Equal(t, 3, page)
	assert.Equal(t, maxPageSize, limit)
	assert.Equal(t, 2*maxPageSize, f.Offset)

	f, page, limit, err = parseFilter(url.Values{"endDate": {"2024-07-04T12:00:00Z"}}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 7, 4, 12, 0, 0, 0, time.UTC), f.Until)
	assert.Equal(t, 1, page)
	assert.Equal(t, defaultPageSize, limit)
	assert.Zero(t, f.Offset)

	for name, q := range map[string]url.Values{
		"participantId": {"participantId": {"not-a-uuid"}},
		"startDate":     {"startDate": {"July 4th"}},
		"page":          {"page": {"0"}},
		"limit":         {"limit": {"-5"}},
	} {
		_, _, _, err := parseFilter(q, time.UTC)
		var br *badRequest
		require.ErrorAs(t, err, &br, name)
		assert.Equal(t, []string{name}, br.fields)
	}

	// An offset past int32 is refused rather than wrapped or clamped.
	_, _, _, err = parseFilter(url.Values{"page": {"9223372036854775807"}, "limit": {"500"}}, time.UTC)
	var br *badRequest
	require.ErrorAs(t, err, &br)
	assert.Equal(t, []string{"page"}, br.fields)
	f, _, _, err = parseFilter(url.Values{"page": {"4294967"}, "limit": {"500"}}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 4294966*500, f.Offset)
}

func TestCopyToSQLite(t *testing.T) {
	env := newTestEnv(t)
	logger, _ := env.user(t, "logger@example.com", models.RoleLogger)
	env.submit(t, logger, "first")
	env.submit(t, logger, "second")

	path := filepath.Join(t.TempDir(), "copy.db")
	res, err := env.app.CopyTo(env.ctx, &CopyCommand{Target: config.Store{Backend: config.BackendSQLite, SQLitePath: path}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Copied[store.CollectionUsers])
	assert.Equal(t, 2, res.Copied[store.CollectionLogEntries])

	dst, err := gormstore.NewSQLiteStore(path, gormstore.Options{})
	require.NoError(t, err)
	defer dst.Close()
	n, err := dst.CountLogEntries(env.ctx, store.LogEntryFilter{Search: "first"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second copy into the same file is refused.
	_, err = env.app.CopyTo(env.ctx, &CopyCommand{Target: config.Store{Backend: config.BackendSQLite, SQLitePath: path}})
	require.ErrorIs(t, err, transfer.ErrDestinationNotEmpty)
}

func TestCopyToValidatesTarget(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.app.CopyTo(env.ctx, &CopyCommand{Target: config.Store{Backend: "mongo"}})
	require.ErrorContains(t, err, "store.backend")

	_, err = env.app.CopyTo(env.ctx, &CopyCommand{Target: config.Store{Backend: config.BackendMemory}})
	require.ErrorContains(t, err, "discarded")

	assert.True(t, sameLocation(
		config.Store{Backend: config.BackendSQLite, SQLitePath: "a.db"},
		mergeStore(config.Store{Backend: config.BackendSQLite, SQLitePath: "a.db"}, config.Store{Backend: "sqlite"}),
	))
}
