package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realitylog/realitylog/pkg/models"
)

func TestLoginStoresToken(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/auth/login":
			var req LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ops@example.com", req.Email)
			_ = json.NewEncoder(w).Encode(Session{Token: "tok-1", User: &models.User{Email: req.Email}})
		case "/api/auth/me":
			_ = json.NewEncoder(w).Encode(models.User{Email: "ops@example.com"})
		case "/api/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	ctx := context.Background()
	sess, err := c.Login(ctx, "ops@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)
	assert.Equal(t, "tok-1", c.AuthToken())

	_, err = c.Me(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, c.AuthToken())

	assert.Equal(t, []string{"", "Bearer tok-1", "Bearer tok-1"}, gotAuth)
}

func TestErrorResponseDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "missing or invalid: location, notes", Fields: []string{"location", "notes"}})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Submit(context.Background(), nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, []string{"location", "notes"}, apiErr.Fields)
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	assert.Contains(t, err.Error(), "fields: location, notes")
}

func TestPlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ListTags(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "upstream down", apiErr.Message)
	assert.Zero(t, StatusCode(nil))
}

func TestLogEntryQueryValues(t *testing.T) {
	pid := models.NewParticipantID()
	start := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	v := LogEntryQuery{ParticipantID: pid, StartDate: start, Search: "pool", Page: 2}.Values()

	assert.Equal(t, pid.String(), v.Get("participantId"))
	assert.Equal(t, "2024-07-01T09:00:00Z", v.Get("startDate"))
	assert.Equal(t, "pool", v.Get("search"))
	assert.Equal(t, "2", v.Get("page"))
	for _, absent := range []string{"locationId", "actionCategoryId", "tagId", "createdBy", "endDate", "limit"} {
		assert.False(t, v.Has(absent), absent)
	}
	assert.Empty(t, LogEntryQuery{}.Values())
}

func TestSetLocationClears(t *testing.T) {
	var body SelectRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/console/location", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"selection":{"participants":[],"tags":[]},"notes":"","timecode":{"timecode":"00:00:00:00","manual":false},"in_flight":false}`))
	}))
	defer srv.Close()

	state, err := NewClient(srv.URL).SetLocation(context.Background(), models.LocationID{})
	require.NoError(t, err)
	assert.Empty(t, body.ID)
	assert.False(t, state.Selection.HasLocation())
}
