// Package client is a Go client for the realitylog HTTP API.
//
// It is used by integration tests and by the virtual operator load generator
// in [github.com/realitylog/realitylog/pkg/loadtest]. Requests and responses
// share the wire types in this package with the server, and records are the
// same [github.com/realitylog/realitylog/pkg/models] values the server stores.
//
// A Client holds at most one session token. Register, Login and Refresh set it;
// Logout clears it.
//
//	c := client.NewClient("http://localhost:8080")
//	if _, err := c.Login(ctx, "ops@example.com", "secret-password"); err != nil {
//		return err
//	}
//	state, err := c.SetNotes(ctx, "confessional starts")
//
// Failed calls return an [*APIError] carrying the status code and the server's
// error body.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/realitylog/realitylog/pkg/analytics"
	"github.com/realitylog/realitylog/pkg/logbook"
	"github.com/realitylog/realitylog/pkg/models"
)

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	authToken string
}

// NewClient creates a client for baseURL, e.g. "http://localhost:8080", with no
// trailing slash.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetAuthToken sets the session token sent with every request.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current session token.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
	Fields     []string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("API error: status=%d, %s (fields: %s)", e.StatusCode, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("API error: status=%d, %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// doRequest performs an HTTP request with proper headers
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.AuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.httpClient.Do(req)
}

// decodeResponse decodes the JSON response into target. Error bodies become an
// *APIError.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return readError(resp)
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func readError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er ErrorResponse
	if json.Unmarshal(body, &er) == nil && er.Error != "" {
		apiErr.Message, apiErr.Fields = er.Error, er.Fields
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// call is doRequest followed by decodeResponse.
func (c *Client) call(ctx context.Context, method, path string, body, target any) error {
	resp, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, target)
}

// Health checks the health status of the server
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var result map[string]any
	if err := c.call(ctx, http.MethodGet, "/health", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// User management (admin only)

func (c *Client) ListUsers(ctx context.Context) ([]*models.User, error) {
	var result []*models.User
	if err := c.call(ctx, http.MethodGet, "/api/users", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	var result models.User
	if err := c.call(ctx, http.MethodPost, "/api/users", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateUser(ctx context.Context, id models.UserID, req UpdateUserRequest) (*models.User, error) {
	var result models.User
	if err := c.call(ctx, http.MethodPut, "/api/users/"+id.String(), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteUser(ctx context.Context, id models.UserID) error {
	return c.call(ctx, http.MethodDelete, "/api/users/"+id.String(), nil, nil)
}

// Participants

func (c *Client) ListParticipants(ctx context.Context) ([]*models.Participant, error) {
	var result []*models.Participant
	if err := c.call(ctx, http.MethodGet, "/api/participants", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) GetParticipant(ctx context.Context, id models.ParticipantID) (*models.Participant, error) {
	var result models.Participant
	if err := c.call(ctx, http.MethodGet, "/api/participants/"+id.String(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CreateParticipant(ctx context.Context, req ParticipantRequest) (*models.Participant, error) {
	var result models.Participant
	if err := c.call(ctx, http.MethodPost, "/api/participants", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateParticipant(ctx context.Context, id models.ParticipantID, req ParticipantRequest) (*models.Participant, error) {
	var result models.Participant
	if err := c.call(ctx, http.MethodPut, "/api/participants/"+id.String(), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteParticipant(ctx context.Context, id models.ParticipantID) error {
	return c.call(ctx, http.MethodDelete, "/api/participants/"+id.String(), nil, nil)
}

// Locations

func (c *Client) ListLocations(ctx context.Context) ([]*models.Location, error) {
	var result []*models.Location
	if err := c.call(ctx, http.MethodGet, "/api/locations", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) CreateLocation(ctx context.Context, req LocationRequest) (*models.Location, error) {
	var result models.Location
	if err := c.call(ctx, http.MethodPost, "/api/locations", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateLocation(ctx context.Context, id models.LocationID, req LocationRequest) (*models.Location, error) {
	var result models.Location
	if err := c.call(ctx, http.MethodPut, "/api/locations/"+id.String(), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteLocation(ctx context.Context, id models.LocationID) error {
	return c.call(ctx, http.MethodDelete, "/api/locations/"+id.String(), nil, nil)
}

// Action categories

func (c *Client) ListActionCategories(ctx context.Context) ([]*models.ActionCategory, error) {
	var result []*models.ActionCategory
	if err := c.call(ctx, http.MethodGet, "/api/action-categories", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) CreateActionCategory(ctx context.Context, req ActionCategoryRequest) (*models.ActionCategory, error) {
	var result models.ActionCategory
	if err := c.call(ctx, http.MethodPost, "/api/action-categories", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateActionCategory(ctx context.Context, id models.ActionCategoryID, req ActionCategoryRequest) (*models.ActionCategory, error) {
	var result models.ActionCategory
	if err := c.call(ctx, http.MethodPut, "/api/action-categories/"+id.String(), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteActionCategory(ctx context.Context, id models.ActionCategoryID) error {
	return c.call(ctx, http.MethodDelete, "/api/action-categories/"+id.String(), nil, nil)
}

// Tags

func (c *Client) ListTags(ctx context.Context) ([]*models.Tag, error) {
	var result []*models.Tag
	if err := c.call(ctx, http.MethodGet, "/api/tags", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) CreateTag(ctx context.Context, req TagRequest) (*models.Tag, error) {
	var result models.Tag
	if err := c.call(ctx, http.MethodPost, "/api/tags", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) UpdateTag(ctx context.Context, id models.TagID, req TagRequest) (*models.Tag, error) {
	var result models.Tag
	if err := c.call(ctx, http.MethodPut, "/api/tags/"+id.String(), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteTag(ctx context.Context, id models.TagID) error {
	return c.call(ctx, http.MethodDelete, "/api/tags/"+id.String(), nil, nil)
}

// Log entries

// LogEntryQuery filters GET /api/log-entries. Zero fields are not sent.
type LogEntryQuery struct {
	ParticipantID    models.ParticipantID
	LocationID       models.LocationID
	ActionCategoryID models.ActionCategoryID
	TagID            models.TagID
	CreatedBy        models.UserID
	StartDate        time.Time
	EndDate          time.Time
	Search           string
	Page             int
	Limit            int
}

// Values encodes q as query parameters.
func (q LogEntryQuery) Values() url.Values {
	v := url.Values{}
	setID := func(name string, zero bool, s string) {
		if !zero {
			v.Set(name, s)
		}
	}
	setID("participantId", q.ParticipantID.IsZero(), q.ParticipantID.String())
	setID("locationId", q.LocationID.IsZero(), q.LocationID.String())
	setID("actionCategoryId", q.ActionCategoryID.IsZero(), q.ActionCategoryID.String())
	setID("tagId", q.TagID.IsZero(), q.TagID.String())
	setID("createdBy", q.CreatedBy.IsZero(), q.CreatedBy.String())
	if !q.StartDate.IsZero() {
		v.Set("startDate", q.StartDate.Format(time.RFC3339))
	}
	if !q.EndDate.IsZero() {
		v.Set("endDate", q.EndDate.Format(time.RFC3339))
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func withQuery(path string, v url.Values) string {
	if len(v) == 0 {
		return path
	}
	return path + "?" + v.Encode()
}

func (c *Client) ListLogEntries(ctx context.Context, q LogEntryQuery) (*LogEntryPage, error) {
	var result LogEntryPage
	if err := c.call(ctx, http.MethodGet, withQuery("/api/log-entries", q.Values()), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetLogEntry(ctx context.Context, id models.LogEntryID) (*models.LogEntry, error) {
	var result models.LogEntry
	if err := c.call(ctx, http.MethodGet, "/api/log-entries/"+id.String(), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EditLogEntryNotes replaces the notes of an entry. Only the author or an
// admin may do this.
func (c *Client) EditLogEntryNotes(ctx context.Context, id models.LogEntryID, notes string) (*models.LogEntry, error) {
	var result models.LogEntry
	if err := c.call(ctx, http.MethodPut, "/api/log-entries/"+id.String(), EditNotesRequest{Notes: &notes}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteLogEntry(ctx context.Context, id models.LogEntryID) error {
	return c.call(ctx, http.MethodDelete, "/api/log-entries/"+id.String(), nil, nil)
}

// DeleteAllLogEntries removes every entry. Admin only.
func (c *Client) DeleteAllLogEntries(ctx context.Context) (*BulkResult, error) {
	var result BulkResult
	if err := c.call(ctx, http.MethodDelete, "/api/log-entries", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Export streams the rendered export of the entries matching q into w. Paging
// fields of q are ignored by the server.
func (c *Client) Export(ctx context.Context, w io.Writer, format string, q LogEntryQuery) error {
	v := q.Values()
	v.Set("format", format)
	resp, err := c.doRequest(ctx, http.MethodGet, withQuery("/api/log-entries/export", v), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return readError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read export: %w", err)
	}
	return nil
}

func (c *Client) Dashboard(ctx context.Context) (*analytics.Dashboard, error) {
	var result analytics.Dashboard
	if err := c.call(ctx, http.MethodGet, "/api/analytics/dashboard", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Console. Every session has its own console on the server.

func (c *Client) consoleCall(ctx context.Context, method, path string, body any) (*logbook.ConsoleState, error) {
	var result logbook.ConsoleState
	if err := c.call(ctx, method, "/api/console"+path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Console(ctx context.Context) (*logbook.ConsoleState, error) {
	return c.consoleCall(ctx, http.MethodGet, "", nil)
}

func (c *Client) ToggleParticipant(ctx context.Context, id models.ParticipantID) (*logbook.ConsoleState, error) {
	return c.consoleCall(ctx, http.MethodPost, "/participants/"+id.String()+"/toggle", nil)
}

func (c *Client) ToggleTag(ctx context.Context, id models.TagID) (*logbook.ConsoleState, error) {
	return c.consoleCall(ctx, http.MethodPost, "/tags/"+id.String()+"/toggle", nil)
}

// SetLocation selects a location. A zero id clears the selection.
func (c *Client) SetLocation(ctx context.Context, id models.LocationID) (*logbook.ConsoleState, error) {
	req := SelectRequest{}
	if !id.IsZero() {
		req.ID = id.String()
	}
	return c.consoleCall(ctx, http.MethodPut, "/location", req)
}

// SetActionCategory selects an action category. A zero id clears the selection.
func (c *Client) SetActionCategory(ctx context.Context, id models.ActionCategoryID) (*logbook.ConsoleState, error) {
	req := SelectRequest{}
	if !id.IsZero() {
		req.ID = id.String()
	}
	return c.consoleCall(ctx, http.MethodPut, "/action-category", req)
}

func (c *Client) SetNotes(ctx context.Context, notes string) (*logbook.ConsoleState, error) {
	return c.consoleCall(ctx, http.MethodPut, "/notes", NotesRequest{Notes: notes})
}

// EditTimecode pins the console timecode to tc ("HH:MM:SS:FF").
func (c *Client) EditTimecode(ctx context.Context, tc string) (*logbook.ConsoleState, error) {
	return c.consoleCall(ctx, http.MethodPut, "/timecode", TimecodeRequest{Timecode: tc})
}

func (c *Client) ResyncTimecode(ctx context.Context) (*logbook.ConsoleState, error) {
	return c.consoleCall(ctx, http.MethodPost, "/timecode/resync", nil)
}

// Submit creates a log entry from the console. A non-nil notes replaces the
// draft first.
func (c *Client) Submit(ctx context.Context, notes *string) (*models.LogEntry, error) {
	var body any
	if notes != nil {
		body = SubmitRequest{Notes: notes}
	}
	var result models.LogEntry
	if err := c.call(ctx, http.MethodPost, "/api/console/submit", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
