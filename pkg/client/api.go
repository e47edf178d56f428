package client

import (
	"encoding/json"
	"time"

	"github.com/realitylog/realitylog/pkg/models"
)

// Request bodies. The server validates them with the validate tags.

type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name,omitempty" validate:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CreateUserRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"display_name,omitempty" validate:"max=100"`
	Role        string `json:"role,omitempty" validate:"omitempty,oneof=admin logger viewer"`
}

// UpdateUserRequest changes a profile. Nil fields keep their current value.
type UpdateUserRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,min=1,max=100"`
	Role        *string `json:"role,omitempty" validate:"omitempty,oneof=admin logger viewer"`
}

type ParticipantRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Bio            string `json:"bio,omitempty" validate:"max=2000"`
	ProfilePicture string `json:"profile_picture,omitempty" validate:"omitempty,url"`
	// IsActive defaults to true.
	IsActive *bool `json:"is_active,omitempty"`
}

type LocationRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	Color       string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

type ActionCategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description,omitempty" validate:"max=1000"`
	Color       string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Icon        string `json:"icon,omitempty" validate:"max=64"`
}

type TagRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Color    string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Category string `json:"category,omitempty" validate:"max=64"`
}

// EditNotesRequest replaces the notes of a submitted entry.
type EditNotesRequest struct {
	Notes *string `json:"notes" validate:"required"`
}

// SelectRequest sets or, with an empty ID, clears a single-choice selection.
type SelectRequest struct {
	ID string `json:"id"`
}

type NotesRequest struct {
	Notes string `json:"notes" validate:"max=10000"`
}

type TimecodeRequest struct {
	Timecode string `json:"timecode" validate:"required"`
}

// SubmitRequest optionally replaces the notes draft before submitting.
type SubmitRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=10000"`
}

// Responses.

// Session is returned by register, login and refresh.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// LogEntryPage is one page of GET /api/log-entries.
type LogEntryPage struct {
	Entries []*models.LogEntry `json:"entries"`
	Total   int                `json:"total"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
}

// BulkResult is returned by DELETE /api/log-entries.
type BulkResult struct {
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// ErrorResponse is the body of every 4xx and 5xx response.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

// Message is the envelope of every WebSocket frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message types pushed over /ws.
const (
	MessageParticipants     = "participants"
	MessageLocations        = "locations"
	MessageActionCategories = "actionCategories"
	MessageTags             = "tags"
	MessageLogEntries       = "logEntries"
	MessageTimecode         = "timecode"
	MessagePing             = "ping"
	MessagePong             = "pong"
)
