package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/realitylog/realitylog/pkg/timecode"
)

// Role decides what an identity may do.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleLogger Role = "logger"
	RoleViewer Role = "viewer"
)

// ParseRole validates s. An empty string yields RoleViewer.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return RoleViewer, nil
	case RoleAdmin, RoleLogger, RoleViewer:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// OrDefault returns r, or RoleViewer when r is unset or unknown.
func (r Role) OrDefault() Role {
	switch r {
	case RoleAdmin, RoleLogger, RoleViewer:
		return r
	default:
		return RoleViewer
	}
}

// CanSubmit reports whether the role may create log entries.
func (r Role) CanSubmit() bool {
	r = r.OrDefault()
	return r == RoleAdmin || r == RoleLogger
}

// User is an authenticated identity together with its profile.
type User struct {
	ID           UserID     `gorm:"type:uuid;primary_key" json:"id"`
	Email        string     `gorm:"uniqueIndex;not null" json:"email"`
	DisplayName  string     `gorm:"not null" json:"display_name"`
	Role         Role       `gorm:"not null;default:viewer" json:"role"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastActive   *time.Time `json:"last_active,omitempty"`
}

// BeforeCreate assigns a fresh ID. Identifiers are never taken from callers.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.AssignID()
	return nil
}

func (u *User) AssignID() { u.ID = NewUserID() }

func (u *User) Created() time.Time { return u.CreatedAt }
func (u *User) Key() string        { return u.ID.String() }

// DefaultDisplayName derives a display name from the local part of an email address.
func DefaultDisplayName(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

// Participant is a cast member that entries can reference.
type Participant struct {
	ID             ParticipantID `gorm:"type:uuid;primary_key" json:"id"`
	Name           string        `gorm:"not null" json:"name"`
	Bio            string        `gorm:"type:text" json:"bio,omitempty"`
	ProfilePicture string        `json:"profile_picture,omitempty"`
	IsActive       bool          `gorm:"not null" json:"is_active"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func (p *Participant) BeforeCreate(tx *gorm.DB) error {
	p.AssignID()
	return nil
}

func (p *Participant) AssignID()          { p.ID = NewParticipantID() }
func (p *Participant) Created() time.Time { return p.CreatedAt }
func (p *Participant) Key() string        { return p.ID.String() }

// Location is a place on set.
type Location struct {
	ID          LocationID `gorm:"type:uuid;primary_key" json:"id"`
	Name        string     `gorm:"not null" json:"name"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Color       string     `json:"color,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (l *Location) BeforeCreate(tx *gorm.DB) error {
	l.AssignID()
	return nil
}

func (l *Location) AssignID()          { l.ID = NewLocationID() }
func (l *Location) Created() time.Time { return l.CreatedAt }
func (l *Location) Key() string        { return l.ID.String() }

// ActionCategory classifies what happened (argument, confessional, challenge...).
type ActionCategory struct {
	ID          ActionCategoryID `gorm:"type:uuid;primary_key" json:"id"`
	Name        string           `gorm:"not null" json:"name"`
	Description string           `gorm:"type:text" json:"description,omitempty"`
	Color       string           `json:"color,omitempty"`
	Icon        string           `json:"icon,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (a *ActionCategory) BeforeCreate(tx *gorm.DB) error {
	a.AssignID()
	return nil
}

func (a *ActionCategory) AssignID()          { a.ID = NewActionCategoryID() }
func (a *ActionCategory) Created() time.Time { return a.CreatedAt }
func (a *ActionCategory) Key() string        { return a.ID.String() }

// Tag is a free label, optionally grouped by category.
type Tag struct {
	ID        TagID     `gorm:"type:uuid;primary_key" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Color     string    `json:"color,omitempty"`
	Category  string    `gorm:"index" json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	t.AssignID()
	return nil
}

func (t *Tag) AssignID()          { t.ID = NewTagID() }
func (t *Tag) Created() time.Time { return t.CreatedAt }
func (t *Tag) Key() string        { return t.ID.String() }

// LogEntry is one timestamped observation.
//
// Only Notes, UpdatedAt and UpdatedBy change after creation; everything else is
// fixed when the entry is submitted.
type LogEntry struct {
	ID               LogEntryID        `gorm:"type:uuid;primary_key" json:"id"`
	Timestamp        time.Time         `gorm:"not null" json:"timestamp"`
	Timecode         timecode.Timecode `gorm:"not null" json:"timecode"`
	Participants     []ParticipantID   `gorm:"serializer:json;type:text" json:"participants"`
	LocationID       LocationID        `gorm:"type:uuid;not null;index" json:"location_id"`
	ActionCategoryID ActionCategoryID  `gorm:"type:uuid;not null;index" json:"action_category_id"`
	Tags             []TagID           `gorm:"serializer:json;type:text" json:"tags"`
	Notes            string            `gorm:"type:text;not null" json:"notes"`
	CreatedBy        UserID            `gorm:"type:uuid;not null;index" json:"created_by"`
	UpdatedBy        *UserID           `gorm:"type:uuid" json:"updated_by,omitempty"`
	CreatedAt        time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func (e *LogEntry) BeforeCreate(tx *gorm.DB) error {
	e.AssignID()
	return nil
}

func (e *LogEntry) AssignID()          { e.ID = NewLogEntryID() }
func (e *LogEntry) Created() time.Time { return e.CreatedAt }
func (e *LogEntry) Key() string        { return e.ID.String() }

// Clone returns a deep copy of e.
func (e *LogEntry) Clone() *LogEntry {
	if e == nil {
		return nil
	}
	c := *e
	c.Participants = slices.Clone(e.Participants)
	c.Tags = slices.Clone(e.Tags)
	if e.UpdatedBy != nil {
		by := *e.UpdatedBy
		c.UpdatedBy = &by
	}
	return &c
}

// HasParticipant reports whether id is among the entry's participants.
func (e *LogEntry) HasParticipant(id ParticipantID) bool {
	for _, p := range e.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// HasTag reports whether id is among the entry's tags.
func (e *LogEntry) HasTag(id TagID) bool {
	for _, t := range e.Tags {
		if t == id {
			return true
		}
	}
	return false
}
