package surrealdb

import (
	"time"

	sdbmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/timecode"
)

// Record types mirror the application models with SurrealDB-native field types:
// datetimes use CustomDateTime and IDs marshal to record links through their own
// MarshalCBOR. CreatedAt is a pointer so MERGE updates can leave it untouched.

// maxStoredFrameRate bounds frame fields when decoding stored timecodes, whose
// frame rate is not recorded alongside them.
const maxStoredFrameRate = 100

type record[M any] interface {
	model() (*M, error)
}

func datetime(t time.Time) *sdbmodels.CustomDateTime {
	if t.IsZero() {
		return nil
	}
	return &sdbmodels.CustomDateTime{Time: t.UTC()}
}

func fromDatetime(d *sdbmodels.CustomDateTime) time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.Time.UTC()
}

type userRecord struct {
	ID           models.UserID             `json:"id"`
	Email        string                    `json:"email"`
	EmailKey     string                    `json:"email_key"`
	DisplayName  string                    `json:"display_name"`
	Role         string                    `json:"role"`
	PasswordHash string                    `json:"password_hash"`
	CreatedAt    *sdbmodels.CustomDateTime `json:"created_at,omitempty"`
	UpdatedAt    *sdbmodels.CustomDateTime `json:"updated_at,omitempty"`
	LastActive   *sdbmodels.CustomDateTime `json:"last_active,omitempty"`
}

func newUserRecord(u *models.User) *userRecord {
	r := &userRecord{
		ID:           u.ID,
		Email:        u.Email,
		EmailKey:     emailKey(u.Email),
		DisplayName:  u.DisplayName,
		Role:         string(u.Role.OrDefault()),
		PasswordHash: u.PasswordHash,
		CreatedAt:    datetime(u.CreatedAt),
		UpdatedAt:    datetime(u.UpdatedAt),
	}
	if u.LastActive != nil {
		r.LastActive = datetime(*u.LastActive)
	}
	return r
}

func (r userRecord) model() (*models.User, error) {
	u := &models.User{
		ID:           r.ID,
		Email:        r.Email,
		DisplayName:  r.DisplayName,
		Role:         models.Role(r.Role).OrDefault(),
		PasswordHash: r.PasswordHash,
		CreatedAt:    fromDatetime(r.CreatedAt),
		UpdatedAt:    fromDatetime(r.UpdatedAt),
	}
	if r.LastActive != nil {
		at := fromDatetime(r.LastActive)
		u.LastActive = &at
	}
	return u, nil
}

type participantRecord struct {
	ID             models.ParticipantID      `json:"id"`
	Name           string                    `json:"name"`
	Bio            string                    `json:"bio"`
	ProfilePicture string                    `json:"profile_picture"`
	IsActive       bool                      `json:"is_active"`
	CreatedAt      *sdbmodels.CustomDateTime `json:"created_at,omitempty"`
	UpdatedAt      *sdbmodels.CustomDateTime `json:"updated_at,omitempty"`
}

func newParticipantRecord(p *models.Participant) *participantRecord {
	return &participantRecord{
		ID:             p.ID,
		Name:           p.Name,
		Bio:            p.Bio,
		ProfilePicture: p.ProfilePicture,
		IsActive:       p.IsActive,
		CreatedAt:      datetime(p.CreatedAt),
		UpdatedAt:      datetime(p.UpdatedAt),
	}
}

func (r participantRecord) model() (*models.Participant, error) {
	return &models.Participant{
		ID:             r.ID,
		Name:           r.Name,
		Bio:            r.Bio,
		ProfilePicture: r.ProfilePicture,
		IsActive:       r.IsActive,
		CreatedAt:      fromDatetime(r.CreatedAt),
		UpdatedAt:      fromDatetime(r.UpdatedAt),
	}, nil
}

type locationRecord struct {
	ID          models.LocationID         `json:"id"`
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Color       string                    `json:"color"`
	CreatedAt   *sdbmodels.CustomDateTime `json:"created_at,omitempty"`
	UpdatedAt   *sdbmodels.CustomDateTime `json:"updated_at,omitempty"`
}

func newLocationRecord(l *models.Location) *locationRecord {
	return &locationRecord{
		ID:          l.ID,
		Name:        l.Name,
		Description: l.Description,
		Color:       l.Color,
		CreatedAt:   datetime(l.CreatedAt),
		UpdatedAt:   datetime(l.UpdatedAt),
	}
}

func (r locationRecord) model() (*models.Location, error) {
	return &models.Location{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		CreatedAt:   fromDatetime(r.CreatedAt),
		UpdatedAt:   fromDatetime(r.UpdatedAt),
	}, nil
}

type actionCategoryRecord struct {
	ID          models.ActionCategoryID   `json:"id"`
	Name        string                    `json:"name"`
	Description string                    `json:"description"`
	Color       string                    `json:"color"`
	Icon        string                    `json:"icon"`
	CreatedAt   *sdbmodels.CustomDateTime `json:"created_at,omitempty"`
	UpdatedAt   *sdbmodels.CustomDateTime `json:"updated_at,omitempty"`
}

func newActionCategoryRecord(a *models.ActionCategory) *actionCategoryRecord {
	return &actionCategoryRecord{
		ID:          a.ID,
		Name:        a.Name,
		Description: a.Description,
		Color:       a.Color,
		Icon:        a.Icon,
		CreatedAt:   datetime(a.CreatedAt),
		UpdatedAt:   datetime(a.UpdatedAt),
	}
}

func (r actionCategoryRecord) model() (*models.ActionCategory, error) {
	return &models.ActionCategory{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		Icon:        r.Icon,
		CreatedAt:   fromDatetime(r.CreatedAt),
		UpdatedAt:   fromDatetime(r.UpdatedAt),
	}, nil
}

type tagRecord struct {
	ID        models.TagID              `json:"id"`
	Name      string                    `json:"name"`
	Color     string                    `json:"color"`
	Category  string                    `json:"category"`
	CreatedAt *sdbmodels.CustomDateTime `json:"created_at,omitempty"`
	UpdatedAt *sdbmodels.CustomDateTime `json:"updated_at,omitempty"`
}

func newTagRecord(t *models.Tag) *tagRecord {
	return &tagRecord{
		ID:        t.ID,
		Name:      t.Name,
		Color:     t.Color,
		Category:  t.Category,
		CreatedAt: datetime(t.CreatedAt),
		UpdatedAt: datetime(t.UpdatedAt),
	}
}

func (r tagRecord) model() (*models.Tag, error) {
	return &models.Tag{
		ID:        r.ID,
		Name:      r.Name,
		Color:     r.Color,
		Category:  r.Category,
		CreatedAt: fromDatetime(r.CreatedAt),
		UpdatedAt: fromDatetime(r.UpdatedAt),
	}, nil
}

type logEntryRecord struct {
	ID               models.LogEntryID         `json:"id"`
	Timestamp        *sdbmodels.CustomDateTime `json:"timestamp,omitempty"`
	Timecode         string                    `json:"timecode"`
	Participants     []models.ParticipantID    `json:"participants"`
	LocationID       models.LocationID         `json:"location"`
	ActionCategoryID models.ActionCategoryID   `json:"action_category"`
	Tags             []models.TagID            `json:"tags"`
	Notes            string                    `json:"notes"`
	CreatedBy        models.UserID             `json:"created_by"`
	UpdatedBy        *models.UserID            `json:"updated_by,omitempty"`
	CreatedAt        *sdbmodels.CustomDateTime `json:"created_at,omitempty"`
	UpdatedAt        *sdbmodels.CustomDateTime `json:"updated_at,omitempty"`
}

func newLogEntryRecord(e *models.LogEntry) *logEntryRecord {
	r := &logEntryRecord{
		ID:               e.ID,
		Timestamp:        datetime(e.Timestamp),
		Timecode:         e.Timecode.String(),
		Participants:     e.Participants,
		LocationID:       e.LocationID,
		ActionCategoryID: e.ActionCategoryID,
		Tags:             e.Tags,
		Notes:            e.Notes,
		CreatedBy:        e.CreatedBy,
		UpdatedBy:        e.UpdatedBy,
		CreatedAt:        datetime(e.CreatedAt),
		UpdatedAt:        datetime(e.UpdatedAt),
	}
	if r.Participants == nil {
		r.Participants = []models.ParticipantID{}
	}
	if r.Tags == nil {
		r.Tags = []models.TagID{}
	}
	return r
}

func (r logEntryRecord) model() (*models.LogEntry, error) {
	tc, err := timecode.Parse(r.Timecode, maxStoredFrameRate)
	if err != nil {
		return nil, err
	}
	e := &models.LogEntry{
		ID:               r.ID,
		Timestamp:        fromDatetime(r.Timestamp),
		Timecode:         tc,
		Participants:     r.Participants,
		LocationID:       r.LocationID,
		ActionCategoryID: r.ActionCategoryID,
		Tags:             r.Tags,
		Notes:            r.Notes,
		CreatedBy:        r.CreatedBy,
		UpdatedBy:        r.UpdatedBy,
		CreatedAt:        fromDatetime(r.CreatedAt),
		UpdatedAt:        fromDatetime(r.UpdatedAt),
	}
	if e.Participants == nil {
		e.Participants = []models.ParticipantID{}
	}
	if e.Tags == nil {
		e.Tags = []models.TagID{}
	}
	return e, nil
}
