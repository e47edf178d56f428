package logbook

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/selection"
	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/timecode"
)

// Field names reported by ValidationError.
const (
	FieldLocation       = "location"
	FieldActionCategory = "actionCategory"
	FieldNotes          = "notes"
	FieldTimecode       = "timecode"
)

// Candidate is an entry ready to be handed to the store. It owns its slices.
type Candidate struct {
	Participants   []models.ParticipantID
	Location       models.LocationID
	ActionCategory models.ActionCategoryID
	Tags           []models.TagID
	Notes          string
	Timecode       timecode.Timecode
	Timestamp      time.Time
}

// BuildCandidate checks the submission preconditions and assembles a candidate
// from a selection snapshot, the notes draft, one timecode reading and the time
// of submission. Every missing field is reported at once.
func BuildCandidate(snap selection.Snapshot, notes string, reading timecode.Reading, now time.Time) (Candidate, error) {
	c := Candidate{
		Participants:   slices.Clone(snap.Participants),
		Location:       snap.Location,
		ActionCategory: snap.ActionCategory,
		Tags:           slices.Clone(snap.Tags),
		Notes:          strings.TrimSpace(notes),
		Timecode:       reading.Timecode,
		Timestamp:      now,
	}
	if err := c.Validate(); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// Validate returns a ValidationError naming every missing required field.
func (c Candidate) Validate() error {
	var missing []string
	if c.Location.IsZero() {
		missing = append(missing, FieldLocation)
	}
	if c.ActionCategory.IsZero() {
		missing = append(missing, FieldActionCategory)
	}
	if strings.TrimSpace(c.Notes) == "" {
		missing = append(missing, FieldNotes)
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// entry converts c into a record for the store. ID and server timestamps are
// left for the store to assign.
func (c Candidate) entry(by models.UserID) *models.LogEntry {
	participants := slices.Clone(c.Participants)
	if participants == nil {
		participants = []models.ParticipantID{}
	}
	tags := slices.Clone(c.Tags)
	if tags == nil {
		tags = []models.TagID{}
	}
	return &models.LogEntry{
		Timestamp:        c.Timestamp,
		Timecode:         c.Timecode,
		Participants:     participants,
		LocationID:       c.Location,
		ActionCategoryID: c.ActionCategory,
		Tags:             tags,
		Notes:            strings.TrimSpace(c.Notes),
		CreatedBy:        by,
	}
}

// Submitter hands validated candidates to the store on behalf of an identity.
type Submitter struct {
	store  store.LogEntryStore
	logger zerolog.Logger
}

func NewSubmitter(s store.LogEntryStore, logger zerolog.Logger) *Submitter {
	return &Submitter{
		store:  s,
		logger: logger.With().Str("component", "submitter").Logger(),
	}
}

// Submit validates c, checks that identity may submit, and creates the entry.
// Validation runs first so an invalid candidate never costs a permission lookup
// or a store call. Store failures are classified; the caller keeps its input.
func (s *Submitter) Submit(ctx context.Context, identity *models.User, c Candidate) (*models.LogEntry, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := requireIdentity("submit", identity); err != nil {
		return nil, err
	}
	if !identity.Role.OrDefault().CanSubmit() {
		return nil, &PermissionError{Op: "submit", Reason: "viewers cannot create entries"}
	}

	entry := c.entry(identity.ID)
	if err := s.store.CreateLogEntry(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("user", identity.ID.String()).Msg("submit failed")
		return nil, Classify(err)
	}
	s.logger.Debug().
		Str("entry", entry.ID.String()).
		Str("user", identity.ID.String()).
		Str("timecode", entry.Timecode.String()).
		Msg("entry created")
	return entry, nil
}
