// Package selection holds an operator's current picks while logging.
//
// A Selection is a set of participants, at most one location, at most one action
// category and a set of tags. It is never validated or persisted here; a submit
// takes a [Snapshot] and the selection itself carries on unchanged so consecutive
// entries can share the same context.
package selection

import (
	"slices"

	"github.com/realitylog/realitylog/pkg/models"
)

// Selection is not safe for concurrent use; its owner serializes access.
type Selection struct {
	participants   map[models.ParticipantID]struct{}
	location       models.LocationID
	actionCategory models.ActionCategoryID
	tags           map[models.TagID]struct{}
}

// New returns an empty selection.
func New() *Selection {
	return &Selection{
		participants: make(map[models.ParticipantID]struct{}),
		tags:         make(map[models.TagID]struct{}),
	}
}

// ToggleParticipant adds id if absent and removes it if present.
// It reports whether id is selected afterwards.
func (s *Selection) ToggleParticipant(id models.ParticipantID) bool {
	return toggle(s.participants, id)
}

// ToggleTag adds id if absent and removes it if present.
// It reports whether id is selected afterwards.
func (s *Selection) ToggleTag(id models.TagID) bool {
	return toggle(s.tags, id)
}

// SetLocation replaces the location. The zero ID clears it.
func (s *Selection) SetLocation(id models.LocationID) {
	s.location = id
}

// SetActionCategory replaces the action category. The zero ID clears it.
func (s *Selection) SetActionCategory(id models.ActionCategoryID) {
	s.actionCategory = id
}

func (s *Selection) ClearLocation()       { s.location = models.LocationID{} }
func (s *Selection) ClearActionCategory() { s.actionCategory = models.ActionCategoryID{} }

// Reset empties the selection.
func (s *Selection) Reset() {
	clear(s.participants)
	clear(s.tags)
	s.location = models.LocationID{}
	s.actionCategory = models.ActionCategoryID{}
}

// Snapshot returns a copy of the current picks. Later changes to s do not affect it.
func (s *Selection) Snapshot() Snapshot {
	return Snapshot{
		Participants:   sortedKeys(s.participants),
		Location:       s.location,
		ActionCategory: s.actionCategory,
		Tags:           sortedKeys(s.tags),
	}
}

// Snapshot is a value copy of a Selection.
type Snapshot struct {
	Participants   []models.ParticipantID  `json:"participants"`
	Location       models.LocationID       `json:"location_id"`
	ActionCategory models.ActionCategoryID `json:"action_category_id"`
	Tags           []models.TagID          `json:"tags"`
}

// HasLocation reports whether a location is selected.
func (s Snapshot) HasLocation() bool { return !s.Location.IsZero() }

// HasActionCategory reports whether an action category is selected.
func (s Snapshot) HasActionCategory() bool { return !s.ActionCategory.IsZero() }

func (s Snapshot) HasParticipant(id models.ParticipantID) bool {
	return slices.Contains(s.Participants, id)
}

func (s Snapshot) HasTag(id models.TagID) bool {
	return slices.Contains(s.Tags, id)
}

// Equal reports whether two snapshots hold the same picks.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Location == o.Location &&
		s.ActionCategory == o.ActionCategory &&
		slices.Equal(s.Participants, o.Participants) &&
		slices.Equal(s.Tags, o.Tags)
}

type comparableID[T any] interface {
	comparable
	Compare(T) int
}

func toggle[K comparable](set map[K]struct{}, id K) bool {
	if _, ok := set[id]; ok {
		delete(set, id)
		return false
	}
	set[id] = struct{}{}
	return true
}

func sortedKeys[K comparableID[K]](set map[K]struct{}) []K {
	out := make([]K, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.SortFunc(out, func(a, b K) int { return a.Compare(b) })
	return out
}
