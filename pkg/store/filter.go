package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/realitylog/realitylog/pkg/models"
)

// LogEntryFilter narrows ListLogEntries and CountLogEntries. Zero fields do not filter.
type LogEntryFilter struct {
	ParticipantID    models.ParticipantID
	LocationID       models.LocationID
	ActionCategoryID models.ActionCategoryID
	TagID            models.TagID
	CreatedBy        models.UserID

	// Since is inclusive, Until is exclusive. Both apply to CreatedAt.
	Since time.Time
	Until time.Time

	// Search matches notes case-insensitively. An entry naming one of
	// SearchParticipants matches as well; ResolveSearch fills them in.
	Search             string
	SearchParticipants []models.ParticipantID

	Limit  int
	Offset int
}

// IsZero reports whether the filter matches everything without paging.
func (f LogEntryFilter) IsZero() bool {
	return f.ParticipantID.IsZero() && f.LocationID.IsZero() && f.ActionCategoryID.IsZero() &&
		f.TagID.IsZero() && f.CreatedBy.IsZero() && f.Since.IsZero() && f.Until.IsZero() &&
		f.Search == "" && len(f.SearchParticipants) == 0 && f.Limit == 0 && f.Offset == 0
}

// Matches applies every predicate of f to e. Limit and Offset are not considered.
func (f LogEntryFilter) Matches(e *models.LogEntry) bool {
	if !f.ParticipantID.IsZero() && !e.HasParticipant(f.ParticipantID) {
		return false
	}
	if !f.LocationID.IsZero() && e.LocationID != f.LocationID {
		return false
	}
	if !f.ActionCategoryID.IsZero() && e.ActionCategoryID != f.ActionCategoryID {
		return false
	}
	if !f.TagID.IsZero() && !e.HasTag(f.TagID) {
		return false
	}
	if !f.CreatedBy.IsZero() && e.CreatedBy != f.CreatedBy {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	if f.Search != "" {
		fold := cases.Fold()
		if !strings.Contains(fold.String(e.Notes), fold.String(f.Search)) &&
			!slices.ContainsFunc(f.SearchParticipants, e.HasParticipant) {
			return false
		}
	}
	return true
}

// ResolveSearch returns f with SearchParticipants set to every participant
// whose name contains f.Search, compared case-insensitively.
func ResolveSearch(ctx context.Context, s ReferenceStore, f LogEntryFilter) (LogEntryFilter, error) {
	f.SearchParticipants = nil
	if f.Search == "" {
		return f, nil
	}
	participants, err := s.ListParticipants(ctx)
	if err != nil {
		return f, err
	}
	fold := cases.Fold()
	needle := fold.String(f.Search)
	for _, p := range participants {
		if strings.Contains(fold.String(p.Name), needle) {
			f.SearchParticipants = append(f.SearchParticipants, p.ID)
		}
	}
	return f, nil
}

// Page applies Offset and Limit to an already filtered and sorted slice.
func Page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// SortNewestFirst orders records by CreatedAt descending, breaking ties by key.
func SortNewestFirst[T models.Record](items []T) {
	slices.SortStableFunc(items, func(a, b T) int {
		if c := b.Created().Compare(a.Created()); c != 0 {
			return c
		}
		return cmp.Compare(a.Key(), b.Key())
	})
}
