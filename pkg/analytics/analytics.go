// Package analytics summarizes the log for the production dashboard.
package analytics

import (
	"cmp"
	"slices"
	"time"

	"github.com/realitylog/realitylog/pkg/export"
	"github.com/realitylog/realitylog/pkg/models"
)

// DefaultTop is how many locations and actions the dashboard ranks.
const DefaultTop = 5

// Count is a labelled tally.
type Count struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Dashboard is the summary served at /api/analytics/dashboard.
type Dashboard struct {
	TotalEntries        int     `json:"total_entries"`
	ActiveParticipants  int     `json:"active_participants"`
	TopLocations        []Count `json:"top_locations"`
	TopActions          []Count `json:"top_actions"`
	EntriesPerDay       []Count `json:"entries_per_day"`
	ParticipantActivity []Count `json:"participant_activity"`
}

type Options struct {
	// Top bounds TopLocations and TopActions. Zero means DefaultTop.
	Top int
	// Location is the zone days are counted in. Nil means UTC.
	Location *time.Location
}

type tally map[string]int

func (t tally) ranked(limit int) []Count {
	out := make([]Count, 0, len(t))
	for label, n := range t {
		out = append(out, Count{Label: label, Count: n})
	}
	slices.SortFunc(out, func(a, b Count) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (t tally) chronological() []Count {
	out := make([]Count, 0, len(t))
	for day, n := range t {
		out = append(out, Count{Label: day, Count: n})
	}
	slices.SortFunc(out, func(a, b Count) int { return cmp.Compare(a.Label, b.Label) })
	return out
}

// Summarize computes the dashboard over entries. Names are resolved through
// refs; unresolved IDs are counted under "Unknown".
func Summarize(entries []*models.LogEntry, participants []*models.Participant, refs *export.References, opts Options) Dashboard {
	if opts.Top <= 0 {
		opts.Top = DefaultTop
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	locations, actions, days, people := tally{}, tally{}, tally{}, tally{}
	for _, e := range entries {
		locations[nameOr(refs.LocationName(e.LocationID))]++
		actions[nameOr(refs.ActionCategoryName(e.ActionCategoryID))]++
		days[e.Timestamp.In(opts.Location).Format(time.DateOnly)]++
		for _, p := range e.Participants {
			if name, ok := refs.ParticipantName(p); ok {
				people[name]++
			}
		}
	}

	active := 0
	for _, p := range participants {
		if p.IsActive {
			active++
		}
	}

	return Dashboard{
		TotalEntries:        len(entries),
		ActiveParticipants:  active,
		TopLocations:        locations.ranked(opts.Top),
		TopActions:          actions.ranked(opts.Top),
		EntriesPerDay:       days.chronological(),
		ParticipantActivity: people.ranked(0),
	}
}

func nameOr(name string, ok bool) string {
	if !ok || name == "" {
		return "Unknown"
	}
	return name
}
