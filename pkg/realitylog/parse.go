package realitylog

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// ParseTime accepts RFC 3339 or a bare YYYY-MM-DD date in loc. An empty string
// yields the zero time. dateOnly reports whether s was a bare date.
func ParseTime(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err = time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, true, nil
}

// parseFilter reads the log-entry query parameters. endDate given as a bare
// date includes that whole day. Page numbers start at 1.
func parseFilter(q url.Values, loc *time.Location) (f store.LogEntryFilter, page, limit int, err error) {
	if f.ParticipantID, err = optionalID(q, "participantId", models.ParseParticipantID); err != nil {
		return
	}
	if f.LocationID, err = optionalID(q, "locationId", models.ParseLocationID); err != nil {
		return
	}
	if f.ActionCategoryID, err = optionalID(q, "actionCategoryId", models.ParseActionCategoryID); err != nil {
		return
	}
	if f.TagID, err = optionalID(q, "tagId", models.ParseTagID); err != nil {
		return
	}
	if f.CreatedBy, err = optionalID(q, "createdBy", models.ParseUserID); err != nil {
		return
	}

	var dateOnly bool
	if f.Since, _, err = ParseTime(q.Get("startDate"), loc); err != nil {
		return f, 0, 0, invalidParam("startDate", err)
	}
	if f.Until, dateOnly, err = ParseTime(q.Get("endDate"), loc); err != nil {
		return f, 0, 0, invalidParam("endDate", err)
	}
	if dateOnly {
		f.Until = f.Until.AddDate(0, 0, 1)
	}
	f.Search = strings.TrimSpace(q.Get("search"))

	if page, err = positiveInt(q, "page", 1); err != nil {
		return
	}
	if limit, err = positiveInt(q, "limit", defaultPageSize); err != nil {
		return
	}
	limit = min(limit, maxPageSize)
	if page-1 > math.MaxInt32/limit {
		return f, 0, 0, invalidParam("page", fmt.Errorf("page %d is out of range", page))
	}
	f.Limit = limit
	f.Offset = (page - 1) * limit
	return f, page, limit, nil
}

func optionalID[K any](q url.Values, name string, parse func(string) (K, error)) (K, error) {
	var zero K
	s := strings.TrimSpace(q.Get(name))
	if s == "" {
		return zero, nil
	}
	id, err := parse(s)
	if err != nil {
		return zero, invalidParam(name, err)
	}
	return id, nil
}

func positiveInt(q url.Values, name string, def int) (int, error) {
	s := q.Get(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, invalidParam(name, fmt.Errorf("%q is not a positive integer", s))
	}
	return n, nil
}
