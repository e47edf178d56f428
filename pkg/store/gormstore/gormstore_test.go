package gormstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/store/storetest"
	"github.com/realitylog/realitylog/pkg/timecode"
)

func newSQLite(t *testing.T) store.Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:", Options{})
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSQLiteConformance(t *testing.T) {
	storetest.Run(t, newSQLite)
}

func TestPostgresConformance(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := NewPostgresStore(dsn, Options{})
		require.NoError(t, err)
		ctx := context.Background()
		require.NoError(t, s.Migrate(ctx))
		for _, c := range store.Collections {
			require.NoError(t, s.db.Exec("DELETE FROM "+string(c)).Error)
		}
		return s
	})
}

func TestSearchEscapesWildcards(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)
	defer s.Close()

	by := models.NewUserID()
	loc, act := models.NewLocationID(), models.NewActionCategoryID()
	p := models.NewParticipantID()
	entry := func(notes string) *models.LogEntry {
		return &models.LogEntry{
			Timestamp:        time.Now().UTC(),
			Timecode:         timecode.MustParse("10:00:00:00"),
			Participants:     []models.ParticipantID{p},
			LocationID:       loc,
			ActionCategoryID: act,
			Tags:             []models.TagID{},
			Notes:            notes,
			CreatedBy:        by,
		}
	}
	for _, notes := range []string{"100% drama", "100 percent calm", "snake_case", "snakeXcase"} {
		require.NoError(t, s.CreateLogEntry(ctx, entry(notes)))
	}

	for search, want := range map[string]string{"100%": "100% drama", "e_c": "snake_case"} {
		list, err := s.ListLogEntries(ctx, store.LogEntryFilter{Search: search})
		require.NoError(t, err)
		require.Len(t, list, 1, search)
		assert.Equal(t, want, list[0].Notes)
	}

	// A participant match widens the search without bypassing the escaping.
	list, err := s.ListLogEntries(ctx, store.LogEntryFilter{Search: "%", SearchParticipants: []models.ParticipantID{p}})
	require.NoError(t, err)
	assert.Len(t, list, 4)
	n, err := s.CountLogEntries(ctx, store.LogEntryFilter{Search: "%", SearchParticipants: []models.ParticipantID{models.NewParticipantID()}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", Options{})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Ping(ctx))
}
