package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
	"github.com/realitylog/realitylog/pkg/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestTimestampsComeFromStoreClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	s := New(WithClock(func() time.Time { return at }))

	e := &models.LogEntry{Notes: "n", CreatedBy: models.NewUserID(), CreatedAt: time.Unix(0, 0)}
	require.NoError(t, s.CreateLogEntry(context.Background(), e))
	assert.Equal(t, at, e.CreatedAt)
	assert.Equal(t, at, e.UpdatedAt)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()

	p := models.NewParticipantID()
	e := &models.LogEntry{Notes: "original", Participants: []models.ParticipantID{p}, CreatedBy: models.NewUserID()}
	require.NoError(t, s.CreateLogEntry(ctx, e))

	// Mutating the caller's value after create must not leak in.
	e.Notes = "changed"
	e.Participants[0] = models.NewParticipantID()

	got, err := s.GetLogEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Notes)
	assert.Equal(t, []models.ParticipantID{p}, got.Participants)

	got.Participants[0] = models.NewParticipantID()
	again, err := s.GetLogEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, p, again.Participants[0])
}

func TestCreateLogEntryClearsUpdatedBy(t *testing.T) {
	s := New()
	someone := models.NewUserID()
	e := &models.LogEntry{Notes: "n", CreatedBy: models.NewUserID(), UpdatedBy: &someone}
	require.NoError(t, s.CreateLogEntry(context.Background(), e))
	assert.Nil(t, e.UpdatedBy)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New()

	_, err := s.ListLogEntries(ctx, store.LogEntryFilter{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.CreateTag(ctx, &models.Tag{Name: "x"}), context.Canceled)
}
