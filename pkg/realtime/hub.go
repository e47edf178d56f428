package realtime

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

// Hub bundles the projections a logging client needs.
type Hub struct {
	Participants     *Projection[*models.Participant]
	Locations        *Projection[*models.Location]
	ActionCategories *Projection[*models.ActionCategory]
	Tags             *Projection[*models.Tag]
	LogEntries       *Projection[*models.LogEntry]
}

// NewHub creates projections over s, driven by change signals from w.
func NewHub(s store.Store, w store.Watcher, logger zerolog.Logger, opts ...Option) *Hub {
	opts = append([]Option{WithLogger(logger)}, opts...)
	return &Hub{
		Participants:     NewProjection(store.CollectionParticipants, s.ListParticipants, w, opts...),
		Locations:        NewProjection(store.CollectionLocations, s.ListLocations, w, opts...),
		ActionCategories: NewProjection(store.CollectionActionCategories, s.ListActionCategories, w, opts...),
		Tags:             NewProjection(store.CollectionTags, s.ListTags, w, opts...),
		LogEntries: NewProjection(store.CollectionLogEntries, func(ctx context.Context) ([]*models.LogEntry, error) {
			return s.ListLogEntries(ctx, store.LogEntryFilter{})
		}, w, opts...),
	}
}

// Refresh reloads every projection once.
func (h *Hub) Refresh(ctx context.Context) error {
	return errors.Join(
		h.Participants.Refresh(ctx),
		h.Locations.Refresh(ctx),
		h.ActionCategories.Refresh(ctx),
		h.Tags.Refresh(ctx),
		h.LogEntries.Refresh(ctx),
	)
}

// Run runs every projection until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Participants.Run(ctx) })
	g.Go(func() error { return h.Locations.Run(ctx) })
	g.Go(func() error { return h.ActionCategories.Run(ctx) })
	g.Go(func() error { return h.Tags.Run(ctx) })
	g.Go(func() error { return h.LogEntries.Run(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
