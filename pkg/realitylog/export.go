package realitylog

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/realitylog/realitylog/pkg/export"
	"github.com/realitylog/realitylog/pkg/models"
	"github.com/realitylog/realitylog/pkg/store"
)

const defaultExportTitle = "Production Log"

// referenceData is every reference list, loaded together.
type referenceData struct {
	participants     []*models.Participant
	locations        []*models.Location
	actionCategories []*models.ActionCategory
	tags             []*models.Tag
}

func (d referenceData) resolver() *export.References {
	return export.NewReferences(d.participants, d.locations, d.actionCategories, d.tags)
}

func (a *App) loadReferences(ctx context.Context) (referenceData, error) {
	var d referenceData
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.participants, err = a.store.ListParticipants(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.locations, err = a.store.ListLocations(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.actionCategories, err = a.store.ListActionCategories(ctx)
		return err
	})
	g.Go(func() (err error) {
		d.tags, err = a.store.ListTags(ctx)
		return err
	})
	return d, g.Wait()
}

// buildDocument lists entries matching filter and resolves their names.
func (a *App) buildDocument(ctx context.Context, filter store.LogEntryFilter, title string) (export.Document, error) {
	refs, err := a.loadReferences(ctx)
	if err != nil {
		return export.Document{}, fmt.Errorf("load references: %w", err)
	}
	if filter, err = store.ResolveSearch(ctx, a.store, filter); err != nil {
		return export.Document{}, fmt.Errorf("resolve search: %w", err)
	}
	entries, err := a.store.ListLogEntries(ctx, filter)
	if err != nil {
		return export.Document{}, fmt.Errorf("list log entries: %w", err)
	}
	if title == "" {
		title = defaultExportTitle
	}
	now := a.clock.Now()
	return export.NewDocument(title, now, export.Rows(entries, refs.resolver(), time.Local)), nil
}

// Export renders the whole log. An Out of "" or "-" writes to stdout.
func (a *App) Export(ctx context.Context, cmd *ExportCommand, stdout io.Writer) (err error) {
	format, err := export.ParseFormat(cmd.Format)
	if err != nil {
		return err
	}
	doc, err := a.buildDocument(ctx, store.LogEntryFilter{}, cmd.Title)
	if err != nil {
		return err
	}

	w := stdout
	if cmd.Out != "" && cmd.Out != "-" {
		f, err := os.Create(cmd.Out)
		if err != nil {
			return fmt.Errorf("create %s: %w", cmd.Out, err)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	if err := export.Write(w, format, doc); err != nil {
		return err
	}
	a.logger.Info().Str("format", string(format)).Int("entries", doc.Total).Str("out", cmd.Out).Msg("log exported")
	return nil
}
