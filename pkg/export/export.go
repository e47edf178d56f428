// Package export renders log entries for people outside the logging room:
// editors, story producers and legal.
//
// Entries reference participants, locations, action categories and tags by ID.
// Rendering resolves those IDs through [References]; an ID that no longer
// resolves degrades to a fallback ("Unknown" for location and action, "None"
// for empty participant and tag lists) rather than failing the export.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/realitylog/realitylog/pkg/models"
)

// Format selects an output encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatPDF      Format = "pdf"
)

// Formats lists every supported format.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatText, FormatPDF}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "":
		return FormatJSON, nil
	case "md":
		return FormatMarkdown, nil
	case "txt":
		return FormatText, nil
	case FormatJSON, FormatCSV, FormatMarkdown, FormatText, FormatPDF:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// Extension returns the file extension of f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	default:
		return string(f)
	}
}

const (
	fallbackTimecode = "N/A"
	fallbackList     = "None"
	fallbackName     = "Unknown"

	timestampLayout = "2006-01-02 15:04:05"
)

// References resolves IDs to display names.
type References struct {
	participants     map[models.ParticipantID]string
	locations        map[models.LocationID]string
	actionCategories map[models.ActionCategoryID]string
	tags             map[models.TagID]string
}

func NewReferences(
	participants []*models.Participant,
	locations []*models.Location,
	actionCategories []*models.ActionCategory,
	tags []*models.Tag,
) *References {
	r := &References{
		participants:     make(map[models.ParticipantID]string, len(participants)),
		locations:        make(map[models.LocationID]string, len(locations)),
		actionCategories: make(map[models.ActionCategoryID]string, len(actionCategories)),
		tags:             make(map[models.TagID]string, len(tags)),
	}
	for _, p := range participants {
		r.participants[p.ID] = p.Name
	}
	for _, l := range locations {
		r.locations[l.ID] = l.Name
	}
	for _, a := range actionCategories {
		r.actionCategories[a.ID] = a.Name
	}
	for _, t := range tags {
		r.tags[t.ID] = t.Name
	}
	return r
}

func (r *References) ParticipantName(id models.ParticipantID) (string, bool) {
	n, ok := r.participants[id]
	return n, ok
}

func (r *References) LocationName(id models.LocationID) (string, bool) {
	n, ok := r.locations[id]
	return n, ok
}

func (r *References) ActionCategoryName(id models.ActionCategoryID) (string, bool) {
	n, ok := r.actionCategories[id]
	return n, ok
}

func (r *References) TagName(id models.TagID) (string, bool) {
	n, ok := r.tags[id]
	return n, ok
}

// Row is one resolved entry.
type Row struct {
	Timestamp    string `json:"timestamp"`
	Timecode     string `json:"timecode"`
	Participants string `json:"participants"`
	Location     string `json:"location"`
	Action       string `json:"action"`
	Tags         string `json:"tags"`
	Notes        string `json:"notes"`
}

// Header is the column order shared by every tabular format.
var Header = []string{"Timestamp", "Timecode", "Participants", "Location", "Action", "Tags", "Notes"}

func (r Row) cells() []string {
	return []string{r.Timestamp, r.Timecode, r.Participants, r.Location, r.Action, r.Tags, r.Notes}
}

func joinNames[ID comparable](ids []ID, lookup func(ID) (string, bool)) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := lookup(id); ok {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return fallbackList
	}
	return strings.Join(names, ", ")
}

func nameOr[ID any](id ID, lookup func(ID) (string, bool)) string {
	if n, ok := lookup(id); ok && n != "" {
		return n
	}
	return fallbackName
}

// Rows resolves entries in the given order. Timestamps are rendered in loc,
// UTC when loc is nil.
func Rows(entries []*models.LogEntry, refs *References, loc *time.Location) []Row {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		tc := fallbackTimecode
		if !e.Timecode.IsZero() {
			tc = e.Timecode.String()
		}
		rows = append(rows, Row{
			Timestamp:    e.Timestamp.In(loc).Format(timestampLayout),
			Timecode:     tc,
			Participants: joinNames(e.Participants, refs.ParticipantName),
			Location:     nameOr(e.LocationID, refs.LocationName),
			Action:       nameOr(e.ActionCategoryID, refs.ActionCategoryName),
			Tags:         joinNames(e.Tags, refs.TagName),
			Notes:        e.Notes,
		})
	}
	return rows
}

// Document is a complete export.
type Document struct {
	Title       string    `json:"title"`
	GeneratedAt time.Time `json:"generated_at"`
	Total       int       `json:"total"`
	Entries     []Row     `json:"entries"`
}

func NewDocument(title string, generatedAt time.Time, rows []Row) Document {
	if rows == nil {
		rows = []Row{}
	}
	return Document{Title: title, GeneratedAt: generatedAt, Total: len(rows), Entries: rows}
}

// Write renders doc to w in format f.
func Write(w io.Writer, f Format, doc Document) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, doc)
	case FormatCSV:
		return writeCSV(w, doc)
	case FormatMarkdown:
		return writeMarkdown(w, doc)
	case FormatText:
		return writeText(w, doc)
	case FormatPDF:
		return writePDF(w, doc)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

func writeJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func writeCSV(w io.Writer, doc Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range doc.Entries {
		if err := cw.Write(r.cells()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func newTable(doc Document) table.Writer {
	tw := table.NewWriter()
	header := make(table.Row, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, r := range doc.Entries {
		cells := r.cells()
		row := make(table.Row, len(cells))
		for i, c := range cells {
			row[i] = c
		}
		tw.AppendRow(row)
	}
	return tw
}

func writeMarkdown(w io.Writer, doc Document) error {
	tw := newTable(doc)
	_, err := fmt.Fprintf(w, "# %s\n\nGenerated: %s\n\nTotal entries: %d\n\n%s\n",
		doc.Title, doc.GeneratedAt.UTC().Format(timestampLayout), doc.Total, tw.RenderMarkdown())
	return err
}

func writeText(w io.Writer, doc Document) error {
	tw := newTable(doc)
	tw.SetStyle(table.StyleRounded)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, WidthMax: 60, AlignHeader: text.AlignLeft},
	})
	tw.SetTitle("%s (%d entries)", doc.Title, doc.Total)
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}
