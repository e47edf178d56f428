package export

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/johnfercher/maroto/pkg/color"
	"github.com/johnfercher/maroto/pkg/consts"
	"github.com/johnfercher/maroto/pkg/pdf"
	"github.com/johnfercher/maroto/pkg/props"
)

// pdfNotesLimit is the number of characters of notes shown per PDF row.
const pdfNotesLimit = 50

// truncate shortens s to limit runes, appending "..." when anything was cut.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit]) + "..."
}

var pdfGrid = []uint{2, 1, 2, 1, 1, 2, 3}

func writePDF(w io.Writer, doc Document) error {
	m := pdf.NewMaroto(consts.Landscape, consts.A4)
	m.SetPageMargins(10, 10, 10)

	m.Row(12, func() {
		m.Col(12, func() {
			m.Text(doc.Title, props.Text{
				Top:   3,
				Style: consts.Bold,
				Size:  16,
			})
		})
	})
	m.Row(8, func() {
		m.Col(6, func() {
			m.Text(fmt.Sprintf("Generated: %s", doc.GeneratedAt.UTC().Format(timestampLayout)), props.Text{Size: 10})
		})
		m.Col(6, func() {
			m.Text(fmt.Sprintf("Total Entries: %d", doc.Total), props.Text{Size: 10, Align: consts.Right})
		})
	})

	rows := make([][]string, 0, len(doc.Entries))
	for _, r := range doc.Entries {
		cells := r.cells()
		cells[len(cells)-1] = truncate(r.Notes, pdfNotesLimit)
		rows = append(rows, cells)
	}
	m.TableList(Header, rows, props.TableList{
		HeaderProp: props.TableListContent{
			Size:      8,
			GridSizes: pdfGrid,
		},
		ContentProp: props.TableListContent{
			Size:      8,
			GridSizes: pdfGrid,
		},
		Align:                consts.Left,
		AlternatedBackground: &color.Color{Red: 240, Green: 240, Blue: 240},
		HeaderContentSpace:   1,
	})

	buf, err := m.Output()
	if err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}
