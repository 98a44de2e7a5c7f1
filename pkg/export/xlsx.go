package export

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"lexsign/custodian/pkg/records"
)

// SheetName is the worksheet audit events are written to.
const SheetName = "Audit Events"

var columnWidths = []float64{38, 28, 28, 38, 24, 12, 16, 30, 9, 60, 66, 66}

// XLSXExporter writes a single-sheet workbook with a styled header row.
type XLSXExporter struct{}

// NewXLSXExporter creates a new XLSX exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Export writes events as an XLSX workbook.
func (e *XLSXExporter) Export(ctx context.Context, events []*records.AuditEvent, w io.Writer) error {
	return e.ExportStream(ctx, feed(events), w)
}

// ExportStream writes events from a channel through a row stream. The
// workbook is written to w once the channel closes.
func (e *XLSXExporter) ExportStream(ctx context.Context, events <-chan *records.AuditEvent, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return NewExportError(FormatXLSX, 0, fmt.Errorf("failed to name sheet: %w", err))
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		return NewExportError(FormatXLSX, 0, fmt.Errorf("failed to create header style: %w", err))
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return NewExportError(FormatXLSX, 0, err)
	}
	for i, width := range columnWidths {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			return NewExportError(FormatXLSX, 0, fmt.Errorf("failed to set column width: %w", err))
		}
	}

	cells := make([]any, len(header))
	for i, h := range header {
		cells[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return NewExportError(FormatXLSX, 0, err)
	}

	count := 0
	for done := false; !done; {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				done = true
				break
			}
			cell, err := excelize.CoordinatesToCellName(1, count+2)
			if err != nil {
				return NewExportError(FormatXLSX, count, err)
			}
			values := row(event)
			line := make([]any, len(values))
			for i, v := range values {
				line[i] = v
			}
			if err := sw.SetRow(cell, line); err != nil {
				return NewExportError(FormatXLSX, count, err)
			}
			count++
		}
	}

	if err := sw.Flush(); err != nil {
		return NewExportError(FormatXLSX, count, err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return NewExportError(FormatXLSX, count, err)
	}
	return nil
}
