package export

import (
	"context"
	"encoding/csv"
	"io"

	"lexsign/custodian/pkg/records"
)

// CSVExporter writes one row per event.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Export writes events in CSV format.
func (e *CSVExporter) Export(ctx context.Context, events []*records.AuditEvent, w io.Writer) error {
	return e.ExportStream(ctx, feed(events), w)
}

// ExportStream writes events from a channel, flushing every 100 rows.
func (e *CSVExporter) ExportStream(ctx context.Context, events <-chan *records.AuditEvent, w io.Writer) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if e.IncludeHeader {
		if err := writer.Write(header); err != nil {
			return NewExportError(FormatCSV, 0, err)
		}
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return NewExportError(FormatCSV, count, err)
				}
				return nil
			}

			if err := writer.Write(row(event)); err != nil {
				return NewExportError(FormatCSV, count, err)
			}
			count++

			if count%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return NewExportError(FormatCSV, count, err)
				}
			}
		}
	}
}
