package export

import (
	"context"
	"encoding/json"
	"io"

	"lexsign/custodian/pkg/records"
)

// JSONExporter writes a JSON array of events.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes events as a JSON array. No events yield "[]".
func (e *JSONExporter) Export(ctx context.Context, events []*records.AuditEvent, w io.Writer) error {
	return e.ExportStream(ctx, feed(events), w)
}

// ExportStream writes events from a channel as one JSON array, one element
// at a time.
func (e *JSONExporter) ExportStream(ctx context.Context, events <-chan *records.AuditEvent, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return NewExportError(FormatJSON, 0, err)
	}

	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				closing := "]"
				if e.Pretty && count > 0 {
					closing = "\n]"
				}
				if _, err := io.WriteString(w, closing); err != nil {
					return NewExportError(FormatJSON, count, err)
				}
				return nil
			}

			sep := ""
			if count > 0 {
				sep = ","
			}
			if e.Pretty {
				sep += "\n  "
			}
			if _, err := io.WriteString(w, sep); err != nil {
				return NewExportError(FormatJSON, count, err)
			}

			data, err := e.serialize(event)
			if err != nil {
				return NewExportError(FormatJSON, count, err)
			}
			if _, err := w.Write(data); err != nil {
				return NewExportError(FormatJSON, count, err)
			}
			count++
		}
	}
}

func (e *JSONExporter) serialize(event *records.AuditEvent) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(event, "  ", "  ")
	}
	return json.Marshal(event)
}
