package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"lexsign/custodian/pkg/records"
)

// Supported formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// Exporter writes audit events in one format.
type Exporter interface {
	// Export writes a complete slice of events.
	Export(ctx context.Context, events []*records.AuditEvent, w io.Writer) error

	// ExportStream writes events as they arrive until the channel closes.
	ExportStream(ctx context.Context, events <-chan *records.AuditEvent, w io.Writer) error
}

// New returns the exporter for format.
func New(format string) (Exporter, error) {
	switch format {
	case FormatJSON:
		return NewJSONExporter(false), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	case FormatXLSX:
		return NewXLSXExporter(), nil
	}
	return nil, fmt.Errorf("unsupported export format %q (use json, csv or xlsx)", format)
}

// ExportError represents an error during audit export.
type ExportError struct {
	Format     string // Export format ("json", "csv", "xlsx")
	EventCount int    // Events written before the failure
	Cause      error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, event_count=%d]: %v", e.Format, e.EventCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, eventCount int, cause error) *ExportError {
	return &ExportError{
		Format:     format,
		EventCount: eventCount,
		Cause:      cause,
	}
}

// feed returns a closed channel holding events.
func feed(events []*records.AuditEvent) <-chan *records.AuditEvent {
	ch := make(chan *records.AuditEvent, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

// header is the column order of the flat formats.
var header = []string{
	"event_id", "occurred_at_utc", "event_type", "signing_file_id",
	"actor_user_id", "actor_type", "ip", "user_agent", "success",
	"metadata", "prev_event_hash", "event_hash",
}

func row(e *records.AuditEvent) []string {
	metadata := ""
	if len(e.Metadata) > 0 {
		data, _ := json.Marshal(e.Metadata)
		metadata = string(data)
	}
	return []string{
		e.EventID,
		e.OccurredAtUTC.UTC().Format(time.RFC3339Nano),
		e.EventType,
		e.SigningFileID,
		e.ActorUserID,
		e.ActorType,
		e.IP,
		e.UserAgent,
		strconv.FormatBool(e.Success),
		metadata,
		e.PrevEventHash,
		e.EventHash,
	}
}
