// Package export writes audit event listings as JSON, CSV or XLSX.
//
// Every exporter consumes events from a channel so an export of any size
// can be streamed page by page from the compliance listing:
//
//	exporter, err := export.New("csv")
//	if err != nil {
//	    return err
//	}
//	events := make(chan *records.AuditEvent, 100)
//	go func() {
//	    defer close(events)
//	    _ = reader.EachAuditEvent(ctx, filter, func(e *records.AuditEvent) error {
//	        events <- e
//	        return nil
//	    })
//	}()
//	err = exporter.ExportStream(ctx, events, os.Stdout)
//
// CSV and XLSX flatten metadata to its JSON text. Timestamps are RFC 3339
// with fractional seconds in UTC.
package export
