package compliance

import (
	"context"
	"fmt"

	"lexsign/custodian/pkg/audit"
	"lexsign/custodian/pkg/cursor"
	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// Reader runs compliance listings against the relational store.
type Reader struct {
	q             store.Querier
	defaultBucket string
}

// NewReader creates a Reader. defaultBucket resolves legacy storage keys in
// evidence listings.
func NewReader(q store.Querier, defaultBucket string) *Reader {
	return &Reader{q: q, defaultBucket: defaultBucket}
}

// ListAuditEvents returns one page of audit events matching f, newest
// first. token is the NextCursor of the previous page, or empty.
func (r *Reader) ListAuditEvents(ctx context.Context, f AuditFilter, token string, pageSize int) (cursor.Page[records.AuditEvent], error) {
	var page cursor.Page[records.AuditEvent]
	if err := f.Validate(); err != nil {
		return page, err
	}
	after, err := cursor.DecodeOptional(token)
	if err != nil {
		return page, &ParamError{Param: "cursor", Err: err}
	}
	limit := cursor.ClampPageSize(pageSize)

	var w where
	w.eq("signing_file_id", f.SigningFileID)
	w.eq("actor_type", f.ActorType)
	w.eq("event_type", f.EventType)
	if f.CaseID != "" {
		w.add("signing_file_id IN (SELECT id FROM signing_files WHERE case_id = ?)", f.CaseID)
	}
	if f.Success != nil {
		w.add("success = ?", *f.Success)
	}
	w.timeRange("occurred_at_utc", f.From, f.To)
	w.search(f.Search, "event_type", "actor_user_id", "signing_file_id", "metadata")
	if after != nil {
		w.add("(occurred_at_utc, event_id) < (?, ?)", store.FormatTime(after.Time), after.ID)
	}

	query := `SELECT ` + audit.EventColumns + ` FROM audit_events` + w.String() +
		` ORDER BY occurred_at_utc DESC, event_id DESC LIMIT ?`
	rows, err := r.q.QueryContext(ctx, query, append(w.args, limit+1)...)
	if err != nil {
		return page, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []records.AuditEvent
	for rows.Next() {
		e, err := audit.ScanEvent(rows)
		if err != nil {
			return page, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("failed to list audit events: %w", err)
	}

	return cursor.Trim(events, limit, func(e records.AuditEvent) cursor.Key {
		return cursor.Key{Time: e.OccurredAtUTC, ID: e.EventID}
	}), nil
}

// EachAuditEvent walks every page of the listing and calls fn for each
// event in listing order. It stops at the first error fn returns.
func (r *Reader) EachAuditEvent(ctx context.Context, f AuditFilter, fn func(*records.AuditEvent) error) error {
	token := ""
	for {
		page, err := r.ListAuditEvents(ctx, f, token, cursor.MaxPageSize)
		if err != nil {
			return err
		}
		for i := range page.Items {
			if err := fn(&page.Items[i]); err != nil {
				return err
			}
		}
		if page.NextCursor == "" {
			return nil
		}
		token = page.NextCursor
	}
}
