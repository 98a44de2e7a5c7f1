package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// EventColumns lists the columns ScanEvent expects, in order.
const EventColumns = `event_id, occurred_at_utc, event_type, signing_file_id, actor_user_id, actor_type,
	ip, user_agent, success, metadata, prev_event_hash, event_hash`

// Chain appends hash-linked audit events. There is one chain per signing
// file; events without a signing file form the system chain.
type Chain struct {
	store    *store.Store
	redactor *Redactor
	now      func() time.Time
	logger   *slog.Logger
}

// NewChain creates a Chain. A nil redactor uses NewRedactor().
func NewChain(st *store.Store, redactor *Redactor) *Chain {
	if redactor == nil {
		redactor = NewRedactor()
	}
	return &Chain{
		store:    st,
		redactor: redactor,
		now:      time.Now,
		logger:   slog.Default().With("component", "audit.chain"),
	}
}

// Append redacts, links and inserts one event in a single transaction and
// returns the stored event. Existing rows are never touched.
//
// An event whose timestamp is older than the head of its chain is moved up
// to the head's timestamp so that chain order and time order agree.
func (c *Chain) Append(ctx context.Context, event records.AuditEvent) (*records.AuditEvent, error) {
	if event.EventType == "" {
		return nil, fmt.Errorf("audit event type is required")
	}
	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAtUTC.IsZero() {
		event.OccurredAtUTC = c.now()
	}
	event.OccurredAtUTC = event.OccurredAtUTC.UTC().Truncate(time.Microsecond)

	metadata, metadataJSON, err := normalizeMetadata(c.redactor.RedactMetadata(event.Metadata))
	if err != nil {
		return nil, err
	}
	event.Metadata = metadata

	err = c.store.InTx(ctx, func(tx *store.Tx) error {
		if tx.Dialect() == store.DialectPostgres {
			// Serialize appends per chain; SQLite already takes the write lock at BEGIN.
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, "audit:"+event.SigningFileID); err != nil {
				return records.NewStorageError(c.store.Driver(), "lock_chain", err)
			}
		}
		headAt, headHash, err := chainHead(ctx, tx, event.SigningFileID)
		if err != nil {
			return records.NewStorageError(c.store.Driver(), "read_chain_head", err)
		}
		event.PrevEventHash = headHash
		if headAt != nil && event.OccurredAtUTC.Before(*headAt) {
			c.logger.Debug("event predates chain head, clamping timestamp",
				"event_id", event.EventID, "occurred_at", event.OccurredAtUTC, "head_at", *headAt)
			event.OccurredAtUTC = *headAt
		}

		hash, err := ComputeHash(&event)
		if err != nil {
			return err
		}
		event.EventHash = hash

		var metadataArg any
		if metadataJSON != nil {
			metadataArg = string(metadataJSON)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO audit_events (`+EventColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.EventID, store.FormatTime(event.OccurredAtUTC), event.EventType,
			store.NullString(event.SigningFileID), store.NullString(event.ActorUserID), store.NullString(event.ActorType),
			store.NullString(event.IP), store.NullString(event.UserAgent), event.Success,
			metadataArg, store.NullString(event.PrevEventHash), event.EventHash,
		); err != nil {
			return records.NewStorageError(c.store.Driver(), "append_audit", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("audit event appended",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"signing_file_id", event.SigningFileID,
	)
	return &event, nil
}

// chainHead returns the timestamp and hash of the newest hashed event of a
// chain, or nils for an empty chain.
func chainHead(ctx context.Context, q store.Querier, signingFileID string) (*time.Time, string, error) {
	var (
		row *sql.Row
		at  string
		h   string
	)
	const tail = ` AND event_hash IS NOT NULL ORDER BY occurred_at_utc DESC, seq DESC LIMIT 1`
	if signingFileID == "" {
		row = q.QueryRowContext(ctx, `SELECT occurred_at_utc, event_hash FROM audit_events
			WHERE signing_file_id IS NULL`+tail)
	} else {
		row = q.QueryRowContext(ctx, `SELECT occurred_at_utc, event_hash FROM audit_events
			WHERE signing_file_id = ?`+tail, signingFileID)
	}
	if err := row.Scan(&at, &h); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	t, err := store.ParseTime(at)
	if err != nil {
		return nil, "", err
	}
	return &t, h, nil
}

// ListChain returns a chain in chain order. An empty id selects the system
// chain.
func ListChain(ctx context.Context, q store.Querier, signingFileID string) ([]records.AuditEvent, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if signingFileID == "" {
		rows, err = q.QueryContext(ctx, `SELECT `+EventColumns+` FROM audit_events
			WHERE signing_file_id IS NULL ORDER BY occurred_at_utc, seq`)
	} else {
		rows, err = q.QueryContext(ctx, `SELECT `+EventColumns+` FROM audit_events
			WHERE signing_file_id = ? ORDER BY occurred_at_utc, seq`, signingFileID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list audit chain: %w", err)
	}
	defer rows.Close()

	var events []records.AuditEvent
	for rows.Next() {
		e, err := ScanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// ScanEvent reads one row selected with EventColumns.
func ScanEvent(row store.RowScanner) (*records.AuditEvent, error) {
	var (
		e                                  records.AuditEvent
		occurredAt                         string
		fileID, actorID, actorType, ip, ua sql.NullString
		metadata, prevHash                 sql.NullString
	)
	if err := row.Scan(&e.EventID, &occurredAt, &e.EventType, &fileID, &actorID, &actorType,
		&ip, &ua, &e.Success, &metadata, &prevHash, &e.EventHash); err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}

	t, err := store.ParseTime(occurredAt)
	if err != nil {
		return nil, err
	}
	e.OccurredAtUTC = t
	e.SigningFileID = fileID.String
	e.ActorUserID = actorID.String
	e.ActorType = actorType.String
	e.IP = ip.String
	e.UserAgent = ua.String
	e.PrevEventHash = prevHash.String
	if metadata.Valid {
		if e.Metadata, err = decodeMetadata([]byte(metadata.String)); err != nil {
			return nil, fmt.Errorf("audit event %s: %w", e.EventID, err)
		}
	}
	return &e, nil
}
