package retention

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// DefaultSoftBufferDays protects recently signed documents from an
// aggressive or misconfigured cutoff.
const DefaultSoftBufferDays = 7

// ScanRequest selects the eligible documents of one scope.
type ScanRequest struct {
	Scope            records.Scope
	RetentionDaysPii int
	Now              time.Time
	SoftBufferDays   int
	Limit            int
	Capabilities     store.SchemaCapabilities
}

// Cutoffs returns the retention cutoff and the soft-buffer cutoff. A
// document is eligible only when its anchor is before both.
func (r ScanRequest) Cutoffs() (cutoff, softBuffer time.Time) {
	now := r.Now.UTC()
	soft := r.SoftBufferDays
	if soft < 0 {
		soft = 0
	}
	return now.AddDate(0, 0, -r.RetentionDaysPii), now.AddDate(0, 0, -soft)
}

// TenantOnly reports whether the plain tenant predicate is used because the
// firm tables are absent.
func (r ScanRequest) TenantOnly() bool {
	return r.Scope.Kind == records.ScopeTenant && !r.Capabilities.HasFirmTables()
}

// Scanner lists documents whose retention window has expired.
type Scanner struct {
	store  *store.Store
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(st *store.Store) *Scanner {
	return &Scanner{
		store:  st,
		logger: slog.Default().With("component", "retention.scanner"),
	}
}

// Scan returns up to req.Limit eligible documents, oldest anchor first and
// then by id. Scanning never writes.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) ([]*records.SigningFile, error) {
	where, args, err := eligibility(req)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + qualified("f", store.SigningFileColumns) + ` FROM signing_files f WHERE ` + where +
		` ORDER BY COALESCE(f.signed_at, f.created_at) ASC, f.id ASC`
	if req.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, req.Limit)
	}

	rows, err := s.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, records.NewStorageError(s.store.Driver(), "scan", err)
	}
	defer rows.Close()

	var files []*records.SigningFile
	for rows.Next() {
		f, err := store.ScanSigningFile(rows)
		if err != nil {
			return nil, records.NewStorageError(s.store.Driver(), "scan", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, records.NewStorageError(s.store.Driver(), "scan", err)
	}

	s.logger.Debug("scanned scope",
		"scope", req.Scope.String(),
		"candidates", len(files),
		"tenant_only", req.TenantOnly(),
	)
	return files, nil
}

// Count returns the number of eligible documents ignoring req.Limit.
func (s *Scanner) Count(ctx context.Context, req ScanRequest) (int, error) {
	where, args, err := eligibility(req)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.store.QueryRowContext(ctx, `SELECT COUNT(*) FROM signing_files f WHERE `+where, args...).Scan(&n); err != nil {
		return 0, records.NewStorageError(s.store.Driver(), "count", err)
	}
	return n, nil
}

// eligibility builds the WHERE clause for req.
func eligibility(req ScanRequest) (string, []any, error) {
	if req.Scope.ID == "" {
		return "", nil, fmt.Errorf("scan scope id is required")
	}
	if req.Now.IsZero() {
		return "", nil, fmt.Errorf("scan time is required")
	}

	cutoff, softBuffer := req.Cutoffs()
	conds := []string{
		`f.status = ?`,
		`f.legal_hold = ?`,
		`f.pending_delete_at_utc IS NULL`,
		`COALESCE(f.signed_at, f.created_at) < ?`,
		`COALESCE(f.signed_at, f.created_at) < ?`,
	}
	args := []any{string(records.StatusSigned), false, store.FormatTime(cutoff), store.FormatTime(softBuffer)}

	now := store.FormatTime(req.Now)
	switch req.Scope.Kind {
	case records.ScopeFirm:
		if !req.Capabilities.HasFirmTables() {
			return "", nil, &records.SchemaNotReady{Capability: store.CapabilityFirmTables}
		}
		conds = append(conds, `EXISTS (SELECT 1 FROM firm_memberships m
			WHERE m.firm_id = ? AND m.user_id = f.owner_user_id)`)
		args = append(args, req.Scope.ID)
	case records.ScopeTenant:
		conds = append(conds, `f.tenant_id = ?`)
		args = append(args, req.Scope.ID)
		if req.Capabilities.HasFirmTables() {
			// Documents of members of a firm with its own active
			// subscription belong to the firm scope.
			conds = append(conds, `NOT EXISTS (SELECT 1 FROM firm_memberships m
				JOIN firm_subscriptions fs ON fs.firm_id = m.firm_id
				WHERE m.user_id = f.owner_user_id
				  AND fs.status = ?
				  AND (fs.starts_at IS NULL OR fs.starts_at <= ?)
				  AND (fs.ends_at IS NULL OR fs.ends_at > ?))`)
			args = append(args, records.SubscriptionActive, now, now)
		}
	default:
		return "", nil, fmt.Errorf("unknown scope kind %q", req.Scope.Kind)
	}

	return strings.Join(conds, " AND "), args, nil
}

// qualified prefixes each column of a comma-separated list with alias.
func qualified(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
