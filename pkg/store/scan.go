package store

import (
	"database/sql"
	"fmt"
	"time"

	"lexsign/custodian/pkg/records"
)

// TimeLayout is the fixed-width UTC layout used for every stored timestamp.
// Microsecond precision round-trips through all supported backends.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(TimeLayout)
}

// ParseTime parses a stored timestamp. RFC3339 values written by other
// tools are accepted too.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NullTime formats an optional time for binding.
func NullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// NullString binds an empty string as NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// NullInt64 binds a nil pointer as NULL.
func NullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// NullInt binds a nil pointer as NULL.
func NullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// ParseNullTime converts an optional stored timestamp.
func ParseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RowScanner is satisfied by *sql.Row and *sql.Rows.
type RowScanner interface {
	Scan(dest ...any) error
}

// SigningFileColumns lists the columns ScanSigningFile expects, in order.
const SigningFileColumns = `id, tenant_id, owner_user_id, case_id, status, created_at, signed_at,
	legal_hold, pending_delete_at_utc, pending_delete_reason,
	original_bucket, original_key, signed_bucket, signed_key, original_file_key, signed_file_key,
	presented_pdf_sha256, signed_pdf_sha256`

// ScanSigningFile reads one row selected with SigningFileColumns.
func ScanSigningFile(row RowScanner) (*records.SigningFile, error) {
	var (
		f                                                   records.SigningFile
		owner, caseID, signedAt, pendingAt, pendingReason   sql.NullString
		origBucket, origKey, signedBucket, signedKey        sql.NullString
		legacyOrig, legacySigned, presentedHash, signedHash sql.NullString
		status, createdAt                                   string
	)
	if err := row.Scan(&f.ID, &f.TenantID, &owner, &caseID, &status, &createdAt, &signedAt,
		&f.LegalHold, &pendingAt, &pendingReason,
		&origBucket, &origKey, &signedBucket, &signedKey, &legacyOrig, &legacySigned,
		&presentedHash, &signedHash); err != nil {
		return nil, err
	}

	var err error
	f.Status = records.FileStatus(status)
	if f.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, err
	}
	if f.SignedAt, err = ParseNullTime(signedAt); err != nil {
		return nil, err
	}
	if f.PendingDeleteAtUTC, err = ParseNullTime(pendingAt); err != nil {
		return nil, err
	}
	f.OwnerUserID = owner.String
	f.CaseID = caseID.String
	f.PendingDeleteReason = pendingReason.String
	f.OriginalBucket = origBucket.String
	f.OriginalKey = origKey.String
	f.SignedBucket = signedBucket.String
	f.SignedKey = signedKey.String
	f.LegacyOriginalKey = legacyOrig.String
	f.LegacySignedKey = legacySigned.String
	f.PresentedPDFSHA256 = presentedHash.String
	f.SignedPDFSHA256 = signedHash.String
	return &f, nil
}
