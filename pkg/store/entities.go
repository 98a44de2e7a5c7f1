package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"lexsign/custodian/pkg/records"
)

// InsertSigningFile writes a signing file row. The signing workflow owns
// these rows in production; operators and tests use this for imports.
func (s *Store) InsertSigningFile(ctx context.Context, f *records.SigningFile) error {
	_, err := s.ExecContext(ctx, `INSERT INTO signing_files (`+SigningFileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.TenantID, NullString(f.OwnerUserID), NullString(f.CaseID), string(f.Status),
		FormatTime(f.CreatedAt), NullTime(f.SignedAt),
		f.LegalHold, NullTime(f.PendingDeleteAtUTC), NullString(f.PendingDeleteReason),
		NullString(f.OriginalBucket), NullString(f.OriginalKey),
		NullString(f.SignedBucket), NullString(f.SignedKey),
		NullString(f.LegacyOriginalKey), NullString(f.LegacySignedKey),
		NullString(f.PresentedPDFSHA256), NullString(f.SignedPDFSHA256),
	)
	if err != nil {
		return records.NewStorageError(s.driver, "insert_signing_file", err)
	}
	return nil
}

// GetSigningFile loads one signing file. It returns records.ErrNotFound
// when the row does not exist.
func (s *Store) GetSigningFile(ctx context.Context, id string) (*records.SigningFile, error) {
	row := s.QueryRowContext(ctx, `SELECT `+SigningFileColumns+` FROM signing_files WHERE id = ?`, id)
	f, err := ScanSigningFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, records.NewStorageError(s.driver, "get_signing_file", err)
	}
	return f, nil
}

// SetLegalHold toggles the legal hold flag on a document.
func (s *Store) SetLegalHold(ctx context.Context, id string, hold bool) error {
	res, err := s.ExecContext(ctx, `UPDATE signing_files SET legal_hold = ? WHERE id = ?`, hold, id)
	if err != nil {
		return records.NewStorageError(s.driver, "set_legal_hold", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return records.ErrNotFound
	}
	return nil
}

// InsertSignatureSpot writes a signature spot row.
func (s *Store) InsertSignatureSpot(ctx context.Context, spot *records.SignatureSpot) error {
	_, err := s.ExecContext(ctx, `INSERT INTO signature_spots (id, signing_file_id, signer_name, image_bucket, image_key)
		VALUES (?, ?, ?, ?, ?)`,
		spot.ID, spot.SigningFileID, NullString(spot.SignerName), NullString(spot.ImageBucket), NullString(spot.ImageKey))
	if err != nil {
		return records.NewStorageError(s.driver, "insert_signature_spot", err)
	}
	return nil
}

// ListSignatureSpots returns the spots of one signing file.
func ListSignatureSpots(ctx context.Context, q Querier, signingFileID string) ([]records.SignatureSpot, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, signing_file_id, signer_name, image_bucket, image_key
		FROM signature_spots WHERE signing_file_id = ? ORDER BY id`, signingFileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spots []records.SignatureSpot
	for rows.Next() {
		var (
			spot                   records.SignatureSpot
			signer, bucket, imgKey sql.NullString
		)
		if err := rows.Scan(&spot.ID, &spot.SigningFileID, &signer, &bucket, &imgKey); err != nil {
			return nil, err
		}
		spot.SignerName = signer.String
		spot.ImageBucket = bucket.String
		spot.ImageKey = imgKey.String
		spots = append(spots, spot)
	}
	return spots, rows.Err()
}

// InsertOTPChallenge records an OTP challenge for a document.
func (s *Store) InsertOTPChallenge(ctx context.Context, signingFileID string, at time.Time) (string, error) {
	id := uuid.New().String()
	if _, err := s.ExecContext(ctx, `INSERT INTO otp_challenges (id, signing_file_id, created_at) VALUES (?, ?, ?)`,
		id, signingFileID, FormatTime(at)); err != nil {
		return "", records.NewStorageError(s.driver, "insert_otp_challenge", err)
	}
	return id, nil
}

// InsertConsent records a consent for a document.
func (s *Store) InsertConsent(ctx context.Context, signingFileID string, at time.Time) (string, error) {
	id := uuid.New().String()
	if _, err := s.ExecContext(ctx, `INSERT INTO consents (id, signing_file_id, created_at) VALUES (?, ?, ?)`,
		id, signingFileID, FormatTime(at)); err != nil {
		return "", records.NewStorageError(s.driver, "insert_consent", err)
	}
	return id, nil
}

// PutSubscription replaces the active subscription of a tenant or firm.
// Any previous active row is cancelled in the same transaction.
func (s *Store) PutSubscription(ctx context.Context, sub *records.Subscription) error {
	table, owner := subscriptionTable(sub.Scope.Kind)
	status := sub.Status
	if status == "" {
		status = records.SubscriptionActive
	}
	return s.InTx(ctx, func(tx *Tx) error {
		if status == records.SubscriptionActive {
			if _, err := tx.ExecContext(ctx, `UPDATE `+table+` SET status = ? WHERE `+owner+` = ? AND status = ?`,
				records.SubscriptionCancelled, sub.Scope.ID, records.SubscriptionActive); err != nil {
				return records.NewStorageError(s.driver, "cancel_subscription", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+table+` (id, `+owner+`, plan_key, status, starts_at, ends_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), sub.Scope.ID, sub.PlanKey, status, NullTime(sub.StartsAt), NullTime(sub.EndsAt)); err != nil {
			return records.NewStorageError(s.driver, "insert_subscription", err)
		}
		return nil
	})
}

func subscriptionTable(kind records.ScopeKind) (table, ownerColumn string) {
	if kind == records.ScopeFirm {
		return "firm_subscriptions", "firm_id"
	}
	return "tenant_subscriptions", "tenant_id"
}

// InsertFirm writes a firm row. Requires the firm tables.
func (s *Store) InsertFirm(ctx context.Context, firm *records.Firm) error {
	if _, err := s.ExecContext(ctx, `INSERT INTO firms (id, firm_key, tenant_id, name) VALUES (?, ?, ?, ?)`,
		firm.ID, firm.FirmKey, firm.TenantID, firm.Name); err != nil {
		return records.NewStorageError(s.driver, "insert_firm", err)
	}
	return nil
}

// AddFirmMember adds a user to a firm.
func (s *Store) AddFirmMember(ctx context.Context, firmID, userID string) error {
	if _, err := s.ExecContext(ctx, `INSERT INTO firm_memberships (firm_id, user_id) VALUES (?, ?)
		ON CONFLICT (firm_id, user_id) DO NOTHING`, firmID, userID); err != nil {
		return records.NewStorageError(s.driver, "add_firm_member", err)
	}
	return nil
}

// SetFirmOverride sets or clears (until == nil) a firm's unlimited override.
func (s *Store) SetFirmOverride(ctx context.Context, firmID string, until *time.Time) error {
	if _, err := s.ExecContext(ctx, `INSERT INTO firm_plan_overrides (firm_id, unlimited_until) VALUES (?, ?)
		ON CONFLICT (firm_id) DO UPDATE SET unlimited_until = excluded.unlimited_until`,
		firmID, NullTime(until)); err != nil {
		return records.NewStorageError(s.driver, "set_firm_override", err)
	}
	return nil
}

// CountRows counts the rows of table referencing signingFileID. Used by
// operators to inspect what a deletion would remove.
func (s *Store) CountRows(ctx context.Context, table, signingFileID string) (int64, error) {
	column := "signing_file_id"
	switch table {
	case "signing_files":
		column = "id"
	case "signature_spots", "audit_events", "consents", "otp_challenges":
	default:
		return 0, records.NewStorageError(s.driver, "count_rows", errors.New("unknown table "+table))
	}
	var n int64
	if err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE `+column+` = ?`, signingFileID).Scan(&n); err != nil {
		return 0, records.NewStorageError(s.driver, "count_rows", err)
	}
	return n, nil
}
