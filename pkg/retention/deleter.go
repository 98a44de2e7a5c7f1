package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lexsign/custodian/pkg/audit"
	"lexsign/custodian/pkg/blobstore"
	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
	"lexsign/custodian/pkg/telemetry/tracing"
)

// ReasonRetentionPolicy tags documents claimed by a retention run.
const ReasonRetentionPolicy = "retention_policy"

// Outcome is the result of one deletion attempt.
type Outcome struct {
	DocumentID string
	Claimed    bool
	Deleted    bool
	Counts     records.DeletedCounts

	// Stage and Err are set when the attempt stopped early.
	Stage records.Stage
	Err   error
}

// Deleter removes one document and all of its evidence. Every attempt ends
// with the document fully present, claimed and intact, or fully gone.
type Deleter struct {
	store   *store.Store
	objects blobstore.ObjectStore
	chain   *audit.Chain
	logger  *slog.Logger
}

// NewDeleter creates a Deleter. A nil chain disables audit appends.
func NewDeleter(st *store.Store, objects blobstore.ObjectStore, chain *audit.Chain) *Deleter {
	return &Deleter{
		store:   st,
		objects: objects,
		chain:   chain,
		logger:  slog.Default().With("component", "retention.deleter"),
	}
}

// CheckGuardrail returns a GuardrailViolation unless file has a signed
// artifact locator and both content hashes.
func CheckGuardrail(file *records.SigningFile) error {
	var missing []string
	if !file.HasSignedKey() {
		missing = append(missing, "signed storage key")
	}
	if file.SignedPDFSHA256 == "" {
		missing = append(missing, "signedPdfSha256")
	}
	if file.PresentedPDFSHA256 == "" {
		missing = append(missing, "presentedPdfSha256")
	}
	if len(missing) > 0 {
		return &records.GuardrailViolation{DocumentID: file.ID, Missing: missing}
	}
	return nil
}

// Delete runs the guardrail, claims the document at claimAt, deletes its
// objects and then its rows. Cancelling ctx does not stop an attempt that
// has started; callers check for cancellation between documents.
func (d *Deleter) Delete(ctx context.Context, file *records.SigningFile, claimAt time.Time) (out Outcome) {
	ctx, span := tracing.Start(context.WithoutCancel(ctx), "retention.delete", tracing.SigningFileID(file.ID))
	defer func() { tracing.EndStage(span, out.Stage, out.Err) }()

	out = Outcome{DocumentID: file.ID}

	if err := CheckGuardrail(file); err != nil {
		out.Stage, out.Err = records.StageGuardrail, err
		d.appendDocumentEvent(ctx, records.EventRetentionDeleteBlocked, file.ID, out)
		return out
	}

	if err := d.Claim(ctx, file.ID, claimAt); err != nil {
		// No audit event: the document may already be gone.
		out.Stage, out.Err = records.StageClaim, err
		return out
	}
	out.Claimed = true

	return d.purge(ctx, file, out)
}

// purge runs the storage and database phases for a claimed document.
func (d *Deleter) purge(ctx context.Context, file *records.SigningFile, out Outcome) Outcome {
	objects, spotIDs, err := d.DeleteObjects(ctx, file)
	out.Counts.StorageObjects = objects
	if err != nil {
		out.Stage, out.Err = records.StageStorage, err
		d.logger.Error("storage deletion failed, document left claimed",
			"document_id", file.ID, "objects_deleted", objects, "error", err)
		d.appendDocumentEvent(ctx, records.EventRetentionDeleteFailed, file.ID, out)
		return out
	}

	counts, err := DeleteRows(ctx, d.store, file.ID, true, spotIDs)
	if err != nil {
		out.Stage, out.Err = records.StageDatabase, err
		d.logger.Error("row deletion rolled back, document left claimed",
			"document_id", file.ID, "error", err)
		d.appendDocumentEvent(ctx, records.EventRetentionDeleteFailed, file.ID, out)
		return out
	}
	counts.StorageObjects = objects
	out.Counts = counts
	out.Deleted = true

	d.logger.Info("document deleted",
		"document_id", file.ID,
		"tenant_id", file.TenantID,
		"storage_objects", objects,
		"audit_events", counts.AuditEvents,
	)

	if d.chain != nil {
		if _, err := d.chain.Append(ctx, records.AuditEvent{
			EventType: records.EventRetentionDocumentDeleted,
			ActorType: records.ActorSystem,
			Success:   true,
			Metadata: map[string]any{
				"signingFileId":  file.ID,
				"tenantId":       file.TenantID,
				"reason":         ReasonRetentionPolicy,
				"storageObjects": objects,
				"auditEvents":    counts.AuditEvents,
			},
		}); err != nil {
			out.Stage, out.Err = records.StageAudit, err
			d.logger.Warn("failed to record deletion on system chain", "document_id", file.ID, "error", err)
		}
	}
	return out
}

// Claim marks a document pending deletion with one conditional update. It
// returns a ClaimConflict when another process claimed it first or it no
// longer qualifies.
func (d *Deleter) Claim(ctx context.Context, id string, at time.Time) error {
	res, err := d.store.ExecContext(ctx, `UPDATE signing_files
		SET pending_delete_at_utc = ?, pending_delete_reason = ?
		WHERE id = ? AND status = ? AND legal_hold = ? AND pending_delete_at_utc IS NULL`,
		store.FormatTime(at), ReasonRetentionPolicy, id, string(records.StatusSigned), false)
	if err != nil {
		return records.NewStorageError(d.store.Driver(), "claim", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return records.NewStorageError(d.store.Driver(), "claim", err)
	}
	if n == 0 {
		return &records.ClaimConflict{DocumentID: id}
	}
	return nil
}

// DeleteObjects deletes the signed artifact, the original artifact and every
// signature image of file. It stops at the first failure and returns how
// many objects were deleted before it, along with the ids of the signature
// spots whose images it covered.
func (d *Deleter) DeleteObjects(ctx context.Context, file *records.SigningFile) (int64, []string, error) {
	spots, err := store.ListSignatureSpots(ctx, d.store, file.ID)
	if err != nil {
		return 0, nil, records.NewStorageError(d.store.Driver(), "list_signature_spots", err)
	}
	spotIDs := make([]string, 0, len(spots))
	for i := range spots {
		spotIDs = append(spotIDs, spots[i].ID)
	}

	bucket := d.objects.DefaultBucket()
	var refs []records.ObjectRef
	if ref, ok := file.SignedObject(bucket); ok {
		refs = append(refs, ref)
	}
	if ref, ok := file.OriginalObject(bucket); ok {
		refs = append(refs, ref)
	}
	for i := range spots {
		if ref, ok := spots[i].ImageObject(bucket); ok {
			refs = append(refs, ref)
		}
	}

	var deleted int64
	for _, ref := range refs {
		if err := d.objects.Delete(ctx, ref); err != nil {
			return deleted, spotIDs, &records.StorageDeleteFailure{DocumentID: file.ID, Object: ref, Cause: err}
		}
		deleted++
	}
	return deleted, spotIDs, nil
}

// DeleteRows deletes a claimed document's rows in dependency order inside
// one transaction. allowAuditDeletion grants the transaction permission to
// delete the document's audit events; without it the store rejects the
// delete whenever the document has any. spotIDs are the signature spots
// whose images are already gone: the transaction fails if the document has
// any other spot. Nothing is deleted on failure.
func DeleteRows(ctx context.Context, st *store.Store, id string, allowAuditDeletion bool, spotIDs []string) (records.DeletedCounts, error) {
	var counts records.DeletedCounts

	err := st.InTx(ctx, func(tx *store.Tx) error {
		if allowAuditDeletion {
			if err := tx.GrantAuditDeletion(ctx, id); err != nil {
				return fmt.Errorf("grant audit deletion: %w", err)
			}
		}

		steps := []struct {
			query string
			count *int64
		}{
			{`DELETE FROM otp_challenges WHERE signing_file_id = ?`, &counts.OTPChallenges},
			{`DELETE FROM consents WHERE signing_file_id = ?`, &counts.Consents},
			{`DELETE FROM audit_events WHERE signing_file_id = ?`, &counts.AuditEvents},
		}
		for _, step := range steps {
			res, err := tx.ExecContext(ctx, step.query, id)
			if err != nil {
				return err
			}
			if *step.count, err = res.RowsAffected(); err != nil {
				return err
			}
		}

		spots, err := deleteSpots(ctx, tx, id, spotIDs)
		if err != nil {
			return err
		}
		counts.SignatureSpots = spots

		res, err := tx.ExecContext(ctx, `DELETE FROM signing_files WHERE id = ? AND pending_delete_at_utc IS NOT NULL`, id)
		if err != nil {
			return err
		}
		if counts.SigningFiles, err = res.RowsAffected(); err != nil {
			return err
		}
		if counts.SigningFiles != 1 {
			return errors.New("signing file is not claimed")
		}

		if allowAuditDeletion {
			if err := tx.RevokeAuditDeletion(ctx, id); err != nil {
				return fmt.Errorf("revoke audit deletion: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return records.DeletedCounts{}, &records.TransactionFailure{DocumentID: id, Cause: err}
	}
	return counts, nil
}

// deleteSpots deletes the listed signature spots of a document and fails if
// any other spot remains, since its image was never deleted.
func deleteSpots(ctx context.Context, tx *store.Tx, id string, spotIDs []string) (int64, error) {
	var deleted int64
	if len(spotIDs) > 0 {
		args := make([]any, 0, len(spotIDs)+1)
		args = append(args, id)
		for _, spotID := range spotIDs {
			args = append(args, spotID)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(spotIDs)), ", ")
		res, err := tx.ExecContext(ctx,
			`DELETE FROM signature_spots WHERE signing_file_id = ? AND id IN (`+placeholders+`)`, args...)
		if err != nil {
			return 0, err
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return 0, err
		}
	}

	var remaining int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM signature_spots WHERE signing_file_id = ?`, id).Scan(&remaining); err != nil {
		return 0, err
	}
	if remaining > 0 {
		return 0, fmt.Errorf("%d signature spots were added after their images were listed", remaining)
	}
	return deleted, nil
}

// appendDocumentEvent records a blocked or failed attempt on the document's
// own chain. Append failures are logged only.
func (d *Deleter) appendDocumentEvent(ctx context.Context, eventType, id string, out Outcome) {
	if d.chain == nil {
		return
	}
	_, err := d.chain.Append(ctx, records.AuditEvent{
		EventType:     eventType,
		SigningFileID: id,
		ActorType:     records.ActorSystem,
		Success:       false,
		Metadata: map[string]any{
			"reason": ReasonRetentionPolicy,
			"stage":  string(out.Stage),
			"kind":   records.KindOf(out.Err),
			"error":  out.Err.Error(),
		},
	})
	if err != nil {
		d.logger.Warn("failed to append retention audit event",
			"document_id", id, "event_type", eventType, "error", err)
	}
}
