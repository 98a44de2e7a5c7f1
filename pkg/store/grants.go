package store

import (
	"context"
	"time"
)

// GrantAuditDeletion allows deleting the audit events of one document for
// the rest of this transaction. Callers must revoke before committing.
func (t *Tx) GrantAuditDeletion(ctx context.Context, signingFileID string) error {
	_, err := t.ExecContext(ctx, `INSERT INTO audit_delete_grants (signing_file_id, granted_at) VALUES (?, ?)`,
		signingFileID, FormatTime(time.Now()))
	return err
}

// RevokeAuditDeletion removes the grant written by GrantAuditDeletion.
func (t *Tx) RevokeAuditDeletion(ctx context.Context, signingFileID string) error {
	_, err := t.ExecContext(ctx, `DELETE FROM audit_delete_grants WHERE signing_file_id = ?`, signingFileID)
	return err
}
