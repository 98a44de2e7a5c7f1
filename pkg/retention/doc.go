// Package retention deletes signed documents whose retention window has
// expired.
//
// # Overview
//
// A batch run resolves the plan of each scope (tenant or firm), lists the
// eligible documents with Scanner, and hands them one at a time to Deleter.
// Recorder writes one retention_runs row per invocation, dry run or not.
//
// A document is eligible when it is signed, not on legal hold, not already
// claimed, and its anchor (signed_at, or created_at when never stamped) is
// older than both the plan's PII retention window and the soft buffer.
//
// # Deletion
//
// Deleter works in phases and stops a document at the first failure:
//
//  0. Guardrail: the signed artifact locator and both content hashes must
//     be present. Documents without them are never deleted.
//  1. Claim: one conditional UPDATE sets the pending-delete marker. Zero
//     affected rows means another process got there first.
//  2. Storage: signed, original and signature-image objects are deleted.
//     Missing objects count as deleted.
//  3. Database: one transaction, granted permission to delete the
//     document's audit events, removes OTP challenges, consents, audit
//     events, signature spots and the signing file.
//
// After a failure in phase 2 or 3 the document stays claimed with its rows
// intact. Runner.Recover finishes such documents once the claim is older
// than a threshold.
//
// # Concurrency
//
// Scopes and documents are processed sequentially. The phase 1 claim is the
// only lock, so overlapping runs are safe. Cancellation is checked between
// documents, never inside one.
package retention
