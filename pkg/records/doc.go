// Package records defines the data model shared by the retention engine,
// the audit chain, the plan resolver and the compliance read APIs.
//
// # Entities
//
//   - SigningFile: a legal document and the storage locators and content
//     hashes of its original and signed artifacts
//   - SignatureSpot: per-signer evidence (raw signature image) of a file
//   - AuditEvent: an insert-only, per-document hash-chained log entry
//   - SubscriptionPlan / Subscription: plan tiers and their bindings
//   - RetentionRun: the immutable record of one batch invocation
//
// # Errors
//
// The retention error taxonomy lives here so every layer can classify
// failures the same way:
//
//   - GuardrailViolation: evidence incomplete, never delete
//   - ClaimConflict: another process claimed the document first
//   - StorageDeleteFailure: object deletion failed, document stays claimed
//   - TransactionFailure: database deletion rolled back, document stays claimed
//   - ScopeResolutionFailure: plan lookup failed, scope skipped
//   - SchemaNotReady: multi-firm tables absent, degrade to tenant-only
//
// KindOf maps any error to the taxonomy name stored in RunError.Kind.
package records
