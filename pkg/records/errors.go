package records

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

// Error kinds used in run error entries.
const (
	KindGuardrailViolation     = "GuardrailViolation"
	KindClaimConflict          = "ClaimConflict"
	KindStorageDeleteFailure   = "StorageDeleteFailure"
	KindTransactionFailure     = "TransactionFailure"
	KindScopeResolutionFailure = "ScopeResolutionFailure"
	KindSchemaNotReady         = "SchemaNotReady"
	KindInternal               = "Internal"
)

// GuardrailViolation means a document lacks the evidence needed to prove
// what was signed. Such documents are never deleted.
type GuardrailViolation struct {
	DocumentID string
	Missing    []string
}

// Error implements the error interface.
func (e *GuardrailViolation) Error() string {
	return fmt.Sprintf("missing critical evidence [document=%s]: %s", e.DocumentID, strings.Join(e.Missing, ", "))
}

// ClaimConflict means the conditional claim update matched no row: another
// process claimed the document first, or it stopped qualifying.
type ClaimConflict struct {
	DocumentID string
}

// Error implements the error interface.
func (e *ClaimConflict) Error() string {
	return fmt.Sprintf("claim conflict [document=%s]: already claimed or no longer eligible", e.DocumentID)
}

// StorageDeleteFailure means an object deletion failed. The document stays
// claimed for investigation or a recovery pass.
type StorageDeleteFailure struct {
	DocumentID string
	Object     ObjectRef
	Cause      error
}

// Error implements the error interface.
func (e *StorageDeleteFailure) Error() string {
	return fmt.Sprintf("storage delete failed [document=%s, object=%s]: %v", e.DocumentID, e.Object, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageDeleteFailure) Unwrap() error {
	return e.Cause
}

// TransactionFailure means the database deletion transaction was rolled back.
type TransactionFailure struct {
	DocumentID string
	Cause      error
}

// Error implements the error interface.
func (e *TransactionFailure) Error() string {
	return fmt.Sprintf("delete transaction failed [document=%s]: %v", e.DocumentID, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *TransactionFailure) Unwrap() error {
	return e.Cause
}

// ScopeResolutionFailure means the plan for a scope could not be resolved.
// The scope is skipped and the run continues.
type ScopeResolutionFailure struct {
	Scope Scope
	Cause error
}

// Error implements the error interface.
func (e *ScopeResolutionFailure) Error() string {
	return fmt.Sprintf("scope resolution failed [scope=%s]: %v", e.Scope, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ScopeResolutionFailure) Unwrap() error {
	return e.Cause
}

// SchemaNotReady means an optional part of the schema (the multi-firm
// tables) has not been migrated yet.
type SchemaNotReady struct {
	Capability string
}

// Error implements the error interface.
func (e *SchemaNotReady) Error() string {
	return fmt.Sprintf("schema not ready: %s tables are absent", e.Capability)
}

// StorageError represents an error from the relational store.
type StorageError struct {
	Backend   string // Driver name ("sqlite3", "sqlite", "postgres")
	Operation string // Operation that failed ("scan", "claim", "append_audit", ...)
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// KindOf maps an error to the taxonomy name recorded in run errors.
func KindOf(err error) string {
	var (
		guardrail *GuardrailViolation
		claim     *ClaimConflict
		storage   *StorageDeleteFailure
		tx        *TransactionFailure
		scope     *ScopeResolutionFailure
		schema    *SchemaNotReady
	)
	switch {
	case errors.As(err, &guardrail):
		return KindGuardrailViolation
	case errors.As(err, &claim):
		return KindClaimConflict
	case errors.As(err, &storage):
		return KindStorageDeleteFailure
	case errors.As(err, &tx):
		return KindTransactionFailure
	case errors.As(err, &scope):
		return KindScopeResolutionFailure
	case errors.As(err, &schema):
		return KindSchemaNotReady
	default:
		return KindInternal
	}
}
