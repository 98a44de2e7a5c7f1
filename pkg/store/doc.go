// Package store is the relational store shared by the retention engine, the
// audit chain, the plan resolver and the compliance read APIs.
//
// # Backends
//
// Three database/sql drivers are supported and selected by Config.Driver:
//
//   - sqlite3: github.com/mattn/go-sqlite3 (default, cgo)
//   - sqlite: modernc.org/sqlite (pure Go, for CGO_ENABLED=0 builds)
//   - postgres: github.com/lib/pq
//
// Queries are written once with "?" placeholders. Store and Tx rebind them
// to "$n" for postgres.
//
// # Schema
//
// Migrate creates the core tables and, when requested, the optional
// multi-firm tables. DetectCapabilities reports which optional parts exist
// so callers can pick tenant-only predicates on partially migrated
// deployments.
//
// audit_events is guarded by triggers: UPDATE always fails, and DELETE
// fails unless an audit_delete_grants row exists for the event's document.
// Grants are written and removed inside one transaction by
// Tx.GrantAuditDeletion / Tx.RevokeAuditDeletion, so they are never visible
// outside the deleting transaction.
//
// # Basic Usage
//
//	st, err := store.Open(&store.Config{Driver: "sqlite3", DSN: "data/custodian.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	if err := st.Migrate(ctx, store.MigrateOptions{FirmTables: true}); err != nil {
//	    log.Fatal(err)
//	}
package store
