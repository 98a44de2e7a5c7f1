package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lexsign/custodian/pkg/records"
)

// MigrateOptions selects optional parts of the schema.
type MigrateOptions struct {
	// FirmTables creates the multi-firm tables. Single-tenant deployments
	// leave them out and the scanner falls back to tenant-only predicates.
	FirmTables bool
}

// Migrate creates the schema, the audit guards and the schema version row.
// It is idempotent.
func (s *Store) Migrate(ctx context.Context, opts MigrateOptions) error {
	if _, err := s.db.ExecContext(ctx, renderSchema(s.dialect, coreSchema)); err != nil {
		return records.NewStorageError(s.driver, "create_schema", err)
	}
	s.logger.Debug("core schema created")

	if opts.FirmTables {
		if _, err := s.db.ExecContext(ctx, renderSchema(s.dialect, firmSchema)); err != nil {
			return records.NewStorageError(s.driver, "create_firm_schema", err)
		}
		s.logger.Debug("firm schema created")
	}

	if _, err := s.db.ExecContext(ctx, auditGuards(s.dialect)); err != nil {
		return records.NewStorageError(s.driver, "create_audit_guards", err)
	}

	if _, err := s.ExecContext(ctx, insertSchemaVersion, SchemaVersion, FormatTime(time.Now())); err != nil {
		return records.NewStorageError(s.driver, "insert_schema_version", err)
	}

	if err := s.CheckSchema(ctx); err != nil {
		return err
	}

	s.logger.Info("schema migrated", "version", SchemaVersion, "firm_tables", opts.FirmTables)
	return nil
}

// CheckSchema verifies that the database carries the current schema
// version.
func (s *Store) CheckSchema(ctx context.Context) error {
	var version sql.NullInt64
	if err := s.QueryRowContext(ctx, getSchemaVersion).Scan(&version); err != nil {
		return records.NewStorageError(s.driver, "get_schema_version", err)
	}
	if !version.Valid || version.Int64 != SchemaVersion {
		return records.NewStorageError(s.driver, "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}
	return nil
}
