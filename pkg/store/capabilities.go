package store

import (
	"context"
	"errors"
	"strings"

	"github.com/lib/pq"

	"lexsign/custodian/pkg/records"
)

// CapabilityFirmTables names the multi-firm part of the schema.
const CapabilityFirmTables = "firm"

var firmTables = []string{"firms", "firm_memberships", "firm_subscriptions", "firm_plan_overrides"}

// SchemaCapabilities describes which optional schema parts exist. It is
// detected once per run and passed down instead of probing per query.
type SchemaCapabilities struct {
	FirmTables bool
}

// HasFirmTables reports whether the multi-firm tables are present.
func (c SchemaCapabilities) HasFirmTables() bool {
	return c.FirmTables
}

// DetectCapabilities inspects the catalog for optional tables.
func (s *Store) DetectCapabilities(ctx context.Context) (SchemaCapabilities, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(firmTables)), ", ")
	args := make([]any, len(firmTables))
	for i, name := range firmTables {
		args[i] = name
	}

	var query string
	if s.dialect == DialectPostgres {
		query = `SELECT COUNT(*) FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name IN (` + placeholders + `)`
	} else {
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (` + placeholders + `)`
	}

	var n int
	if err := s.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return SchemaCapabilities{}, records.NewStorageError(s.driver, "detect_capabilities", err)
	}

	caps := SchemaCapabilities{FirmTables: n == len(firmTables)}
	s.logger.Debug("schema capabilities detected", "firm_tables", caps.FirmTables)
	return caps, nil
}

// IsUndefinedTable reports whether err is a relation-not-found error from
// any supported driver.
func IsUndefinedTable(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	return strings.Contains(err.Error(), "no such table")
}
