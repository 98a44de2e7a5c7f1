// Custodian enforces document retention and serves compliance reads for
// the LexSign e-signature platform.
//
// It deletes signed documents whose plan retention window has passed,
// keeping the tamper-evident audit chain intact, and exposes audit and
// evidence listings to compliance tooling:
//   - Plan-driven retention with a dry-run default and two-key execute gate
//   - Crash recovery for documents stuck between claim and delete
//   - Hash-chained audit verification and export (JSON, CSV, XLSX)
//   - Paginated compliance read API with Prometheus metrics
//
// Usage:
//
//	# Preview what the nightly job would delete
//	custodian retention run --config custodian.yaml
//
//	# Delete for one tenant
//	RETENTION_ALLOW_DELETE=true RETENTION_CONFIRM=DELETE \
//	    custodian retention run --tenant t-123 --execute
//
//	# Run on a cron schedule, reloading the config on change
//	custodian retention schedule --config custodian.yaml
//
//	# Verify one document's audit chain
//	custodian audit verify doc-42
//
//	# Serve the compliance API
//	custodian serve --listen 0.0.0.0:8080
package main

import "os"

func main() {
	os.Exit(Execute())
}
