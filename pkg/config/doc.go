// Package config provides configuration management for custodian.
//
// Configuration is read from a YAML file, completed with defaults,
// overridden from the environment and validated:
//
//  1. Values from the YAML file (unknown keys are rejected)
//  2. Default values (defined in defaults.go) for anything left unset
//  3. Environment variable overrides
//  4. Validation, collecting every FieldError into one ValidationError
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CUSTODIAN_SECTION_FIELD:
//
//   - CUSTODIAN_DATABASE_DSN overrides database.dsn
//   - CUSTODIAN_STORAGE_S3_ENDPOINT overrides storage.s3.endpoint
//   - CUSTODIAN_PLANS_RETENTION_FLOOR_DAYS overrides plans.retention_floor_days
//   - CUSTODIAN_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// A malformed override (for example a non-numeric max_docs) fails loading.
//
// The retention execute gates RETENTION_ALLOW_DELETE and RETENTION_CONFIRM
// are deliberately not part of this package; the CLI reads them directly.
//
// # Singleton
//
// Commands call Load once and read the result with GetConfig. The
// retention scheduler runs a Watcher that reloads the file on change and
// reschedules with the new configuration:
//
//	w, _ := config.NewWatcher(path, 0)
//	go w.Watch(ctx, func(cfg *config.Config) {
//	    scheduler.Reschedule(cfg.Retention.Schedule)
//	})
package config
