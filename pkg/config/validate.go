package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "database.dsn").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// HasField reports whether any error concerns field.
func (e ValidationError) HasField(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateDatabase(&cfg.Database)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validatePlans(&cfg.Plans)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateDatabase(cfg *DatabaseConfig) []FieldError {
	var errs []FieldError

	switch cfg.Driver {
	case "sqlite3", "sqlite", "postgres":
	default:
		errs = append(errs, FieldError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unsupported driver %q (must be 'sqlite3', 'sqlite' or 'postgres')", cfg.Driver),
		})
	}
	if cfg.DSN == "" {
		errs = append(errs, FieldError{
			Field:   "database.dsn",
			Message: "dsn is required",
		})
	}
	if cfg.MaxOpenConns < 1 {
		errs = append(errs, FieldError{
			Field:   "database.max_open_conns",
			Message: "max open connections must be at least 1",
		})
	}
	if cfg.MaxIdleConns < 0 || cfg.MaxIdleConns > cfg.MaxOpenConns {
		errs = append(errs, FieldError{
			Field:   "database.max_idle_conns",
			Message: "max idle connections must be between 0 and max_open_conns",
		})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "database.busy_timeout",
			Message: "busy timeout must be non-negative",
		})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultBucket == "" {
		errs = append(errs, FieldError{
			Field:   "storage.default_bucket",
			Message: "default bucket is required",
		})
	}

	switch cfg.Provider {
	case "file":
		if cfg.FileRoot == "" {
			errs = append(errs, FieldError{
				Field:   "storage.file_root",
				Message: "file root is required for the file provider",
			})
		}
	case "s3":
		if cfg.S3.Endpoint != "" {
			if u, err := url.Parse(cfg.S3.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   "storage.s3.endpoint",
					Message: fmt.Sprintf("invalid endpoint URL %q", cfg.S3.Endpoint),
				})
			}
		}
		if (cfg.S3.AccessKeyID == "") != (cfg.S3.SecretAccessKey == "") {
			errs = append(errs, FieldError{
				Field:   "storage.s3.secret_access_key",
				Message: "access key id and secret access key must be set together",
			})
		}
	case "mem":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.provider",
			Message: fmt.Sprintf("unsupported provider %q (must be 's3', 'file' or 'mem')", cfg.Provider),
		})
	}

	return errs
}

func validatePlans(cfg *PlansConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultPlanKey == "" {
		errs = append(errs, FieldError{
			Field:   "plans.default_plan_key",
			Message: "default plan key is required",
		})
	}
	if cfg.RetentionFloorDays < 1 {
		errs = append(errs, FieldError{
			Field:   "plans.retention_floor_days",
			Message: "retention floor must be at least 1 day",
		})
	}
	if cfg.UnlimitedUntil != nil && cfg.DefaultFirmKey == "" {
		errs = append(errs, FieldError{
			Field:   "plans.default_firm_key",
			Message: "unlimited_until requires a default firm key",
		})
	}

	switch cfg.Cache.Backend {
	case "memory", "none":
	case "redis":
		if cfg.Cache.Redis.Addr == "" {
			errs = append(errs, FieldError{
				Field:   "plans.cache.redis.addr",
				Message: "redis address is required for the redis backend",
			})
		}
		if cfg.Cache.Redis.DB < 0 {
			errs = append(errs, FieldError{
				Field:   "plans.cache.redis.db",
				Message: "redis db must be non-negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "plans.cache.backend",
			Message: fmt.Sprintf("unsupported backend %q (must be 'memory', 'redis' or 'none')", cfg.Cache.Backend),
		})
	}
	if cfg.Cache.TTL < 0 {
		errs = append(errs, FieldError{
			Field:   "plans.cache.ttl",
			Message: "ttl must be non-negative",
		})
	}

	return errs
}

func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "retention.schedule",
			Message: fmt.Sprintf("invalid cron expression: %v", err),
		})
	}
	if cfg.MaxDocs < 1 {
		errs = append(errs, FieldError{
			Field:   "retention.max_docs",
			Message: "max docs must be at least 1",
		})
	}
	if cfg.SoftBufferDays < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.soft_buffer_days",
			Message: "soft buffer days must be non-negative",
		})
	}
	if cfg.RecoveryThreshold <= 0 {
		errs = append(errs, FieldError{
			Field:   "retention.recovery_threshold",
			Message: "recovery threshold must be positive",
		})
	}

	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	for field, d := range map[string]int64{
		"server.read_timeout":     int64(cfg.ReadTimeout),
		"server.write_timeout":    int64(cfg.WriteTimeout),
		"server.idle_timeout":     int64(cfg.IdleTimeout),
		"server.shutdown_timeout": int64(cfg.ShutdownTimeout),
	} {
		if d < 0 {
			errs = append(errs, FieldError{Field: field, Message: "timeout must be non-negative"})
		}
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be between 0 and 10MB",
		})
	}
	if cfg.CORS.Enabled && len(cfg.CORS.AllowedOrigins) == 0 {
		errs = append(errs, FieldError{
			Field:   "server.cors.allowed_origins",
			Message: "at least one origin is required when CORS is enabled",
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be 'debug', 'info', 'warn' or 'error')", cfg.Logging.Level),
		})
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be 'json' or 'text')", cfg.Logging.Format),
		})
	}
	for i, p := range cfg.Logging.RedactPatterns {
		field := fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i)
		if p.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{
				Field:   field + ".pattern",
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/'",
		})
	}
	switch cfg.Tracing.Sampler {
	case "always", "never":
	case "ratio":
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: fmt.Sprintf("sample ratio must be between 0 and 1, got %g", cfg.Tracing.SampleRatio),
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sampler",
			Message: fmt.Sprintf("invalid sampler %q (must be 'always', 'never' or 'ratio')", cfg.Tracing.Sampler),
		})
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.Timeout < 0 {
		errs = append(errs, FieldError{Field: "telemetry.tracing.timeout", Message: "timeout cannot be negative"})
	}

	return errs
}
