package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CUSTODIAN_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides
// for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating. Unknown keys
// are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CUSTODIAN_SECTION_FIELD (e.g., CUSTODIAN_DATABASE_DSN) and
// always take precedence over the file.
//
// An empty path skips the file and starts from the defaults.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Malformed values are collected into a ValidationError.
func applyEnvOverrides(cfg *Config) error {
	env := envReader{}

	// Database overrides
	env.str("DATABASE_DRIVER", &cfg.Database.Driver)
	env.str("DATABASE_DSN", &cfg.Database.DSN)
	env.integer("DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)
	env.integer("DATABASE_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns)
	env.duration("DATABASE_BUSY_TIMEOUT", &cfg.Database.BusyTimeout)
	env.boolPtr("DATABASE_FIRM_TABLES", &cfg.Database.FirmTables)

	// Storage overrides
	env.str("STORAGE_PROVIDER", &cfg.Storage.Provider)
	env.str("STORAGE_DEFAULT_BUCKET", &cfg.Storage.DefaultBucket)
	env.str("STORAGE_FILE_ROOT", &cfg.Storage.FileRoot)
	env.str("STORAGE_S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	env.str("STORAGE_S3_REGION", &cfg.Storage.S3.Region)
	env.str("STORAGE_S3_ACCESS_KEY_ID", &cfg.Storage.S3.AccessKeyID)
	env.str("STORAGE_S3_SECRET_ACCESS_KEY", &cfg.Storage.S3.SecretAccessKey)
	env.str("STORAGE_S3_SESSION_TOKEN", &cfg.Storage.S3.SessionToken)
	env.boolean("STORAGE_S3_PATH_STYLE", &cfg.Storage.S3.PathStyle)

	// Plan overrides
	env.str("PLANS_DEFAULT_PLAN_KEY", &cfg.Plans.DefaultPlanKey)
	env.integer("PLANS_RETENTION_FLOOR_DAYS", &cfg.Plans.RetentionFloorDays)
	env.str("PLANS_DEFAULT_FIRM_KEY", &cfg.Plans.DefaultFirmKey)
	env.timestamp("PLANS_UNLIMITED_UNTIL", &cfg.Plans.UnlimitedUntil)
	env.str("PLANS_SEED_FILE", &cfg.Plans.SeedFile)
	env.str("PLANS_CACHE_BACKEND", &cfg.Plans.Cache.Backend)
	env.duration("PLANS_CACHE_TTL", &cfg.Plans.Cache.TTL)
	env.str("PLANS_CACHE_REDIS_ADDR", &cfg.Plans.Cache.Redis.Addr)
	env.str("PLANS_CACHE_REDIS_PASSWORD", &cfg.Plans.Cache.Redis.Password)
	env.integer("PLANS_CACHE_REDIS_DB", &cfg.Plans.Cache.Redis.DB)
	env.str("PLANS_CACHE_REDIS_PREFIX", &cfg.Plans.Cache.Redis.Prefix)

	// Retention overrides
	env.str("RETENTION_SCHEDULE", &cfg.Retention.Schedule)
	env.boolean("RETENTION_EXECUTE", &cfg.Retention.Execute)
	env.integer("RETENTION_MAX_DOCS", &cfg.Retention.MaxDocs)
	env.integer("RETENTION_SOFT_BUFFER_DAYS", &cfg.Retention.SoftBufferDays)
	env.duration("RETENTION_RECOVERY_THRESHOLD", &cfg.Retention.RecoveryThreshold)
	env.str("RETENTION_METRICS_TEXTFILE", &cfg.Retention.MetricsTextfile)

	// Audit overrides
	env.list("AUDIT_REDACT_KEYS", &cfg.Audit.RedactKeys)

	// Server overrides
	env.str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	env.duration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	env.duration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	env.duration("SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	env.duration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	env.integer("SERVER_MAX_HEADER_BYTES", &cfg.Server.MaxHeaderBytes)
	env.boolean("SERVER_CORS_ENABLED", &cfg.Server.CORS.Enabled)
	env.list("SERVER_CORS_ALLOWED_ORIGINS", &cfg.Server.CORS.AllowedOrigins)

	// Telemetry overrides
	env.str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	env.str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	env.boolean("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	env.boolPtr("TELEMETRY_LOGGING_REDACT_SECRETS", &cfg.Telemetry.Logging.RedactSecrets)
	env.boolPtr("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	env.str("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	env.str("TELEMETRY_METRICS_NAMESPACE", &cfg.Telemetry.Metrics.Namespace)
	env.boolean("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	env.str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	env.boolean("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	env.str("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	env.float("TELEMETRY_TRACING_SAMPLE_RATIO", &cfg.Telemetry.Tracing.SampleRatio)

	if len(env.errs) > 0 {
		return ValidationError{Errors: env.errs}
	}
	return nil
}

// envReader reads CUSTODIAN_* variables and collects parse failures.
type envReader struct {
	errs []FieldError
}

func (r *envReader) lookup(name string) (string, bool) {
	val := os.Getenv(EnvPrefix + name)
	return val, val != ""
}

func (r *envReader) fail(name, msg string) {
	r.errs = append(r.errs, FieldError{Field: EnvPrefix + name, Message: msg})
}

func (r *envReader) str(name string, dst *string) {
	if val, ok := r.lookup(name); ok {
		*dst = val
	}
}

func (r *envReader) integer(name string, dst *int) {
	val, ok := r.lookup(name)
	if !ok {
		return
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		r.fail(name, fmt.Sprintf("not an integer: %q", val))
		return
	}
	*dst = i
}

func (r *envReader) float(name string, dst *float64) {
	val, ok := r.lookup(name)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		r.fail(name, fmt.Sprintf("not a number: %q", val))
		return
	}
	*dst = f
}

func (r *envReader) boolean(name string, dst *bool) {
	val, ok := r.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		r.fail(name, fmt.Sprintf("not a boolean: %q", val))
		return
	}
	*dst = b
}

func (r *envReader) boolPtr(name string, dst **bool) {
	if _, ok := r.lookup(name); !ok {
		return
	}
	var b bool
	before := len(r.errs)
	r.boolean(name, &b)
	if len(r.errs) == before {
		*dst = &b
	}
}

func (r *envReader) duration(name string, dst *time.Duration) {
	val, ok := r.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		r.fail(name, fmt.Sprintf("not a duration: %q", val))
		return
	}
	*dst = d
}

func (r *envReader) timestamp(name string, dst **time.Time) {
	val, ok := r.lookup(name)
	if !ok {
		return
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		r.fail(name, fmt.Sprintf("not an RFC 3339 time: %q", val))
		return
	}
	t = t.UTC()
	*dst = &t
}

// list splits a comma-separated value, dropping empty items.
func (r *envReader) list(name string, dst *[]string) {
	val, ok := r.lookup(name)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}
