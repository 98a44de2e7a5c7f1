package config

import "time"

// Config is the root configuration structure for custodian.
// It holds the database and object storage connections, plan resolution,
// the retention job, the compliance read API and telemetry.
type Config struct {
	// Database selects the relational store holding signing files, audit
	// events, plans and run records.
	Database DatabaseConfig `yaml:"database"`

	// Storage selects the object store holding signed artifacts, originals
	// and signature images.
	Storage StorageConfig `yaml:"storage"`

	// Plans configures plan resolution, the retention floor and the plan
	// cache.
	Plans PlansConfig `yaml:"plans"`

	// Retention configures the batch job and its schedule.
	Retention RetentionConfig `yaml:"retention"`

	// Audit configures the audit chain.
	Audit AuditConfig `yaml:"audit"`

	// Server configures the compliance read API started by "custodian serve".
	Server ServerConfig `yaml:"server"`

	// Telemetry configures logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DatabaseConfig contains configuration for the relational store.
type DatabaseConfig struct {
	// Driver is "sqlite3" (cgo), "sqlite" (pure Go) or "postgres".
	// Default: "sqlite3"
	Driver string `yaml:"driver"`

	// DSN is the data source name. For the SQLite drivers it is a file path.
	// Default: "data/custodian.db"
	DSN string `yaml:"dsn"`

	// MaxOpenConns limits open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns limits idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// FirmTables creates the multi-firm tables on migrate. Deployments
	// without them run tenant-only.
	// Default: true
	FirmTables *bool `yaml:"firm_tables"`
}

// StorageConfig contains configuration for object storage.
type StorageConfig struct {
	// Provider is "s3", "file" or "mem".
	// Default: "file"
	Provider string `yaml:"provider"`

	// DefaultBucket resolves legacy single-key locators.
	// Default: "documents"
	DefaultBucket string `yaml:"default_bucket"`

	// FileRoot holds one directory per bucket for the file provider.
	// Default: "data/objects"
	FileRoot string `yaml:"file_root"`

	// S3 configures the s3 provider.
	S3 S3Config `yaml:"s3"`
}

// S3Config contains the S3 client settings. Credentials are static; an
// empty endpoint uses AWS.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`

	// PathStyle addresses buckets by path, as MinIO requires.
	PathStyle bool `yaml:"path_style"`
}

// PlansConfig contains configuration for plan resolution.
type PlansConfig struct {
	// DefaultPlanKey is used when a scope has no active subscription.
	// Default: "BASIC"
	DefaultPlanKey string `yaml:"default_plan_key"`

	// RetentionFloorDays is the platform-wide legal minimum retention.
	// No plan resolves below it.
	// Default: 60
	RetentionFloorDays int `yaml:"retention_floor_days"`

	// DefaultFirmKey names the firm that UnlimitedUntil applies to.
	DefaultFirmKey string `yaml:"default_firm_key"`

	// UnlimitedUntil lifts all quotas of the default firm until this time.
	UnlimitedUntil *time.Time `yaml:"unlimited_until"`

	// SeedFile is the YAML plan catalog loaded by "custodian plans seed".
	SeedFile string `yaml:"seed_file"`

	// Cache configures the resolved-plan cache.
	Cache PlanCacheConfig `yaml:"cache"`
}

// PlanCacheConfig contains configuration for the resolved-plan cache.
type PlanCacheConfig struct {
	// Backend is "memory", "redis" or "none".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TTL bounds how long a resolved plan is reused.
	// Default: 5m
	TTL time.Duration `yaml:"ttl"`

	// Redis configures the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains the redis connection for the plan cache.
type RedisConfig struct {
	// Addr is host:port.
	// Default: "127.0.0.1:6379"
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// Prefix namespaces cache keys.
	// Default: "custodian:plan:"
	Prefix string `yaml:"prefix"`
}

// RetentionConfig contains configuration for the retention job.
type RetentionConfig struct {
	// Schedule is the cron expression for "custodian retention schedule".
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`

	// Execute makes scheduled runs delete. The environment gates still
	// apply; without them scheduled runs are dry runs.
	// Default: false
	Execute bool `yaml:"execute"`

	// MaxDocs bounds the documents one run processes.
	// Default: 500
	MaxDocs int `yaml:"max_docs"`

	// SoftBufferDays is the minimum document age regardless of plan.
	// Default: 7
	SoftBufferDays int `yaml:"soft_buffer_days"`

	// RecoveryThreshold is how old a claim must be before recovery retries it.
	// Default: 24h
	RecoveryThreshold time.Duration `yaml:"recovery_threshold"`

	// MetricsTextfile, when set, receives the run metrics in the node
	// exporter textfile format after every run.
	MetricsTextfile string `yaml:"metrics_textfile"`
}

// AuditConfig contains configuration for the audit chain.
type AuditConfig struct {
	// RedactKeys are metadata keys masked in addition to the built-in
	// secret keys.
	RedactKeys []string `yaml:"redact_keys"`
}

// ServerConfig contains configuration for the compliance read API.
type ServerConfig struct {
	// ListenAddress is host:port.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS configures cross-origin access for the review frontend.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains cross-origin settings.
type CORSConfig struct {
	// Enabled turns on CORS handling.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists origins; "*" allows any.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxAge is the preflight cache lifetime in seconds.
	// Default: 3600
	MaxAge int `yaml:"max_age"`
}

// TelemetryConfig contains configuration for logging, metrics and tracing.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	AddSource bool `yaml:"add_source"`

	// RedactSecrets masks secret-looking attributes.
	// Default: true
	RedactSecrets *bool `yaml:"redact_secrets"`

	// RedactPatterns are extra value patterns to mask.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern defines a custom log redaction pattern.
type RedactPattern struct {
	// Name is a descriptive name for the pattern.
	Name string `yaml:"name"`

	// Pattern is the regular expression to match.
	Pattern string `yaml:"pattern"`

	// Replacement is the string to replace matches with.
	Replacement string `yaml:"replacement"`
}

// MetricsConfig contains configuration for prometheus metrics.
type MetricsConfig struct {
	// Enabled exposes the metrics endpoint on the API server.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "custodian"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains configuration for OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled exports spans over OTLP/gRPC.
	Enabled bool `yaml:"enabled"`

	// ServiceName is reported as service.name.
	// Default: "custodian"
	ServiceName string `yaml:"service_name"`

	// Endpoint is the collector address (host:port).
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// Timeout bounds each export.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Sampler is "always", "never" or "ratio".
	// Default: "always"
	Sampler string `yaml:"sampler"`

	// SampleRatio is the fraction of root spans kept by the "ratio" sampler.
	SampleRatio float64 `yaml:"sample_ratio"`
}

// FirmTablesEnabled reports whether migrations create the firm tables.
func (c *DatabaseConfig) FirmTablesEnabled() bool {
	return c.FirmTables == nil || *c.FirmTables
}

// RedactSecretsEnabled reports whether log redaction is on.
func (c *LoggingConfig) RedactSecretsEnabled() bool {
	return c.RedactSecrets == nil || *c.RedactSecrets
}

// IsEnabled reports whether the metrics endpoint is served.
func (c *MetricsConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
