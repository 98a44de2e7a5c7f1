package config

import "time"

// Default values for configuration fields.
const (
	// Database defaults
	DefaultDatabaseDriver       = "sqlite3"
	DefaultDatabaseDSN          = "data/custodian.db"
	DefaultDatabaseMaxOpenConns = 10
	DefaultDatabaseMaxIdleConns = 5
	DefaultDatabaseBusyTimeout  = 5 * time.Second

	// Storage defaults
	DefaultStorageProvider = "file"
	DefaultStorageBucket   = "documents"
	DefaultStorageFileRoot = "data/objects"
	DefaultStorageS3Region = "us-east-1"

	// Plan defaults
	DefaultPlanKey            = "BASIC"
	DefaultRetentionFloorDays = 60
	DefaultPlanCacheBackend   = "memory"
	DefaultPlanCacheTTL       = 5 * time.Minute
	DefaultRedisAddr          = "127.0.0.1:6379"
	DefaultRedisPrefix        = "custodian:plan:"

	// Retention defaults
	DefaultRetentionSchedule = "0 3 * * *"
	DefaultMaxDocs           = 500
	DefaultSoftBufferDays    = 7
	DefaultRecoveryThreshold = 24 * time.Hour

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultCORSMaxAge      = 3600

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "custodian"
	DefaultTracingService   = "custodian"
	DefaultTracingEndpoint  = "localhost:4317"
	DefaultTracingTimeout   = 10 * time.Second
	DefaultTracingSampler   = "always"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Values already
// set are left alone.
func ApplyDefaults(cfg *Config) {
	applyDatabaseDefaults(&cfg.Database)
	applyStorageDefaults(&cfg.Storage)
	applyPlansDefaults(&cfg.Plans)
	applyRetentionDefaults(&cfg.Retention)
	applyServerDefaults(&cfg.Server)
	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Driver == "" {
		cfg.Driver = DefaultDatabaseDriver
	}
	if cfg.DSN == "" && cfg.Driver != "postgres" {
		cfg.DSN = DefaultDatabaseDSN
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = DefaultDatabaseMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = DefaultDatabaseMaxIdleConns
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultDatabaseBusyTimeout
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Provider == "" {
		cfg.Provider = DefaultStorageProvider
	}
	if cfg.DefaultBucket == "" {
		cfg.DefaultBucket = DefaultStorageBucket
	}
	if cfg.FileRoot == "" && cfg.Provider == "file" {
		cfg.FileRoot = DefaultStorageFileRoot
	}
	if cfg.S3.Region == "" && cfg.Provider == "s3" {
		cfg.S3.Region = DefaultStorageS3Region
	}
}

func applyPlansDefaults(cfg *PlansConfig) {
	if cfg.DefaultPlanKey == "" {
		cfg.DefaultPlanKey = DefaultPlanKey
	}
	if cfg.RetentionFloorDays == 0 {
		cfg.RetentionFloorDays = DefaultRetentionFloorDays
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultPlanCacheBackend
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultPlanCacheTTL
	}
	if cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Cache.Redis.Prefix == "" {
		cfg.Cache.Redis.Prefix = DefaultRedisPrefix
	}
}

func applyRetentionDefaults(cfg *RetentionConfig) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultRetentionSchedule
	}
	if cfg.MaxDocs == 0 {
		cfg.MaxDocs = DefaultMaxDocs
	}
	if cfg.SoftBufferDays == 0 {
		cfg.SoftBufferDays = DefaultSoftBufferDays
	}
	if cfg.RecoveryThreshold == 0 {
		cfg.RecoveryThreshold = DefaultRecoveryThreshold
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = DefaultListenAddress
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.CORS.MaxAge == 0 {
		cfg.CORS.MaxAge = DefaultCORSMaxAge
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultTracingService
	}
	if cfg.Tracing.Endpoint == "" {
		cfg.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Tracing.Timeout == 0 {
		cfg.Tracing.Timeout = DefaultTracingTimeout
	}
	if cfg.Tracing.Sampler == "" {
		cfg.Tracing.Sampler = DefaultTracingSampler
	}
}
