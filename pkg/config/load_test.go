package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custodian.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

// TestLoadConfig_ValidFile tests loading a complete file.
func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: "postgres://custodian@db/custodian?sslmode=disable"
  max_open_conns: 20
  firm_tables: false

storage:
  provider: s3
  default_bucket: lexsign-documents
  s3:
    endpoint: "http://minio:9000"
    access_key_id: minio
    secret_access_key: minio123
    path_style: true

plans:
  retention_floor_days: 90
  default_firm_key: acme
  unlimited_until: 2030-01-01T00:00:00Z
  cache:
    backend: redis
    ttl: 30s
    redis:
      addr: "redis:6379"
      db: 2

retention:
  schedule: "30 4 * * *"
  execute: true
  max_docs: 100

audit:
  redact_keys: [ssn, dateOfBirth]

telemetry:
  logging:
    level: debug
    format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Database.Driver != "postgres" || cfg.Database.MaxOpenConns != 20 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Database.FirmTablesEnabled() {
		t.Error("FirmTablesEnabled() = true, want false")
	}
	if cfg.Storage.S3.Endpoint != "http://minio:9000" || !cfg.Storage.S3.PathStyle {
		t.Errorf("storage.s3 = %+v", cfg.Storage.S3)
	}
	if cfg.Storage.S3.Region != DefaultStorageS3Region {
		t.Errorf("storage.s3.region = %q, want default %q", cfg.Storage.S3.Region, DefaultStorageS3Region)
	}
	if cfg.Plans.RetentionFloorDays != 90 {
		t.Errorf("retention floor = %d, want 90", cfg.Plans.RetentionFloorDays)
	}
	want := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	if cfg.Plans.UnlimitedUntil == nil || !cfg.Plans.UnlimitedUntil.Equal(want) {
		t.Errorf("unlimited_until = %v, want %v", cfg.Plans.UnlimitedUntil, want)
	}
	if cfg.Plans.Cache.Backend != "redis" || cfg.Plans.Cache.TTL != 30*time.Second || cfg.Plans.Cache.Redis.DB != 2 {
		t.Errorf("plans.cache = %+v", cfg.Plans.Cache)
	}
	if cfg.Plans.DefaultPlanKey != DefaultPlanKey {
		t.Errorf("default plan key = %q, want %q", cfg.Plans.DefaultPlanKey, DefaultPlanKey)
	}
	if cfg.Retention.Schedule != "30 4 * * *" || !cfg.Retention.Execute || cfg.Retention.MaxDocs != 100 {
		t.Errorf("retention = %+v", cfg.Retention)
	}
	if cfg.Retention.SoftBufferDays != DefaultSoftBufferDays {
		t.Errorf("soft buffer days = %d, want %d", cfg.Retention.SoftBufferDays, DefaultSoftBufferDays)
	}
	if len(cfg.Audit.RedactKeys) != 2 {
		t.Errorf("audit.redact_keys = %v", cfg.Audit.RedactKeys)
	}
	if cfg.Telemetry.Logging.Level != "debug" || cfg.Telemetry.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Telemetry.Logging)
	}
}

// TestLoadConfig_EmptyFile tests that an empty file yields the defaults.
func TestLoadConfig_EmptyFile(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Database.Driver != DefaultDatabaseDriver || cfg.Database.DSN != DefaultDatabaseDSN {
		t.Errorf("database = %+v, want defaults", cfg.Database)
	}
	if cfg.Storage.Provider != DefaultStorageProvider || cfg.Storage.FileRoot != DefaultStorageFileRoot {
		t.Errorf("storage = %+v, want defaults", cfg.Storage)
	}
	if !cfg.Database.FirmTablesEnabled() || !cfg.Telemetry.Metrics.IsEnabled() || !cfg.Telemetry.Logging.RedactSecretsEnabled() {
		t.Error("optional booleans should default to true")
	}
}

// TestLoadConfig_Errors tests file, syntax and validation failures.
func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantVal bool
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") },
		},
		{
			name: "invalid yaml",
			path: func(t *testing.T) string { return writeConfig(t, "database: [unclosed") },
		},
		{
			name: "unknown key",
			path: func(t *testing.T) string { return writeConfig(t, "databse:\n  dsn: x\n") },
		},
		{
			name:    "invalid values",
			path:    func(t *testing.T) string { return writeConfig(t, "retention:\n  schedule: \"every day\"\n") },
			wantVal: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.path(t))
			if err == nil {
				t.Fatal("LoadConfig() succeeded, want error")
			}
			var ve ValidationError
			if got := errors.As(err, &ve); got != tt.wantVal {
				t.Errorf("errors.As(ValidationError) = %v, want %v (err: %v)", got, tt.wantVal, err)
			}
		})
	}
}

// TestLoadConfigWithEnvOverrides tests that environment variables win over
// the file.
func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: from-file.db
retention:
  max_docs: 100
`)
	t.Setenv("CUSTODIAN_DATABASE_DSN", "from-env.db")
	t.Setenv("CUSTODIAN_RETENTION_MAX_DOCS", "42")
	t.Setenv("CUSTODIAN_RETENTION_RECOVERY_THRESHOLD", "48h")
	t.Setenv("CUSTODIAN_DATABASE_FIRM_TABLES", "false")
	t.Setenv("CUSTODIAN_AUDIT_REDACT_KEYS", "ssn, passport ,")
	t.Setenv("CUSTODIAN_PLANS_DEFAULT_FIRM_KEY", "acme")
	t.Setenv("CUSTODIAN_PLANS_UNLIMITED_UNTIL", "2031-06-01T00:00:00+02:00")
	t.Setenv("CUSTODIAN_TELEMETRY_TRACING_SAMPLER", "ratio")
	t.Setenv("CUSTODIAN_TELEMETRY_TRACING_SAMPLE_RATIO", "0.25")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}

	if cfg.Database.DSN != "from-env.db" {
		t.Errorf("dsn = %q, want from-env.db", cfg.Database.DSN)
	}
	if cfg.Retention.MaxDocs != 42 {
		t.Errorf("max docs = %d, want 42", cfg.Retention.MaxDocs)
	}
	if cfg.Retention.RecoveryThreshold != 48*time.Hour {
		t.Errorf("recovery threshold = %v, want 48h", cfg.Retention.RecoveryThreshold)
	}
	if cfg.Database.FirmTablesEnabled() {
		t.Error("FirmTablesEnabled() = true, want false")
	}
	if len(cfg.Audit.RedactKeys) != 2 || cfg.Audit.RedactKeys[1] != "passport" {
		t.Errorf("redact keys = %q, want [ssn passport]", cfg.Audit.RedactKeys)
	}
	want := time.Date(2031, 5, 31, 22, 0, 0, 0, time.UTC)
	if cfg.Plans.UnlimitedUntil == nil || !cfg.Plans.UnlimitedUntil.Equal(want) {
		t.Errorf("unlimited until = %v, want %v", cfg.Plans.UnlimitedUntil, want)
	}
	if cfg.Telemetry.Tracing.Sampler != "ratio" || cfg.Telemetry.Tracing.SampleRatio != 0.25 {
		t.Errorf("tracing = %+v, want ratio 0.25", cfg.Telemetry.Tracing)
	}
}

// TestLoadConfigWithEnvOverrides_NoFile tests loading from defaults and the
// environment alone.
func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("CUSTODIAN_STORAGE_PROVIDER", "mem")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides() failed: %v", err)
	}
	if cfg.Storage.Provider != "mem" {
		t.Errorf("provider = %q, want mem", cfg.Storage.Provider)
	}
}

// TestLoadConfigWithEnvOverrides_Malformed tests that unparsable overrides
// fail loading and name the variable.
func TestLoadConfigWithEnvOverrides_Malformed(t *testing.T) {
	t.Setenv("CUSTODIAN_RETENTION_MAX_DOCS", "lots")
	t.Setenv("CUSTODIAN_SERVER_READ_TIMEOUT", "soon")
	t.Setenv("CUSTODIAN_STORAGE_S3_PATH_STYLE", "maybe")
	t.Setenv("CUSTODIAN_TELEMETRY_TRACING_SAMPLE_RATIO", "half")

	_, err := LoadConfigWithEnvOverrides("")
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	for _, field := range []string{
		"CUSTODIAN_RETENTION_MAX_DOCS",
		"CUSTODIAN_SERVER_READ_TIMEOUT",
		"CUSTODIAN_STORAGE_S3_PATH_STYLE",
		"CUSTODIAN_TELEMETRY_TRACING_SAMPLE_RATIO",
	} {
		if !ve.HasField(field) {
			t.Errorf("missing error for %s in %v", field, ve)
		}
	}
}

// TestSingleton tests Load, GetConfig and ReloadConfig.
func TestSingleton(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })
	SetConfig(nil)

	if GetConfig() != nil {
		t.Fatal("GetConfig() should be nil before Load")
	}

	path := writeConfig(t, "retention:\n  max_docs: 10\n")
	if _, err := Load(path); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got := MustGetConfig().Retention.MaxDocs; got != 10 {
		t.Errorf("max docs = %d, want 10", got)
	}

	if err := os.WriteFile(path, []byte("retention:\n  max_docs: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReloadConfig(path); err == nil {
		t.Error("ReloadConfig() accepted an invalid file")
	}
	if got := GetConfig().Retention.MaxDocs; got != 10 {
		t.Errorf("max docs after failed reload = %d, want 10", got)
	}

	if err := os.WriteFile(path, []byte("retention:\n  max_docs: 20\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := ReloadConfig(path)
	if err != nil {
		t.Fatalf("ReloadConfig() failed: %v", err)
	}
	if cfg != GetConfig() || cfg.Retention.MaxDocs != 20 {
		t.Errorf("reloaded max docs = %d, want 20", GetConfig().Retention.MaxDocs)
	}
}

// TestMustGetConfig_Panics tests the uninitialized case.
func TestMustGetConfig_Panics(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })
	SetConfig(nil)

	defer func() {
		if recover() == nil {
			t.Error("MustGetConfig() did not panic")
		}
	}()
	MustGetConfig()
}
