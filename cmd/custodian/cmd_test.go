package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"lexsign/custodian/pkg/audit"
	"lexsign/custodian/pkg/cli"
	"lexsign/custodian/pkg/config"
	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// resetFlags restores every flag to its default so commands can run more
// than once in one process.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns stdout, stderr and
// the exit code.
func execute(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	code := Execute()
	return stdout.String(), stderr.String(), code
}

type env struct {
	dir    string
	config string
	dsn    string
}

// newEnv writes a configuration backed by a SQLite file and in-memory
// object storage, and migrates the schema.
func newEnv(t *testing.T) *env {
	t.Helper()

	logger := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(logger)
		config.SetConfig(nil)
	})

	dir := t.TempDir()
	e := &env{
		dir:    dir,
		config: filepath.Join(dir, "custodian.yaml"),
		dsn:    filepath.Join(dir, "custodian.db"),
	}
	content := fmt.Sprintf(`database:
  dsn: %q
storage:
  provider: mem
telemetry:
  logging:
    level: error
`, e.dsn)
	if err := os.WriteFile(e.config, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	out, stderr, code := execute(t, "db", "migrate", "--config", e.config)
	if code != cli.ExitOK {
		t.Fatalf("db migrate exited %d: %s", code, stderr)
	}
	if !strings.Contains(out, "Schema ready") {
		t.Fatalf("db migrate output = %q", out)
	}
	return e
}

// seedChain inserts a signed document with n chained audit events.
func (e *env) seedChain(t *testing.T, docID string, n int) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(&store.Config{Driver: store.DriverSQLite3, DSN: e.dsn})
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	defer st.Close()

	signedAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	err = st.InsertSigningFile(ctx, &records.SigningFile{
		ID:        docID,
		TenantID:  "t1",
		Status:    records.StatusSigned,
		CreatedAt: signedAt.Add(-time.Hour),
		SignedAt:  &signedAt,
		SignedKey: "signed/" + docID + ".pdf",
	})
	if err != nil {
		t.Fatalf("InsertSigningFile() failed: %v", err)
	}

	chain := audit.NewChain(st, nil)
	for i := 0; i < n; i++ {
		_, err := chain.Append(ctx, records.AuditEvent{
			EventID:       fmt.Sprintf("evt-%s-%d", docID, i),
			OccurredAtUTC: signedAt.Add(time.Duration(i) * time.Minute),
			EventType:     "document.viewed",
			SigningFileID: docID,
			ActorType:     records.ActorUser,
			Success:       true,
		})
		if err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}
}

// TestVersion tests the version command output.
func TestVersion(t *testing.T) {
	out, _, code := execute(t, "version")
	if code != cli.ExitOK {
		t.Fatalf("exit code = %d, want 0", code)
	}
	for _, want := range []string{"Custodian " + Version, "Git Commit:", "Go Version:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

// TestCompletion tests script generation and shell validation.
func TestCompletion(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		out, stderr, code := execute(t, "completion", shell)
		if code != cli.ExitOK {
			t.Errorf("completion %s exited %d: %s", shell, code, stderr)
		}
		if !strings.Contains(out, "custodian") {
			t.Errorf("completion %s output does not mention the command", shell)
		}
	}

	if _, _, code := execute(t, "completion", "tcsh"); code == cli.ExitOK {
		t.Error("completion tcsh succeeded")
	}
}

// TestDBMigrate_Repeatable tests that migrating an existing schema succeeds.
func TestDBMigrate_Repeatable(t *testing.T) {
	e := newEnv(t)

	out, stderr, code := execute(t, "db", "migrate", "--config", e.config, "--firm-tables=false")
	if code != cli.ExitOK {
		t.Fatalf("second migrate exited %d: %s", code, stderr)
	}
	if !strings.Contains(out, "driver sqlite3") {
		t.Errorf("output = %q", out)
	}
}

// TestConfigErrors tests that a broken configuration exits with the
// configuration status.
func TestConfigErrors(t *testing.T) {
	t.Cleanup(func() { config.SetConfig(nil) })

	_, stderr, code := execute(t, "plans", "list", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	if code != cli.ExitConfig {
		t.Errorf("exit code = %d, want %d (stderr: %s)", code, cli.ExitConfig, stderr)
	}
	if !strings.Contains(stderr, "Error:") {
		t.Errorf("stderr = %q, want an error line", stderr)
	}
}

// TestRetentionRun_DryRun tests that the default run reports without
// deleting.
func TestRetentionRun_DryRun(t *testing.T) {
	e := newEnv(t)
	e.seedChain(t, "doc-1", 2)

	out, stderr, code := execute(t, "retention", "run", "--config", e.config,
		"--tenant", "t1", "--now", "2031-01-01T00:00:00Z")
	if code != cli.ExitOK {
		t.Fatalf("exit code = %d: %s", code, stderr)
	}

	var run struct {
		RunID         string `json:"runId"`
		DryRun        bool   `json:"dryRun"`
		DeletedCounts struct {
			SigningFiles int64 `json:"signingFiles"`
		} `json:"deletedCounts"`
	}
	if err := json.Unmarshal([]byte(out), &run); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if run.RunID == "" || !run.DryRun {
		t.Errorf("run = %+v, want a dry run with an id", run)
	}
	if run.DeletedCounts.SigningFiles != 0 {
		t.Errorf("dry run deleted %d documents", run.DeletedCounts.SigningFiles)
	}

	out, _, code = execute(t, "audit", "verify", "doc-1", "--config", e.config)
	if code != cli.ExitOK || !strings.Contains(out, `"total": 2`) {
		t.Errorf("document changed by a dry run (exit %d):\n%s", code, out)
	}
}

// TestRetentionRun_Rejections tests flag and gate validation.
func TestRetentionRun_Rejections(t *testing.T) {
	e := newEnv(t)
	t.Setenv(cli.EnvAllowDelete, "")
	t.Setenv(cli.EnvConfirm, "")

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{"execute without gates", []string{"--execute"}, cli.ExitConfig, cli.EnvAllowDelete},
		{"dry run disabled", []string{"--dry-run=false"}, cli.ExitConfig, "--execute"},
		{"dry run and execute", []string{"--dry-run", "--execute"}, cli.ExitFailure, "none of the others"},
		{"tenant and firm", []string{"--tenant", "t1", "--firm", "f1"}, cli.ExitFailure, "none of the others"},
		{"bad now", []string{"--now", "yesterday"}, cli.ExitConfig, "RFC 3339"},
		{"zero max docs", []string{"--max-docs", "0"}, cli.ExitConfig, "--max-docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"retention", "run", "--config", e.config}, tt.args...)
			_, stderr, code := execute(t, args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d (stderr: %s)", code, tt.wantCode, stderr)
			}
			if !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want it to mention %q", stderr, tt.wantErr)
			}
		})
	}
}

// TestRetentionRuns tests that finished runs are listed.
func TestRetentionRuns(t *testing.T) {
	e := newEnv(t)

	if _, stderr, code := execute(t, "retention", "run", "--config", e.config, "--tenant", "t1"); code != cli.ExitOK {
		t.Fatalf("retention run exited %d: %s", code, stderr)
	}

	out, stderr, code := execute(t, "retention", "runs", "--config", e.config)
	if code != cli.ExitOK {
		t.Fatalf("retention runs exited %d: %s", code, stderr)
	}
	if !strings.Contains(out, "RUN ID") || !strings.Contains(out, "dry-run") || !strings.Contains(out, "tenant:t1") {
		t.Errorf("output =\n%s", out)
	}
}

// TestPlans tests seeding, listing and resolving plans.
func TestPlans(t *testing.T) {
	e := newEnv(t)

	planFile := filepath.Join(e.dir, "plans.yaml")
	err := os.WriteFile(planFile, []byte(`plans:
  - plan_key: PRO
    name: Professional
    retention_days_core: 365
    retention_days_pii: 180
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	out, stderr, code := execute(t, "plans", "seed", "--config", e.config, "-f", planFile)
	if code != cli.ExitOK {
		t.Fatalf("plans seed exited %d: %s", code, stderr)
	}
	if !strings.Contains(out, "Seeded 1 plans") {
		t.Errorf("seed output = %q", out)
	}

	out, _, code = execute(t, "plans", "list", "--config", e.config)
	if code != cli.ExitOK || !strings.Contains(out, "PRO") || !strings.Contains(out, "Professional") {
		t.Errorf("plans list (exit %d) =\n%s", code, out)
	}

	out, stderr, code = execute(t, "plans", "show", "--config", e.config, "--tenant", "t1", "-o", "json")
	if code != cli.ExitOK {
		t.Fatalf("plans show exited %d: %s", code, stderr)
	}
	var shown map[string]any
	if err := json.Unmarshal([]byte(out), &shown); err != nil {
		t.Fatalf("plans show output is not JSON: %v\n%s", err, out)
	}
	if shown["scope"] != "tenant:t1" {
		t.Errorf("scope = %v, want tenant:t1", shown["scope"])
	}

	if _, _, code := execute(t, "plans", "show", "--config", e.config); code != cli.ExitConfig {
		t.Errorf("plans show without scope exited %d, want %d", code, cli.ExitConfig)
	}
}

// TestUsage tests recording usage and reading it back against the quota.
func TestUsage(t *testing.T) {
	e := newEnv(t)

	out, stderr, code := execute(t, "usage", "record", "--config", e.config,
		"--tenant", "t1", "--metric", records.MetricOTPSMS, "--quantity", "3", "--at", "2025-05-10T08:00:00Z")
	if code != cli.ExitOK {
		t.Fatalf("usage record exited %d: %s", code, stderr)
	}
	if !strings.Contains(out, `"quantity": 3`) {
		t.Errorf("usage record output =\n%s", out)
	}

	out, stderr, code = execute(t, "usage", "show", "--config", e.config,
		"--tenant", "t1", "--now", "2025-05-20T00:00:00Z", "-o", "json")
	if code != cli.ExitOK {
		t.Fatalf("usage show exited %d: %s", code, stderr)
	}
	var report struct {
		Scope   string `json:"scope"`
		Metrics []struct {
			Metric string `json:"metric"`
			Used   int64  `json:"used"`
		} `json:"metrics"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("usage show output is not JSON: %v\n%s", err, out)
	}
	if len(report.Metrics) != len(usageMetrics) {
		t.Fatalf("got %d metrics, want %d", len(report.Metrics), len(usageMetrics))
	}
	for _, m := range report.Metrics {
		want := int64(0)
		if m.Metric == records.MetricOTPSMS {
			want = 3
		}
		if m.Used != want {
			t.Errorf("%s used = %d, want %d", m.Metric, m.Used, want)
		}
	}

	_, _, code = execute(t, "usage", "record", "--config", e.config, "--tenant", "t1", "--metric", "fax_pages")
	if code != cli.ExitFailure {
		t.Errorf("unknown metric exited %d, want %d", code, cli.ExitFailure)
	}
}

// TestAuditVerify tests chain verification output and argument checks.
func TestAuditVerify(t *testing.T) {
	e := newEnv(t)
	e.seedChain(t, "doc-1", 3)

	out, stderr, code := execute(t, "audit", "verify", "doc-1", "--config", e.config)
	if code != cli.ExitOK {
		t.Fatalf("audit verify exited %d: %s", code, stderr)
	}
	var results []audit.VerifyResult
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 1 || !results[0].Valid || results[0].Total != 3 {
		t.Errorf("results = %+v", results)
	}
	if results[0].Entries != nil {
		t.Errorf("entries included without --entries")
	}

	if _, _, code := execute(t, "audit", "verify", "--config", e.config); code != cli.ExitConfig {
		t.Errorf("verify without ids exited %d, want %d", code, cli.ExitConfig)
	}
}

// TestAuditExport tests CSV export with filters.
func TestAuditExport(t *testing.T) {
	e := newEnv(t)
	e.seedChain(t, "doc-1", 3)
	e.seedChain(t, "doc-2", 2)

	out, stderr, code := execute(t, "audit", "export", "--config", e.config,
		"--format", "csv", "--signing-file", "doc-1")
	if code != cli.ExitOK {
		t.Fatalf("audit export exited %d: %s", code, stderr)
	}
	if got := strings.Count(out, "evt-doc-1-"); got != 3 {
		t.Errorf("exported %d doc-1 events, want 3:\n%s", got, out)
	}
	if strings.Contains(out, "evt-doc-2-") {
		t.Errorf("export ignored the signing file filter:\n%s", out)
	}

	path := filepath.Join(e.dir, "all.json")
	if _, stderr, code := execute(t, "audit", "export", "--config", e.config, "-o", path); code != cli.ExitOK {
		t.Fatalf("audit export to file exited %d: %s", code, stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), `"evt-doc-`); got != 5 {
		t.Errorf("exported %d events, want 5", got)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"bad format", []string{"--format", "pdf"}},
		{"bad from", []string{"--from", "last week"}},
		{"bad success", []string{"--success", "maybe"}},
		{"bad actor type", []string{"--actor-type", "robot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"audit", "export", "--config", e.config}, tt.args...)
			if _, stderr, code := execute(t, args...); code != cli.ExitConfig {
				t.Errorf("exit code = %d, want %d (stderr: %s)", code, cli.ExitConfig, stderr)
			}
		})
	}
}
