package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"lexsign/custodian/pkg/config"
	"lexsign/custodian/pkg/plans"
	"lexsign/custodian/pkg/records"
)

func newTestCollector() *Collector {
	return NewCollector(config.MetricsConfig{Namespace: "custodian"}, nil)
}

// TestRetentionMetrics_RunFinished tests run outcome classification and the
// deletion gauges.
func TestRetentionMetrics_RunFinished(t *testing.T) {
	c := newTestCollector()
	finished := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c.Retention.RunFinished(&records.RetentionRun{
		DryRun:        false,
		FinishedAt:    finished,
		DeletedCounts: records.DeletedCounts{SigningFiles: 3, StorageObjects: 9},
	}, 2*time.Second)
	c.Retention.RunFinished(&records.RetentionRun{
		DryRun:     true,
		FinishedAt: finished,
		Errors: []records.RunError{
			{DocumentID: "doc-1", Stage: records.StageGuardrail, Kind: records.KindGuardrailViolation},
		},
	}, time.Second)
	c.Retention.RunFinished(&records.RetentionRun{
		FinishedAt: finished,
		Errors:     []records.RunError{{Scope: "tenant:t1", Stage: records.StageScope, Kind: records.KindScopeResolutionFailure}},
	}, time.Second)

	tests := []struct {
		mode, outcome string
		want          float64
	}{
		{"execute", "success", 1},
		{"dry_run", "document_errors", 1},
		{"execute", "scope_errors", 1},
		{"dry_run", "success", 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(c.Retention.runsTotal.WithLabelValues(tt.mode, tt.outcome))
		if got != tt.want {
			t.Errorf("runs_total{%s,%s} = %v, want %v", tt.mode, tt.outcome, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(c.Retention.lastRunDeleted.WithLabelValues("signing_files")); got != 0 {
		t.Errorf("last_run_deleted{signing_files} = %v, want 0 after the later empty run", got)
	}
	if got := testutil.ToFloat64(c.Retention.lastRunTime.WithLabelValues("execute")); got != float64(finished.Unix()) {
		t.Errorf("last_run_timestamp_seconds = %v", got)
	}
	if got := testutil.ToFloat64(c.Retention.lastRunErrors.WithLabelValues("dry_run")); got != 1 {
		t.Errorf("last_run_errors{dry_run} = %v, want 1", got)
	}
}

// TestRetentionMetrics_DocumentProcessed tests per-scope counting and the
// cardinality cap.
func TestRetentionMetrics_DocumentProcessed(t *testing.T) {
	c := newTestCollector()
	c.Retention.scopes = NewCardinalityLimiter(1)

	c.Retention.DocumentProcessed(records.TenantScope("t1"), "deleted")
	c.Retention.DocumentProcessed(records.TenantScope("t1"), "deleted")
	c.Retention.DocumentProcessed(records.FirmScope("f1"), "guardrail_blocked")

	if got := testutil.ToFloat64(c.Retention.documentsTotal.WithLabelValues("tenant:t1", "deleted")); got != 2 {
		t.Errorf("documents_total{tenant:t1,deleted} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Retention.documentsTotal.WithLabelValues("other", "guardrail_blocked")); got != 1 {
		t.Errorf("documents_total{other,guardrail_blocked} = %v, want 1", got)
	}
}

// TestCollector_WriteToTextfile tests the node exporter output.
func TestCollector_WriteToTextfile(t *testing.T) {
	c := newTestCollector()
	c.Retention.RunFinished(&records.RetentionRun{FinishedAt: time.Now()}, time.Second)

	path := filepath.Join(t.TempDir(), "custodian.prom")
	if err := c.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile() failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `custodian_retention_runs_total{mode="execute",outcome="success"} 1`) {
		t.Errorf("textfile missing runs_total:\n%s", data)
	}
	if strings.Contains(string(data), "go_goroutines") {
		t.Error("textfile contains runtime metrics")
	}

	if err := c.WriteToTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")); err == nil {
		t.Error("WriteToTextfile() into a missing directory succeeded")
	}
}

// TestRequestMetrics_Middleware tests request counting through the handler.
func TestRequestMetrics_Middleware(t *testing.T) {
	c := newTestCollector()
	h := c.Requests.Middleware("/v1/evidence", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "bad" {
			http.Error(w, "bad cursor", http.StatusBadRequest)
			return
		}
		w.Write([]byte("{}"))
	}))

	for _, target := range []string{"/v1/evidence", "/v1/evidence?cursor=bad", "/v1/evidence"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))
	}

	if got := testutil.ToFloat64(c.Requests.requestsTotal.WithLabelValues("/v1/evidence", "GET", "200")); got != 2 {
		t.Errorf("requests_total{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Requests.requestsTotal.WithLabelValues("/v1/evidence", "GET", "400")); got != 1 {
		t.Errorf("requests_total{400} = %v, want 1", got)
	}
}

// TestCacheMetrics_Instrument tests hit and miss counting.
func TestCacheMetrics_Instrument(t *testing.T) {
	c := newTestCollector()
	cache := c.Cache.Instrument("memory", plans.NewMemoryCache())
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "tenant:t1"); ok {
		t.Fatal("empty cache hit")
	}
	cache.Set(ctx, "tenant:t1", &records.ResolvedPlan{PlanKey: "BASIC"}, time.Minute)
	if plan, ok := cache.Get(ctx, "tenant:t1"); !ok || plan.PlanKey != "BASIC" {
		t.Fatalf("Get() = %v, %v", plan, ok)
	}
	cache.Delete(ctx, "tenant:t1")

	if got := testutil.ToFloat64(c.Cache.hitsTotal.WithLabelValues("memory")); got != 1 {
		t.Errorf("hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Cache.missesTotal.WithLabelValues("memory")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Cache.invalidationsTotal.WithLabelValues("memory")); got != 1 {
		t.Errorf("invalidations = %v, want 1", got)
	}
}

// TestCollector_Handler tests the scrape endpoint.
func TestCollector_Handler(t *testing.T) {
	c := newTestCollector()
	c.RegisterRuntimeCollectors()
	c.Requests.Observe("/healthz", "GET", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"custodian_http_requests_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape output missing %s", want)
		}
	}
}

// TestCardinalityLimiter tests the cap.
func TestCardinalityLimiter(t *testing.T) {
	cl := NewCardinalityLimiter(2)
	if !cl.Allow("a") || !cl.Allow("b") || !cl.Allow("a") {
		t.Error("values under the limit rejected")
	}
	if cl.Allow("c") {
		t.Error("value over the limit allowed")
	}
	if cl.Label("c") != "other" || cl.Count() != 2 {
		t.Errorf("Label(c) = %q, Count() = %d", cl.Label("c"), cl.Count())
	}
}
