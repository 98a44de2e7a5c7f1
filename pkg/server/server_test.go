package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"lexsign/custodian/pkg/audit"
	"lexsign/custodian/pkg/compliance"
	"lexsign/custodian/pkg/config"
	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
	"lexsign/custodian/pkg/store/storetest"
	"lexsign/custodian/pkg/telemetry/health"
	"lexsign/custodian/pkg/telemetry/metrics"
)

var base = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	st      *store.Store
	handler http.Handler
}

// newFixture seeds two signed documents with five chained events each.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := storetest.Open(t, false)

	for _, id := range []string{"doc-a", "doc-b"} {
		signedAt := base
		err := st.InsertSigningFile(ctx, &records.SigningFile{
			ID:        id,
			TenantID:  "t1",
			CaseID:    "case-" + id,
			Status:    records.StatusSigned,
			CreatedAt: base.Add(-time.Hour),
			SignedAt:  &signedAt,
			SignedKey: "signed/" + id + ".pdf",
		})
		if err != nil {
			t.Fatalf("InsertSigningFile() failed: %v", err)
		}
	}

	chain := audit.NewChain(st, nil)
	for i := 0; i < 10; i++ {
		doc := "doc-a"
		if i%2 == 1 {
			doc = "doc-b"
		}
		_, err := chain.Append(ctx, records.AuditEvent{
			EventID:       fmt.Sprintf("evt-%02d", i),
			OccurredAtUTC: base.Add(time.Duration(i) * time.Minute),
			EventType:     "document.viewed",
			SigningFileID: doc,
			ActorType:     records.ActorUser,
			Success:       true,
		})
		if err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	cfg := config.Default()
	collector := metrics.NewCollector(cfg.Telemetry.Metrics, prometheus.NewRegistry())
	checker := health.New(time.Second)
	checker.Register("database", st.DB().PingContext)

	srv := New(cfg.Server, Options{
		Reader:      compliance.NewReader(st, cfg.Storage.DefaultBucket),
		Querier:     st,
		Checker:     checker,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
	})
	return &fixture{st: st, handler: srv.Handler()}
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

type auditPage struct {
	Items      []records.AuditEvent `json:"items"`
	NextCursor string               `json:"nextCursor"`
}

// TestListAuditEvents_Pages tests walking every page through the API.
func TestListAuditEvents_Pages(t *testing.T) {
	f := newFixture(t)

	seen := map[string]bool{}
	token := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
		target := "/v1/audit-events?pageSize=3"
		if token != "" {
			target += "&cursor=" + url.QueryEscape(token)
		}
		rec := f.get(t, target)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		page := decode[auditPage](t, rec)
		for _, e := range page.Items {
			if seen[e.EventID] {
				t.Errorf("event %s returned twice", e.EventID)
			}
			seen[e.EventID] = true
		}
		if page.NextCursor == "" {
			break
		}
		token = page.NextCursor
	}
	if len(seen) != 10 {
		t.Errorf("saw %d events, want 10", len(seen))
	}
}

// TestListAuditEvents_Filters tests query parameter mapping.
func TestListAuditEvents_Filters(t *testing.T) {
	f := newFixture(t)

	from := url.QueryEscape(base.Add(2 * time.Minute).Format(time.RFC3339))
	to := url.QueryEscape(base.Add(6 * time.Minute).Format(time.RFC3339))
	rec := f.get(t, "/v1/audit-events?signingFileId=doc-a&from="+from+"&to="+to)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	page := decode[auditPage](t, rec)
	var ids []string
	for _, e := range page.Items {
		ids = append(ids, e.EventID)
	}
	// doc-a holds the even events; the range keeps minutes 2..5.
	if strings.Join(ids, ",") != "evt-04,evt-02" {
		t.Errorf("ids = %v, want [evt-04 evt-02]", ids)
	}
	if page.NextCursor != "" {
		t.Errorf("nextCursor = %q on the last page", page.NextCursor)
	}
}

// TestListAuditEvents_BadParams tests that malformed input answers 400.
func TestListAuditEvents_BadParams(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		query     string
		wantParam string
	}{
		{"bad cursor", "cursor=not-a-cursor", "cursor"},
		{"bad time", "from=yesterday", "from"},
		{"bad bool", "success=perhaps", "success"},
		{"bad page size", "pageSize=ten", "pageSize"},
		{"unknown actor", "actorType=robot", "actorType"},
		{"empty range", "from=2025-04-02T00:00:00Z&to=2025-04-01T00:00:00Z", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.get(t, "/v1/audit-events?"+tt.query)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
			}
			body := decode[errorResponse](t, rec)
			if body.Error == "" {
				t.Error("error message is empty")
			}
			if tt.wantParam != "" && body.Param != tt.wantParam {
				t.Errorf("param = %q, want %q", body.Param, tt.wantParam)
			}
		})
	}
}

// TestListEvidence tests the evidence listing and its filters.
func TestListEvidence(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/v1/evidence?tenantId=t1&legalHold=false")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	page := decode[struct {
		Items []compliance.EvidenceDocument `json:"items"`
	}](t, rec)
	if len(page.Items) != 2 {
		t.Fatalf("got %d documents, want 2", len(page.Items))
	}
	if page.Items[0].ID != "doc-b" {
		t.Errorf("first item = %s, want doc-b (id descending on equal signedAt)", page.Items[0].ID)
	}

	rec = f.get(t, "/v1/evidence?tenantId=other")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"items":[]}` {
		t.Errorf("empty listing body = %s", got)
	}
}

// TestVerifyChain tests intact, tampered and unknown chains.
func TestVerifyChain(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/v1/signing-files/doc-a/audit-chain/verify")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[audit.VerifyResult](t, rec)
	if !res.Valid || res.Total != 5 {
		t.Errorf("result = %+v, want 5 intact entries", res)
	}

	ctx := context.Background()
	if _, err := f.st.ExecContext(ctx, `DROP TRIGGER audit_events_no_update`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	_, err := f.st.ExecContext(ctx,
		`UPDATE audit_events SET event_type = 'document.deleted' WHERE event_id = 'evt-02'`)
	if err != nil {
		t.Fatalf("tamper: %v", err)
	}
	res = decode[audit.VerifyResult](t, f.get(t, "/v1/signing-files/doc-a/audit-chain/verify"))
	if res.Valid || res.FirstBroken != "evt-02" {
		t.Errorf("result = %+v, want broken at evt-02", res)
	}

	if rec := f.get(t, "/v1/signing-files/missing/audit-chain/verify"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown document status = %d, want 404", rec.Code)
	}
}

// TestHealthz tests the database check behind /healthz.
func TestHealthz(t *testing.T) {
	f := newFixture(t)

	rec := f.get(t, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	report := decode[health.Report](t, rec)
	if report.Checks["database"].Status != health.StatusOK {
		t.Errorf("database check = %+v", report.Checks["database"])
	}

	f.st.Close()
	if rec := f.get(t, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after close = %d, want 503", rec.Code)
	}
}

// TestMiddleware tests request ids, metrics and the error fallbacks.
func TestMiddleware(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/audit-events", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("request id = %q, want req-123", got)
	}
	if got := f.get(t, "/healthz").Header().Get(RequestIDHeader); got == "" {
		t.Error("no request id assigned")
	}

	rec = f.get(t, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rec.Code)
	}
	want := `custodian_http_requests_total{code="200",method="GET",route="/v1/audit-events"} 1`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("/metrics missing %s", want)
	}

	if rec := f.get(t, "/v2/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown route = %d, want 404", rec.Code)
	}
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/evidence", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST = %d, want 405", rec.Code)
	}
}

// TestCORS tests preflight handling when CORS is enabled.
func TestCORS(t *testing.T) {
	cfg := config.Default().Server
	cfg.CORS = config.CORSConfig{Enabled: true, AllowedOrigins: []string{"https://review.example"}, MaxAge: 600}
	srv := New(cfg, Options{})

	req := httptest.NewRequest(http.MethodOptions, "/healthz", nil)
	req.Header.Set("Origin", "https://review.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://review.example" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("Max-Age = %q, want 600", got)
	}
}

// TestStartShutdown tests the listener lifecycle.
func TestStartShutdown(t *testing.T) {
	cfg := config.Default().Server
	cfg.ListenAddress = "127.0.0.1:0"
	srv := New(cfg, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == nil {
		if time.Now().After(deadline) {
			t.Fatal("server did not start")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !srv.IsRunning() {
		t.Error("IsRunning() = false after start")
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
