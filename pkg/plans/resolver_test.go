package plans

import (
	"context"
	"testing"
	"time"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
	"lexsign/custodian/pkg/store/storetest"
)

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestResolver(t *testing.T, firmTables bool, opts Options) (*Resolver, *store.Store) {
	t.Helper()
	st := storetest.Open(t, firmTables)
	if opts.RetentionFloorDays == 0 {
		opts.RetentionFloorDays = 60
	}
	r := NewResolver(st, nil, opts)
	r.now = func() time.Time { return fixedNow }
	return r, st
}

func seedPlans(t *testing.T, st *store.Store, plans ...records.SubscriptionPlan) {
	t.Helper()
	if err := Seed(context.Background(), st, plans); err != nil {
		t.Fatalf("Seed() failed: %v", err)
	}
}

// TestEffectiveRetention tests the retention floor for every combination.
func TestEffectiveRetention(t *testing.T) {
	tests := []struct {
		name  string
		value *int
		other *int
		floor int
		want  int
	}{
		{"value above floor", intp(365), nil, 60, 365},
		{"value below floor", intp(30), nil, 60, 60},
		{"zero value", intp(0), intp(400), 60, 60},
		{"negative value", intp(-5), nil, 60, 60},
		{"null falls back to other", nil, intp(90), 60, 90},
		{"null other below floor", nil, intp(10), 60, 60},
		{"both null", nil, nil, 60, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EffectiveRetention(tt.value, tt.other, tt.floor)
			if got != tt.want {
				t.Errorf("EffectiveRetention() = %d, want %d", got, tt.want)
			}
			if got < tt.floor {
				t.Errorf("EffectiveRetention() = %d is below floor %d", got, tt.floor)
			}
		})
	}
}

// TestResolve_ActiveSubscription tests resolution through a tenant subscription.
func TestResolve_ActiveSubscription(t *testing.T) {
	r, st := newTestResolver(t, false, Options{})
	ctx := context.Background()

	seedPlans(t, st,
		records.SubscriptionPlan{PlanKey: "BASIC", Name: "Basic", RetentionDaysCore: intp(365), RetentionDaysPii: intp(90)},
		records.SubscriptionPlan{
			PlanKey: "PRO", Name: "Pro",
			RetentionDaysCore: intp(3650), RetentionDaysPii: intp(10),
			Quotas:       records.Quotas{DocumentsPerMonth: int64p(500)},
			FeatureFlags: map[string]any{"bulk_send": true},
			Pricing:      records.Pricing{PriceCents: 4900, Currency: "EUR"},
		},
	)
	if err := st.PutSubscription(ctx, &records.Subscription{Scope: records.TenantScope("t1"), PlanKey: "PRO"}); err != nil {
		t.Fatalf("PutSubscription() failed: %v", err)
	}

	plan, err := r.Resolve(ctx, records.TenantScope("t1"), store.SchemaCapabilities{})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if plan.PlanKey != "PRO" || plan.Name != "Pro" {
		t.Errorf("plan = %s/%s, want PRO/Pro", plan.PlanKey, plan.Name)
	}
	if plan.EffectiveRetentionDaysCore != 3650 {
		t.Errorf("core retention = %d, want 3650", plan.EffectiveRetentionDaysCore)
	}
	if plan.EffectiveRetentionDaysPii != 60 {
		t.Errorf("pii retention = %d, want floor 60", plan.EffectiveRetentionDaysPii)
	}
	if plan.Quotas.DocumentsPerMonth == nil || *plan.Quotas.DocumentsPerMonth != 500 {
		t.Errorf("documents quota = %v, want 500", plan.Quotas.DocumentsPerMonth)
	}
	if plan.Quotas.StorageGB != nil {
		t.Errorf("storage quota = %v, want nil (no limit)", *plan.Quotas.StorageGB)
	}
	if plan.FeatureFlags["bulk_send"] != true {
		t.Errorf("feature flags = %v", plan.FeatureFlags)
	}
	if plan.Pricing.PriceCents != 4900 || plan.Pricing.Currency != "EUR" {
		t.Errorf("pricing = %+v", plan.Pricing)
	}
}

// TestResolve_DefaultPlan tests the fallback when no subscription exists.
func TestResolve_DefaultPlan(t *testing.T) {
	r, st := newTestResolver(t, false, Options{})
	seedPlans(t, st, records.SubscriptionPlan{PlanKey: "BASIC", Name: "Basic", RetentionDaysPii: intp(120)})

	plan, err := r.Resolve(context.Background(), records.TenantScope("nobody"), store.SchemaCapabilities{})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if plan.PlanKey != "BASIC" || plan.Synthetic {
		t.Errorf("plan = %+v, want stored BASIC", plan)
	}
	// core is null and falls back to the PII value
	if plan.EffectiveRetentionDaysCore != 120 || plan.EffectiveRetentionDaysPii != 120 {
		t.Errorf("retention = %d/%d, want 120/120", plan.EffectiveRetentionDaysCore, plan.EffectiveRetentionDaysPii)
	}
}

// TestResolve_SyntheticPlan tests the minimal plan when no plan rows exist.
func TestResolve_SyntheticPlan(t *testing.T) {
	r, st := newTestResolver(t, false, Options{})
	if err := st.PutSubscription(context.Background(), &records.Subscription{Scope: records.TenantScope("t1"), PlanKey: "GONE"}); err != nil {
		t.Fatalf("PutSubscription() failed: %v", err)
	}

	plan, err := r.Resolve(context.Background(), records.TenantScope("t1"), store.SchemaCapabilities{})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}
	if !plan.Synthetic || plan.PlanKey != "BASIC" {
		t.Errorf("plan = %+v, want synthetic BASIC", plan)
	}
	if plan.EffectiveRetentionDaysPii != 60 || plan.EffectiveRetentionDaysCore != 60 {
		t.Errorf("retention = %d/%d, want floor", plan.EffectiveRetentionDaysCore, plan.EffectiveRetentionDaysPii)
	}
	if plan.Quotas != (records.Quotas{}) {
		t.Errorf("quotas = %+v, want empty", plan.Quotas)
	}
}

// TestResolve_FirmWithoutFirmTables tests graceful degradation.
func TestResolve_FirmWithoutFirmTables(t *testing.T) {
	r, _ := newTestResolver(t, false, Options{})

	plan, err := r.Resolve(context.Background(), records.FirmScope("f1"), store.SchemaCapabilities{})
	if err != nil {
		t.Fatalf("Resolve() error = %v, want nil", err)
	}
	if plan != nil {
		t.Errorf("Resolve() = %+v, want nil", plan)
	}

	// Capabilities claiming firm tables on a tenant-only schema still degrade.
	plan, err = r.Resolve(context.Background(), records.FirmScope("f1"), store.SchemaCapabilities{FirmTables: true})
	if err != nil || plan != nil {
		t.Errorf("Resolve() = %v, %v; want nil, nil", plan, err)
	}
}

// TestResolve_UnlimitedOverride tests firm-level and environment-level overrides.
func TestResolve_UnlimitedOverride(t *testing.T) {
	envUntil := fixedNow.Add(24 * time.Hour)
	r, st := newTestResolver(t, true, Options{DefaultFirmKey: "acme", UnlimitedUntil: &envUntil})
	ctx := context.Background()
	caps := store.SchemaCapabilities{FirmTables: true}

	seedPlans(t, st, records.SubscriptionPlan{
		PlanKey: "BASIC", Name: "Basic", RetentionDaysPii: intp(90),
		Quotas: records.Quotas{DocumentsPerMonth: int64p(10), Users: int64p(3)},
	})
	for _, f := range []records.Firm{
		{ID: "f-acme", FirmKey: "acme", TenantID: "t1", Name: "Acme"},
		{ID: "f-row", FirmKey: "row", TenantID: "t1", Name: "Row"},
		{ID: "f-expired", FirmKey: "expired", TenantID: "t1", Name: "Expired"},
		{ID: "f-plain", FirmKey: "plain", TenantID: "t1", Name: "Plain"},
	} {
		f := f
		if err := st.InsertFirm(ctx, &f); err != nil {
			t.Fatalf("InsertFirm() failed: %v", err)
		}
	}
	future := fixedNow.Add(48 * time.Hour)
	past := fixedNow.Add(-time.Hour)
	if err := st.SetFirmOverride(ctx, "f-row", &future); err != nil {
		t.Fatalf("SetFirmOverride() failed: %v", err)
	}
	if err := st.SetFirmOverride(ctx, "f-expired", &past); err != nil {
		t.Fatalf("SetFirmOverride() failed: %v", err)
	}

	tests := []struct {
		firm      string
		unlimited bool
	}{
		{"f-acme", true},
		{"f-row", true},
		{"f-expired", false},
		{"f-plain", false},
	}

	for _, tt := range tests {
		t.Run(tt.firm, func(t *testing.T) {
			plan, err := r.Resolve(ctx, records.FirmScope(tt.firm), caps)
			if err != nil {
				t.Fatalf("Resolve() failed: %v", err)
			}
			if got := plan.FeatureFlags["unlimited"] == true; got != tt.unlimited {
				t.Errorf("unlimited = %v, want %v", got, tt.unlimited)
			}
			if tt.unlimited {
				if plan.Quotas.DocumentsPerMonth != nil || plan.Quotas.Users != nil {
					t.Errorf("quotas = %+v, want all nil", plan.Quotas)
				}
			} else if plan.Quotas.DocumentsPerMonth == nil || *plan.Quotas.DocumentsPerMonth != 10 {
				t.Errorf("documents quota = %v, want 10", plan.Quotas.DocumentsPerMonth)
			}
			if plan.EffectiveRetentionDaysPii != 90 {
				t.Errorf("pii retention = %d, want 90 (unaffected by override)", plan.EffectiveRetentionDaysPii)
			}
		})
	}
}

// TestResolve_Cache tests that cached plans are reused until invalidated.
func TestResolve_Cache(t *testing.T) {
	st := storetest.Open(t, false)
	cache := NewMemoryCache()
	r := NewResolver(st, cache, Options{RetentionFloorDays: 60, CacheTTL: time.Minute})
	ctx := context.Background()
	scope := records.TenantScope("t1")

	seedPlans(t, st, records.SubscriptionPlan{PlanKey: "BASIC", Name: "Basic", RetentionDaysPii: intp(100)})
	first, err := r.Resolve(ctx, scope, store.SchemaCapabilities{})
	if err != nil {
		t.Fatalf("Resolve() failed: %v", err)
	}

	seedPlans(t, st, records.SubscriptionPlan{PlanKey: "BASIC", Name: "Basic", RetentionDaysPii: intp(200)})
	cached, _ := r.Resolve(ctx, scope, store.SchemaCapabilities{})
	if cached.EffectiveRetentionDaysPii != first.EffectiveRetentionDaysPii {
		t.Errorf("expected cached value %d, got %d", first.EffectiveRetentionDaysPii, cached.EffectiveRetentionDaysPii)
	}

	r.Invalidate(ctx, scope)
	fresh, _ := r.Resolve(ctx, scope, store.SchemaCapabilities{})
	if fresh.EffectiveRetentionDaysPii != 200 {
		t.Errorf("after Invalidate got %d, want 200", fresh.EffectiveRetentionDaysPii)
	}
}

// TestParsePlans tests plans.yaml parsing.
func TestParsePlans(t *testing.T) {
	data := []byte(`
plans:
  - plan_key: BASIC
    retention_days_pii: 60
    quotas:
      documents_per_month: 25
  - plan_key: PRO
    name: Professional
    retention_days_core: 3650
    feature_flags:
      bulk_send: true
    pricing:
      price_cents: 4900
      currency: EUR
`)
	plans, err := ParsePlans(data)
	if err != nil {
		t.Fatalf("ParsePlans() failed: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("got %d plans, want 2", len(plans))
	}
	if plans[0].Name != "BASIC" || plans[0].Pricing.Currency != "USD" {
		t.Errorf("defaults not applied: %+v", plans[0])
	}
	if plans[0].Quotas.DocumentsPerMonth == nil || *plans[0].Quotas.DocumentsPerMonth != 25 {
		t.Errorf("quota not parsed: %+v", plans[0].Quotas)
	}
	if plans[1].FeatureFlags["bulk_send"] != true {
		t.Errorf("feature flags not parsed: %v", plans[1].FeatureFlags)
	}

	if _, err := ParsePlans([]byte("plans:\n  - name: x\n")); err == nil {
		t.Error("expected error for missing plan_key")
	}
	if _, err := ParsePlans([]byte("plans:\n  - plan_key: A\n  - plan_key: A\n")); err == nil {
		t.Error("expected error for duplicate plan_key")
	}
}
