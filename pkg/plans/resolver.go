package plans

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// Options configures plan resolution.
type Options struct {
	// DefaultPlanKey is used when a scope has no active subscription.
	DefaultPlanKey string

	// RetentionFloorDays is the platform-wide legal minimum for both
	// retention categories.
	RetentionFloorDays int

	// DefaultFirmKey and UnlimitedUntil form the environment-level
	// unlimited override. It applies only to the firm with this key.
	DefaultFirmKey string
	UnlimitedUntil *time.Time

	// CacheTTL bounds how long a resolved plan is reused.
	CacheTTL time.Duration

	// Clock overrides the wall clock used for subscription windows and
	// override expiry. Batch runs with --now set it.
	Clock func() time.Time
}

// Resolver produces the effective plan for a tenant or firm.
type Resolver struct {
	store  *store.Store
	cache  Cache
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil cache disables caching.
func NewResolver(st *store.Store, cache Cache, opts Options) *Resolver {
	if cache == nil {
		cache = NopCache{}
	}
	if opts.DefaultPlanKey == "" {
		opts.DefaultPlanKey = "BASIC"
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Resolver{
		store:  st,
		cache:  cache,
		opts:   opts,
		now:    now,
		logger: slog.Default().With("component", "plans.resolver"),
	}
}

// Resolve returns the effective plan for scope. For a firm scope on a
// deployment without the firm tables it returns (nil, nil).
func (r *Resolver) Resolve(ctx context.Context, scope records.Scope, caps store.SchemaCapabilities) (*records.ResolvedPlan, error) {
	if scope.Kind == records.ScopeFirm && !caps.HasFirmTables() {
		r.logger.Debug("firm tables absent, firm plan unresolved", "scope", scope.String())
		return nil, nil
	}

	key := cacheKey(scope)
	if plan, ok := r.cache.Get(ctx, key); ok {
		return plan, nil
	}

	plan, err := r.resolve(ctx, scope)
	if err != nil {
		if store.IsUndefinedTable(err) {
			r.logger.Warn("schema not ready for plan resolution", "scope", scope.String(), "error", err)
			return nil, nil
		}
		return nil, err
	}

	r.cache.Set(ctx, key, plan, r.opts.CacheTTL)
	return plan, nil
}

// Invalidate drops the cached plan of scope.
func (r *Resolver) Invalidate(ctx context.Context, scope records.Scope) {
	r.cache.Delete(ctx, cacheKey(scope))
}

func (r *Resolver) resolve(ctx context.Context, scope records.Scope) (*records.ResolvedPlan, error) {
	now := r.now()

	planKey, err := r.activePlanKey(ctx, scope, now)
	if err != nil {
		return nil, err
	}
	if planKey == "" {
		planKey = r.opts.DefaultPlanKey
	}

	plan, err := GetPlan(ctx, r.store, planKey)
	if errors.Is(err, records.ErrNotFound) && planKey != r.opts.DefaultPlanKey {
		r.logger.Warn("subscribed plan missing, using default", "scope", scope.String(), "plan_key", planKey)
		plan, err = GetPlan(ctx, r.store, r.opts.DefaultPlanKey)
	}

	var resolved *records.ResolvedPlan
	switch {
	case errors.Is(err, records.ErrNotFound):
		r.logger.Warn("default plan missing, using synthetic plan", "scope", scope.String(), "plan_key", r.opts.DefaultPlanKey)
		resolved = &records.ResolvedPlan{
			PlanKey:      r.opts.DefaultPlanKey,
			Name:         r.opts.DefaultPlanKey,
			FeatureFlags: map[string]any{},
			Synthetic:    true,
		}
		resolved.EffectiveRetentionDaysCore = EffectiveRetention(nil, nil, r.opts.RetentionFloorDays)
		resolved.EffectiveRetentionDaysPii = EffectiveRetention(nil, nil, r.opts.RetentionFloorDays)
	case err != nil:
		return nil, err
	default:
		resolved = &records.ResolvedPlan{
			PlanKey:                    plan.PlanKey,
			Name:                       plan.Name,
			EffectiveRetentionDaysCore: EffectiveRetention(plan.RetentionDaysCore, plan.RetentionDaysPii, r.opts.RetentionFloorDays),
			EffectiveRetentionDaysPii:  EffectiveRetention(plan.RetentionDaysPii, plan.RetentionDaysCore, r.opts.RetentionFloorDays),
			Quotas:                     plan.Quotas,
			FeatureFlags:               copyFlags(plan.FeatureFlags),
			Pricing:                    plan.Pricing,
		}
	}

	if scope.Kind == records.ScopeFirm {
		until, err := r.unlimitedUntil(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		if until != nil && until.After(now) {
			resolved.Quotas = records.Quotas{}
			resolved.FeatureFlags["unlimited"] = true
			r.logger.Debug("unlimited override active", "scope", scope.String(), "until", until)
		}
	}

	return resolved, nil
}

// EffectiveRetention applies the platform floor to one retention category:
// max(value ?? other ?? floor, floor).
func EffectiveRetention(value, other *int, floor int) int {
	v := floor
	switch {
	case value != nil:
		v = *value
	case other != nil:
		v = *other
	}
	if v < floor {
		return floor
	}
	return v
}

func (r *Resolver) activePlanKey(ctx context.Context, scope records.Scope, now time.Time) (string, error) {
	table, owner := "tenant_subscriptions", "tenant_id"
	if scope.Kind == records.ScopeFirm {
		table, owner = "firm_subscriptions", "firm_id"
	}
	ts := store.FormatTime(now)

	var planKey string
	err := r.store.QueryRowContext(ctx, `SELECT plan_key FROM `+table+`
		WHERE `+owner+` = ? AND status = ?
		  AND (starts_at IS NULL OR starts_at <= ?)
		  AND (ends_at IS NULL OR ends_at > ?)
		ORDER BY starts_at DESC
		LIMIT 1`, scope.ID, records.SubscriptionActive, ts, ts).Scan(&planKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up subscription for %s: %w", scope, err)
	}
	return planKey, nil
}

// unlimitedUntil returns the latest override expiry for a firm: the
// firm_plan_overrides row, or the environment override when the firm's
// key matches the configured default firm key.
func (r *Resolver) unlimitedUntil(ctx context.Context, firmID string) (*time.Time, error) {
	var until *time.Time

	var stored sql.NullString
	err := r.store.QueryRowContext(ctx, `SELECT unlimited_until FROM firm_plan_overrides WHERE firm_id = ?`, firmID).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to look up override for firm %s: %w", firmID, err)
	default:
		if until, err = store.ParseNullTime(stored); err != nil {
			return nil, err
		}
	}

	if r.opts.DefaultFirmKey != "" && r.opts.UnlimitedUntil != nil {
		var firmKey string
		err := r.store.QueryRowContext(ctx, `SELECT firm_key FROM firms WHERE id = ?`, firmID).Scan(&firmKey)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to look up firm %s: %w", firmID, err)
		}
		if firmKey == r.opts.DefaultFirmKey && (until == nil || r.opts.UnlimitedUntil.After(*until)) {
			env := *r.opts.UnlimitedUntil
			until = &env
		}
	}

	return until, nil
}

func copyFlags(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

// GetPlan loads one plan row.
func GetPlan(ctx context.Context, q store.Querier, planKey string) (*records.SubscriptionPlan, error) {
	row := q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE plan_key = ?`, planKey)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	return plan, err
}

// ListPlans returns every plan ordered by key.
func ListPlans(ctx context.Context, q store.Querier) ([]*records.SubscriptionPlan, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY plan_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []*records.SubscriptionPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, plan)
	}
	return out, rows.Err()
}

const planColumns = `plan_key, name, retention_days_core, retention_days_pii,
	quota_documents_per_month, quota_storage_gb, quota_otp_sms_per_month,
	quota_evidence_generations_per_month, quota_evidence_cpu_seconds_per_month,
	quota_cases, quota_clients, quota_users, feature_flags, price_cents, currency`

func scanPlan(row store.RowScanner) (*records.SubscriptionPlan, error) {
	var (
		plan      records.SubscriptionPlan
		core, pii sql.NullInt64
		quotas    [8]sql.NullInt64
		flags     sql.NullString
	)
	if err := row.Scan(&plan.PlanKey, &plan.Name, &core, &pii,
		&quotas[0], &quotas[1], &quotas[2], &quotas[3], &quotas[4], &quotas[5], &quotas[6], &quotas[7],
		&flags, &plan.Pricing.PriceCents, &plan.Pricing.Currency); err != nil {
		return nil, err
	}

	plan.RetentionDaysCore = intPtr(core)
	plan.RetentionDaysPii = intPtr(pii)
	plan.Quotas = records.Quotas{
		DocumentsPerMonth:           int64Ptr(quotas[0]),
		StorageGB:                   int64Ptr(quotas[1]),
		OTPSMSPerMonth:              int64Ptr(quotas[2]),
		EvidenceGenerationsPerMonth: int64Ptr(quotas[3]),
		EvidenceCPUSecondsPerMonth:  int64Ptr(quotas[4]),
		Cases:                       int64Ptr(quotas[5]),
		Clients:                     int64Ptr(quotas[6]),
		Users:                       int64Ptr(quotas[7]),
	}
	plan.FeatureFlags = map[string]any{}
	if flags.Valid && flags.String != "" {
		if err := json.Unmarshal([]byte(flags.String), &plan.FeatureFlags); err != nil {
			return nil, fmt.Errorf("invalid feature flags for plan %s: %w", plan.PlanKey, err)
		}
	}
	return &plan, nil
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}
