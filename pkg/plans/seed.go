package plans

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

// PlanFile is the operator-maintained plans.yaml document.
type PlanFile struct {
	Plans []records.SubscriptionPlan `yaml:"plans"`
}

// LoadPlanFile reads and validates a plans.yaml file.
func LoadPlanFile(path string) ([]records.SubscriptionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlans(data)
}

// ParsePlans parses plans.yaml content.
func ParsePlans(data []byte) ([]records.SubscriptionPlan, error) {
	var file PlanFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}

	seen := make(map[string]bool, len(file.Plans))
	for i, p := range file.Plans {
		if p.PlanKey == "" {
			return nil, fmt.Errorf("plans[%d]: plan_key is required", i)
		}
		if seen[p.PlanKey] {
			return nil, fmt.Errorf("plans[%d]: duplicate plan_key %q", i, p.PlanKey)
		}
		seen[p.PlanKey] = true
		if p.Name == "" {
			file.Plans[i].Name = p.PlanKey
		}
		if p.Pricing.Currency == "" {
			file.Plans[i].Pricing.Currency = "USD"
		}
	}
	return file.Plans, nil
}

// Seed upserts plans in one transaction.
func Seed(ctx context.Context, st *store.Store, plans []records.SubscriptionPlan) error {
	return st.InTx(ctx, func(tx *store.Tx) error {
		for i := range plans {
			if err := UpsertPlan(ctx, tx, &plans[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertPlan inserts or replaces one plan row.
func UpsertPlan(ctx context.Context, q store.Querier, p *records.SubscriptionPlan) error {
	flags := "{}"
	if len(p.FeatureFlags) > 0 {
		data, err := json.Marshal(p.FeatureFlags)
		if err != nil {
			return fmt.Errorf("plan %s: invalid feature flags: %w", p.PlanKey, err)
		}
		flags = string(data)
	}
	currency := p.Pricing.Currency
	if currency == "" {
		currency = "USD"
	}

	_, err := q.ExecContext(ctx, `INSERT INTO subscription_plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (plan_key) DO UPDATE SET
			name = excluded.name,
			retention_days_core = excluded.retention_days_core,
			retention_days_pii = excluded.retention_days_pii,
			quota_documents_per_month = excluded.quota_documents_per_month,
			quota_storage_gb = excluded.quota_storage_gb,
			quota_otp_sms_per_month = excluded.quota_otp_sms_per_month,
			quota_evidence_generations_per_month = excluded.quota_evidence_generations_per_month,
			quota_evidence_cpu_seconds_per_month = excluded.quota_evidence_cpu_seconds_per_month,
			quota_cases = excluded.quota_cases,
			quota_clients = excluded.quota_clients,
			quota_users = excluded.quota_users,
			feature_flags = excluded.feature_flags,
			price_cents = excluded.price_cents,
			currency = excluded.currency`,
		p.PlanKey, p.Name, store.NullInt(p.RetentionDaysCore), store.NullInt(p.RetentionDaysPii),
		store.NullInt64(p.Quotas.DocumentsPerMonth), store.NullInt64(p.Quotas.StorageGB),
		store.NullInt64(p.Quotas.OTPSMSPerMonth), store.NullInt64(p.Quotas.EvidenceGenerationsPerMonth),
		store.NullInt64(p.Quotas.EvidenceCPUSecondsPerMonth), store.NullInt64(p.Quotas.Cases),
		store.NullInt64(p.Quotas.Clients), store.NullInt64(p.Quotas.Users),
		flags, p.Pricing.PriceCents, currency,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert plan %s: %w", p.PlanKey, err)
	}
	return nil
}
