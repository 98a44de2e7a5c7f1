package usage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"lexsign/custodian/pkg/records"
	"lexsign/custodian/pkg/store"
)

const bytesPerGB = int64(1) << 30

// Status is the outcome of a quota check for one metric.
type Status struct {
	// Metric is the checked usage metric.
	Metric string `json:"metric"`

	// Allowed is false once usage plus the requested quantity exceeds the limit.
	Allowed bool `json:"allowed"`

	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`

	// Unlimited is set when the plan has no limit for the metric.
	Unlimited bool `json:"unlimited"`

	// Limit is the quota in the metric's unit. Zero when Unlimited.
	Limit int64 `json:"limit"`

	// Used is the usage counted in the current window.
	Used int64 `json:"used"`

	// Remaining is Limit minus Used, never negative.
	Remaining int64 `json:"remaining"`

	// WindowStart is the first instant counted. Zero for metrics that are
	// not windowed (storage).
	WindowStart time.Time `json:"windowStart"`

	// Reset is when the window next starts over.
	Reset time.Time `json:"reset"`
}

// Tracker records metered usage per scope and checks it against plan quotas.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
}

// NewTracker creates a Tracker.
func NewTracker(st *store.Store) *Tracker {
	return &Tracker{
		store:  st,
		logger: slog.Default().With("component", "usage.tracker"),
	}
}

// Record stores one usage event. A negative quantity releases usage, which
// is how storage shrinks when objects are deleted.
func (t *Tracker) Record(ctx context.Context, scope records.Scope, metric string, quantity int64, at time.Time) (*records.UsageEvent, error) {
	if err := validMetric(metric); err != nil {
		return nil, err
	}
	ev := &records.UsageEvent{
		ID:         uuid.New().String(),
		Scope:      scope,
		Metric:     metric,
		Quantity:   quantity,
		OccurredAt: at.UTC(),
	}
	if _, err := t.store.ExecContext(ctx, `INSERT INTO usage_events
		(id, scope_kind, scope_id, metric, quantity, occurred_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(scope.Kind), scope.ID, metric, quantity, store.FormatTime(ev.OccurredAt),
	); err != nil {
		return nil, records.NewStorageError(t.store.Driver(), "record_usage", err)
	}

	t.logger.Debug("usage recorded", "scope", scope.String(), "metric", metric, "quantity", quantity)
	return ev, nil
}

// Total sums a metric for scope over [since, until). A zero since counts
// from the beginning.
func (t *Tracker) Total(ctx context.Context, scope records.Scope, metric string, since, until time.Time) (int64, error) {
	var total sql.NullInt64
	err := t.store.QueryRowContext(ctx, `SELECT SUM(quantity) FROM usage_events
		WHERE scope_kind = ? AND scope_id = ? AND metric = ? AND occurred_at >= ? AND occurred_at < ?`,
		string(scope.Kind), scope.ID, metric, lowerBound(since), store.FormatTime(until),
	).Scan(&total)
	if err != nil {
		return 0, records.NewStorageError(t.store.Driver(), "sum_usage", err)
	}
	return total.Int64, nil
}

// CheckQuota reports whether requested more units of metric fit in plan's
// quota at now. Monthly metrics count the calendar month (UTC) containing
// now; storage counts everything recorded so far. A nil quota is unlimited.
func (t *Tracker) CheckQuota(ctx context.Context, scope records.Scope, plan *records.ResolvedPlan, metric string, requested int64, now time.Time) (*Status, error) {
	if err := validMetric(metric); err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, fmt.Errorf("no plan resolved for %s", scope)
	}

	limit := QuotaFor(plan.Quotas, metric)
	status := &Status{Metric: metric, Allowed: true}

	var since time.Time
	if metric != records.MetricStorageBytes {
		since, status.Reset = MonthWindow(now)
		status.WindowStart = since
	}

	used, err := t.Total(ctx, scope, metric, since, now.Add(time.Microsecond))
	if err != nil {
		return nil, err
	}
	status.Used = used

	if limit == nil {
		status.Unlimited = true
		return status, nil
	}

	status.Limit = *limit
	if rem := *limit - used; rem > 0 {
		status.Remaining = rem
	}
	if used+requested > *limit {
		status.Allowed = false
		status.Reason = fmt.Sprintf("%s quota exceeded", metric)
	}
	return status, nil
}

// QuotaFor returns the limit for metric in the metric's own unit, or nil
// for no limit. Storage quotas are configured in GB and returned in bytes.
func QuotaFor(q records.Quotas, metric string) *int64 {
	switch metric {
	case records.MetricDocuments:
		return q.DocumentsPerMonth
	case records.MetricStorageBytes:
		if q.StorageGB == nil {
			return nil
		}
		b := *q.StorageGB * bytesPerGB
		return &b
	case records.MetricOTPSMS:
		return q.OTPSMSPerMonth
	case records.MetricEvidenceGenerations:
		return q.EvidenceGenerationsPerMonth
	case records.MetricEvidenceCPUSeconds:
		return q.EvidenceCPUSecondsPerMonth
	}
	return nil
}

// MonthWindow returns the start of the UTC calendar month containing t and
// the start of the next one.
func MonthWindow(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func lowerBound(since time.Time) string {
	if since.IsZero() {
		return ""
	}
	return store.FormatTime(since)
}

func validMetric(metric string) error {
	switch metric {
	case records.MetricDocuments, records.MetricStorageBytes, records.MetricOTPSMS,
		records.MetricEvidenceGenerations, records.MetricEvidenceCPUSeconds:
		return nil
	}
	return fmt.Errorf("unknown usage metric %q", metric)
}
