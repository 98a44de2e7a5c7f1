// Package usage meters per-scope consumption and checks it against the
// quotas of a resolved plan.
//
// Usage is append-only: each Record call inserts one usage_events row. Totals
// are computed on demand. Monthly quotas count the UTC calendar month;
// storage is a running balance and counts every event ever recorded.
package usage
