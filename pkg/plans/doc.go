// Package plans resolves the effective subscription plan of a tenant or firm.
//
// # Resolution
//
//  1. The active subscription row for the scope is looked up.
//  2. Without one, the configured default plan key (BASIC) is used.
//  3. If that plan row is missing too, a synthetic plan with no quotas is
//     returned instead of an error.
//  4. Both retention categories are raised to the platform floor:
//     max(value ?? otherCategory ?? floor, floor).
//  5. A live unlimited override (firm_plan_overrides row, or the
//     environment override for the default firm key) clears every quota to
//     "no limit" and sets the unlimited feature flag. Retention is unchanged.
//
// Firm scopes on deployments without the firm tables resolve to nil.
//
// # Caching
//
// The Resolver is given an explicit Cache. MemoryCache serves a single
// process; RedisCache shares entries between the scheduler and API
// processes. Invalidate drops one scope after a plan or subscription change.
package plans
