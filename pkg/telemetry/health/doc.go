// Package health runs dependency checks for the compliance API.
//
// A Checker holds named CheckFuncs (database ping, schema presence) and runs
// them concurrently, each under its own timeout:
//
//	checker := health.New(2 * time.Second)
//	checker.Register("database", st.DB().PingContext)
//	router.Handle("/healthz", checker.Handler())
//
// The handler answers 200 with status "ok" when every check passes and 503
// with status "degraded" otherwise.
package health
