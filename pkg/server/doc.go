// Package server exposes the compliance read API over HTTP.
//
// Routes (all GET, JSON):
//
//	/v1/audit-events                           paged audit listing
//	/v1/evidence                               paged signed-document listing
//	/v1/signing-files/{id}/audit-chain/verify  hash-chain verification
//	/healthz                                   dependency checks
//	/metrics                                   Prometheus exposition, when enabled
//
// Listings accept filters as camelCase query parameters plus cursor and
// pageSize, and answer {"items": [...], "nextCursor": "..."}; nextCursor is
// absent on the last page. A malformed parameter or cursor answers 400 with
// {"error": "...", "param": "..."}.
//
// The middleware chain is, outermost first: panic recovery, CORS (when
// enabled), request id, access logging, then per-route request metrics.
package server
