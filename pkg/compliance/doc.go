// Package compliance serves the read side of the audit trail: paginated
// audit-event and evidence listings for compliance review.
//
// Listings are ordered newest first by (timestamp, id) and paged with
// opaque keyset cursors from package cursor. A cursor or filter that cannot
// be used is reported as a *ParamError so transports can map it to a client
// error.
package compliance
