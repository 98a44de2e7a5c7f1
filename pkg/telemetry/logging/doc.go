// Package logging builds the process logger.
//
// New returns a *slog.Logger writing JSON or text to stderr. The CLI installs
// it with slog.SetDefault, and every component derives its own logger from
// the default tagged with "component".
//
// Secret redaction is on by default. Attributes whose key contains a secret
// word (password, token, dsn, ...) are replaced with [REDACTED]; other string
// values are scanned for bearer tokens, DSN passwords, AWS access keys and any
// configured patterns:
//
//	logger.Info("connecting", "database", "postgres://app:hunter2@db/app")
//	// database=postgres://app:***@db/app
//
// Request and run identifiers stored with WithRequestID and WithRunID are
// added to every record logged with that context.
package logging
