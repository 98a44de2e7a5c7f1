// Package telemetry groups the custodian's observability packages.
//
// # Components
//
//   - logging: slog setup with pattern-based redaction of signer data
//   - metrics: Prometheus collectors for retention runs, HTTP and the plan cache
//   - tracing: OpenTelemetry spans for retention stages and API requests
//   - health: liveness and readiness checks served on /healthz
//
// Each subpackage is configured from config.TelemetryConfig and is safe to
// use when its section is disabled.
package telemetry
