// Package tracing exports OpenTelemetry spans for retention runs and the
// compliance read API.
//
// New installs a global tracer provider that exports over OTLP/gRPC. Until
// it is called, or when tracing is disabled, Start returns no-op spans, so
// instrumented packages never need a tracer handed to them:
//
//	tracer, err := tracing.New(cfg.Telemetry.Tracing, version)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracing.Start(ctx, "retention.run", tracing.RunID(id))
//	defer tracing.End(span, err)
//
// Incoming requests continue the caller's trace through the W3C
// traceparent header (see Middleware).
package tracing
