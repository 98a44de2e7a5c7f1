package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"lexsign/custodian/pkg/telemetry/logging"
	"lexsign/custodian/pkg/telemetry/tracing"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Route names double as the metrics route label.
const (
	routeAuditEvents = "/v1/audit-events"
	routeEvidence    = "/v1/evidence"
	routeVerify      = "/v1/signing-files/{id}/audit-chain/verify"
	routeHealth      = "/healthz"
)

// Handler builds the router with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.handle(r, routeAuditEvents, http.HandlerFunc(s.listAuditEvents))
	s.handle(r, routeEvidence, http.HandlerFunc(s.listEvidence))
	s.handle(r, routeVerify, http.HandlerFunc(s.verifyChain))
	s.handle(r, routeHealth, s.opts.Checker.Handler())
	if s.opts.Metrics != nil && s.opts.MetricsPath != "" {
		r.Handle(s.opts.MetricsPath, s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	var h http.Handler = r
	h = handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
	h = requestID(h)
	if s.config.CORS.Enabled {
		h = handlers.CORS(
			handlers.AllowedOrigins(s.config.CORS.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead, http.MethodOptions}),
			handlers.AllowedHeaders([]string{RequestIDHeader, "traceparent", "tracestate"}),
			handlers.ExposedHeaders([]string{RequestIDHeader, tracing.TraceIDHeader}),
			handlers.MaxAge(s.config.CORS.MaxAge),
		)(h)
	}
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(panicLogger{s.logger}),
		handlers.PrintRecoveryStack(true),
	)(h)
	return h
}

func (s *Server) handle(r *mux.Router, route string, h http.Handler) {
	h = tracing.Middleware(route, h)
	if s.opts.Metrics != nil {
		h = s.opts.Metrics.Requests.Middleware(route, h)
	}
	r.Handle(route, h).Methods(http.MethodGet, http.MethodHead)
}

// requestID propagates the caller's X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	level := slog.LevelInfo
	switch {
	case p.StatusCode >= 500:
		level = slog.LevelError
	case p.StatusCode >= 400:
		level = slog.LevelWarn
	}
	s.logger.Log(p.Request.Context(), level, "Request completed",
		"method", p.Request.Method,
		"path", p.URL.Path,
		"status", p.StatusCode,
		"bytes", p.Size,
		"latency_ms", time.Since(p.TimeStamp).Milliseconds(),
		"remote_addr", p.Request.RemoteAddr,
	)
}

// panicLogger adapts slog to handlers.RecoveryHandlerLogger.
type panicLogger struct {
	logger *slog.Logger
}

func (l panicLogger) Println(v ...any) {
	l.logger.Error("Handler panic", "panic", fmt.Sprint(v...))
}
