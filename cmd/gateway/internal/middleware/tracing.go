package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/lina/internal/tracing"
)

// TracingMiddleware starts a server span per request and echoes the trace id back
// to the caller.
type TracingMiddleware struct {
	logger *zap.Logger
}

// NewTracingMiddleware creates a new tracing middleware
func NewTracingMiddleware(logger *zap.Logger) *TracingMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TracingMiddleware{logger: logger}
}

// Middleware returns the HTTP middleware function
func (tm *TracingMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartHTTPSpan(r)
		defer span.End()

		// With tracing disabled the span context is invalid; fall back to the
		// caller's ids or a fresh one so logs can still be correlated.
		traceID, spanID := "", ""
		if sc := span.SpanContext(); sc.IsValid() {
			traceID = sc.TraceID().String()
			spanID = sc.SpanID().String()
		} else {
			traceID = extractTraceID(r)
			if traceID == "" {
				traceID = strings.ReplaceAll(uuid.New().String(), "-", "")
			}
		}
		span.SetAttributes(attribute.String("lina.trace_id", traceID))

		w.Header().Set("X-Trace-ID", traceID)
		if spanID != "" {
			w.Header().Set("X-Span-ID", spanID)
		}

		tm.logger.Debug("Request received",
			zap.String("trace_id", traceID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
	})
}

// extractTraceID reads a caller supplied trace id.
func extractTraceID(r *http.Request) string {
	if traceID, _, _, ok := tracing.ParseTraceparent(r.Header.Get("traceparent")); ok {
		return traceID
	}
	if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
		return traceID
	}
	return r.Header.Get("X-Request-ID")
}

// statusRecorder keeps the response status and still exposes Flush and Hijack for
// the NDJSON and WebSocket handlers.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	s.wroteHeader = true
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
