package middleware

import (
	"net/http"
	"time"

	"github.com/mrsbeantempeh/mrsbean-sub000/internal/logging"
)

// TraceHeader carries the request's trace id in both directions.
const TraceHeader = "X-Trace-ID"

const maxTraceIDLen = 64

// upstreamTraceHeaders are checked, in order, when the client sent no
// X-Trace-ID. API Gateway and most proxies set one of them.
var upstreamTraceHeaders = []string{TraceHeader, "X-Request-Id", "X-Amzn-Trace-Id"}

// RequestTracer tags each request with a trace id and logs it once the
// response is written.
type RequestTracer struct {
	logger *logging.Logger
	quiet  map[string]bool
}

// NewRequestTracer logs every request except those to quietPaths.
func NewRequestTracer(logger *logging.Logger, quietPaths ...string) *RequestTracer {
	quiet := make(map[string]bool, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = true
	}
	return &RequestTracer{logger: logger, quiet: quiet}
}

func (t *RequestTracer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := incomingTraceID(r)
		ctx := logging.WithTraceID(r.Context(), traceID)
		w.Header().Set(TraceHeader, traceID)

		rw := wrap(w)
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))

		if !t.quiet[r.URL.Path] {
			t.logger.LogRequest(ctx, r.Method, r.URL.Path, rw.statusCode, time.Since(start))
		}
	})
}

func incomingTraceID(r *http.Request) string {
	for _, h := range upstreamTraceHeaders {
		if id := r.Header.Get(h); validTraceID(id) {
			return id
		}
	}
	return logging.NewTraceID()
}

// validTraceID keeps client-supplied ids short and printable so they are
// safe to echo into headers and logs.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxTraceIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.' || c == ':' || c == '=' || c == ';':
		default:
			return false
		}
	}
	return true
}
