package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wanderleymp/finance-api-sub002/internal/api/shared"
	"github.com/wanderleymp/finance-api-sub002/internal/platform/logger"
)

// traceHeader is the inbound/outbound correlation header. An inbound
// value is trusted so a caller can correlate across services; absent,
// a fresh UUID is generated.
const traceHeader = "X-Trace-ID"

// Trace assigns each request a trace ID, attaches a request-scoped
// logger to the context, and logs one line per request on completion.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := shared.WithTraceID(r.Context(), traceID)
		log := logger.FromContext(ctx).With("trace_id", traceID)
		ctx = logger.WithLogger(ctx, log)

		w.Header().Set(traceHeader, traceID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r.WithContext(ctx))

		log.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// statusRecorder captures the response status for the request log line.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
