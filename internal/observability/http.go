package observability

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Platform bridges (Slack, Teams) forward their own correlation id in this
// header; it is echoed back so a conversation turn can be traced across the
// bridge and this service with one id.
const traceHeader = "X-Trace-ID"

// TraceMiddleware adopts the caller's X-Trace-ID or mints one, stores it in
// the request context and echoes it on the response.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = newTraceID()
		}
		ctx := ContextWithTraceID(r.Context(), traceID)
		w.Header().Set(traceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestAttrs collects attributes a handler wants on the request log line.
// The message endpoint uses it to surface session id and routed capability
// without emitting a second log record per turn.
type requestAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

type requestAttrsKey struct{}

// AppendRequestAttrs attaches attributes to the current request's log line.
// It is a no-op outside of LoggingMiddleware.
func AppendRequestAttrs(ctx context.Context, attrs ...slog.Attr) {
	carrier, ok := ctx.Value(requestAttrsKey{}).(*requestAttrs)
	if !ok {
		return
	}
	carrier.mu.Lock()
	carrier.attrs = append(carrier.attrs, attrs...)
	carrier.mu.Unlock()
}

// LoggingMiddleware emits one structured record per request, carrying the
// trace id plus whatever the handler appended via AppendRequestAttrs.
func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			carrier := &requestAttrs{}
			ctx := context.WithValue(r.Context(), requestAttrsKey{}, carrier)
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r.WithContext(ctx))

			attrs := []slog.Attr{
				slog.String("trace_id", TraceIDFromContext(ctx)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
				slog.Int("status", recorder.status),
				slog.String("duration", time.Since(start).String()),
				slog.Int("bytes", recorder.bytes),
			}
			carrier.mu.Lock()
			attrs = append(attrs, carrier.attrs...)
			carrier.mu.Unlock()
			logger.LogAttrs(ctx, slog.LevelInfo, "http_request", attrs...)
		})
	}
}

// MetricsMiddleware records per-route request counts and latency. Routes are
// the fixed /v1 patterns, so raw paths are safe as label values.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		status := strconv.Itoa(recorder.status)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

func newTraceID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
