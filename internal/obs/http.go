package obs

import (
	"net/http"
	"strings"
	"time"

	"github.com/kuitang/notifier-e2e/internal/logutil"
)

const requestIDHeader = "X-Request-Id"

// statusWriter remembers the status code and body size a handler produced.
type statusWriter struct {
	http.ResponseWriter
	status int
	n      int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// AccessLogMiddleware tags each request with a request id (reusing the caller's
// X-Request-Id) and logs one http_access event when the handler returns.
// Redirects to the login page are logged at info so expired sessions show up
// next to the suite's own events; everything else is debug.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = newRequestID()
		}
		w.Header().Set(requestIDHeader, requestID)
		ctx := WithCorrelation(r.Context(), Correlation{RequestID: requestID})

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r.WithContext(ctx))
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		log := From(ctx).With("pkg", pkg)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"dur_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"resp_bytes", sw.n,
			"headers", logutil.FormatHeadersForLog(r.Header),
		}
		if loc := w.Header().Get("Location"); loc != "" {
			attrs = append(attrs, "location", loc)
			if strings.HasSuffix(loc, "/login") {
				log.Info("http_access", attrs...)
				return
			}
		}
		log.Debug("http_access", attrs...)
	})
}
