package middleware

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
)

// LoggingMiddleware emits one structured line per request and feeds the
// request counter and duration histogram.
type LoggingMiddleware struct {
	logger  logging.Logger
	metrics *prometheus.AppMetrics

	// skip suppresses log lines for high-frequency probe paths; the
	// metrics are still recorded.
	skip map[string]bool
}

func NewLoggingMiddleware(logger logging.Logger, metrics *prometheus.AppMetrics) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger:  logger,
		metrics: metrics,
		skip: map[string]bool{
			"/healthz": true,
			"/readyz":  true,
			"/metrics": true,
		},
	}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		routePath := r.URL.Path
		m.metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, routePath, strconv.Itoa(status)).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, routePath).Observe(duration.Seconds())

		if m.skip[routePath] {
			return
		}

		fields := []logging.Field{
			logging.String("method", r.Method),
			logging.String("path", routePath),
			logging.Int("status", status),
			logging.Duration("duration", duration),
			logging.Int("bytes", ww.BytesWritten()),
			logging.String("request_id", chimw.GetReqID(r.Context())),
			logging.String("remote_addr", r.RemoteAddr),
		}
		switch {
		case status >= 500:
			m.logger.Error("http request", fields...)
		case status >= 400:
			m.logger.Warn("http request", fields...)
		default:
			m.logger.Info("http request", fields...)
		}
	})
}
