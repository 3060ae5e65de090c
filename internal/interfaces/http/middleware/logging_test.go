package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contabil/fiscore/internal/infrastructure/monitoring/logging"
	"github.com/contabil/fiscore/internal/infrastructure/monitoring/prometheus"
)

func TestLoggingMiddleware_PassesThrough(t *testing.T) {
	metrics := prometheus.NewAppMetrics(prometheus.NewNopCollector())
	mw := NewLoggingMiddleware(logging.NewNopLogger(), metrics)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	r := httptest.NewRequest(http.MethodGet, "/api/v1/instances", nil)
	w := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "short and stout", w.Body.String())
}

func TestLoggingMiddleware_DefaultStatusIs200(t *testing.T) {
	metrics := prometheus.NewAppMetrics(prometheus.NewNopCollector())
	mw := NewLoggingMiddleware(logging.NewNopLogger(), metrics)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("implicit 200"))
	})

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	mw.Handler(next).ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}
