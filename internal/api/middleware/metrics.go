// metrics.go — Prometheus HTTP метрики для Ingest Module.
// Регистрирует метрики: im_http_requests_total, im_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики Ingest Module
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "im_http_requests_total",
			Help: "Общее количество HTTP-запросов к Ingest Module",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "im_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Ingest Module в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем числовые id на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет числовые id документов на {id} для предотвращения
// взрывного роста кардинальности метрик.
// /api/v1/documents/42 → /api/v1/documents/{id}
// /api/v1/documents/42/batches → /api/v1/documents/{id}/batches
func normalizePath(path string) string {
	// Статические пути — возвращаем как есть
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/connection", "/api/v1/connection/write-probe",
		"/api/v1/sync", "/api/v1/sync/ledger",
		"/api/v1/documents", "/api/v1/documents/upload":
		return path
	}

	// Динамические пути с числовым id документа
	const docsPrefix = "/api/v1/documents/"
	if strings.HasPrefix(path, docsPrefix) {
		rest := path[len(docsPrefix):]
		id, suffix, _ := strings.Cut(rest, "/")
		if _, err := strconv.ParseInt(id, 10, 64); err == nil {
			if suffix == "" {
				return docsPrefix + "{id}"
			}
			return docsPrefix + "{id}/" + suffix
		}
	}

	return path
}
