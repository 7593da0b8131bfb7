// metrics.go — Prometheus HTTP метрики агента.
// Регистрирует метрики: sb_http_requests_total, sb_http_request_duration_seconds.
// Бизнес-метрики (сканирование, выгрузка, кэш) регистрируются
// в соответствующих пакетах и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sb_http_requests_total",
			Help: "Общее количество HTTP-запросов к агенту",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sb_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к агенту в секундах",
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
			// (заменяем file_id на {id} для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseRecorder(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// normalizePath заменяет идентификатор файла в пути на {id} для
// предотвращения взрывного роста кардинальности метрик.
// /api/v1/files/abc123/download → /api/v1/files/{id}/download
func normalizePath(path string) string {
	const filesPrefix = "/api/v1/files/"
	if !strings.HasPrefix(path, filesPrefix) || path == filesPrefix {
		return path
	}

	rest := path[len(filesPrefix):]
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return filesPrefix + "{id}" + rest[idx:]
	}
	return filesPrefix + "{id}"
}
