// logging.go — middleware логирования входящих HTTP-запросов через slog.
//
// Делит responseRecorder с metrics.go: статус и размер ответа
// перехватываются один раз на запрос. Помимо сырого пути логируется
// нормализованный route (см. normalizePath) — по нему удобно
// сопоставлять записи лога с лейблами sb_http_* метрик.
package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// responseRecorder — обёртка для перехвата статус-кода и размера ответа.
// Используется обоими middleware пакета.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	return &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(b)
	rr.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// RequestLogger возвращает middleware, логирующий каждый HTTP-запрос:
// метод, путь, нормализованный route, статус, длительность, размер
// ответа, remote_addr.
// Уровень логирования зависит от статус-кода: INFO (1xx-3xx), WARN (4xx), ERROR (5xx).
// Выгрузка и скачивание блобов могут быть долгими — duration в логе
// служит первым сигналом деградации устройства.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	httpLogger := logger.With(slog.String("component", "http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseRecorder(w)

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			// Уровень логирования зависит от статус-кода
			level := slog.LevelInfo
			if wrapped.statusCode >= 500 {
				level = slog.LevelError
			} else if wrapped.statusCode >= 400 {
				level = slog.LevelWarn
			}

			httpLogger.LogAttrs(r.Context(), level, "HTTP запрос",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", normalizePath(r.URL.Path)),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", duration),
				slog.Int64("bytes", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
