// Пакет server — HTTP-сервер агента с graceful shutdown.
// Без TLS — агент слушает loopback или внутреннюю сеть,
// TLS termination при необходимости выполняется reverse proxy.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/scanbridge/internal/api/handlers"
	"github.com/bigkaa/scanbridge/internal/config"
)

// Server — HTTP-сервер агента.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// middlewares — дополнительные middleware (metrics, logging),
// добавляются в порядке переданного среза.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handler, health *handlers.HealthHandler, middlewares ...func(http.Handler) http.Handler) *Server {
	router := chi.NewRouter()

	for _, mw := range middlewares {
		router.Use(mw)
	}

	router.Get("/health/live", health.HealthLive)
	router.Get("/health/ready", health.HealthReady)
	router.Get("/metrics", health.GetMetrics)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/scan", h.Scan)
		r.Get("/files", h.ListFiles)
		r.Get("/files/{fileID}/download", h.DownloadFile)
		r.Get("/config", h.GetConfig)
		r.Patch("/config", h.PatchConfig)
		r.Post("/upload", h.Upload)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AgentPort),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
