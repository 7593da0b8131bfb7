// handler.go — основной обработчик HTTP API агента.
// Объединяет health и бизнес-обработчики, делегируя работу
// клиенту сканирования, кэшу и архиву.
package handlers

import (
	"context"
	"log/slog"

	"github.com/bigkaa/scanbridge/internal/cache"
	"github.com/bigkaa/scanbridge/internal/domain/model"
	"github.com/bigkaa/scanbridge/internal/scanner"
)

// BatchArchiver архивирует пачку сканирования в долговременное хранилище
// и возвращает идентификатор пачки.
// nil-архиватор означает, что архивация выключена конфигурацией.
type BatchArchiver interface {
	ArchiveBatch(ctx context.Context, records []model.FileRecord) (string, error)
}

// Handler — обработчик HTTP API агента.
// Health endpoints обслуживаются отдельным HealthHandler (см. health.go),
// маршруты к нему подключает server.New.
type Handler struct {
	client   *scanner.Client
	blobs    *cache.BlobCache
	archiver BatchArchiver
	logger   *slog.Logger
}

// New создаёт обработчик API.
// archiver может быть nil — архивация пачек при этом не выполняется.
func New(client *scanner.Client, blobs *cache.BlobCache, archiver BatchArchiver, logger *slog.Logger) *Handler {
	return &Handler{
		client:   client,
		blobs:    blobs,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}
