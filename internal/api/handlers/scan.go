// scan.go — обработчик запуска сканирования.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bigkaa/scanbridge/internal/api/errors"
	"github.com/bigkaa/scanbridge/internal/domain/model"
)

// scanResponse — ответ на запрос сканирования.
type scanResponse struct {
	Files []model.FileRecord `json:"files"`
	// BatchID — идентификатор заархивированной пачки (пусто, если
	// архивация выключена или не удалась)
	BatchID string `json:"batch_id,omitempty"`
}

// Scan — POST /api/v1/scan.
// При отсутствии сессии сначала выполняется инициализация (снапшот или
// discovery), затем сканирование с текущей конфигурацией. Кэш файлов
// инвалидируется: устройство перезаписало результаты предыдущего скана.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if !h.client.Initialized() {
		if err := h.client.Initialize(ctx); err != nil {
			errors.FromScannerError(w, err)
			return
		}
	}

	records, err := h.client.Scan(ctx)
	if err != nil {
		errors.FromScannerError(w, err)
		return
	}

	h.blobs.Purge()

	resp := scanResponse{Files: records}

	if h.archiver != nil {
		batchID, archErr := h.archiver.ArchiveBatch(ctx, records)
		if archErr != nil {
			// Архивация не влияет на результат сканирования
			h.logger.Error("Ошибка архивации пачки",
				slog.String("batch_id", batchID),
				slog.String("error", archErr.Error()),
			)
		}
		resp.BatchID = batchID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
