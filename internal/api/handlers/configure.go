// configure.go — обработчики конфигурации сканирования.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/scanbridge/internal/api/errors"
)

// GetConfig — GET /api/v1/config.
// Возвращает текущую конфигурацию сканирования.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(h.client.Config())
}

// PatchConfig — PATCH /api/v1/config.
// Принимает частичное обновление: не указанные в теле поля сохраняют
// текущие значения. Невалидная конфигурация отклоняется целиком.
func (h *Handler) PatchConfig(w http.ResponseWriter, r *http.Request) {
	// Частичное обновление: декодируем поверх текущей конфигурации
	cfg := h.client.Config()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		errors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}

	if err := h.client.SetConfig(cfg); err != nil {
		errors.ValidationError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(h.client.Config())
}
