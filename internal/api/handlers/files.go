// files.go — обработчики списка файлов и скачивания.
package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/scanbridge/internal/api/errors"
	"github.com/bigkaa/scanbridge/internal/domain/model"
)

// filesResponse — ответ на запрос списка файлов.
type filesResponse struct {
	Files []model.FileRecord `json:"files"`
	Total int                `json:"total"`
}

// ListFiles — GET /api/v1/files.
// Возвращает реестр файлов последнего сканирования,
// отсортированный по имени.
func (h *Handler) ListFiles(w http.ResponseWriter, _ *http.Request) {
	files := h.client.Registry().List()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(filesResponse{
		Files: files,
		Total: len(files),
	})
}

// DownloadFile — GET /api/v1/files/{fileID}/download.
// Содержимое берётся из LRU-кэша; при промахе скачивается с устройства
// и кладётся в кэш.
func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")
	if fileID == "" {
		errors.ValidationError(w, "не указан идентификатор файла")
		return
	}

	rec := h.client.Registry().Get(fileID)
	if rec == nil {
		errors.NotFound(w, "файл не найден в реестре")
		return
	}

	data, ok := h.blobs.Get(fileID)
	if !ok {
		var err error
		data, err = h.client.FetchBlob(r.Context(), fileID)
		if err != nil {
			errors.FromScannerError(w, err)
			return
		}
		h.blobs.Set(fileID, data)
	}

	w.Header().Set("Content-Type", contentTypeFor(rec.FileName))
	w.Header().Set("Content-Disposition", `attachment; filename="`+rec.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// contentTypeFor определяет MIME-тип по расширению имени файла.
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
