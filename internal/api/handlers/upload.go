// upload.go — обработчик выгрузки пачки файлов на внешние endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/bigkaa/scanbridge/internal/api/errors"
	"github.com/bigkaa/scanbridge/internal/uploader"
)

// uploadRequest — тело запроса выгрузки.
type uploadRequest struct {
	ImageUploadURL    string            `json:"imageUploadUrl"`
	FileListUploadURL string            `json:"fileListUploadUrl"`
	FileIDs           []string          `json:"fileIds"`
	Headers           map[string]string `json:"headers,omitempty"`
	ExtraFields       map[string]string `json:"extraFields,omitempty"`
	FileNamePrefix    string            `json:"fileNamePrefix,omitempty"`
}

// uploadItemResponse — результат per-file выгрузки в ответе API.
// nil-слот конвейера представляется записью со status "missing".
type uploadItemResponse struct {
	FileID     string          `json:"file_id,omitempty"`
	FileName   string          `json:"file_name,omitempty"`
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// uploadResponse — ответ на запрос выгрузки.
// ManifestError заполняется, когда per-file выгрузки завершились, но
// манифест не дошёл: отличает ошибку манифеста от его отсутствия.
type uploadResponse struct {
	PerFile       []uploadItemResponse     `json:"per_file"`
	Manifest      *uploader.ManifestResult `json:"manifest,omitempty"`
	ManifestError string                   `json:"manifest_error,omitempty"`
}

// Upload — POST /api/v1/upload.
// Запускает конвейер выгрузки: конкурентные per-file multipart POST-ы,
// затем JSON-манифест. Частичный успех возвращается как 200 с
// детализацией по слотам.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.ValidationError(w, "некорректное тело запроса: "+err.Error())
		return
	}
	if req.ImageUploadURL == "" || req.FileListUploadURL == "" {
		errors.ValidationError(w, "не заданы endpoints выгрузки")
		return
	}

	result, err := h.client.UploadScanImages(r.Context(), uploader.Params{
		ImageUploadURL:    req.ImageUploadURL,
		FileListUploadURL: req.FileListUploadURL,
		FileIDs:           req.FileIDs,
		Headers:           req.Headers,
		ExtraFields:       req.ExtraFields,
		FileNamePrefix:    req.FileNamePrefix,
	})
	if err != nil && result == nil {
		errors.FromScannerError(w, err)
		return
	}

	resp := uploadResponse{
		PerFile:  make([]uploadItemResponse, 0, len(result.PerFile)),
		Manifest: result.Manifest,
	}
	// Частичный результат (манифест не дошёл) возвращается с
	// описанием причины
	if err != nil {
		resp.ManifestError = err.Error()
	}
	for i, item := range result.PerFile {
		switch {
		case item == nil:
			resp.PerFile = append(resp.PerFile, uploadItemResponse{
				FileID: req.FileIDs[i],
				Status: "missing",
			})
		case item.Err != nil:
			resp.PerFile = append(resp.PerFile, uploadItemResponse{
				FileID:   item.FileID,
				FileName: item.FileName,
				Status:   "error",
				Error:    item.Err.Error(),
			})
		default:
			resp.PerFile = append(resp.PerFile, uploadItemResponse{
				FileID:     item.FileID,
				FileName:   item.FileName,
				Status:     "ok",
				StatusCode: item.StatusCode,
				Body:       item.Body,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
