// Пакет errors — конструкторы стандартных ошибок HTTP API агента.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // TODO: переименовать пакет errors, конфликт со stdlib

import (
	"encoding/json"
	goerrors "errors"
	"net/http"

	"github.com/bigkaa/scanbridge/internal/scanner"
	"github.com/bigkaa/scanbridge/internal/uploader"
)

// Коды ошибок API агента.
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// FromScannerError транслирует ошибку клиента сканера в HTTP-ответ,
// сохраняя машиночитаемый код. Неизвестные ошибки — 500 INTERNAL_ERROR.
func FromScannerError(w http.ResponseWriter, err error) {
	var ce *scanner.ClientError
	if goerrors.As(err, &ce) {
		WriteError(w, statusForCode(ce.Code), ce.Code, ce.Message)
		return
	}

	var ue *uploader.ClientError
	if goerrors.As(err, &ue) {
		WriteError(w, http.StatusBadRequest, ue.Code, ue.Message)
		return
	}

	InternalError(w, err.Error())
}

// statusForCode сопоставляет HTTP-статус коду ошибки сканера.
func statusForCode(code string) int {
	switch code {
	case scanner.CodeDeviceNotFound:
		return http.StatusServiceUnavailable
	case scanner.CodeNotInitialized:
		return http.StatusConflict
	case scanner.CodeScanInProgress:
		return http.StatusConflict
	case scanner.CodeProtocolError:
		return http.StatusBadGateway
	case scanner.CodeFormatNotSupported:
		return http.StatusUnprocessableEntity
	case scanner.CodeFileNotFound:
		return http.StatusNotFound
	case scanner.CodeEmptyFileList:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
