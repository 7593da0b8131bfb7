// errors.go — типизированные ошибки клиента сканирования.
package scanner

import "fmt"

// Машиночитаемые коды ошибок клиента.
const (
	// CodeDeviceNotFound — discovery исчерпал диапазон портов
	CodeDeviceNotFound = "DEVICE_NOT_FOUND"
	// CodeNotInitialized — операция требует установленной сессии
	CodeNotInitialized = "NOT_INITIALIZED"
	// CodeScanInProgress — сканирование уже выполняется
	CodeScanInProgress = "SCAN_IN_PROGRESS"
	// CodeProtocolError — некорректный ответ устройства (пустой результат и т.п.)
	CodeProtocolError = "PROTOCOL_ERROR"
	// CodeFormatNotSupported — base64-выгрузка для документного формата
	CodeFormatNotSupported = "FORMAT_NOT_SUPPORTED"
	// CodeFileNotFound — file_id отсутствует в реестре
	CodeFileNotFound = "FILE_NOT_FOUND"
	// CodeEmptyFileList — пустой список файлов для выгрузки
	CodeEmptyFileList = "EMPTY_FILE_LIST"
)

// ClientError — ошибка клиента с машиночитаемым кодом.
type ClientError struct {
	Code    string // Машиночитаемый код (DEVICE_NOT_FOUND и др.)
	Message string // Человекочитаемое описание
	Err     error  // Исходная ошибка (опционально)
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap возвращает исходную ошибку для errors.Is/As.
func (e *ClientError) Unwrap() error {
	return e.Err
}

// clientErr — конструктор ClientError без исходной ошибки.
func clientErr(code, format string, args ...any) *ClientError {
	return &ClientError{Code: code, Message: fmt.Sprintf(format, args...)}
}
