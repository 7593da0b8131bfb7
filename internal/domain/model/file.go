// Пакет model — доменные модели scanbridge.
package model

// FileRecord — запись о странице, полученной при сканировании.
// Создаётся при обработке результата скана, после создания не изменяется —
// только заменяется целиком при следующем успешном сканировании.
type FileRecord struct {
	// FileID — непрозрачный идентификатор файла на bridge server
	FileID string `json:"file_id"`
	// FileName — детерминированное имя файла после перенумерации
	FileName string `json:"file_name"`
	// FileSHA256 — контрольная сумма содержимого
	FileSHA256 string `json:"file_sha256"`
	// FileSize — размер файла в байтах
	FileSize int64 `json:"file_size"`
}
